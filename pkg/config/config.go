package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Edition   EditionConfig   `mapstructure:"edition"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// JWTConfig 管理后台 JWT 配置
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// EditionConfig 版号分配配置
type EditionConfig struct {
	// 为 true 且数据库为 Postgres 时调用存储过程 assign_edition_numbers
	UseStoredProcedure bool `mapstructure:"use_stored_procedure"`
}

// ReconcileConfig 藏家信息补全配置
type ReconcileConfig struct {
	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepSpec     string        `mapstructure:"sweep_spec"` // cron 表达式（含秒）
	BatchSize     int           `mapstructure:"batch_size"`
	SweepCooldown time.Duration `mapstructure:"sweep_cooldown"`
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.dsn", "host=localhost user=coa password=coa dbname=coa port=5432 sslmode=disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("jwt.secret", "coa-admin-secret-change-in-production")
	v.SetDefault("jwt.issuer", "coa-service")
	v.SetDefault("jwt.access_token_ttl", 2*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("edition.use_stored_procedure", false)

	v.SetDefault("reconcile.sweep_enabled", true)
	v.SetDefault("reconcile.sweep_spec", "0 */15 * * * *")
	v.SetDefault("reconcile.batch_size", 200)
	v.SetDefault("reconcile.sweep_cooldown", 5*time.Minute)
}

// Load 加载配置
// 优先级：环境变量 COA_* > 配置文件 > 默认值
// path 为空时不读取配置文件
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn 不能为空")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret 不能为空")
	}
	if c.Reconcile.BatchSize <= 0 {
		c.Reconcile.BatchSize = 200
	}
	return nil
}
