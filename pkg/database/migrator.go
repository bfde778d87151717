package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrator 数据库初始化器
// 1. AutoMigrate 建表
// 2. 安装存储过程（仅 Postgres）
type Migrator struct {
	db     *gorm.DB
	fsys   fs.FS
	models []interface{}
	log    *zap.Logger
}

// NewMigrator 创建初始化器
func NewMigrator(db *gorm.DB, log *zap.Logger, models ...interface{}) *Migrator {
	sub, _ := fs.Sub(FunctionSQL, "sql")
	return &Migrator{
		db:     db,
		fsys:   sub,
		models: models,
		log:    log,
	}
}

// Migrate 执行初始化
func (m *Migrator) Migrate(ctx context.Context) error {
	start := time.Now()

	if len(m.models) > 0 {
		if err := m.db.WithContext(ctx).AutoMigrate(m.models...); err != nil {
			return fmt.Errorf("AutoMigrate 失败: %w", err)
		}
	}

	installed := 0
	if IsPostgres(m.db) {
		n, err := m.installFunctions(ctx)
		if err != nil {
			return err
		}
		installed = n
	}

	m.log.Info("数据库初始化完成",
		zap.Int("tables", len(m.models)),
		zap.Int("functions", installed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// FunctionFiles 按文件名排序的存储过程脚本
func (m *Migrator) FunctionFiles() ([]string, error) {
	names, err := fs.Glob(m.fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (m *Migrator) installFunctions(ctx context.Context) (int, error) {
	names, err := m.FunctionFiles()
	if err != nil {
		return 0, fmt.Errorf("读取 SQL 文件失败: %w", err)
	}

	for _, name := range names {
		body, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return 0, fmt.Errorf("读取 %s 失败: %w", name, err)
		}
		if err := m.db.WithContext(ctx).Exec(string(body)).Error; err != nil {
			return 0, fmt.Errorf("执行 %s 失败: %w", name, err)
		}
		m.log.Debug("存储过程已安装", zap.String("file", name))
	}
	return len(names), nil
}
