package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chonibe/coa-service-sub020/internal/api/dto"
	"github.com/chonibe/coa-service-sub020/internal/controller"
	"github.com/chonibe/coa-service-sub020/internal/middleware"
	"github.com/chonibe/coa-service-sub020/internal/model"
	"github.com/chonibe/coa-service-sub020/internal/repository"
	"github.com/chonibe/coa-service-sub020/internal/router"
	"github.com/chonibe/coa-service-sub020/internal/service"
	"github.com/chonibe/coa-service-sub020/internal/task"
	"github.com/chonibe/coa-service-sub020/pkg/config"
	"github.com/chonibe/coa-service-sub020/pkg/database"
	"github.com/chonibe/coa-service-sub020/pkg/logger"
	"github.com/chonibe/coa-service-sub020/pkg/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("COA_CONFIG"), "配置文件路径（yaml）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 配置 & 日志
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. 初始化数据库
	db, err := initDatabase(cfg, log)
	if err != nil {
		return err
	}

	// 3. 初始化依赖
	deps, err := initDependencies(cfg, db, log)
	if err != nil {
		return err
	}

	// 4. 启动定时任务
	if err := deps.Tasks.Start(); err != nil {
		return fmt.Errorf("定时任务启动失败: %w", err)
	}
	defer deps.Tasks.Stop()

	// 5. 启动服务
	return startServer(cfg.Server, deps.Engine, log)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	UoW      *repository.UnitOfWork
	Services *Services
	Tasks    *task.TaskManager
	Engine   *gin.Engine
}

// Services 服务集合
type Services struct {
	Edition   *service.EditionService
	Reconcile *service.ReconcileService
	Nfc       *service.NfcService
	Order     *service.OrderService
}

// ==================== 初始化函数 ====================

// initDatabase 连接数据库并迁移
func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := database.NewMigrator(db, log, model.All()...).Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}
	log.Info("数据库初始化完成")
	return db, nil
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*Dependencies, error) {
	if err := dto.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("注册校验规则失败: %w", err)
	}

	// -------- Repo 层 --------
	uow := repository.NewUnitOfWork(db)
	reg := metrics.NewRegistry()

	// -------- 业务服务 --------
	services := &Services{}
	services.Edition = service.NewEditionService(uow, cfg.Edition.UseStoredProcedure, reg, log)
	services.Reconcile = service.NewReconcileService(uow, reg, log)
	services.Nfc = service.NewNfcService(uow, reg, log)
	services.Order = service.NewOrderService(uow, services.Edition, log)

	// -------- 定时任务 --------
	tasks := task.NewTaskManager(services.Reconcile, task.TaskManagerConfig{
		ReconcileEnabled: cfg.Reconcile.SweepEnabled,
		ReconcileSpec:    cfg.Reconcile.SweepSpec,
		ReconcileBatch:   cfg.Reconcile.BatchSize,
	}, log)

	// -------- Controller 层 --------
	engine := router.New(router.Controllers{
		Edition:   controller.NewEditionController(services.Edition),
		Order:     controller.NewOrderController(services.Order),
		Collector: controller.NewCollectorController(services.Reconcile, cfg.Reconcile.BatchSize),
		Nfc:       controller.NewNfcController(services.Nfc),
	}, router.Options{
		JWT:           middleware.NewJWTManager(cfg.JWT),
		Metrics:       reg,
		Logger:        log.Named("http"),
		SweepCooldown: cfg.Reconcile.SweepCooldown,
		TaskStatus:    tasks.Status,
	})

	return &Dependencies{
		UoW:      uow,
		Services: services,
		Tasks:    tasks,
		Engine:   engine,
	}, nil
}

// ==================== 服务启动 ====================

// startServer 启动服务，收到退出信号后优雅关闭
func startServer(cfg config.ServerConfig, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	case <-quit:
	}

	log.Info("正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务强制关闭: %w", err)
	}
	log.Info("服务已退出")
	return nil
}
