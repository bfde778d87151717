package task

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chonibe/coa-service-sub020/internal/service"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

// ==================== ReconcileSweepTask 藏家补全定时任务 ====================

// PendingReconciler 批量补全能力
// 已有批次在执行时返回 errs.ErrConflict（后台手动触发与定时任务共用同一把锁）
type PendingReconciler interface {
	ReconcilePending(ctx context.Context, limit int) (*service.SweepResult, error)
}

// ReconcileSweepTask 定时扫描缺少买家邮箱的订单并补全
type ReconcileSweepTask struct {
	reconciler PendingReconciler
	cron       *cron.Cron
	spec       string
	batchSize  int
	timeout    time.Duration
	log        *zap.Logger
}

// NewReconcileSweepTask 创建补全任务
// spec 为带秒的 cron 表达式，如 "0 */15 * * * *"
func NewReconcileSweepTask(reconciler PendingReconciler, spec string, batchSize int, log *zap.Logger) *ReconcileSweepTask {
	log = log.Named("reconcile_task")
	return &ReconcileSweepTask{
		reconciler: reconciler,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()})),
		),
		spec:      spec,
		batchSize: batchSize,
		timeout:   10 * time.Minute,
		log:       log,
	}
}

// Start 启动定时任务
func (t *ReconcileSweepTask) Start() error {
	if _, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		_, err := t.RunNow(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errs.ErrConflict):
			t.log.Info("已有补全批次在执行，跳过本轮")
		default:
			t.log.Warn("定时补全失败", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	t.cron.Start()
	t.log.Info("已启动", zap.String("spec", t.spec), zap.Int("batch", t.batchSize))
	return nil
}

// Stop 停止任务，等待正在执行的批次结束
func (t *ReconcileSweepTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.log.Info("已停止")
}

// RunNow 立即执行一轮
func (t *ReconcileSweepTask) RunNow(ctx context.Context) (*service.SweepResult, error) {
	start := time.Now()
	res, err := t.reconciler.ReconcilePending(ctx, t.batchSize)
	if err != nil {
		return res, err
	}
	t.log.Info("补全批次完成",
		zap.Int("scanned", res.Scanned),
		zap.Int("matched", res.Matched),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// cronLogger 让 cron 内部日志走 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
