package task

import (
	"go.uber.org/zap"
)

// ==================== TaskManager 后台任务管理器 ====================

// TaskManager 统一管理后台定时任务
type TaskManager struct {
	reconcileTask *ReconcileSweepTask
	log           *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	ReconcileEnabled bool
	ReconcileSpec    string
	ReconcileBatch   int
}

// NewTaskManager 创建任务管理器
func NewTaskManager(reconciler PendingReconciler, cfg TaskManagerConfig, log *zap.Logger) *TaskManager {
	tm := &TaskManager{log: log.Named("tasks")}
	if cfg.ReconcileEnabled && reconciler != nil {
		tm.reconcileTask = NewReconcileSweepTask(reconciler, cfg.ReconcileSpec, cfg.ReconcileBatch, log)
	}
	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	if tm.reconcileTask != nil {
		if err := tm.reconcileTask.Start(); err != nil {
			return err
		}
	}
	tm.log.Info("后台任务已启动", zap.Any("status", tm.Status()))
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	if tm.reconcileTask != nil {
		tm.reconcileTask.Stop()
	}
	tm.log.Info("后台任务已全部停止")
}

// ==================== 状态查询 ====================

// Status 获取任务启用状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"reconcile_sweep": tm.reconcileTask != nil,
	}
}
