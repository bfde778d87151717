package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chonibe/coa-service-sub020/internal/service"
	"github.com/chonibe/coa-service-sub020/pkg/errs"
)

// ==================== 测试替身 ====================

type fakeReconciler struct {
	mu     sync.Mutex
	calls  int
	limits []int
}

func (f *fakeReconciler) ReconcilePending(ctx context.Context, limit int) (*service.SweepResult, error) {
	f.mu.Lock()
	f.calls++
	f.limits = append(f.limits, limit)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &service.SweepResult{Scanned: 3, Matched: 1, BySource: map[string]int{"crm": 1}}, nil
}

type busyReconciler struct{}

func (busyReconciler) ReconcilePending(context.Context, int) (*service.SweepResult, error) {
	return nil, errs.Conflict("reconcile sweep is already running")
}

func (f *fakeReconciler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ==================== 单元测试 ====================

func TestReconcileSweepTask_RunNow(t *testing.T) {
	fake := &fakeReconciler{}
	task := NewReconcileSweepTask(fake, "0 */15 * * * *", 50, zap.NewNop())

	res, err := task.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, []int{50}, fake.limits)
}

func TestReconcileSweepTask_RunNowPassesConflict(t *testing.T) {
	task := NewReconcileSweepTask(busyReconciler{}, "0 */15 * * * *", 10, zap.NewNop())

	_, err := task.RunNow(context.Background())
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestReconcileSweepTask_InvalidSpec(t *testing.T) {
	task := NewReconcileSweepTask(&fakeReconciler{}, "not a cron", 10, zap.NewNop())
	assert.Error(t, task.Start())
}

func TestReconcileSweepTask_StartStop(t *testing.T) {
	fake := &fakeReconciler{}
	task := NewReconcileSweepTask(fake, "* * * * * *", 10, zap.NewNop())
	require.NoError(t, task.Start())

	require.Eventually(t, func() bool { return fake.callCount() > 0 }, 3*time.Second, 20*time.Millisecond)
	task.Stop()
}

func TestTaskManager(t *testing.T) {
	disabled := NewTaskManager(&fakeReconciler{}, TaskManagerConfig{}, zap.NewNop())
	assert.False(t, disabled.Status()["reconcile_sweep"])
	require.NoError(t, disabled.Start())
	disabled.Stop()

	tm := NewTaskManager(&fakeReconciler{}, TaskManagerConfig{
		ReconcileEnabled: true,
		ReconcileSpec:    "0 0 3 * * *",
		ReconcileBatch:   25,
	}, zap.NewNop())
	assert.True(t, tm.Status()["reconcile_sweep"])
	require.NoError(t, tm.Start())
	tm.Stop()

	broken := NewTaskManager(&fakeReconciler{}, TaskManagerConfig{ReconcileEnabled: true, ReconcileSpec: "bad"}, zap.NewNop())
	assert.Error(t, broken.Start())
}
