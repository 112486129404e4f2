package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/lock"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepFixture struct {
	repos   *repository.Repositories
	sweeper *service.Sweeper
	ai      *fakeJobProvider
	vod     *fakeJobProvider
}

func newSweepFixture(t *testing.T, cfg config.SweepConfig, locker lock.Locker) *sweepFixture {
	repos := setupRepos(t)
	logger, _ := newLogger()
	ai := newFakeJobProvider(model.TaskSourceAI)
	vod := newFakeJobProvider(model.TaskSourceVOD)
	providers := []provider.JobProvider{ai, vod}
	dispatcher := service.NewDispatcher(repos, providers, cfg, logger)
	return &sweepFixture{
		repos:   repos,
		sweeper: service.NewSweeper(repos, providers, dispatcher, locker, cfg, logger),
		ai:      ai,
		vod:     vod,
	}
}

func (f *sweepFixture) run(t *testing.T) *service.SweepSummary {
	summary, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

// TestSweeper_AdvancesAndCompletes 测试任务推进到 processing 再到 completed
func TestSweeper_AdvancesAndCompletes(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-b1", model.OrderTypeAIVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "ai-b1", "order-b1", model.TaskSourceAI, model.TaskStatusQueued, time.Minute)

	f.ai.setStatus("ai-b1", model.TaskStatusProcessing, 40, "", "")
	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollAITasks).Succeeded)

	task := getTask(t, f.repos, "ai-b1")
	assert.Equal(t, model.TaskStatusProcessing, task.Status)
	assert.Equal(t, 40, task.Progress)
	assert.Equal(t, model.OrderStatusProcessing, getOrder(t, f.repos, "order-b1").Status)

	f.ai.setStatus("ai-b1", model.TaskStatusCompleted, 100, "https://cdn.example.com/out.mp4", "")
	summary = f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollAITasks).Succeeded)

	task = getTask(t, f.repos, "ai-b1")
	assert.Equal(t, model.TaskStatusCompleted, task.Status)
	assert.Equal(t, "https://cdn.example.com/out.mp4", task.ResultURL)

	order := getOrder(t, f.repos, "order-b1")
	assert.Equal(t, model.OrderStatusCompleted, order.Status)
	assert.Equal(t, "https://cdn.example.com/out.mp4", order.ResultVideoURL)

	logs := orderLogs(t, f.repos, "order-b1")
	assert.Equal(t, 1, countLogs(logs, service.OrderActionTaskProcessing))
	assert.Equal(t, 1, countLogs(logs, service.OrderActionTaskCompleted))

	events, err := f.repos.Events.FindByAggregate(context.Background(), "order-b1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, integration.EventOrderCompleted, events[0].Type)

	// 再次执行不产生任何变更
	summary = f.run(t)
	assert.Zero(t, summary.Mutations())
	assert.Len(t, orderLogs(t, f.repos, "order-b1"), len(logs))
}

// TestSweeper_ProviderFailure 测试外部任务失败同步到订单
func TestSweeper_ProviderFailure(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-f1", model.OrderTypeVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "vod-f1", "order-f1", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)
	f.vod.setStatus("vod-f1", model.TaskStatusFailed, 0, "", "transcode error")

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollVODTasks).Succeeded)

	task := getTask(t, f.repos, "vod-f1")
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, "transcode error", task.ErrorMessage)

	order := getOrder(t, f.repos, "order-f1")
	assert.Equal(t, model.OrderStatusFailed, order.Status)
	assert.Equal(t, "transcode error", order.ErrorMessage)

	logs := orderLogs(t, f.repos, "order-f1")
	require.Equal(t, 1, countLogs(logs, service.OrderActionTaskFailed))

	events, err := f.repos.Events.FindByAggregate(context.Background(), "order-f1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, integration.EventOrderFailed, events[0].Type)
}

// TestSweeper_ProviderUnavailable 测试外部服务不可用时任务不变
func TestSweeper_ProviderUnavailable(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-u1", model.OrderTypeAIVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "ai-u1", "order-u1", model.TaskSourceAI, model.TaskStatusProcessing, time.Minute)
	f.ai.setError("ai-u1", apperr.New(apperr.ErrExternalProviderUnavailable, "503"))

	summary := f.run(t)
	step := summary.Step(service.StepPollAITasks)
	assert.Equal(t, 1, step.Processed)
	assert.Equal(t, 1, step.Unavailable)
	assert.Zero(t, summary.Mutations())
	assert.Equal(t, model.TaskStatusProcessing, getTask(t, f.repos, "ai-u1").Status)
}

// TestSweeper_ProviderFailureError 测试外部服务拒绝查询时任务直接失败
func TestSweeper_ProviderFailureError(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-e1", model.OrderTypeAIVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "ai-e1", "order-e1", model.TaskSourceAI, model.TaskStatusProcessing, time.Minute)
	f.ai.setError("ai-e1", apperr.New(apperr.ErrExternalProviderFailure, "404"))

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollAITasks).Succeeded)
	assert.Zero(t, summary.Step(service.StepTimeoutTasks).Processed)

	task := getTask(t, f.repos, "ai-e1")
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.ErrorMessage, "404")

	order := getOrder(t, f.repos, "order-e1")
	assert.Equal(t, model.OrderStatusFailed, order.Status)

	logs := orderLogs(t, f.repos, "order-e1")
	require.Len(t, logs, 1)
	assert.Equal(t, service.OrderActionTaskFailed, logs[0].Action)
	assert.Equal(t, service.ReasonProviderFailure, logs[0].Reason)

	// 终态任务不再查询
	summary = f.run(t)
	assert.Zero(t, summary.Mutations())
	assert.Zero(t, summary.Step(service.StepPollAITasks).Processed)
}

// TestSweeper_TimeoutWhileProviderStillProcessing 测试外部仍在处理但已超过超时阈值
func TestSweeper_TimeoutWhileProviderStillProcessing(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-t2", model.OrderTypeAIVideo, paidProcessing(time.Hour))
	seedTask(t, f.repos, "ai-t2", "order-t2", model.TaskSourceAI, model.TaskStatusQueued, 31*time.Minute)
	f.ai.setStatus("ai-t2", model.TaskStatusProcessing, 50, "", "")

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollAITasks).Succeeded)
	assert.Equal(t, 1, summary.Step(service.StepTimeoutTasks).Succeeded)

	task := getTask(t, f.repos, "ai-t2")
	assert.Equal(t, model.TaskStatusTimeout, task.Status)
	assert.Equal(t, model.OrderStatusFailed, getOrder(t, f.repos, "order-t2").Status)

	logs := orderLogs(t, f.repos, "order-t2")
	timeouts := 0
	for _, l := range logs {
		if l.Reason == service.ReasonTimeout {
			timeouts++
			assert.Equal(t, service.OrderActionTaskTimeout, l.Action)
			assert.Equal(t, string(model.OrderStatusProcessing), l.FromStatus)
			assert.Equal(t, string(model.OrderStatusFailed), l.ToStatus)
		}
	}
	assert.Equal(t, 1, timeouts)

	summary = f.run(t)
	assert.Zero(t, summary.Mutations())
	assert.Len(t, orderLogs(t, f.repos, "order-t2"), len(logs))
}

// TestSweeper_TimeoutWhileProviderUnavailable 测试超时判定不依赖外部服务
func TestSweeper_TimeoutWhileProviderUnavailable(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-t1", model.OrderTypeAIVideo, paidProcessing(2*time.Hour))
	seedTask(t, f.repos, "ai-t1", "order-t1", model.TaskSourceAI, model.TaskStatusProcessing, time.Hour)
	f.ai.setError("ai-t1", apperr.New(apperr.ErrExternalProviderUnavailable, "connection refused"))

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollAITasks).Unavailable)
	assert.Equal(t, 1, summary.Step(service.StepTimeoutTasks).Succeeded)

	task := getTask(t, f.repos, "ai-t1")
	assert.Equal(t, model.TaskStatusTimeout, task.Status)
	assert.NotEmpty(t, task.ErrorMessage)

	order := getOrder(t, f.repos, "order-t1")
	assert.Equal(t, model.OrderStatusFailed, order.Status)

	logs := orderLogs(t, f.repos, "order-t1")
	require.Equal(t, 1, countLogs(logs, service.OrderActionTaskTimeout))
	for _, l := range logs {
		if l.Action == service.OrderActionTaskTimeout {
			assert.Equal(t, service.ReasonTimeout, l.Reason)
		}
	}

	// 超时任务不再被重新提交
	summary = f.run(t)
	assert.Zero(t, summary.Mutations())
	assert.Zero(t, f.ai.submitCount())
}

// TestSweeper_ProgressOnly 测试只更新进度不写审计
func TestSweeper_ProgressOnly(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-g1", model.OrderTypeVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "vod-g1", "order-g1", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)
	f.vod.setStatus("vod-g1", model.TaskStatusProcessing, 70, "", "")

	f.run(t)
	assert.Equal(t, 70, getTask(t, f.repos, "vod-g1").Progress)
	assert.Empty(t, orderLogs(t, f.repos, "order-g1"))

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollVODTasks).Unchanged)
}

// TestSweeper_IgnoresRegression 测试外部状态倒退不回写
func TestSweeper_IgnoresRegression(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-r1", model.OrderTypeVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "vod-r1", "order-r1", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)
	f.vod.setStatus("vod-r1", model.TaskStatusQueued, 0, "", "")

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepPollVODTasks).Unchanged)
	assert.Equal(t, model.TaskStatusProcessing, getTask(t, f.repos, "vod-r1").Status)
}

// TestSweeper_OrderNoLongerProcessing 测试订单已退款时只关闭任务
func TestSweeper_OrderNoLongerProcessing(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-n1", model.OrderTypeVideo, func(o *model.OrderModel) {
		paidProcessing(time.Minute)(o)
		o.Status = model.OrderStatusRefunded
		o.PaymentStatus = model.PaymentStatusRefunded
	})
	seedTask(t, f.repos, "vod-n1", "order-n1", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)
	f.vod.setStatus("vod-n1", model.TaskStatusCompleted, 100, "https://cdn.example.com/n1.mp4", "")

	f.run(t)
	assert.Equal(t, model.TaskStatusCompleted, getTask(t, f.repos, "vod-n1").Status)
	assert.Equal(t, model.OrderStatusRefunded, getOrder(t, f.repos, "order-n1").Status)

	events, err := f.repos.Events.FindByAggregate(context.Background(), "order-n1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

// TestSweeper_RetriesStuckOrder 测试已支付无任务的订单被重新提交
func TestSweeper_RetriesStuckOrder(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-s1", model.OrderTypeVideo, paidProcessing(10*time.Minute))
	// 宽限期内的订单不处理
	seedOrder(t, f.repos, "order-s2", model.OrderTypeVideo, paidProcessing(10*time.Second))

	summary := f.run(t)
	step := summary.Step(service.StepRetryStuckOrders)
	assert.Equal(t, 1, step.Processed)
	assert.Equal(t, 1, step.Succeeded)

	tasks, err := f.repos.Tasks.FindByOrder(context.Background(), "order-s1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.TaskStatusQueued, tasks[0].Status)
	assert.Equal(t, 1, f.vod.submitCount())

	tasks, err = f.repos.Tasks.FindByOrder(context.Background(), "order-s2")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// 已有任务后不再重复提交
	summary = f.run(t)
	assert.Zero(t, summary.Step(service.StepRetryStuckOrders).Succeeded)
	assert.Equal(t, 1, f.vod.submitCount())
}

// TestSweeper_RetryAfterSubmitFailure 测试提交失败后在宽限期后重试
func TestSweeper_RetryAfterSubmitFailure(t *testing.T) {
	cfg := sweepConfig()
	cfg.DispatchGrace = time.Millisecond
	f := newSweepFixture(t, cfg, nil)
	seedOrder(t, f.repos, "order-rs", model.OrderTypeVideo, paidProcessing(time.Minute))

	f.vod.mu.Lock()
	f.vod.submitErr = apperr.New(apperr.ErrExternalProviderUnavailable, "vod down")
	f.vod.mu.Unlock()

	summary := f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepRetryStuckOrders).Unavailable)
	assert.Equal(t, 1, getOrder(t, f.repos, "order-rs").DispatchAttempts)

	f.vod.mu.Lock()
	f.vod.submitErr = nil
	f.vod.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	summary = f.run(t)
	assert.Equal(t, 1, summary.Step(service.StepRetryStuckOrders).Succeeded)
	order := getOrder(t, f.repos, "order-rs")
	assert.Equal(t, 2, order.DispatchAttempts)
	assert.Empty(t, order.ErrorMessage)
}

// TestSweeper_DispatchExhausted 测试超过最大尝试次数后订单失败
func TestSweeper_DispatchExhausted(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-x1", model.OrderTypeVideo, func(o *model.OrderModel) {
		paidProcessing(10 * time.Minute)(o)
		o.DispatchAttempts = 3
	})

	f.run(t)
	order := getOrder(t, f.repos, "order-x1")
	assert.Equal(t, model.OrderStatusFailed, order.Status)
	assert.NotEmpty(t, order.ErrorMessage)
	assert.Zero(t, f.vod.submitCount())

	logs := orderLogs(t, f.repos, "order-x1")
	require.Len(t, logs, 1)
	assert.Equal(t, service.OrderActionOrderFailed, logs[0].Action)
	assert.Equal(t, service.ReasonDispatchExhausted, logs[0].Reason)
}

// TestSweeper_PanicIsolation 测试单条记录 panic 不影响其他记录
func TestSweeper_PanicIsolation(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	seedOrder(t, f.repos, "order-pa", model.OrderTypeVideo, paidProcessing(time.Minute))
	seedOrder(t, f.repos, "order-pb", model.OrderTypeVideo, paidProcessing(time.Minute))
	seedTask(t, f.repos, "vod-pa", "order-pa", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)
	seedTask(t, f.repos, "vod-pb", "order-pb", model.TaskSourceVOD, model.TaskStatusProcessing, time.Minute)

	f.vod.mu.Lock()
	f.vod.panics["vod-pa"] = true
	f.vod.mu.Unlock()
	f.vod.setStatus("vod-pb", model.TaskStatusCompleted, 100, "https://cdn.example.com/pb.mp4", "")

	summary := f.run(t)
	step := summary.Step(service.StepPollVODTasks)
	assert.Equal(t, 2, step.Processed)
	assert.Equal(t, 1, step.Failed)
	assert.Equal(t, 1, step.Succeeded)
	assert.Equal(t, model.OrderStatusCompleted, getOrder(t, f.repos, "order-pb").Status)
	assert.Equal(t, model.OrderStatusProcessing, getOrder(t, f.repos, "order-pa").Status)
}

// TestSweeper_SkipsWhenLeaseHeld 测试其他实例持有租约时跳过
func TestSweeper_SkipsWhenLeaseHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lease := lock.NewRedisLease(rdb, "videoflow:lock:")

	f := newSweepFixture(t, sweepConfig(), lease)
	seedOrder(t, f.repos, "order-l1", model.OrderTypeVideo, paidProcessing(10*time.Minute))

	release, err := lease.Acquire(context.Background(), "sweep", time.Minute)
	require.NoError(t, err)

	summary := f.run(t)
	assert.True(t, summary.Skipped)
	assert.Empty(t, summary.Steps)
	assert.Zero(t, f.vod.submitCount())

	require.NoError(t, release(context.Background()))
	summary = f.run(t)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, f.vod.submitCount())
	assert.False(t, mr.Exists("videoflow:lock:sweep"))
}

// TestSweeper_UpdateSettings 测试配置默认值
func TestSweeper_UpdateSettings(t *testing.T) {
	f := newSweepFixture(t, sweepConfig(), nil)
	f.sweeper.UpdateSettings(config.SweepConfig{TaskTimeout: time.Hour})

	got := f.sweeper.Settings()
	assert.Equal(t, 200, got.BatchSize)
	assert.Equal(t, 1, got.Concurrency)
	assert.Equal(t, 5*time.Minute, got.LockTTL)
	assert.Equal(t, time.Hour, got.TaskTimeout)
}

type countingRunner struct {
	runs atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context) (*service.SweepSummary, error) {
	r.runs.Add(1)
	return &service.SweepSummary{StartedAt: time.Now(), FinishedAt: time.Now()}, nil
}

// TestSweepScheduler_RunsPeriodically 测试定时触发与停止
func TestSweepScheduler_RunsPeriodically(t *testing.T) {
	logger, _ := newLogger()
	runner := &countingRunner{}
	scheduler := service.NewSweepScheduler(runner, config.SweepConfig{Enabled: true, Interval: 10 * time.Millisecond}, logger)

	scheduler.Start(context.Background())
	assert.Eventually(t, func() bool { return runner.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, scheduler.LastSummary())

	scheduler.Stop()
	n := runner.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, runner.runs.Load())
}

// TestSweepScheduler_Disabled 测试关闭后不执行
func TestSweepScheduler_Disabled(t *testing.T) {
	logger, _ := newLogger()
	runner := &countingRunner{}
	scheduler := service.NewSweepScheduler(runner, config.SweepConfig{Enabled: false, Interval: 5 * time.Millisecond}, logger)

	scheduler.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	scheduler.Stop()
	assert.Zero(t, runner.runs.Load())
	assert.Nil(t, scheduler.LastSummary())
}
