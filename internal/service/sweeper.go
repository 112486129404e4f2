package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/lock"
	"github.com/mautops/videoflow-gin/internal/metrics"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/statemachine"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// 巡检步骤，按顺序执行
const (
	StepPollAITasks      = "poll_ai_tasks"
	StepPollVODTasks     = "poll_vod_tasks"
	StepTimeoutTasks     = "timeout_tasks"
	StepRetryStuckOrders = "retry_stuck_orders"
)

// 单条记录的处理结果
type outcome string

const (
	outcomeSucceeded   outcome = "succeeded"
	outcomeUnchanged   outcome = "unchanged"
	outcomeUnavailable outcome = "unavailable"
	outcomeFailed      outcome = "failed"
)

const sweepLockKey = "sweep"

var tracer = otel.Tracer("github.com/mautops/videoflow-gin/internal/service")

// StepSummary 单个步骤的统计
type StepSummary struct {
	Name        string        `json:"name"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Unchanged   int           `json:"unchanged"`
	Unavailable int           `json:"unavailable"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"` // 步骤本身无法执行(例如查询候选失败)
}

func (s *StepSummary) add(o outcome) {
	s.Processed++
	switch o {
	case outcomeSucceeded:
		s.Succeeded++
	case outcomeUnchanged:
		s.Unchanged++
	case outcomeUnavailable:
		s.Unavailable++
	default:
		s.Failed++
	}
}

// SweepSummary 一次巡检的汇总
type SweepSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Skipped    bool          `json:"skipped"` // 其他实例正在巡检
	Steps      []StepSummary `json:"steps"`
}

// Step 按名称查找步骤统计
func (s *SweepSummary) Step(name string) StepSummary {
	for _, st := range s.Steps {
		if st.Name == name {
			return st
		}
	}
	return StepSummary{Name: name}
}

// Mutations 本次巡检产生的状态变更数
func (s *SweepSummary) Mutations() int {
	n := 0
	for _, st := range s.Steps {
		n += st.Succeeded
	}
	return n
}

// Sweeper 任务对账巡检
// 两次执行之间不保存状态，所有写入都是条件更新，重叠执行也是安全的
type Sweeper struct {
	repos      *repository.Repositories
	providers  map[model.TaskSource]provider.JobProvider
	dispatcher *Dispatcher
	locker     lock.Locker
	logger     logrus.FieldLogger
	now        func() time.Time

	mu       sync.RWMutex
	settings config.SweepConfig
}

// NewSweeper 创建对账巡检
func NewSweeper(
	repos *repository.Repositories,
	providers []provider.JobProvider,
	dispatcher *Dispatcher,
	locker lock.Locker,
	cfg config.SweepConfig,
	logger logrus.FieldLogger,
) *Sweeper {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	s := &Sweeper{
		repos:      repos,
		providers:  make(map[model.TaskSource]provider.JobProvider, len(providers)),
		dispatcher: dispatcher,
		locker:     locker,
		logger:     logger.WithField("component", "sweeper"),
		now:        time.Now,
	}
	for _, p := range providers {
		s.providers[p.Source()] = p
	}
	s.UpdateSettings(cfg)
	return s
}

// UpdateSettings 热更新巡检配置
func (s *Sweeper) UpdateSettings(cfg config.SweepConfig) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	s.mu.Lock()
	s.settings = cfg
	s.mu.Unlock()
	if s.dispatcher != nil {
		s.dispatcher.UpdateSettings(cfg)
	}
}

// Settings 当前巡检配置
func (s *Sweeper) Settings() config.SweepConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Run 执行一次巡检，四个步骤依次执行，单条记录的错误不影响其他记录
func (s *Sweeper) Run(ctx context.Context) (*SweepSummary, error) {
	cfg := s.Settings()
	summary := &SweepSummary{StartedAt: s.now()}

	release, err := s.locker.Acquire(ctx, sweepLockKey, cfg.LockTTL)
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		summary.Skipped = true
		summary.FinishedAt = s.now()
		metrics.RecordSweepRun("skipped")
		s.logger.Info("Sweep skipped, another run holds the lease")
		return summary, nil
	case err != nil:
		// 租约只用于减少重复工作，获取失败时照常执行
		s.logger.WithError(err).Warn("Failed to acquire sweep lease, running without it")
	default:
		defer func() {
			if err := release(context.Background()); err != nil {
				s.logger.WithError(err).Warn("Failed to release sweep lease")
			}
		}()
	}

	ctx, span := tracer.Start(ctx, "sweep.run")
	defer span.End()

	steps := []struct {
		name string
		fn   func(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error
	}{
		{StepPollAITasks, func(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error {
			return s.pollTasks(ctx, cfg, model.TaskSourceAI, st)
		}},
		{StepPollVODTasks, func(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error {
			return s.pollTasks(ctx, cfg, model.TaskSourceVOD, st)
		}},
		{StepTimeoutTasks, s.timeoutTasks},
		{StepRetryStuckOrders, s.retryStuckOrders},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		summary.Steps = append(summary.Steps, s.runStep(ctx, cfg, step.name, step.fn))
	}

	summary.FinishedAt = s.now()
	result := "success"
	if ctx.Err() != nil {
		result = "cancelled"
	}
	metrics.RecordSweepRun(result)

	fields := logrus.Fields{"duration": summary.FinishedAt.Sub(summary.StartedAt).String()}
	for _, st := range summary.Steps {
		fields[st.Name] = fmt.Sprintf("%d/%d/%d/%d/%d", st.Processed, st.Succeeded, st.Unchanged, st.Unavailable, st.Failed)
	}
	s.logger.WithFields(fields).Info("Sweep finished")

	return summary, ctx.Err()
}

// runStep 执行单个步骤，记录追踪与指标
func (s *Sweeper) runStep(
	ctx context.Context,
	cfg config.SweepConfig,
	name string,
	fn func(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error,
) StepSummary {
	ctx, span := tracer.Start(ctx, "sweep."+name)
	defer span.End()

	st := StepSummary{Name: name}
	start := time.Now()
	if err := fn(ctx, cfg, &st); err != nil {
		st.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithError(err).WithField("step", name).Error("Sweep step failed")
	}
	st.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("sweep.processed", st.Processed),
		attribute.Int("sweep.succeeded", st.Succeeded),
		attribute.Int("sweep.unchanged", st.Unchanged),
		attribute.Int("sweep.unavailable", st.Unavailable),
		attribute.Int("sweep.failed", st.Failed),
	)
	metrics.RecordSweepStep(name, st.Duration.Seconds(), map[string]int{
		string(outcomeSucceeded):   st.Succeeded,
		string(outcomeUnchanged):   st.Unchanged,
		string(outcomeUnavailable): st.Unavailable,
		string(outcomeFailed):      st.Failed,
	})
	return st
}

// forEach 并发处理候选记录，panic 只影响当前记录
func forEach[T any](ctx context.Context, concurrency int, items []T, st *StepSummary, logger logrus.FieldLogger, fn func(ctx context.Context, item T) outcome) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(concurrency)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			o := outcomeFailed
			defer func() {
				if r := recover(); r != nil {
					logger.WithField("panic", r).Error("Recovered from panic while reconciling record")
					o = outcomeFailed
				}
				mu.Lock()
				st.add(o)
				mu.Unlock()
			}()
			o = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

// pollTasks 查询外部服务并推进任务状态
func (s *Sweeper) pollTasks(ctx context.Context, cfg config.SweepConfig, source model.TaskSource, st *StepSummary) error {
	jp, ok := s.providers[source]
	if !ok {
		return nil
	}
	tasks, err := s.repos.Tasks.FindActiveBySource(ctx, source, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load active %s tasks: %w", source, err)
	}
	logger := s.logger.WithField("source", source)
	forEach(ctx, cfg.Concurrency, tasks, st, logger, func(ctx context.Context, task model.TaskModel) outcome {
		return s.reconcileTask(ctx, jp, &task, logger.WithField("task_id", task.ID))
	})
	return nil
}

// reconcileTask 根据外部状态推进单个任务
func (s *Sweeper) reconcileTask(ctx context.Context, jp provider.JobProvider, task *model.TaskModel, logger logrus.FieldLogger) outcome {
	status, err := jp.Status(ctx, task.ID)
	if err != nil {
		if apperr.IsTransient(err) {
			logger.WithError(err).Debug("Provider unavailable, retry next sweep")
			return outcomeUnavailable
		}
		if errors.Is(err, apperr.ErrExternalProviderFailure) {
			// 外部服务明确拒绝，任务不会再有结果
			logger.WithError(err).Warn("Provider rejected status query, failing task")
			return s.finishTask(ctx, task, &provider.JobStatus{
				Status: model.TaskStatusFailed,
				Raw:    "provider_error",
				Error:  err.Error(),
			}, logger)
		}
		logger.WithError(err).Error("Failed to query provider status")
		return outcomeFailed
	}

	switch {
	case status.Status == task.Status:
		if status.Progress == task.Progress || status.Progress <= 0 {
			return outcomeUnchanged
		}
		return s.updateProgress(ctx, task, status, logger)
	case status.Status.IsTerminal():
		return s.finishTask(ctx, task, status, logger)
	case statemachine.TaskGraph.Can(task.Status, status.Status):
		return s.advanceTask(ctx, task, status, logger)
	default:
		// 外部状态倒退，不视为流转
		logger.WithFields(logrus.Fields{
			"current":  task.Status,
			"reported": status.Raw,
		}).Debug("Ignoring status regression")
		return outcomeUnchanged
	}
}

// updateProgress 只更新进度，不是状态流转，不写审计
func (s *Sweeper) updateProgress(ctx context.Context, task *model.TaskModel, status *provider.JobStatus, logger logrus.FieldLogger) outcome {
	n, err := s.repos.Store().UpdateWhere(ctx, model.CollTasks,
		docstore.Where(docstore.Eq("id", task.ID), docstore.Eq("status", task.Status)),
		docstore.Set{"progress": status.Progress, "updated_at": s.now()},
	)
	if err != nil {
		logger.WithError(err).Error("Failed to update task progress")
		return outcomeFailed
	}
	if n == 0 {
		return outcomeUnchanged
	}
	return outcomeSucceeded
}

// advanceTask queued -> processing
func (s *Sweeper) advanceTask(ctx context.Context, task *model.TaskModel, status *provider.JobStatus, logger logrus.FieldLogger) outcome {
	err := s.repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{{
			Coll:   model.CollTasks,
			Filter: docstore.Where(docstore.Eq("id", task.ID), docstore.Eq("status", task.Status)),
			Set: docstore.Set{
				"status":     status.Status,
				"progress":   status.Progress,
				"updated_at": s.now(),
			},
		}},
		Audit: orderLogDoc(newOrderLog(task.OrderID, task.ID, OrderActionTaskProcessing, "",
			string(task.Status), string(status.Status), SystemActor,
			map[string]interface{}{"provider_status": status.Raw})),
	})
	return s.outcomeOf(err, logger)
}

// finishTask 任务进入终态，并同步到订单
func (s *Sweeper) finishTask(ctx context.Context, task *model.TaskModel, status *provider.JobStatus, logger logrus.FieldLogger) outcome {
	taskSet := docstore.Set{
		"status":     status.Status,
		"updated_at": s.now(),
	}
	action := OrderActionTaskCompleted
	reason := ""
	eventType := integration.EventOrderCompleted
	if status.Status == model.TaskStatusCompleted {
		taskSet["progress"] = 100
		taskSet["result_url"] = status.ResultURL
	} else {
		action = OrderActionTaskFailed
		reason = ReasonProviderFailure
		eventType = integration.EventOrderFailed
		taskSet["error_message"] = status.Error
	}

	return s.closeTask(ctx, task, status.Status, taskSet, action, reason, eventType,
		map[string]interface{}{"provider_status": status.Raw, "result_url": status.ResultURL, "error": status.Error},
		logger)
}

// closeTask 任务与订单在同一事务内进入终态
// 订单已不在 processing (例如已退款) 时只更新任务
func (s *Sweeper) closeTask(
	ctx context.Context,
	task *model.TaskModel,
	to model.TaskStatus,
	taskSet docstore.Set,
	action, reason, eventType string,
	details map[string]interface{},
	logger logrus.FieldLogger,
) outcome {
	order, err := s.repos.Orders.FindByID(ctx, task.OrderID)
	if err != nil && !repository.IsNotFound(err) {
		logger.WithError(err).Error("Failed to load order for task")
		return outcomeFailed
	}

	change := repository.Change{
		Updates: []repository.Update{{
			Coll:   model.CollTasks,
			Filter: docstore.Where(docstore.Eq("id", task.ID), docstore.Eq("status", task.Status)),
			Set:    taskSet,
		}},
	}

	orderFrom, orderTo := "", ""
	if order != nil && order.Status == model.OrderStatusProcessing {
		target, _ := statemachine.TaskOrderStatus(to)
		orderSet := docstore.Set{"status": target, "updated_at": s.now()}
		if target == model.OrderStatusCompleted {
			orderSet["result_video_url"] = taskSet["result_url"]
		} else if msg, ok := taskSet["error_message"]; ok {
			orderSet["error_message"] = msg
		}
		change.Updates = append(change.Updates, repository.Update{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", model.OrderStatusProcessing),
			),
			Set: orderSet,
		})

		evt, err := integration.NewEvent(order.ID, eventType, map[string]interface{}{
			"order_id":   order.ID,
			"order_no":   order.OrderNo,
			"user_id":    order.UserID,
			"task_id":    task.ID,
			"result_url": taskSet["result_url"],
			"reason":     reason,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to build lifecycle event")
			return outcomeFailed
		}
		change.Inserts = append(change.Inserts, eventDoc(evt))
		orderFrom, orderTo = string(order.Status), string(target)
	} else if order != nil {
		logger.WithField("order_status", order.Status).Warn("Order no longer processing, updating task only")
	}

	details["task_from"] = task.Status
	details["task_to"] = to
	change.Audit = orderLogDoc(newOrderLog(task.OrderID, task.ID, action, reason,
		orderFrom, orderTo, SystemActor, details))

	o := s.outcomeOf(s.repos.Apply(ctx, change), logger)
	if o == outcomeSucceeded {
		logger.WithFields(logrus.Fields{
			"order_id": task.OrderID,
			"status":   to,
			"reason":   reason,
		}).Info("Task reached terminal state")
	}
	return o
}

// timeoutTasks 超时未结束的任务置为 timeout，订单置为 failed
// 与外部服务是否可用无关
func (s *Sweeper) timeoutTasks(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error {
	cutoff := s.now().Add(-cfg.TaskTimeout)
	tasks, err := s.repos.Tasks.FindActiveCreatedBefore(ctx, cutoff, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load expired tasks: %w", err)
	}
	forEach(ctx, cfg.Concurrency, tasks, st, s.logger, func(ctx context.Context, task model.TaskModel) outcome {
		msg := fmt.Sprintf("no terminal status from provider within %s", cfg.TaskTimeout)
		return s.closeTask(ctx, &task, model.TaskStatusTimeout,
			docstore.Set{
				"status":        model.TaskStatusTimeout,
				"error_message": msg,
				"updated_at":    s.now(),
			},
			OrderActionTaskTimeout, ReasonTimeout, integration.EventOrderFailed,
			map[string]interface{}{"age": task.Age(s.now()).String(), "threshold": cfg.TaskTimeout.String()},
			s.logger.WithField("task_id", task.ID))
	})
	return nil
}

// retryStuckOrders 已支付但没有任务的订单重新分发
func (s *Sweeper) retryStuckOrders(ctx context.Context, cfg config.SweepConfig, st *StepSummary) error {
	if s.dispatcher == nil {
		return nil
	}
	cutoff := s.now().Add(-cfg.DispatchGrace)
	orders, err := s.repos.Orders.FindStuck(ctx, cutoff, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load stuck orders: %w", err)
	}
	forEach(ctx, cfg.Concurrency, orders, st, s.logger, func(ctx context.Context, order model.OrderModel) outcome {
		logger := s.logger.WithField("order_id", order.ID)

		n, err := s.repos.Tasks.CountByOrder(ctx, order.ID)
		if err != nil {
			logger.WithError(err).Error("Failed to count order tasks")
			return outcomeFailed
		}
		if n > 0 {
			return outcomeUnchanged
		}
		// 上次提交仍在宽限期内
		if order.LastDispatchAt != nil && order.LastDispatchAt.After(cutoff) {
			return outcomeUnchanged
		}

		task, err := s.dispatcher.Dispatch(ctx, order.ID)
		switch {
		case err == nil && task != nil:
			return outcomeSucceeded
		case err == nil:
			return outcomeUnchanged
		case errors.Is(err, apperr.ErrConcurrentModification):
			return outcomeUnchanged
		case apperr.IsTransient(err):
			return outcomeUnavailable
		default:
			logger.WithError(err).Warn("Stuck order dispatch failed")
			return outcomeFailed
		}
	})
	return nil
}

// outcomeOf 条件更新未命中说明其他流程已处理该记录
func (s *Sweeper) outcomeOf(err error, logger logrus.FieldLogger) outcome {
	switch {
	case err == nil:
		return outcomeSucceeded
	case errors.Is(err, repository.ErrPreconditionFailed):
		logger.Debug("Record changed concurrently, skipping")
		return outcomeUnchanged
	default:
		logger.WithError(err).Error("Failed to apply reconciliation")
		return outcomeFailed
	}
}
