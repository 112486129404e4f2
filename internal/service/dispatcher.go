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
	"github.com/mautops/videoflow-gin/internal/metrics"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// Dispatcher 为已支付订单提交外部处理任务
// 支付回调与巡检共用，同一订单最多一个活跃任务
type Dispatcher struct {
	repos     *repository.Repositories
	providers map[model.TaskSource]provider.JobProvider
	logger    logrus.FieldLogger
	now       func() time.Time

	mu            sync.RWMutex
	maxAttempts   int
	grace         time.Duration
	submitTimeout time.Duration
}

// NewDispatcher 创建任务分发器
func NewDispatcher(repos *repository.Repositories, providers []provider.JobProvider, cfg config.SweepConfig, logger logrus.FieldLogger) *Dispatcher {
	d := &Dispatcher{
		repos:         repos,
		providers:     make(map[model.TaskSource]provider.JobProvider, len(providers)),
		logger:        logger.WithField("component", "dispatcher"),
		now:           time.Now,
		submitTimeout: 15 * time.Second,
	}
	for _, p := range providers {
		d.providers[p.Source()] = p
	}
	d.UpdateSettings(cfg)
	return d
}

// UpdateSettings 热更新分发上限
func (d *Dispatcher) UpdateSettings(cfg config.SweepConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxAttempts = cfg.MaxDispatchAttempts
	if d.maxAttempts <= 0 {
		d.maxAttempts = 5
	}
	d.grace = cfg.DispatchGrace
}

// SetSubmitTimeout 设置单次提交超时
func (d *Dispatcher) SetSubmitTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitTimeout = timeout
}

func (d *Dispatcher) settings() (int, time.Duration, time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.maxAttempts, d.grace, d.submitTimeout
}

// SourceFor 订单类型对应的处理来源
func SourceFor(t model.OrderType) model.TaskSource {
	if t == model.OrderTypeAIVideo {
		return model.TaskSourceAI
	}
	return model.TaskSourceVOD
}

// Dispatch 提交订单的处理任务
// 已有活跃任务或上次提交仍在宽限期内时返回 (nil, nil)
// 只有抢到本次尝试的调用方会请求外部服务
func (d *Dispatcher) Dispatch(ctx context.Context, orderID string) (*model.TaskModel, error) {
	order, err := d.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order "+orderID)
	}
	if order.Status != model.OrderStatusProcessing || !order.IsPaid() {
		return nil, apperr.New(apperr.ErrInvalidStateTransition,
			"order %s is %s/%s, dispatch requires processing/paid", order.ID, order.Status, order.PaymentStatus)
	}

	active, err := d.repos.Tasks.CountActiveByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active tasks: %w", err)
	}
	if active > 0 {
		return nil, nil
	}

	source := SourceFor(order.Type)
	jp, ok := d.providers[source]
	if !ok {
		return nil, apperr.New(apperr.ErrExternalProviderUnavailable, "no provider configured for source %s", source)
	}

	maxAttempts, grace, timeout := d.settings()
	now := d.now()
	if order.LastDispatchAt != nil && now.Sub(*order.LastDispatchAt) < grace {
		return nil, nil
	}
	attempt := order.DispatchAttempts
	if attempt >= maxAttempts {
		return nil, d.exhaust(ctx, order, attempt)
	}

	// 抢占本次尝试
	err = d.repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", model.OrderStatusProcessing),
				docstore.Eq("dispatch_attempts", attempt),
			),
			Set: docstore.Set{
				"dispatch_attempts": attempt + 1,
				"last_dispatch_at":  now,
				"updated_at":        now,
			},
		}},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionDispatchAttempt, "",
			string(order.Status), string(order.Status), SystemActor,
			map[string]interface{}{"attempt": attempt + 1, "source": source})),
	})
	if err != nil {
		return nil, storeError(err, "order "+order.ID)
	}

	submitCtx, cancel := context.WithTimeout(ctx, timeout)
	taskID, err := jp.Submit(submitCtx, order, order.MaterialURLs())
	cancel()
	if err != nil {
		metrics.RecordTaskDispatched(string(source), "error")
		d.recordFailure(ctx, order, attempt+1, err)
		return nil, err
	}

	task := &model.TaskModel{
		ID:        taskID,
		OrderID:   order.ID,
		UserID:    order.UserID,
		Source:    source,
		Status:    model.TaskStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = d.repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", model.OrderStatusProcessing),
				docstore.Eq("dispatch_attempts", attempt+1),
			),
			Set: docstore.Set{"error_message": "", "updated_at": d.now()},
		}},
		Inserts: []repository.Doc{{Coll: model.CollTasks, Value: task}},
		Audit: orderLogDoc(newOrderLog(order.ID, taskID, OrderActionTaskSubmitted, "",
			"", string(model.TaskStatusQueued), SystemActor,
			map[string]interface{}{"attempt": attempt + 1, "source": source})),
	})
	if err != nil {
		metrics.RecordTaskDispatched(string(source), "conflict")
		if errors.Is(err, repository.ErrPreconditionFailed) {
			d.recordOrphanTask(ctx, order, task, attempt+1, source)
		}
		return nil, storeError(err, "order "+order.ID)
	}

	metrics.RecordTaskDispatched(string(source), "success")
	d.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"task_id":  taskID,
		"source":   source,
		"attempt":  attempt + 1,
	}).Info("Task submitted")
	return task, nil
}

// recordOrphanTask 外部任务已创建但订单已被其他流程修改(退款、取消)
// 仍然记录任务，巡检会跟踪它并只关闭任务，不再改动订单
func (d *Dispatcher) recordOrphanTask(ctx context.Context, order *model.OrderModel, task *model.TaskModel, attempt int, source model.TaskSource) {
	logger := d.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"task_id":  task.ID,
	})
	err := d.repos.Apply(ctx, repository.Change{
		Inserts: []repository.Doc{{Coll: model.CollTasks, Value: task}},
		Audit: orderLogDoc(newOrderLog(order.ID, task.ID, OrderActionTaskSubmitted, ReasonOrderChanged,
			"", string(model.TaskStatusQueued), SystemActor,
			map[string]interface{}{"attempt": attempt, "source": source})),
	})
	if err != nil {
		logger.WithError(err).Error("Failed to record task for changed order")
		return
	}
	logger.Warn("Order changed while submitting task, task recorded for tracking")
}

// recordFailure 记录提交失败，巡检会在宽限期后重试
func (d *Dispatcher) recordFailure(ctx context.Context, order *model.OrderModel, attempt int, cause error) {
	log := newOrderLog(order.ID, "", OrderActionDispatchFailed, dispatchReason(cause),
		string(order.Status), string(order.Status), SystemActor,
		map[string]interface{}{"attempt": attempt, "error": cause.Error()})
	if err := d.repos.AppendAudit(ctx, orderLogDoc(log)); err != nil {
		d.logger.WithError(err).WithField("order_id", order.ID).Error("Failed to record dispatch failure")
	}
	d.logger.WithError(cause).WithFields(logrus.Fields{
		"order_id": order.ID,
		"attempt":  attempt,
	}).Warn("Task submission failed")
}

// exhaust 超过最大尝试次数，订单置为失败
func (d *Dispatcher) exhaust(ctx context.Context, order *model.OrderModel, attempts int) error {
	now := d.now()
	msg := fmt.Sprintf("task dispatch failed after %d attempts", attempts)
	evt, err := integration.NewEvent(order.ID, integration.EventOrderFailed, map[string]interface{}{
		"order_id": order.ID,
		"order_no": order.OrderNo,
		"reason":   ReasonDispatchExhausted,
	})
	if err != nil {
		return err
	}

	err = d.repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", model.OrderStatusProcessing),
				docstore.Eq("dispatch_attempts", attempts),
			),
			Set: docstore.Set{
				"status":        model.OrderStatusFailed,
				"error_message": msg,
				"updated_at":    now,
			},
		}},
		Inserts: []repository.Doc{eventDoc(evt)},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionOrderFailed, ReasonDispatchExhausted,
			string(model.OrderStatusProcessing), string(model.OrderStatusFailed), SystemActor,
			map[string]interface{}{"attempts": attempts})),
	})
	if err != nil {
		return storeError(err, "order "+order.ID)
	}

	d.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"attempts": attempts,
	}).Warn("Order failed: dispatch attempts exhausted")
	return apperr.New(apperr.ErrExternalProviderFailure, "%s", msg)
}

func dispatchReason(err error) string {
	if apperr.IsTransient(err) {
		return "provider_unavailable"
	}
	return ReasonProviderFailure
}
