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

// 回调处理结果，用于指标
const (
	callbackConfirmed  = "confirmed"
	callbackDuplicate  = "duplicate"
	callbackOrphaned   = "orphaned"
	callbackInvalid    = "invalid"
	callbackNotSuccess = "not_success"
	callbackMismatch   = "amount_mismatch"
	callbackRejected   = "rejected"
	callbackError      = "error"
)

// PaymentService 支付回调对账服务接口
type PaymentService interface {
	// HandleCallback 处理支付渠道回调，返回应答给渠道的内容
	// 即使返回错误，Ack 也总是可用
	HandleCallback(ctx context.Context, providerName string, req *provider.CallbackRequest) (provider.Ack, error)
	UpdateSettings(cfg config.PaymentConfig)
}

// paymentService 支付回调对账服务实现
type paymentService struct {
	repos      *repository.Repositories
	registry   *provider.PaymentRegistry
	dispatcher *Dispatcher
	logger     logrus.FieldLogger
	now        func() time.Time

	mu            sync.RWMutex
	verifyTimeout time.Duration
}

// NewPaymentService 创建支付回调对账服务
func NewPaymentService(
	repos *repository.Repositories,
	registry *provider.PaymentRegistry,
	dispatcher *Dispatcher,
	cfg config.PaymentConfig,
	logger logrus.FieldLogger,
) PaymentService {
	s := &paymentService{
		repos:      repos,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.WithField("component", "payment_service"),
		now:        time.Now,
	}
	s.UpdateSettings(cfg)
	return s
}

// UpdateSettings 热更新验签超时
func (s *paymentService) UpdateSettings(cfg config.PaymentConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyTimeout = cfg.VerifyTimeout
	if s.verifyTimeout <= 0 {
		s.verifyTimeout = 5 * time.Second
	}
}

func (s *paymentService) timeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifyTimeout
}

// HandleCallback 处理支付回调
func (s *paymentService) HandleCallback(ctx context.Context, providerName string, req *provider.CallbackRequest) (provider.Ack, error) {
	pp, ok := s.registry.Get(providerName)
	if !ok {
		metrics.RecordPaymentCallback(providerName, callbackInvalid)
		return provider.Ack{Status: 404, ContentType: "text/plain; charset=utf-8", Body: []byte("unknown provider")},
			apperr.New(apperr.ErrNotFound, "payment provider %q", providerName)
	}
	name := pp.Name()
	logger := s.logger.WithField("provider", name)

	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout())
	result, err := pp.VerifyCallback(verifyCtx, req)
	cancel()
	if err != nil {
		metrics.RecordPaymentCallback(name, callbackInvalid)
		logger.WithError(err).Warn("Payment callback verification failed")
		return pp.FailAck("verification failed"), apperr.Wrap(apperr.ErrInvalidCallback, err)
	}

	logger = logger.WithFields(logrus.Fields{
		"order_no":       result.OrderNo,
		"transaction_id": result.TransactionID,
	})

	if !result.Success {
		metrics.RecordPaymentCallback(name, callbackNotSuccess)
		logger.WithField("trade_state", result.TradeState).Info("Ignoring non-success payment notification")
		return pp.SuccessAck(), nil
	}

	order, err := s.repos.Orders.FindByOrderNo(ctx, result.OrderNo)
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.RecordPaymentCallback(name, callbackOrphaned)
			logger.Warn("Payment callback references unknown order")
			return pp.SuccessAck(), apperr.New(apperr.ErrOrphanedCallback, "order %s", result.OrderNo)
		}
		metrics.RecordPaymentCallback(name, callbackError)
		return pp.FailAck("temporarily unavailable"), fmt.Errorf("failed to load order %s: %w", result.OrderNo, err)
	}
	logger = logger.WithField("order_id", order.ID)

	if order.IsPaid() {
		metrics.RecordPaymentCallback(name, callbackDuplicate)
		logger.Info("Duplicate payment callback ignored")
		s.ensureDispatched(ctx, order, logger)
		return pp.SuccessAck(), nil
	}

	if result.Amount > 0 && result.Amount != order.Price {
		metrics.RecordPaymentCallback(name, callbackMismatch)
		s.audit(ctx, order, OrderActionPaymentRejected, ReasonAmountMismatch, name, result, logger)
		logger.WithFields(logrus.Fields{
			"expected": order.Price,
			"actual":   result.Amount,
		}).Error("Payment amount mismatch")
		return pp.SuccessAck(), apperr.New(apperr.ErrValidation,
			"paid amount %d does not match order price %d", result.Amount, order.Price)
	}

	if err := s.confirm(ctx, order, name, result); err != nil {
		if !errors.Is(err, repository.ErrPreconditionFailed) {
			metrics.RecordPaymentCallback(name, callbackError)
			logger.WithError(err).Error("Failed to confirm payment")
			return pp.FailAck("temporarily unavailable"), err
		}

		current, rerr := s.repos.Orders.FindByID(ctx, order.ID)
		if rerr == nil && current.IsPaid() {
			metrics.RecordPaymentCallback(name, callbackDuplicate)
			logger.Info("Payment confirmed concurrently")
			return pp.SuccessAck(), nil
		}
		if rerr == nil {
			order = current
		}
		metrics.RecordPaymentCallback(name, callbackRejected)
		s.audit(ctx, order, OrderActionPaymentRejected, ReasonInvalidState, name, result, logger)
		logger.WithField("status", order.Status).Error("Payment received for order in unexpected state")
		return pp.SuccessAck(), apperr.New(apperr.ErrInvalidStateTransition,
			"order %s is %s/%s", order.OrderNo, order.Status, order.PaymentStatus)
	}

	metrics.RecordPaymentCallback(name, callbackConfirmed)
	logger.Info("Payment confirmed")

	order.Status = model.OrderStatusProcessing
	order.PaymentStatus = model.PaymentStatusPaid
	s.ensureDispatched(ctx, order, logger)
	return pp.SuccessAck(), nil
}

// confirm 条件更新 pending/unpaid -> processing/paid
func (s *paymentService) confirm(ctx context.Context, order *model.OrderModel, providerName string, result *provider.CallbackResult) error {
	now := s.now()
	evt, err := integration.NewEvent(order.ID, integration.EventOrderPaid, map[string]interface{}{
		"order_id":       order.ID,
		"order_no":       order.OrderNo,
		"user_id":        order.UserID,
		"transaction_id": result.TransactionID,
		"amount":         order.Price,
	})
	if err != nil {
		return err
	}

	return s.repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("order_no", order.OrderNo),
				docstore.Eq("status", model.OrderStatusPending),
				docstore.Eq("payment_status", model.PaymentStatusUnpaid),
				docstore.NotDeleted(),
			),
			Set: docstore.Set{
				"status":         model.OrderStatusProcessing,
				"payment_status": model.PaymentStatusPaid,
				"transaction_id": result.TransactionID,
				"payment_method": providerName,
				"paid_at":        now,
				"updated_at":     now,
			},
		}},
		Inserts: []repository.Doc{eventDoc(evt)},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionPaymentConfirmed, "",
			string(model.OrderStatusPending), string(model.OrderStatusProcessing), SystemActor,
			map[string]interface{}{
				"provider":       providerName,
				"transaction_id": result.TransactionID,
				"amount":         result.Amount,
			})),
	})
}

// ensureDispatched 提交处理任务，失败只记录日志，由巡检重试
func (s *paymentService) ensureDispatched(ctx context.Context, order *model.OrderModel, logger logrus.FieldLogger) {
	if s.dispatcher == nil || order.Status != model.OrderStatusProcessing {
		return
	}
	task, err := s.dispatcher.Dispatch(ctx, order.ID)
	if err != nil {
		logger.WithError(err).Warn("Task dispatch after payment failed, sweep will retry")
		return
	}
	if task != nil {
		logger.WithField("task_id", task.ID).Info("Task dispatched after payment")
	}
}

// audit 记录未改变状态的回调
func (s *paymentService) audit(
	ctx context.Context,
	order *model.OrderModel,
	action, reason, providerName string,
	result *provider.CallbackResult,
	logger logrus.FieldLogger,
) {
	log := newOrderLog(order.ID, "", action, reason,
		string(order.Status), string(order.Status), SystemActor,
		map[string]interface{}{
			"provider":       providerName,
			"transaction_id": result.TransactionID,
			"amount":         result.Amount,
			"payment_status": order.PaymentStatus,
		})
	if err := s.repos.AppendAudit(ctx, orderLogDoc(log)); err != nil {
		logger.WithError(err).Error("Failed to record payment audit")
	}
}
