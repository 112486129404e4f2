package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/statemachine"
	"github.com/mautops/videoflow-gin/internal/utils"
	"github.com/sirupsen/logrus"
)

// OrderService 订单服务接口
type OrderService interface {
	Checkout(ctx context.Context, actor Actor, req *CheckoutRequest) (*CheckoutResult, error)
	Pay(ctx context.Context, orderID string, actor Actor) (*CheckoutResult, error)
	Get(ctx context.Context, orderID string, actor Actor) (*model.OrderModel, error)
	Cancel(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error)
	RequestRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error)
	RejectRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error)
	CompleteRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error)
	Logs(ctx context.Context, orderID string, actor Actor) ([]model.OrderLogModel, error)
	Tasks(ctx context.Context, orderID string, actor Actor) ([]model.TaskModel, error)
}

// CheckoutRequest 下单请求
// @Description 购买已上架作品
type CheckoutRequest struct {
	VideoID       string          `json:"video_id" binding:"required"`                        // 已上架作品 ID
	Type          model.OrderType `json:"type" example:"ai_video"`                            // video, text, ai_video
	PaymentMethod string          `json:"payment_method" example:"wechat" binding:"required"` // 支付渠道
	Materials     []string        `json:"materials"`                                          // ai_video 必填的素材地址
}

// CheckoutResult 下单结果
type CheckoutResult struct {
	Order         *model.OrderModel      `json:"order"`
	PaymentParams provider.PaymentParams `json:"payment_params"`
}

// orderService 订单服务实现
type orderService struct {
	repos    *repository.Repositories
	registry *provider.PaymentRegistry
	authz    Authorizer
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(repos *repository.Repositories, registry *provider.PaymentRegistry, logger logrus.FieldLogger, authz Authorizer) OrderService {
	return &orderService{
		repos:    repos,
		registry: registry,
		authz:    authz,
		logger:   logger.WithField("component", "order_service"),
		now:      time.Now,
	}
}

// generateOrderNo 生成对外订单号
func generateOrderNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:10])
	return "VF" + now.Format("20060102150405") + suffix
}

// Checkout 购买已上架作品，创建待支付订单并返回支付参数
func (s *orderService) Checkout(ctx context.Context, actor Actor, req *CheckoutRequest) (*CheckoutResult, error) {
	if actor.ID == "" {
		return nil, apperr.ErrForbidden
	}
	if err := utils.ValidateID(req.VideoID); err != nil {
		return nil, apperr.New(apperr.ErrValidation, "video_id: %v", err)
	}
	orderType := req.Type
	if orderType == "" {
		orderType = model.OrderTypeVideo
	}
	if !orderType.Valid() {
		return nil, apperr.New(apperr.ErrValidation, "unsupported order type %q", req.Type)
	}
	pp, ok := s.registry.Get(req.PaymentMethod)
	if !ok {
		return nil, apperr.New(apperr.ErrValidation, "unsupported payment method %q", req.PaymentMethod)
	}
	if orderType == model.OrderTypeAIVideo && len(req.Materials) == 0 {
		return nil, apperr.New(apperr.ErrValidation, "ai_video orders require materials")
	}
	for _, u := range req.Materials {
		if err := utils.ValidateURL(u); err != nil {
			return nil, apperr.New(apperr.ErrValidation, "material %q: %v", u, err)
		}
	}

	item, err := s.repos.Reviews.FindItem(ctx, req.VideoID)
	if err != nil {
		return nil, storeError(err, "review item "+req.VideoID)
	}
	if item.ReviewStatus != model.ReviewStatusPublished {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "video %s is not published", item.ID)
	}
	if item.QuotePrice <= 0 {
		return nil, apperr.New(apperr.ErrValidation, "video %s has no price", item.ID)
	}

	now := s.now()
	order := &model.OrderModel{
		ID:            uuid.New().String(),
		OrderNo:       generateOrderNo(now),
		UserID:        actor.ID,
		VideoID:       item.ID,
		Type:          orderType,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		PaymentMethod: pp.Name(),
		Price:         item.QuotePrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(req.Materials) > 0 {
		if order.Materials, err = json.Marshal(req.Materials); err != nil {
			return nil, fmt.Errorf("failed to marshal materials: %w", err)
		}
	}

	err = s.repos.Apply(ctx, repository.Change{
		Inserts: []repository.Doc{{Coll: model.CollOrders, Value: order}},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionCreated, "",
			"", string(model.OrderStatusPending), actor,
			map[string]interface{}{"video_id": item.ID, "price": order.Price, "type": orderType})),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if s.authz != nil {
		if err := s.authz.SetRelation(ctx, actor.ID, RelationOwner, ObjectOrder, order.ID); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to set owner relation")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"order_no": order.OrderNo,
		"video_id": item.ID,
		"price":    order.Price,
	}).Info("Order created")

	params, err := pp.CreatePayment(ctx, order)
	if err != nil {
		return &CheckoutResult{Order: order}, apperr.Wrap(apperr.ErrExternalProviderUnavailable, err)
	}
	return &CheckoutResult{Order: order, PaymentParams: params}, nil
}

// Pay 为待支付订单重新获取支付参数
func (s *orderService) Pay(ctx context.Context, orderID string, actor Actor) (*CheckoutResult, error) {
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusPending || order.PaymentStatus != model.PaymentStatusUnpaid {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s is %s/%s", order.ID, order.Status, order.PaymentStatus)
	}
	pp, ok := s.registry.Get(order.PaymentMethod)
	if !ok {
		return nil, apperr.New(apperr.ErrValidation, "unsupported payment method %q", order.PaymentMethod)
	}
	params, err := pp.CreatePayment(ctx, order)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternalProviderUnavailable, err)
	}
	return &CheckoutResult{Order: order, PaymentParams: params}, nil
}

// Get 读取订单
func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (*model.OrderModel, error) {
	return s.load(ctx, orderID, actor)
}

// Cancel 取消未支付订单
func (s *orderService) Cancel(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error) {
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !statemachine.OrderGraph.Can(order.Status, model.OrderStatusCancelled) || order.PaymentStatus != model.PaymentStatusUnpaid {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s cannot be cancelled in %s/%s", order.ID, order.Status, order.PaymentStatus)
	}

	return s.apply(ctx, order, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", model.OrderStatusPending),
				docstore.Eq("payment_status", model.PaymentStatusUnpaid),
			),
			Set: docstore.Set{"status": model.OrderStatusCancelled, "updated_at": s.now()},
		}},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionCancelled, "",
			string(order.Status), string(model.OrderStatusCancelled), actor, commentDetails(req))),
	})
}

// RequestRefund 已支付订单申请退款
func (s *orderService) RequestRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error) {
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !statemachine.PaymentGraph.Can(order.PaymentStatus, model.PaymentStatusRefunding) {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s payment is %s", order.ID, order.PaymentStatus)
	}

	return s.apply(ctx, order, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("payment_status", model.PaymentStatusPaid),
			),
			Set: docstore.Set{"payment_status": model.PaymentStatusRefunding, "updated_at": s.now()},
		}},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionRefundRequested, "",
			string(model.PaymentStatusPaid), string(model.PaymentStatusRefunding), actor, commentDetails(req))),
	})
}

// RejectRefund 管理员驳回退款
func (s *orderService) RejectRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error) {
	if !actor.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !statemachine.PaymentGraph.Can(order.PaymentStatus, model.PaymentStatusPaid) {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s payment is %s", order.ID, order.PaymentStatus)
	}

	return s.apply(ctx, order, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("payment_status", model.PaymentStatusRefunding),
			),
			Set: docstore.Set{"payment_status": model.PaymentStatusPaid, "updated_at": s.now()},
		}},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionRefundRejected, "",
			string(model.PaymentStatusRefunding), string(model.PaymentStatusPaid), actor, commentDetails(req))),
	})
}

// CompleteRefund 管理员确认退款完成，订单进入 refunded
func (s *orderService) CompleteRefund(ctx context.Context, orderID string, actor Actor, req *CommentRequest) (*model.OrderModel, error) {
	if !actor.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	order, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !statemachine.PaymentGraph.Can(order.PaymentStatus, model.PaymentStatusRefunded) {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s payment is %s", order.ID, order.PaymentStatus)
	}
	if !statemachine.OrderGraph.Can(order.Status, model.OrderStatusRefunded) {
		return nil, apperr.New(apperr.ErrInvalidStateTransition, "order %s is %s", order.ID, order.Status)
	}

	evt, err := integration.NewEvent(order.ID, integration.EventOrderRefunded, map[string]interface{}{
		"order_id": order.ID,
		"order_no": order.OrderNo,
		"user_id":  order.UserID,
		"amount":   order.Price,
	})
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, order, repository.Change{
		Updates: []repository.Update{{
			Coll: model.CollOrders,
			Filter: docstore.Where(
				docstore.Eq("id", order.ID),
				docstore.Eq("status", order.Status),
				docstore.Eq("payment_status", model.PaymentStatusRefunding),
			),
			Set: docstore.Set{
				"status":         model.OrderStatusRefunded,
				"payment_status": model.PaymentStatusRefunded,
				"updated_at":     s.now(),
			},
		}},
		Inserts: []repository.Doc{eventDoc(evt)},
		Audit: orderLogDoc(newOrderLog(order.ID, "", OrderActionRefunded, "",
			string(order.Status), string(model.OrderStatusRefunded), actor, commentDetails(req))),
	})
}

// Logs 订单审计记录
func (s *orderService) Logs(ctx context.Context, orderID string, actor Actor) ([]model.OrderLogModel, error) {
	if _, err := s.load(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return s.repos.Orders.Logs(ctx, orderID)
}

// Tasks 订单关联的处理任务
func (s *orderService) Tasks(ctx context.Context, orderID string, actor Actor) ([]model.TaskModel, error) {
	if _, err := s.load(ctx, orderID, actor); err != nil {
		return nil, err
	}
	return s.repos.Tasks.FindByOrder(ctx, orderID)
}

// load 读取订单并校验归属
func (s *orderService) load(ctx context.Context, orderID string, actor Actor) (*model.OrderModel, error) {
	order, err := s.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, "order "+orderID)
	}
	if actor.IsAdmin() || actor.Type == model.OperatorSystem {
		return order, nil
	}
	ok, err := owns(ctx, s.authz, actor, order.UserID, ObjectOrder, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check ownership: %w", err)
	}
	if !ok {
		return nil, apperr.ErrForbidden
	}
	return order, nil
}

// apply 执行变更并返回最新订单
func (s *orderService) apply(ctx context.Context, order *model.OrderModel, change repository.Change) (*model.OrderModel, error) {
	if err := s.repos.Apply(ctx, change); err != nil {
		return nil, storeError(err, "order "+order.ID)
	}
	updated, err := s.repos.Orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, storeError(err, "order "+order.ID)
	}
	s.logger.WithFields(logrus.Fields{
		"order_id":       updated.ID,
		"status":         updated.Status,
		"payment_status": updated.PaymentStatus,
	}).Info("Order updated")
	return updated, nil
}

func commentDetails(req *CommentRequest) interface{} {
	if req == nil || req.Content == "" {
		return nil
	}
	return map[string]interface{}{"comment": utils.SanitizeString(req.Content)}
}
