package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
)

// Actor 操作人，由认证层解析
type Actor struct {
	ID   string
	Type model.OperatorType
}

// AdminActor 管理员
func AdminActor(id string) Actor {
	return Actor{ID: id, Type: model.OperatorAdmin}
}

// CustomerActor 普通用户(创作者/购买者)
func CustomerActor(id string) Actor {
	return Actor{ID: id, Type: model.OperatorCustomer}
}

// SystemActor 系统任务
var SystemActor = Actor{ID: "system", Type: model.OperatorSystem}

// IsAdmin 是否管理员
func (a Actor) IsAdmin() bool {
	return a.Type == model.OperatorAdmin
}

// Authorizer 资源归属关系，由 OpenFGA 客户端实现
type Authorizer interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
	SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error
}

// 归属关系定义
const (
	RelationOwner    = "owner"
	ObjectOrder      = "order"
	ObjectReviewItem = "review_item"
)

// owns 判断 actor 是否拥有资源
// 先比较记录上的归属人，再查询授权服务
func owns(ctx context.Context, authz Authorizer, actor Actor, ownerID, objectType, objectID string) (bool, error) {
	if actor.ID != "" && actor.ID == ownerID {
		return true, nil
	}
	if authz == nil || actor.ID == "" {
		return false, nil
	}
	return authz.CheckPermission(ctx, actor.ID, RelationOwner, objectType, objectID)
}

// storeError 将存储层错误转换为业务错误
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return apperr.New(apperr.ErrNotFound, "%s", what)
	case errors.Is(err, repository.ErrPreconditionFailed):
		return apperr.Wrap(apperr.ErrConcurrentModification, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// newOrderLog 构造订单/任务审计记录
func newOrderLog(orderID, taskID, action, reason string, from, to string, actor Actor, details interface{}) *model.OrderLogModel {
	log := &model.OrderLogModel{
		ID:           uuid.New().String(),
		OrderID:      orderID,
		TaskID:       taskID,
		Action:       action,
		Reason:       reason,
		FromStatus:   from,
		ToStatus:     to,
		OperatorID:   actor.ID,
		OperatorType: actor.Type,
		CreatedAt:    time.Now(),
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			log.Details = data
		}
	}
	return log
}

// orderLogDoc 包装为审计文档
func orderLogDoc(log *model.OrderLogModel) repository.Doc {
	return repository.Doc{Coll: model.CollOrderLogs, Value: log}
}

// eventDoc 包装为发件箱文档
func eventDoc(evt *model.EventModel) repository.Doc {
	return repository.Doc{Coll: model.CollEvents, Value: evt}
}

// 订单日志动作
const (
	OrderActionCreated          = "created"
	OrderActionCancelled        = "cancelled"
	OrderActionPaymentConfirmed = "payment_confirmed"
	OrderActionPaymentRejected  = "payment_rejected"
	OrderActionDispatchAttempt  = "dispatch_attempt"
	OrderActionDispatchFailed   = "dispatch_failed"
	OrderActionTaskSubmitted    = "task_submitted"
	OrderActionTaskProcessing   = "task_processing"
	OrderActionTaskCompleted    = "task_completed"
	OrderActionTaskFailed       = "task_failed"
	OrderActionTaskTimeout      = "task_timeout"
	OrderActionOrderFailed      = "order_failed"
	OrderActionRefundRequested  = "refund_requested"
	OrderActionRefundRejected   = "refund_rejected"
	OrderActionRefunded         = "refunded"
)

// 审计原因
const (
	ReasonTimeout           = "timeout"
	ReasonProviderFailure   = "provider_failure"
	ReasonDispatchExhausted = "dispatch_exhausted"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonInvalidState      = "invalid_state"
	ReasonOrderChanged      = "order_changed"
)
