package model

import "fmt"

// OrderType 订单类型
type OrderType string

const (
	OrderTypeVideo   OrderType = "video"
	OrderTypeText    OrderType = "text"
	OrderTypeAIVideo OrderType = "ai_video"
)

// Valid 判断订单类型是否合法
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeVideo, OrderTypeText, OrderTypeAIVideo:
		return true
	}
	return false
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// AllOrderStatuses 全部订单状态
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted,
	OrderStatusFailed, OrderStatusRefunded, OrderStatusCancelled,
}

// Valid 判断订单状态是否合法
func (s OrderStatus) Valid() bool {
	for _, v := range AllOrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusRefunded, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "unpaid"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusRefunding PaymentStatus = "refunding"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Valid 判断支付状态是否合法
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunding, PaymentStatusRefunded:
		return true
	}
	return false
}

// TaskStatus 处理任务状态
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusTimeout    TaskStatus = "timeout"
)

// AllTaskStatuses 全部任务状态
var AllTaskStatuses = []TaskStatus{
	TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout,
}

// ActiveTaskStatuses 非终态任务状态
var ActiveTaskStatuses = []TaskStatus{TaskStatusQueued, TaskStatusProcessing}

// Valid 判断任务状态是否合法
func (s TaskStatus) Valid() bool {
	for _, v := range AllTaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusTimeout
}

// ParseTaskStatus 解析任务状态
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown task status %q", s)
	}
	return status, nil
}

// TaskSource 任务来源,决定由哪个外部处理系统负责
type TaskSource string

const (
	TaskSourceAI  TaskSource = "ai"  // AI 换脸/生成
	TaskSourceVOD TaskSource = "vod" // 旧版点播处理
)

// ReviewStatus 审核状态
type ReviewStatus string

const (
	ReviewStatusPendingInitial   ReviewStatus = "pending_initial"
	ReviewStatusInitialRejected  ReviewStatus = "initial_rejected"
	ReviewStatusPendingQuote     ReviewStatus = "pending_quote"
	ReviewStatusQuoted           ReviewStatus = "quoted"
	ReviewStatusPendingPayment   ReviewStatus = "pending_payment"
	ReviewStatusProduction       ReviewStatus = "production"
	ReviewStatusPendingConfirm   ReviewStatus = "pending_confirm"
	ReviewStatusModifying        ReviewStatus = "modifying"
	ReviewStatusPendingReconfirm ReviewStatus = "pending_reconfirm"
	ReviewStatusPendingFinal     ReviewStatus = "pending_final"
	ReviewStatusPublished        ReviewStatus = "published"
	ReviewStatusOffline          ReviewStatus = "offline"
)

// AllReviewStatuses 全部审核状态
var AllReviewStatuses = []ReviewStatus{
	ReviewStatusPendingInitial, ReviewStatusInitialRejected, ReviewStatusPendingQuote,
	ReviewStatusQuoted, ReviewStatusPendingPayment, ReviewStatusProduction,
	ReviewStatusPendingConfirm, ReviewStatusModifying, ReviewStatusPendingReconfirm,
	ReviewStatusPendingFinal, ReviewStatusPublished, ReviewStatusOffline,
}

// Valid 判断审核状态是否合法
func (s ReviewStatus) Valid() bool {
	for _, v := range AllReviewStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseReviewStatus 解析审核状态
func ParseReviewStatus(s string) (ReviewStatus, error) {
	status := ReviewStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown review status %q", s)
	}
	return status, nil
}

// OperatorType 操作人类型
type OperatorType string

const (
	OperatorAdmin    OperatorType = "admin"
	OperatorCustomer OperatorType = "customer"
	OperatorSystem   OperatorType = "system"
)

// ReviewAction 审核动作
type ReviewAction string

const (
	ActionUpload              ReviewAction = "upload"
	ActionInitialReview       ReviewAction = "initial_review"
	ActionSubmitQuote         ReviewAction = "submit_quote"
	ActionAcceptQuote         ReviewAction = "accept_quote"
	ActionStartProduction     ReviewAction = "start_production"
	ActionDeliverResult       ReviewAction = "deliver_result"
	ActionRequestModification ReviewAction = "request_modification"
	ActionConfirmDelivery     ReviewAction = "confirm_delivery"
	ActionPublish             ReviewAction = "publish"
	ActionTakeOffline         ReviewAction = "take_offline"
	ActionRepublish           ReviewAction = "republish"
)

// LogResult 审计记录结果
type LogResult string

const (
	LogResultAccepted LogResult = "accepted"
	LogResultRejected LogResult = "rejected"
)

// EventStatus 事件投递状态
type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)
