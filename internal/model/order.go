package model

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// 集合(表)名称
const (
	CollOrders         = "orders"
	CollTasks          = "tasks"
	CollReviewItems    = "review_items"
	CollReviewLogs     = "review_logs"
	CollReviewMessages = "review_messages"
	CollOrderLogs      = "order_logs"
	CollEvents         = "events"
)

// OrderModel 订单数据模型
type OrderModel struct {
	ID               string         `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	OrderNo          string         `gorm:"type:varchar(64);not null;uniqueIndex" bson:"order_no" json:"order_no"` // 对外订单号
	UserID           string         `gorm:"type:varchar(64);not null;index" bson:"user_id" json:"user_id"`
	VideoID          string         `gorm:"type:varchar(64);index" bson:"video_id" json:"video_id"` // 购买的作品
	Type             OrderType      `gorm:"type:varchar(16);not null" bson:"type" json:"type"`
	Status           OrderStatus    `gorm:"type:varchar(16);not null;index" bson:"status" json:"status"`
	PaymentStatus    PaymentStatus  `gorm:"type:varchar(16);not null;index" bson:"payment_status" json:"payment_status"`
	PaymentMethod    string         `gorm:"type:varchar(32)" bson:"payment_method" json:"payment_method"`
	Price            int64          `gorm:"not null" bson:"price" json:"price"` // 单位: 分
	TransactionID    string         `gorm:"type:varchar(128)" bson:"transaction_id" json:"transaction_id"`
	PaidAt           *time.Time     `bson:"paid_at" json:"paid_at"`
	ResultVideoURL   string         `gorm:"type:text" bson:"result_video_url" json:"result_video_url"`
	Materials        datatypes.JSON `bson:"materials" json:"materials"` // 素材 URL 列表
	DispatchAttempts int            `gorm:"not null;default:0" bson:"dispatch_attempts" json:"dispatch_attempts"`
	LastDispatchAt   *time.Time     `bson:"last_dispatch_at" json:"last_dispatch_at"`
	ErrorMessage     string         `gorm:"type:text" bson:"error_message" json:"error_message"`
	CreatedAt        time.Time      `gorm:"not null;index" bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" bson:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time     `gorm:"index" bson:"deleted_at" json:"-"`
}

// TableName 指定表名
func (OrderModel) TableName() string {
	return CollOrders
}

// Validate 验证订单模型
func (om *OrderModel) Validate() error {
	if om.ID == "" {
		return errors.New("order ID is required")
	}
	if om.OrderNo == "" {
		return errors.New("order no is required")
	}
	if om.UserID == "" {
		return errors.New("user ID is required")
	}
	if !om.Type.Valid() {
		return errors.New("invalid order type")
	}
	if !om.Status.Valid() {
		return errors.New("invalid order status")
	}
	if !om.PaymentStatus.Valid() {
		return errors.New("invalid payment status")
	}
	if om.Price < 0 {
		return errors.New("price cannot be negative")
	}
	return nil
}

// MaterialURLs 解析素材列表
func (om *OrderModel) MaterialURLs() []string {
	var urls []string
	if len(om.Materials) == 0 {
		return urls
	}
	_ = json.Unmarshal(om.Materials, &urls)
	return urls
}

// IsPaid 是否已支付
func (om *OrderModel) IsPaid() bool {
	return om.PaymentStatus == PaymentStatusPaid
}
