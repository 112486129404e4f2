package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ReviewLogModel 审核操作日志,只追加不修改
type ReviewLogModel struct {
	ID           string       `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	VideoID      string       `gorm:"type:varchar(64);not null;index" bson:"video_id" json:"video_id"`
	Action       ReviewAction `gorm:"type:varchar(32);not null" bson:"action" json:"action"`
	OperatorID   string       `gorm:"type:varchar(64);not null" bson:"operator_id" json:"operator_id"`
	OperatorType OperatorType `gorm:"type:varchar(16);not null" bson:"operator_type" json:"operator_type"`
	Content      string       `gorm:"type:text" bson:"content" json:"content"`
	QuotePrice   *int64       `bson:"quote_price" json:"quote_price,omitempty"`
	FromStatus   ReviewStatus `gorm:"type:varchar(32)" bson:"from_status" json:"from_status"`
	ToStatus     ReviewStatus `gorm:"type:varchar(32)" bson:"to_status" json:"to_status"`
	Result       LogResult    `gorm:"type:varchar(16);not null" bson:"result" json:"result"`
	CreatedAt    time.Time    `gorm:"not null;index" bson:"created_at" json:"created_at"`
}

// TableName 指定表名
func (ReviewLogModel) TableName() string {
	return CollReviewLogs
}

// Validate 验证审核日志
func (lm *ReviewLogModel) Validate() error {
	if lm.ID == "" {
		return errors.New("log ID is required")
	}
	if lm.VideoID == "" {
		return errors.New("video ID is required")
	}
	if lm.Action == "" {
		return errors.New("action is required")
	}
	if lm.OperatorID == "" {
		return errors.New("operator is required")
	}
	if lm.Result != LogResultAccepted && lm.Result != LogResultRejected {
		return errors.New("invalid log result")
	}
	return nil
}

// OrderLogModel 订单/任务状态变更日志,只追加不修改
type OrderLogModel struct {
	ID           string         `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	OrderID      string         `gorm:"type:varchar(64);not null;index" bson:"order_id" json:"order_id"`
	TaskID       string         `gorm:"type:varchar(128);index" bson:"task_id" json:"task_id,omitempty"`
	Action       string         `gorm:"type:varchar(32);not null" bson:"action" json:"action"`
	Reason       string         `gorm:"type:varchar(64);index" bson:"reason" json:"reason,omitempty"` // timeout / provider_failure ...
	FromStatus   string         `gorm:"type:varchar(32)" bson:"from_status" json:"from_status"`
	ToStatus     string         `gorm:"type:varchar(32)" bson:"to_status" json:"to_status"`
	OperatorID   string         `gorm:"type:varchar(64);not null" bson:"operator_id" json:"operator_id"`
	OperatorType OperatorType   `gorm:"type:varchar(16);not null" bson:"operator_type" json:"operator_type"`
	Details      datatypes.JSON `bson:"details" json:"details,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" bson:"created_at" json:"created_at"`
}

// TableName 指定表名
func (OrderLogModel) TableName() string {
	return CollOrderLogs
}

// Validate 验证订单日志
func (lm *OrderLogModel) Validate() error {
	if lm.ID == "" {
		return errors.New("log ID is required")
	}
	if lm.OrderID == "" {
		return errors.New("order ID is required")
	}
	if lm.Action == "" {
		return errors.New("action is required")
	}
	if lm.OperatorID == "" {
		return errors.New("operator is required")
	}
	return nil
}
