package model

import (
	"errors"
	"time"
)

// TaskModel 外部处理任务数据模型
// 由支付确认创建,之后只由对账巡检修改
type TaskModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(128)" bson:"_id" json:"id"` // 外部服务返回的任务 ID
	OrderID      string     `gorm:"type:varchar(64);not null;index" bson:"order_id" json:"order_id"`
	UserID       string     `gorm:"type:varchar(64);not null;index" bson:"user_id" json:"user_id"`
	Source       TaskSource `gorm:"type:varchar(16);not null;index" bson:"source" json:"source"`
	Status       TaskStatus `gorm:"type:varchar(16);not null;index" bson:"status" json:"status"`
	Progress     int        `gorm:"not null;default:0" bson:"progress" json:"progress"`
	ResultURL    string     `gorm:"type:text" bson:"result_url" json:"result_url"`
	ErrorMessage string     `gorm:"type:text" bson:"error_message" json:"error_message"`
	CreatedAt    time.Time  `gorm:"not null;index" bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" bson:"updated_at" json:"updated_at"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return CollTasks
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.OrderID == "" {
		return errors.New("order ID is required")
	}
	if tm.Source != TaskSourceAI && tm.Source != TaskSourceVOD {
		return errors.New("invalid task source")
	}
	if !tm.Status.Valid() {
		return errors.New("invalid task status")
	}
	return nil
}

// Age 任务已存在时长
func (tm *TaskModel) Age(now time.Time) time.Duration {
	return now.Sub(tm.CreatedAt)
}
