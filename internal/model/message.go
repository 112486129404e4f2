package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ReviewMessageModel 审核沟通留言
type ReviewMessageModel struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	VideoID     string         `gorm:"type:varchar(64);not null;index" bson:"video_id" json:"video_id"`
	SenderID    string         `gorm:"type:varchar(64);not null" bson:"sender_id" json:"sender_id"`
	SenderType  OperatorType   `gorm:"type:varchar(16);not null" bson:"sender_type" json:"sender_type"`
	Content     string         `gorm:"type:text;not null" bson:"content" json:"content"`
	Attachments datatypes.JSON `bson:"attachments" json:"attachments,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" bson:"created_at" json:"created_at"`
}

// TableName 指定表名
func (ReviewMessageModel) TableName() string {
	return CollReviewMessages
}

// Validate 验证留言
func (mm *ReviewMessageModel) Validate() error {
	if mm.VideoID == "" {
		return errors.New("video ID is required")
	}
	if mm.SenderID == "" {
		return errors.New("sender is required")
	}
	if mm.Content == "" && len(mm.Attachments) == 0 {
		return errors.New("message content is required")
	}
	return nil
}

// EventModel 生命周期事件(发件箱)
type EventModel struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	AggregateID string         `gorm:"type:varchar(64);not null;index" bson:"aggregate_id" json:"aggregate_id"` // 订单 ID 或作品 ID
	Type        string         `gorm:"type:varchar(32);not null;index" bson:"type" json:"type"`
	Data        datatypes.JSON `gorm:"not null" bson:"data" json:"data"`
	Status      EventStatus    `gorm:"type:varchar(16);not null;default:'pending';index" bson:"status" json:"status"`
	RetryCount  int            `gorm:"default:0" bson:"retry_count" json:"retry_count"`
	CreatedAt   time.Time      `gorm:"not null;index" bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" bson:"updated_at" json:"updated_at"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return CollEvents
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.AggregateID == "" {
		return errors.New("aggregate ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&OrderModel{},
		&TaskModel{},
		&ReviewItemModel{},
		&ReviewLogModel{},
		&OrderLogModel{},
		&ReviewMessageModel{},
		&EventModel{},
	}
}
