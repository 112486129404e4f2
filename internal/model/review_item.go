package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ReviewItemModel 作品审核数据模型
type ReviewItemModel struct {
	ID              string         `gorm:"primaryKey;type:varchar(64)" bson:"_id" json:"id"`
	CreatorID       string         `gorm:"type:varchar(64);not null;index" bson:"creator_id" json:"creator_id"`
	Title           string         `gorm:"type:varchar(255);not null" bson:"title" json:"title"`
	Description     string         `gorm:"type:text" bson:"description" json:"description"`
	RawMaterialURLs datatypes.JSON `gorm:"column:raw_material_urls" bson:"raw_material_urls" json:"raw_material_urls"`
	ReviewStatus    ReviewStatus   `gorm:"type:varchar(32);not null;index" bson:"review_status" json:"review_status"`
	QuotePrice      int64          `gorm:"not null;default:0" bson:"quote_price" json:"quote_price"` // 单位: 分
	EstimatedDays   int            `gorm:"not null;default:0" bson:"estimated_days" json:"estimated_days"`
	ModifyCount     int            `gorm:"not null;default:0" bson:"modify_count" json:"modify_count"`
	MaxModifyCount  int            `gorm:"not null;default:0" bson:"max_modify_count" json:"max_modify_count"`
	DeliveryCount   int            `gorm:"not null;default:0" bson:"delivery_count" json:"delivery_count"`
	ResultVideoURL  string         `gorm:"type:text" bson:"result_video_url" json:"result_video_url"`
	RejectReason    string         `gorm:"type:text" bson:"reject_reason" json:"reject_reason"`
	PublishedAt     *time.Time     `bson:"published_at" json:"published_at"`
	CreatedAt       time.Time      `gorm:"not null;index" bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" bson:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time     `gorm:"index" bson:"deleted_at" json:"-"`
}

// TableName 指定表名
func (ReviewItemModel) TableName() string {
	return CollReviewItems
}

// Validate 验证审核作品模型
func (rm *ReviewItemModel) Validate() error {
	if rm.ID == "" {
		return errors.New("video ID is required")
	}
	if rm.CreatorID == "" {
		return errors.New("creator ID is required")
	}
	if rm.Title == "" {
		return errors.New("title is required")
	}
	if !rm.ReviewStatus.Valid() {
		return errors.New("invalid review status")
	}
	if rm.ModifyCount > rm.MaxModifyCount {
		return errors.New("modify count exceeds max modify count")
	}
	return nil
}

// Publishable 是否满足上架条件: 已报价且至少交付过一次成片
func (rm *ReviewItemModel) Publishable() bool {
	return rm.QuotePrice > 0 && rm.ResultVideoURL != "" && rm.DeliveryCount > 0
}
