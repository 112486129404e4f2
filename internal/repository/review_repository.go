package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
)

// ReviewRepository 审核仓储接口
type ReviewRepository interface {
	FindItem(ctx context.Context, videoID string) (*model.ReviewItemModel, error)
	FindItems(ctx context.Context, filter *ReviewItemFilter) ([]model.ReviewItemModel, docstore.PageInfo, error)
	CountByStatus(ctx context.Context, status model.ReviewStatus) (int64, error)
	Logs(ctx context.Context, videoID string) ([]model.ReviewLogModel, error)
	Messages(ctx context.Context, videoID string, page, pageSize int) ([]model.ReviewMessageModel, docstore.PageInfo, error)
	AddMessage(ctx context.Context, msg *model.ReviewMessageModel) error
}

// ReviewItemFilter 审核作品查询过滤器
type ReviewItemFilter struct {
	CreatorID    *string
	ReviewStatus *model.ReviewStatus
	Page         int
	PageSize     int
	SortBy       string
	Desc         bool
}

// reviewRepository 审核仓储实现
type reviewRepository struct {
	store docstore.Store
}

// NewReviewRepository 创建审核仓储
func NewReviewRepository(store docstore.Store) ReviewRepository {
	return &reviewRepository{store: store}
}

// FindItem 根据 ID 查找未删除的作品
func (r *reviewRepository) FindItem(ctx context.Context, videoID string) (*model.ReviewItemModel, error) {
	var item model.ReviewItemModel
	err := r.store.FindOne(ctx, model.CollReviewItems,
		docstore.Where(docstore.Eq("id", videoID), docstore.NotDeleted()), &item)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItems 分页查找作品
func (r *reviewRepository) FindItems(ctx context.Context, filter *ReviewItemFilter) ([]model.ReviewItemModel, docstore.PageInfo, error) {
	f := docstore.Where(docstore.NotDeleted())
	if filter.CreatorID != nil {
		f = f.And(docstore.Eq("creator_id", *filter.CreatorID))
	}
	if filter.ReviewStatus != nil {
		f = f.And(docstore.Eq("review_status", *filter.ReviewStatus))
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}

	var items []model.ReviewItemModel
	page, err := docstore.Paginate(ctx, r.store, model.CollReviewItems, docstore.Query{
		Filter: f,
		Sort:   []docstore.Sort{{Field: sortBy, Desc: filter.Desc}},
	}, filter.Page, filter.PageSize, &items)
	if err != nil {
		return nil, docstore.PageInfo{}, err
	}
	return items, page, nil
}

// CountByStatus 按审核状态统计作品
func (r *reviewRepository) CountByStatus(ctx context.Context, status model.ReviewStatus) (int64, error) {
	return r.store.Count(ctx, model.CollReviewItems,
		docstore.Where(docstore.Eq("review_status", status), docstore.NotDeleted()))
}

// Logs 查找作品审核日志，按时间升序
func (r *reviewRepository) Logs(ctx context.Context, videoID string) ([]model.ReviewLogModel, error) {
	var logs []model.ReviewLogModel
	err := r.store.Find(ctx, model.CollReviewLogs, docstore.Query{
		Filter: docstore.Where(docstore.Eq("video_id", videoID)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, &logs)
	return logs, err
}

// Messages 分页查找作品留言
func (r *reviewRepository) Messages(ctx context.Context, videoID string, page, pageSize int) ([]model.ReviewMessageModel, docstore.PageInfo, error) {
	var msgs []model.ReviewMessageModel
	info, err := docstore.Paginate(ctx, r.store, model.CollReviewMessages, docstore.Query{
		Filter: docstore.Where(docstore.Eq("video_id", videoID)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, page, pageSize, &msgs)
	if err != nil {
		return nil, docstore.PageInfo{}, err
	}
	return msgs, info, nil
}

// AddMessage 新增留言
func (r *reviewRepository) AddMessage(ctx context.Context, msg *model.ReviewMessageModel) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return r.store.Insert(ctx, model.CollReviewMessages, msg)
}
