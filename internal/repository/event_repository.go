package repository

import (
	"context"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
)

// EventRepository 事件仓储接口
type EventRepository interface {
	FindByID(ctx context.Context, id string) (*model.EventModel, error)
	FindByAggregate(ctx context.Context, aggregateID string) ([]model.EventModel, error)
	FindPending(ctx context.Context, limit int) ([]model.EventModel, error)
	MarkResult(ctx context.Context, id string, status model.EventStatus, retryCount int) error
}

// eventRepository 事件仓储实现
type eventRepository struct {
	store docstore.Store
}

// NewEventRepository 创建事件仓储
func NewEventRepository(store docstore.Store) EventRepository {
	return &eventRepository{store: store}
}

// FindByID 根据 ID 查找事件
func (r *eventRepository) FindByID(ctx context.Context, id string) (*model.EventModel, error) {
	var evt model.EventModel
	if err := docstore.FindByID(ctx, r.store, model.CollEvents, id, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// FindByAggregate 根据聚合 ID 查找事件
func (r *eventRepository) FindByAggregate(ctx context.Context, aggregateID string) ([]model.EventModel, error) {
	var events []model.EventModel
	err := r.store.Find(ctx, model.CollEvents, docstore.Query{
		Filter: docstore.Where(docstore.Eq("aggregate_id", aggregateID)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, &events)
	return events, err
}

// FindPending 查找待投递的事件
func (r *eventRepository) FindPending(ctx context.Context, limit int) ([]model.EventModel, error) {
	var events []model.EventModel
	err := r.store.Find(ctx, model.CollEvents, docstore.Query{
		Filter: docstore.Where(docstore.Eq("status", model.EventStatusPending)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
		Limit:  limit,
	}, &events)
	return events, err
}

// MarkResult 更新投递结果，只更新仍处于 pending 的事件
func (r *eventRepository) MarkResult(ctx context.Context, id string, status model.EventStatus, retryCount int) error {
	_, err := r.store.UpdateWhere(ctx, model.CollEvents,
		docstore.Where(docstore.Eq("id", id), docstore.Eq("status", model.EventStatusPending)),
		docstore.Set{
			"status":      status,
			"retry_count": retryCount,
			"updated_at":  time.Now(),
		})
	return err
}
