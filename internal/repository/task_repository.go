package repository

import (
	"context"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
)

// TaskRepository 处理任务仓储接口
type TaskRepository interface {
	FindByID(ctx context.Context, id string) (*model.TaskModel, error)
	FindActiveBySource(ctx context.Context, source model.TaskSource, limit int) ([]model.TaskModel, error)
	FindActiveCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.TaskModel, error)
	FindByOrder(ctx context.Context, orderID string) ([]model.TaskModel, error)
	CountActiveByOrder(ctx context.Context, orderID string) (int64, error)
	CountByOrder(ctx context.Context, orderID string) (int64, error)
	CountByStatus(ctx context.Context, status model.TaskStatus) (int64, error)
}

// taskRepository 处理任务仓储实现
type taskRepository struct {
	store docstore.Store
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(store docstore.Store) TaskRepository {
	return &taskRepository{store: store}
}

// FindByID 根据 ID 查找任务
func (r *taskRepository) FindByID(ctx context.Context, id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := docstore.FindByID(ctx, r.store, model.CollTasks, id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// FindActiveBySource 查找指定来源的非终态任务，按创建时间升序
func (r *taskRepository) FindActiveBySource(ctx context.Context, source model.TaskSource, limit int) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.store.Find(ctx, model.CollTasks, docstore.Query{
		Filter: docstore.Where(
			docstore.Eq("source", source),
			docstore.In("status", model.ActiveTaskStatuses),
		),
		Sort:  []docstore.Sort{{Field: "created_at"}},
		Limit: limit,
	}, &tasks)
	return tasks, err
}

// FindActiveCreatedBefore 查找创建时间早于 cutoff 的非终态任务
func (r *taskRepository) FindActiveCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.store.Find(ctx, model.CollTasks, docstore.Query{
		Filter: docstore.Where(
			docstore.In("status", model.ActiveTaskStatuses),
			docstore.Lt("created_at", cutoff),
		),
		Sort:  []docstore.Sort{{Field: "created_at"}},
		Limit: limit,
	}, &tasks)
	return tasks, err
}

// FindByOrder 查找订单关联的全部任务
func (r *taskRepository) FindByOrder(ctx context.Context, orderID string) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.store.Find(ctx, model.CollTasks, docstore.Query{
		Filter: docstore.Where(docstore.Eq("order_id", orderID)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, &tasks)
	return tasks, err
}

// CountActiveByOrder 统计订单的非终态任务数
func (r *taskRepository) CountActiveByOrder(ctx context.Context, orderID string) (int64, error) {
	return r.store.Count(ctx, model.CollTasks, docstore.Where(
		docstore.Eq("order_id", orderID),
		docstore.In("status", model.ActiveTaskStatuses),
	))
}

// CountByOrder 统计订单的全部任务数
func (r *taskRepository) CountByOrder(ctx context.Context, orderID string) (int64, error) {
	return r.store.Count(ctx, model.CollTasks, docstore.Where(docstore.Eq("order_id", orderID)))
}

// CountByStatus 按状态统计任务
func (r *taskRepository) CountByStatus(ctx context.Context, status model.TaskStatus) (int64, error) {
	return r.store.Count(ctx, model.CollTasks, docstore.Where(docstore.Eq("status", status)))
}
