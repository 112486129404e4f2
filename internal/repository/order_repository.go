package repository

import (
	"context"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*model.OrderModel, error)
	FindByOrderNo(ctx context.Context, orderNo string) (*model.OrderModel, error)
	FindByFilter(ctx context.Context, filter *OrderFilter) ([]model.OrderModel, docstore.PageInfo, error)
	FindStuck(ctx context.Context, paidBefore time.Time, limit int) ([]model.OrderModel, error)
	CountByStatus(ctx context.Context, status model.OrderStatus) (int64, error)
	Logs(ctx context.Context, orderID string) ([]model.OrderLogModel, error)
}

// OrderFilter 订单查询过滤器
type OrderFilter struct {
	UserID        *string
	Status        *model.OrderStatus
	PaymentStatus *model.PaymentStatus
	Type          *model.OrderType
	Page          int
	PageSize      int
	SortBy        string
	Desc          bool
}

// orderRepository 订单仓储实现
type orderRepository struct {
	store docstore.Store
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(store docstore.Store) OrderRepository {
	return &orderRepository{store: store}
}

// FindByID 根据 ID 查找订单
func (r *orderRepository) FindByID(ctx context.Context, id string) (*model.OrderModel, error) {
	var order model.OrderModel
	err := r.store.FindOne(ctx, model.CollOrders,
		docstore.Where(docstore.Eq("id", id), docstore.NotDeleted()), &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByOrderNo 根据对外订单号查找订单
func (r *orderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*model.OrderModel, error) {
	var order model.OrderModel
	err := r.store.FindOne(ctx, model.CollOrders,
		docstore.Where(docstore.Eq("order_no", orderNo), docstore.NotDeleted()), &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByFilter 根据过滤器分页查找订单
func (r *orderRepository) FindByFilter(ctx context.Context, filter *OrderFilter) ([]model.OrderModel, docstore.PageInfo, error) {
	f := docstore.Where(docstore.NotDeleted())
	if filter.UserID != nil {
		f = f.And(docstore.Eq("user_id", *filter.UserID))
	}
	if filter.Status != nil {
		f = f.And(docstore.Eq("status", *filter.Status))
	}
	if filter.PaymentStatus != nil {
		f = f.And(docstore.Eq("payment_status", *filter.PaymentStatus))
	}
	if filter.Type != nil {
		f = f.And(docstore.Eq("type", *filter.Type))
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}

	var orders []model.OrderModel
	page, err := docstore.Paginate(ctx, r.store, model.CollOrders, docstore.Query{
		Filter: f,
		Sort:   []docstore.Sort{{Field: sortBy, Desc: filter.Desc}},
	}, filter.Page, filter.PageSize, &orders)
	if err != nil {
		return nil, docstore.PageInfo{}, err
	}
	return orders, page, nil
}

// FindStuck 查找已支付、处理中且支付时间早于 paidBefore 的订单
// 是否缺少任务由调用方判断
func (r *orderRepository) FindStuck(ctx context.Context, paidBefore time.Time, limit int) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	err := r.store.Find(ctx, model.CollOrders, docstore.Query{
		Filter: docstore.Where(
			docstore.Eq("status", model.OrderStatusProcessing),
			docstore.Eq("payment_status", model.PaymentStatusPaid),
			docstore.Lt("paid_at", paidBefore),
			docstore.NotDeleted(),
		),
		Sort:  []docstore.Sort{{Field: "paid_at"}},
		Limit: limit,
	}, &orders)
	return orders, err
}

// CountByStatus 按状态统计订单
func (r *orderRepository) CountByStatus(ctx context.Context, status model.OrderStatus) (int64, error) {
	return r.store.Count(ctx, model.CollOrders,
		docstore.Where(docstore.Eq("status", status), docstore.NotDeleted()))
}

// Logs 查找订单变更日志
func (r *orderRepository) Logs(ctx context.Context, orderID string) ([]model.OrderLogModel, error) {
	var logs []model.OrderLogModel
	err := r.store.Find(ctx, model.CollOrderLogs, docstore.Query{
		Filter: docstore.Where(docstore.Eq("order_id", orderID)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, &logs)
	return logs, err
}
