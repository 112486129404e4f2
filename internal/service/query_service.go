package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/utils"
)

// QueryService 查询服务接口
type QueryService interface {
	ListOrders(ctx context.Context, actor Actor, filter *ListOrdersFilter) ([]model.OrderModel, docstore.PageInfo, error)
	ListReviewItems(ctx context.Context, actor Actor, filter *ListReviewItemsFilter) ([]model.ReviewItemModel, docstore.PageInfo, error)
	ReviewLogs(ctx context.Context, videoID string, actor Actor) ([]model.ReviewLogModel, error)
}

// ListOrdersFilter 订单列表查询过滤器
type ListOrdersFilter struct {
	UserID        string `form:"user_id"`
	Status        string `form:"status"`
	PaymentStatus string `form:"payment_status"`
	Type          string `form:"type"`
	Page          int    `form:"page"`
	PageSize      int    `form:"page_size"`
	SortBy        string `form:"sort_by"`
	Order         string `form:"order"`
}

// ListReviewItemsFilter 作品列表查询过滤器
type ListReviewItemsFilter struct {
	CreatorID    string `form:"creator_id"`
	ReviewStatus string `form:"review_status"`
	Page         int    `form:"page"`
	PageSize     int    `form:"page_size"`
	SortBy       string `form:"sort_by"`
	Order        string `form:"order"`
}

var (
	orderSortFields  = []string{"created_at", "updated_at", "paid_at", "price", "status"}
	reviewSortFields = []string{"created_at", "updated_at", "published_at", "quote_price", "review_status"}
)

// queryService 查询服务实现
type queryService struct {
	repos *repository.Repositories
	authz Authorizer
}

// NewQueryService 创建查询服务
func NewQueryService(repos *repository.Repositories, authz Authorizer) QueryService {
	return &queryService{repos: repos, authz: authz}
}

// sortOptions 校验排序参数
func sortOptions(sortBy, order string, allowed []string) (string, bool, error) {
	if sortBy == "" {
		sortBy = "created_at"
	}
	if err := utils.ValidateSortField(sortBy, allowed); err != nil {
		return "", false, apperr.New(apperr.ErrValidation, "%v", err)
	}
	if order == "" {
		order = "desc"
	}
	if err := utils.ValidateSortOrder(order); err != nil {
		return "", false, apperr.New(apperr.ErrValidation, "%v", err)
	}
	return sortBy, strings.EqualFold(strings.TrimSpace(order), "desc"), nil
}

// ListOrders 分页查询订单，普通用户只能看到自己的订单
func (s *queryService) ListOrders(ctx context.Context, actor Actor, filter *ListOrdersFilter) ([]model.OrderModel, docstore.PageInfo, error) {
	sortBy, desc, err := sortOptions(filter.SortBy, filter.Order, orderSortFields)
	if err != nil {
		return nil, docstore.PageInfo{}, err
	}

	f := &repository.OrderFilter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		SortBy:   sortBy,
		Desc:     desc,
	}
	switch {
	case !actor.IsAdmin():
		f.UserID = &actor.ID
	case filter.UserID != "":
		f.UserID = &filter.UserID
	}
	if filter.Status != "" {
		st := model.OrderStatus(filter.Status)
		if !st.Valid() {
			return nil, docstore.PageInfo{}, apperr.New(apperr.ErrValidation, "unknown order status %q", filter.Status)
		}
		f.Status = &st
	}
	if filter.PaymentStatus != "" {
		ps := model.PaymentStatus(filter.PaymentStatus)
		if !ps.Valid() {
			return nil, docstore.PageInfo{}, apperr.New(apperr.ErrValidation, "unknown payment status %q", filter.PaymentStatus)
		}
		f.PaymentStatus = &ps
	}
	if filter.Type != "" {
		t := model.OrderType(filter.Type)
		if !t.Valid() {
			return nil, docstore.PageInfo{}, apperr.New(apperr.ErrValidation, "unknown order type %q", filter.Type)
		}
		f.Type = &t
	}

	orders, page, err := s.repos.Orders.FindByFilter(ctx, f)
	if err != nil {
		return nil, docstore.PageInfo{}, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, page, nil
}

// ListReviewItems 分页查询作品
// 管理员可查看全部，普通用户查看自己的作品；查询 published 时对所有人开放
func (s *queryService) ListReviewItems(ctx context.Context, actor Actor, filter *ListReviewItemsFilter) ([]model.ReviewItemModel, docstore.PageInfo, error) {
	sortBy, desc, err := sortOptions(filter.SortBy, filter.Order, reviewSortFields)
	if err != nil {
		return nil, docstore.PageInfo{}, err
	}

	f := &repository.ReviewItemFilter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		SortBy:   sortBy,
		Desc:     desc,
	}
	if filter.ReviewStatus != "" {
		st, err := model.ParseReviewStatus(filter.ReviewStatus)
		if err != nil {
			return nil, docstore.PageInfo{}, apperr.New(apperr.ErrValidation, "%v", err)
		}
		f.ReviewStatus = &st
	}

	switch {
	case actor.IsAdmin():
		if filter.CreatorID != "" {
			f.CreatorID = &filter.CreatorID
		}
	case f.ReviewStatus != nil && *f.ReviewStatus == model.ReviewStatusPublished:
		if filter.CreatorID != "" {
			f.CreatorID = &filter.CreatorID
		}
	default:
		f.CreatorID = &actor.ID
	}

	items, page, err := s.repos.Reviews.FindItems(ctx, f)
	if err != nil {
		return nil, docstore.PageInfo{}, fmt.Errorf("failed to list review items: %w", err)
	}
	return items, page, nil
}

// ReviewLogs 作品审核记录，包含被拒绝的操作
func (s *queryService) ReviewLogs(ctx context.Context, videoID string, actor Actor) ([]model.ReviewLogModel, error) {
	item, err := s.repos.Reviews.FindItem(ctx, videoID)
	if err != nil {
		return nil, storeError(err, "review item "+videoID)
	}
	if !actor.IsAdmin() {
		ok, err := owns(ctx, s.authz, actor, item.CreatorID, ObjectReviewItem, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check ownership: %w", err)
		}
		if !ok {
			return nil, apperr.ErrForbidden
		}
	}
	return s.repos.Reviews.Logs(ctx, videoID)
}
