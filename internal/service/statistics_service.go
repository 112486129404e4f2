package service

import (
	"context"
	"fmt"

	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
)

// StatisticsService 统计服务接口
// 同时为指标收集器提供按状态计数
type StatisticsService interface {
	Overview(ctx context.Context) (*Overview, error)
	OrderStatusCounts(ctx context.Context) (map[string]int64, error)
	TaskStatusCounts(ctx context.Context) (map[string]int64, error)
	ReviewStatusCounts(ctx context.Context) (map[string]int64, error)
}

// Overview 运营概览
type Overview struct {
	Orders      map[string]int64 `json:"orders"`
	Tasks       map[string]int64 `json:"tasks"`
	ReviewItems map[string]int64 `json:"review_items"`
	PendingWork int64            `json:"pending_work"` // 等待管理员处理的作品数
}

// 需要管理员处理的审核状态
var adminQueueStatuses = []model.ReviewStatus{
	model.ReviewStatusPendingInitial,
	model.ReviewStatusPendingQuote,
	model.ReviewStatusModifying,
	model.ReviewStatusPendingFinal,
}

// statisticsService 统计服务实现
type statisticsService struct {
	repos *repository.Repositories
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(repos *repository.Repositories) StatisticsService {
	return &statisticsService{repos: repos}
}

// Overview 各实体按状态统计
func (s *statisticsService) Overview(ctx context.Context) (*Overview, error) {
	orders, err := s.OrderStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.TaskStatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	reviews, err := s.ReviewStatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	var pending int64
	for _, st := range adminQueueStatuses {
		pending += reviews[string(st)]
	}

	return &Overview{
		Orders:      orders,
		Tasks:       tasks,
		ReviewItems: reviews,
		PendingWork: pending,
	}, nil
}

// OrderStatusCounts 按状态统计订单
func (s *statisticsService) OrderStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(model.AllOrderStatuses))
	for _, st := range model.AllOrderStatuses {
		n, err := s.repos.Orders.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s orders: %w", st, err)
		}
		counts[string(st)] = n
	}
	return counts, nil
}

// TaskStatusCounts 按状态统计任务
func (s *statisticsService) TaskStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(model.AllTaskStatuses))
	for _, st := range model.AllTaskStatuses {
		n, err := s.repos.Tasks.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s tasks: %w", st, err)
		}
		counts[string(st)] = n
	}
	return counts, nil
}

// ReviewStatusCounts 按状态统计作品
func (s *statisticsService) ReviewStatusCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(model.AllReviewStatuses))
	for _, st := range model.AllReviewStatuses {
		n, err := s.repos.Reviews.CountByStatus(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s review items: %w", st, err)
		}
		counts[string(st)] = n
	}
	return counts, nil
}
