package repository_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepos 创建测试仓储
func setupTestRepos(t *testing.T) *repository.Repositories {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return repository.New(docstore.NewGormStore(db))
}

func seedItem(t *testing.T, repos *repository.Repositories, id string, status model.ReviewStatus) {
	now := time.Now()
	require.NoError(t, repos.Store().Insert(context.Background(), model.CollReviewItems, &model.ReviewItemModel{
		ID:             id,
		CreatorID:      "creator-001",
		Title:          "demo",
		ReviewStatus:   status,
		MaxModifyCount: 2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func reviewLog(id, videoID string) repository.Doc {
	return repository.Doc{Coll: model.CollReviewLogs, Value: &model.ReviewLogModel{
		ID:           id,
		VideoID:      videoID,
		Action:       model.ActionInitialReview,
		OperatorID:   "admin-001",
		OperatorType: model.OperatorAdmin,
		FromStatus:   model.ReviewStatusPendingInitial,
		ToStatus:     model.ReviewStatusPendingQuote,
		Result:       model.LogResultAccepted,
		CreatedAt:    time.Now(),
	}}
}

func transition(videoID string, from, to model.ReviewStatus) repository.Update {
	return repository.Update{
		Coll:   model.CollReviewItems,
		Filter: docstore.Where(docstore.Eq("id", videoID), docstore.Eq("review_status", from)),
		Set:    docstore.Set{"review_status": to, "updated_at": time.Now()},
	}
}

// TestApply_CommitsUpdateAndAudit 测试变更与审计记录一起提交
func TestApply_CommitsUpdateAndAudit(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	seedItem(t, repos, "v1", model.ReviewStatusPendingInitial)

	err := repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{transition("v1", model.ReviewStatusPendingInitial, model.ReviewStatusPendingQuote)},
		Audit:   reviewLog("l1", "v1"),
	})
	require.NoError(t, err)

	item, err := repos.Reviews.FindItem(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusPendingQuote, item.ReviewStatus)

	logs, err := repos.Reviews.Logs(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.ReviewStatusPendingQuote, logs[0].ToStatus)
}

// TestApply_PreconditionFailedRollsBack 测试条件不满足时整体回滚
func TestApply_PreconditionFailedRollsBack(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	seedItem(t, repos, "v1", model.ReviewStatusPendingQuote)
	seedItem(t, repos, "v2", model.ReviewStatusPendingInitial)

	err := repos.Apply(ctx, repository.Change{
		Updates: []repository.Update{
			transition("v2", model.ReviewStatusPendingInitial, model.ReviewStatusPendingQuote),
			transition("v1", model.ReviewStatusPendingInitial, model.ReviewStatusPendingQuote),
		},
		Audit: reviewLog("l1", "v1"),
	})
	assert.True(t, errors.Is(err, repository.ErrPreconditionFailed))

	item, err := repos.Reviews.FindItem(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusPendingInitial, item.ReviewStatus)

	logs, err := repos.Reviews.Logs(ctx, "v1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// TestApply_RequiresAudit 测试缺少审计记录
func TestApply_RequiresAudit(t *testing.T) {
	repos := setupTestRepos(t)
	err := repos.Apply(context.Background(), repository.Change{
		Updates: []repository.Update{transition("v1", model.ReviewStatusPendingInitial, model.ReviewStatusPendingQuote)},
	})
	assert.ErrorIs(t, err, repository.ErrAuditRequired)
}

// TestApply_InvalidAudit 测试审计记录校验失败
func TestApply_InvalidAudit(t *testing.T) {
	repos := setupTestRepos(t)
	err := repos.Apply(context.Background(), repository.Change{
		Audit: repository.Doc{Coll: model.CollReviewLogs, Value: &model.ReviewLogModel{ID: "l1"}},
	})
	assert.Error(t, err)
}

// TestApply_ConcurrentSingleWinner 测试并发变更只有一个成功且只有一条审计
func TestApply_ConcurrentSingleWinner(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	seedItem(t, repos, "v1", model.ReviewStatusPendingInitial)

	var wins, conflicts int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repos.Apply(ctx, repository.Change{
				Updates: []repository.Update{transition("v1", model.ReviewStatusPendingInitial, model.ReviewStatusPendingQuote)},
				Audit:   reviewLog(string(rune('a'+i)), "v1"),
			})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, repository.ErrPreconditionFailed):
				atomic.AddInt32(&conflicts, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(7), conflicts)

	logs, err := repos.Reviews.Logs(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

// TestOrderRepository_FindStuck 测试卡单查询
func TestOrderRepository_FindStuck(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	now := time.Now()
	old := now.Add(-10 * time.Minute)

	orders := []*model.OrderModel{
		{ID: "o1", OrderNo: "NO1", UserID: "u1", Type: model.OrderTypeAIVideo, Status: model.OrderStatusProcessing, PaymentStatus: model.PaymentStatusPaid, PaidAt: &old},
		{ID: "o2", OrderNo: "NO2", UserID: "u1", Type: model.OrderTypeAIVideo, Status: model.OrderStatusProcessing, PaymentStatus: model.PaymentStatusPaid, PaidAt: &now},
		{ID: "o3", OrderNo: "NO3", UserID: "u1", Type: model.OrderTypeAIVideo, Status: model.OrderStatusCompleted, PaymentStatus: model.PaymentStatusPaid, PaidAt: &old},
	}
	for _, o := range orders {
		o.CreatedAt, o.UpdatedAt = now, now
		require.NoError(t, repos.Store().Insert(ctx, model.CollOrders, o))
	}

	stuck, err := repos.Orders.FindStuck(ctx, now.Add(-2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "o1", stuck[0].ID)

	found, err := repos.Orders.FindByOrderNo(ctx, "NO2")
	require.NoError(t, err)
	assert.Equal(t, "o2", found.ID)

	_, err = repos.Orders.FindByID(ctx, "missing")
	assert.True(t, repository.IsNotFound(err))
}

// TestOrderRepository_FindByFilter 测试分页过滤
func TestOrderRepository_FindByFilter(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	base := time.Now()

	for i, uid := range []string{"u1", "u1", "u2"} {
		ts := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repos.Store().Insert(ctx, model.CollOrders, &model.OrderModel{
			ID: string(rune('a' + i)), OrderNo: string(rune('A' + i)), UserID: uid,
			Type: model.OrderTypeVideo, Status: model.OrderStatusPending, PaymentStatus: model.PaymentStatusUnpaid,
			CreatedAt: ts, UpdatedAt: ts,
		}))
	}

	uid := "u1"
	orders, page, err := repos.Orders.FindByFilter(ctx, &repository.OrderFilter{UserID: &uid, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, orders, 2)
	assert.Equal(t, "b", orders[0].ID)

	_, _, err = repos.Orders.FindByFilter(ctx, &repository.OrderFilter{SortBy: "price; drop"})
	assert.Error(t, err)
}

// TestTaskRepository_Active 测试活跃任务查询
func TestTaskRepository_Active(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	now := time.Now()

	tasks := []*model.TaskModel{
		{ID: "t1", OrderID: "o1", UserID: "u1", Source: model.TaskSourceAI, Status: model.TaskStatusQueued, CreatedAt: now.Add(-time.Hour)},
		{ID: "t2", OrderID: "o1", UserID: "u1", Source: model.TaskSourceVOD, Status: model.TaskStatusProcessing, CreatedAt: now},
		{ID: "t3", OrderID: "o2", UserID: "u1", Source: model.TaskSourceAI, Status: model.TaskStatusCompleted, CreatedAt: now.Add(-time.Hour)},
	}
	for _, task := range tasks {
		task.UpdatedAt = task.CreatedAt
		require.NoError(t, repos.Store().Insert(ctx, model.CollTasks, task))
	}

	ai, err := repos.Tasks.FindActiveBySource(ctx, model.TaskSourceAI, 10)
	require.NoError(t, err)
	require.Len(t, ai, 1)
	assert.Equal(t, "t1", ai[0].ID)

	expired, err := repos.Tasks.FindActiveCreatedBefore(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "t1", expired[0].ID)

	active, err := repos.Tasks.CountActiveByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	total, err := repos.Tasks.CountByOrder(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

// TestReviewRepository_Messages 测试留言
func TestReviewRepository_Messages(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Reviews.AddMessage(ctx, &model.ReviewMessageModel{
		VideoID: "v1", SenderID: "u1", SenderType: model.OperatorCustomer, Content: "请把片头缩短",
	}))
	assert.Error(t, repos.Reviews.AddMessage(ctx, &model.ReviewMessageModel{VideoID: "v1", SenderID: "u1"}))

	msgs, page, err := repos.Reviews.Messages(ctx, "v1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, msgs, 1)
	assert.NotEmpty(t, msgs[0].ID)
}

// TestEventRepository_MarkResult 测试事件投递结果
func TestEventRepository_MarkResult(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repos.Store().Insert(ctx, model.CollEvents, &model.EventModel{
		ID: "e1", AggregateID: "o1", Type: "order.paid", Data: []byte(`{}`),
		Status: model.EventStatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	pending, err := repos.Events.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repos.Events.MarkResult(ctx, "e1", model.EventStatusSuccess, 1))

	evt, err := repos.Events.FindByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSuccess, evt.Status)
	assert.Equal(t, 1, evt.RetryCount)

	pending, err = repos.Events.FindPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
