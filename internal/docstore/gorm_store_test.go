package docstore_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestStore 创建测试存储
func setupTestStore(t *testing.T) *docstore.GormStore {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	// 内存库每个连接独立，固定单连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return docstore.NewGormStore(db)
}

func newTask(id string, status model.TaskStatus, createdAt time.Time) *model.TaskModel {
	return &model.TaskModel{
		ID:        id,
		OrderID:   "order-" + id,
		UserID:    "user-001",
		Source:    model.TaskSourceAI,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// TestGormStore_InsertAndFind 测试插入与查询
func TestGormStore_InsertAndFind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, model.CollTasks, newTask("t1", model.TaskStatusQueued, now.Add(-time.Hour))))
	require.NoError(t, store.Insert(ctx, model.CollTasks, newTask("t2", model.TaskStatusProcessing, now)))
	require.NoError(t, store.Insert(ctx, model.CollTasks, newTask("t3", model.TaskStatusCompleted, now)))

	var found model.TaskModel
	require.NoError(t, docstore.FindByID(ctx, store, model.CollTasks, "t2", &found))
	assert.Equal(t, model.TaskStatusProcessing, found.Status)

	var active []model.TaskModel
	err := store.Find(ctx, model.CollTasks, docstore.Query{
		Filter: docstore.Where(docstore.In("status", model.ActiveTaskStatuses)),
		Sort:   []docstore.Sort{{Field: "created_at"}},
	}, &active)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "t1", active[0].ID)

	count, err := store.Count(ctx, model.CollTasks, docstore.Where(docstore.Lt("created_at", now.Add(-time.Minute))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

// TestGormStore_FindOne_NotFound 测试文档不存在
func TestGormStore_FindOne_NotFound(t *testing.T) {
	store := setupTestStore(t)

	var found model.TaskModel
	err := docstore.FindByID(context.Background(), store, model.CollTasks, "missing", &found)
	assert.True(t, errors.Is(err, docstore.ErrNotFound))
}

// TestGormStore_UpdateWhere_CompareAndSwap 测试条件更新
func TestGormStore_UpdateWhere_CompareAndSwap(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, model.CollTasks, newTask("t1", model.TaskStatusQueued, time.Now())))

	cas := docstore.Where(docstore.Eq("id", "t1"), docstore.Eq("status", model.TaskStatusQueued))

	n, err := store.UpdateWhere(ctx, model.CollTasks, cas, docstore.Set{"status": model.TaskStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 状态已变化，第二次不再命中
	n, err = store.UpdateWhere(ctx, model.CollTasks, cas, docstore.Set{"status": model.TaskStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	var found model.TaskModel
	require.NoError(t, docstore.FindByID(ctx, store, model.CollTasks, "t1", &found))
	assert.Equal(t, model.TaskStatusProcessing, found.Status)
}

// TestGormStore_UpdateWhere_Concurrent 测试并发条件更新只有一个成功
func TestGormStore_UpdateWhere_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, model.CollTasks, newTask("t1", model.TaskStatusQueued, time.Now())))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.UpdateWhere(ctx, model.CollTasks,
				docstore.Where(docstore.Eq("id", "t1"), docstore.Eq("status", model.TaskStatusQueued)),
				docstore.Set{"status": model.TaskStatusProcessing})
			if err == nil && n == 1 {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

// TestGormStore_UpdateWhere_RejectsUnsafeInput 测试拒绝非法字段与无条件更新
func TestGormStore_UpdateWhere_RejectsUnsafeInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpdateWhere(ctx, model.CollTasks, nil, docstore.Set{"status": "failed"})
	assert.Error(t, err)

	_, err = store.UpdateWhere(ctx, model.CollTasks,
		docstore.Where(docstore.Eq("id; DROP TABLE tasks", "x")), docstore.Set{"status": "failed"})
	assert.Error(t, err)

	_, err = store.UpdateWhere(ctx, model.CollTasks,
		docstore.Where(docstore.Eq("id", "x")), docstore.Set{"Status": "failed"})
	assert.Error(t, err)
}

// TestGormStore_RunInTx_Rollback 测试事务回滚
func TestGormStore_RunInTx_Rollback(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		if err := tx.Insert(ctx, model.CollTasks, newTask("t1", model.TaskStatusQueued, time.Now())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := store.Count(ctx, model.CollTasks, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// TestPaginate 测试分页
func TestPaginate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		require.NoError(t, store.Insert(ctx, model.CollTasks, newTask(id, model.TaskStatusQueued, base.Add(time.Duration(i)*time.Second))))
	}

	var page []model.TaskModel
	info, err := docstore.Paginate(ctx, store, model.CollTasks, docstore.Query{
		Sort: []docstore.Sort{{Field: "created_at", Desc: true}},
	}, 2, 2, &page)
	require.NoError(t, err)

	assert.Equal(t, int64(5), info.Total)
	assert.Equal(t, 3, info.TotalPage)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
}
