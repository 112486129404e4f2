package integration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeWriter 记录写入的消息，可模拟前 n 次失败
type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failures int
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

func setupRepos(t *testing.T) *repository.Repositories {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return repository.New(docstore.NewGormStore(db))
}

func insertEvent(t *testing.T, repos *repository.Repositories, aggregateID, eventType string) *model.EventModel {
	evt, err := integration.NewEvent(aggregateID, eventType, map[string]string{"order_id": aggregateID})
	require.NoError(t, err)
	require.NoError(t, repos.Store().Insert(context.Background(), model.CollEvents, evt))
	return evt
}

// TestEventPublisher_PublishPending 测试同步投递
func TestEventPublisher_PublishPending(t *testing.T) {
	repos := setupRepos(t)
	log, _ := test.NewNullLogger()
	writer := &fakeWriter{}
	pub := integration.NewEventPublisher(repos.Events, writer, log, 1)

	evt := insertEvent(t, repos, "o1", integration.EventOrderCompleted)

	n, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, writer.count())
	assert.Equal(t, "o1", string(writer.messages[0].Key))

	stored, err := repos.Events.FindByID(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSuccess, stored.Status)
}

// TestEventPublisher_RetryThenFail 测试重试耗尽后标记失败
func TestEventPublisher_RetryThenFail(t *testing.T) {
	repos := setupRepos(t)
	log, hook := test.NewNullLogger()
	writer := &fakeWriter{failures: 10}
	pub := integration.NewEventPublisher(repos.Events, writer, log, 1)
	pub.SetBackoff(time.Millisecond)

	evt := insertEvent(t, repos, "o2", integration.EventOrderFailed)

	n, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := repos.Events.FindByID(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Len(t, hook.AllEntries(), 3)
}

// TestEventPublisher_RetryThenSucceed 测试重试后成功
func TestEventPublisher_RetryThenSucceed(t *testing.T) {
	repos := setupRepos(t)
	log, _ := test.NewNullLogger()
	writer := &fakeWriter{failures: 1}
	pub := integration.NewEventPublisher(repos.Events, writer, log, 1)
	pub.SetBackoff(time.Millisecond)

	evt := insertEvent(t, repos, "v1", integration.EventReviewPublished)

	n, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repos.Events.FindByID(context.Background(), evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSuccess, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

// TestEventPublisher_StartStop 测试后台投递
func TestEventPublisher_StartStop(t *testing.T) {
	repos := setupRepos(t)
	log, _ := test.NewNullLogger()
	writer := &fakeWriter{}
	pub := integration.NewEventPublisher(repos.Events, writer, log, 2)

	insertEvent(t, repos, "o3", integration.EventOrderPaid)

	pub.Start(context.Background())
	assert.Eventually(t, func() bool { return writer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	pub.Stop()
	assert.True(t, writer.closed)
}
