package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// 生命周期事件类型
const (
	EventOrderPaid       = "order.paid"
	EventOrderCompleted  = "order.completed"
	EventOrderFailed     = "order.failed"
	EventOrderRefunded   = "order.refunded"
	EventReviewPublished = "review.published"
	EventReviewOffline   = "review.offline"
)

// NewEvent 构造待投递事件，与业务变更在同一事务内写入
func NewEvent(aggregateID, eventType string, data interface{}) (*model.EventModel, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	now := time.Now()
	return &model.EventModel{
		ID:          uuid.New().String(),
		AggregateID: aggregateID,
		Type:        eventType,
		Data:        payload,
		Status:      model.EventStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MessageWriter 消息写入接口，由 kafka.Writer 实现
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建 Kafka 写入器
// 以聚合 ID 作为 key，同一订单/作品的事件落到同一分区
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// EventPublisher 事件发件箱投递器
// 轮询 pending 事件，由 worker 推送到 Kafka，失败按指数退避重试
type EventPublisher struct {
	events       repository.EventRepository
	writer       MessageWriter
	logger       logrus.FieldLogger
	queue        chan model.EventModel
	inflight     sync.Map
	workers      int
	maxRetries   int
	backoff      time.Duration
	pollInterval time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
}

// NewEventPublisher 创建事件投递器
func NewEventPublisher(events repository.EventRepository, writer MessageWriter, logger logrus.FieldLogger, workers int) *EventPublisher {
	if workers <= 0 {
		workers = 1
	}
	return &EventPublisher{
		events:       events,
		writer:       writer,
		logger:       logger.WithField("component", "event_publisher"),
		queue:        make(chan model.EventModel, 1000),
		workers:      workers,
		maxRetries:   3,
		backoff:      time.Second,
		pollInterval: 5 * time.Second,
		stop:         make(chan struct{}),
	}
}

// SetBackoff 设置重试退避起始时间
func (p *EventPublisher) SetBackoff(d time.Duration) {
	p.backoff = d
}

// Start 启动轮询与 worker
func (p *EventPublisher) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			p.enqueuePending(ctx)
			select {
			case <-ticker.C:
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	p.logger.WithField("workers", p.workers).Info("Event publisher started")
}

// Stop 停止投递器并关闭写入器
func (p *EventPublisher) Stop() {
	close(p.stop)
	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.WithError(err).Warn("Failed to close message writer")
	}
	p.logger.Info("Event publisher stopped")
}

// enqueuePending 将 pending 事件放入队列，跳过正在投递的事件
func (p *EventPublisher) enqueuePending(ctx context.Context) {
	events, err := p.events.FindPending(ctx, cap(p.queue))
	if err != nil {
		p.logger.WithError(err).Error("Failed to load pending events")
		return
	}
	for _, evt := range events {
		if _, loaded := p.inflight.LoadOrStore(evt.ID, struct{}{}); loaded {
			continue
		}
		select {
		case p.queue <- evt:
		default:
			p.inflight.Delete(evt.ID)
			p.logger.WithField("event_id", evt.ID).Warn("Event queue full, will retry on next poll")
			return
		}
	}
}

func (p *EventPublisher) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case evt := <-p.queue:
			p.deliver(ctx, &evt)
			p.inflight.Delete(evt.ID)
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending 同步投递一批 pending 事件，返回成功条数
func (p *EventPublisher) PublishPending(ctx context.Context) (int, error) {
	events, err := p.events.FindPending(ctx, 100)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for i := range events {
		if p.deliver(ctx, &events[i]) {
			delivered++
		}
	}
	return delivered, nil
}

// deliver 推送单个事件，重试耗尽后标记为 failed
func (p *EventPublisher) deliver(ctx context.Context, evt *model.EventModel) bool {
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: evt.Data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "event_type", Value: []byte(evt.Type)},
		},
		Time: evt.CreatedAt,
	}

	backoff := p.backoff
	retries := evt.RetryCount
	for i := 0; i < p.maxRetries; i++ {
		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			if err := p.events.MarkResult(ctx, evt.ID, model.EventStatusSuccess, retries); err != nil {
				p.logger.WithError(err).WithField("event_id", evt.ID).Error("Failed to mark event delivered")
			}
			return true
		}

		retries++
		p.logger.WithError(err).WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
			"attempt":    i + 1,
		}).Warn("Failed to publish event")

		if i < p.maxRetries-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false
			}
			backoff *= 2 // 指数退避
		}
	}

	if err := p.events.MarkResult(ctx, evt.ID, model.EventStatusFailed, retries); err != nil {
		p.logger.WithError(err).WithField("event_id", evt.ID).Error("Failed to mark event failed")
	}
	return false
}
