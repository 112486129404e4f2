package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StatusCounter 提供各实体按状态的数量
type StatusCounter interface {
	OrderStatusCounts(ctx context.Context) (map[string]int64, error)
	TaskStatusCounts(ctx context.Context) (map[string]int64, error)
	ReviewStatusCounts(ctx context.Context) (map[string]int64, error)
}

// Collector 指标收集器
type Collector struct {
	db       *gorm.DB // mongo 存储时为 nil
	counter  StatusCounter
	logger   logrus.FieldLogger
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, counter StatusCounter, logger logrus.FieldLogger, interval time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		counter:  counter,
		logger:   logger.WithField("component", "metrics_collector"),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	go c.collect()
}

// Stop 停止指标收集器
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

// collect 定期收集指标
func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce(c.ctx)
		}
	}
}

// CollectOnce 收集一次
func (c *Collector) CollectOnce(ctx context.Context) {
	if c.db != nil {
		_ = UpdateDatabaseConnections(c.db)
	}
	if c.counter == nil {
		return
	}

	orders, err := c.counter.OrderStatusCounts(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to count orders")
		return
	}
	tasks, err := c.counter.TaskStatusCounts(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to count tasks")
		return
	}
	reviews, err := c.counter.ReviewStatusCounts(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to count review items")
		return
	}
	UpdateStatusGauges(orders, tasks, reviews)
}
