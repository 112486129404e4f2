package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 支付回调处理结果
	paymentCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Total number of payment callbacks by outcome",
		},
		[]string{"provider", "outcome"}, // confirmed, duplicate, orphaned, invalid, rejected, ignored
	)

	// 审核操作
	reviewTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_transitions_total",
			Help: "Total number of review workflow actions by result",
		},
		[]string{"action", "result"},
	)

	// 任务提交
	tasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_dispatched_total",
			Help: "Total number of processing task submissions",
		},
		[]string{"source", "result"},
	)

	// 巡检步骤处理记录数
	sweepRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_records_total",
			Help: "Records handled by reconciliation sweep steps",
		},
		[]string{"step", "outcome"},
	)

	// 巡检步骤耗时
	sweepStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_step_duration_seconds",
			Help:    "Reconciliation sweep step duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"step"},
	)

	// 巡检运行次数
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of reconciliation sweep runs",
		},
		[]string{"result"}, // completed, skipped, error
	)

	// 事件投递
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of lifecycle events published",
		},
		[]string{"type", "result"},
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 状态分布
	ordersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orders_by_status",
			Help: "Number of orders by status",
		},
		[]string{"status"},
	)

	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_by_status",
			Help: "Number of processing tasks by status",
		},
		[]string{"status"},
	)

	reviewItemsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "review_items_by_status",
			Help: "Number of review items by review status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(paymentCallbacksTotal)
	prometheus.MustRegister(reviewTransitionsTotal)
	prometheus.MustRegister(tasksDispatchedTotal)
	prometheus.MustRegister(sweepRecordsTotal)
	prometheus.MustRegister(sweepStepDuration)
	prometheus.MustRegister(sweepRunsTotal)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(ordersByStatus)
	prometheus.MustRegister(tasksByStatus)
	prometheus.MustRegister(reviewItemsByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordPaymentCallback 记录支付回调结果
func RecordPaymentCallback(provider, outcome string) {
	paymentCallbacksTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordReviewTransition 记录审核操作
func RecordReviewTransition(action, result string) {
	reviewTransitionsTotal.WithLabelValues(action, result).Inc()
}

// RecordTaskDispatched 记录任务提交
func RecordTaskDispatched(source, result string) {
	tasksDispatchedTotal.WithLabelValues(source, result).Inc()
}

// RecordSweepStep 记录巡检步骤结果
func RecordSweepStep(step string, seconds float64, outcomes map[string]int) {
	sweepStepDuration.WithLabelValues(step).Observe(seconds)
	for outcome, n := range outcomes {
		if n > 0 {
			sweepRecordsTotal.WithLabelValues(step, outcome).Add(float64(n))
		}
	}
}

// RecordSweepRun 记录巡检运行
func RecordSweepRun(result string) {
	sweepRunsTotal.WithLabelValues(result).Inc()
}

// RecordEventPublished 记录事件投递
func RecordEventPublished(eventType, result string) {
	eventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateStatusGauges 更新状态分布指标
func UpdateStatusGauges(orders, tasks, reviews map[string]int64) {
	for s, n := range orders {
		ordersByStatus.WithLabelValues(s).Set(float64(n))
	}
	for s, n := range tasks {
		tasksByStatus.WithLabelValues(s).Set(float64(n))
	}
	for s, n := range reviews {
		reviewItemsByStatus.WithLabelValues(s).Set(float64(n))
	}
}
