package service

import (
	"context"
	"sync"
	"time"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/sirupsen/logrus"
)

// SweepRunner 可被定时触发的巡检
type SweepRunner interface {
	Run(ctx context.Context) (*SweepSummary, error)
}

// SweepScheduler 巡检调度器
type SweepScheduler struct {
	runner   SweepRunner
	logger   logrus.FieldLogger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.RWMutex
	interval time.Duration
	enabled  bool
	reset    chan struct{}
	last     *SweepSummary
}

// NewSweepScheduler 创建巡检调度器
func NewSweepScheduler(runner SweepRunner, cfg config.SweepConfig, logger logrus.FieldLogger) *SweepScheduler {
	s := &SweepScheduler{
		runner:   runner,
		logger:   logger.WithField("component", "sweep_scheduler"),
		stopChan: make(chan struct{}),
		reset:    make(chan struct{}, 1),
	}
	s.UpdateSettings(cfg)
	return s
}

// UpdateSettings 热更新调度间隔与开关
func (s *SweepScheduler) UpdateSettings(cfg config.SweepConfig) {
	s.mu.Lock()
	changed := s.interval != cfg.Interval
	s.interval = cfg.Interval
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	s.enabled = cfg.Enabled
	s.mu.Unlock()

	if changed {
		select {
		case s.reset <- struct{}{}:
		default:
		}
	}
}

func (s *SweepScheduler) settings() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval, s.enabled
}

// Start 启动调度器
func (s *SweepScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop 停止调度器并等待当前巡检结束
func (s *SweepScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// LastSummary 最近一次巡检结果
func (s *SweepScheduler) LastSummary() *SweepSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *SweepScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	interval, _ := s.settings()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.reset:
			interval, _ = s.settings()
			ticker.Reset(interval)
			s.logger.WithField("interval", interval.String()).Info("Sweep interval updated")
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runOnce 执行一次巡检，panic 不会终止调度
func (s *SweepScheduler) runOnce(ctx context.Context) {
	if _, enabled := s.settings(); !enabled {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Recovered from panic in sweep")
		}
	}()

	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Sweep run returned error")
	}
	if summary != nil {
		s.mu.Lock()
		s.last = summary
		s.mu.Unlock()
	}
}

// Trigger 立即执行一次巡检，不受开关影响
func (s *SweepScheduler) Trigger(ctx context.Context) (*SweepSummary, error) {
	summary, err := s.runner.Run(ctx)
	if summary != nil {
		s.mu.Lock()
		s.last = summary
		s.mu.Unlock()
	}
	return summary, err
}
