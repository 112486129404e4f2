package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/model"
)

// JobStatus 外部任务状态快照
type JobStatus struct {
	Status    model.TaskStatus
	Raw       string // 外部系统原始状态
	Progress  int
	ResultURL string
	Error     string
}

// JobProvider 外部视频处理服务
type JobProvider interface {
	// Source 服务对应的任务来源
	Source() model.TaskSource
	// Submit 提交处理任务，返回外部任务 ID
	Submit(ctx context.Context, order *model.OrderModel, materials []string) (string, error)
	// Status 查询任务状态
	Status(ctx context.Context, taskID string) (*JobStatus, error)
}

// MappingUpdater 支持热更新状态映射的服务
type MappingUpdater interface {
	UpdateStatusMapping(mapping map[string]string) error
}

// StatusMapper 外部状态到内部任务状态的映射，可热更新
type StatusMapper struct {
	mu      sync.RWMutex
	mapping map[string]model.TaskStatus
}

// NewStatusMapper 创建状态映射，目标状态必须是合法的任务状态
func NewStatusMapper(mapping map[string]string) (*StatusMapper, error) {
	m, err := parseMapping(mapping)
	if err != nil {
		return nil, err
	}
	return &StatusMapper{mapping: m}, nil
}

// Replace 替换映射，校验失败时保留原映射
func (m *StatusMapper) Replace(mapping map[string]string) error {
	parsed, err := parseMapping(mapping)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.mapping = parsed
	m.mu.Unlock()
	return nil
}

func parseMapping(mapping map[string]string) (map[string]model.TaskStatus, error) {
	m := make(map[string]model.TaskStatus, len(mapping))
	for raw, target := range mapping {
		status, err := model.ParseTaskStatus(strings.ToLower(target))
		if err != nil {
			return nil, fmt.Errorf("status mapping %q: %w", raw, err)
		}
		// timeout 只能由本地超时检测产生
		if status == model.TaskStatusTimeout {
			return nil, fmt.Errorf("status mapping %q: timeout cannot be mapped from provider state", raw)
		}
		m[strings.ToLower(strings.TrimSpace(raw))] = status
	}
	return m, nil
}

// Map 映射外部状态，大小写不敏感
func (m *StatusMapper) Map(raw string) (model.TaskStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.mapping[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// Len 映射条目数
func (m *StatusMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mapping)
}

// unavailable 包装为暂时不可用
func unavailable(format string, args ...interface{}) error {
	return apperr.New(apperr.ErrExternalProviderUnavailable, format, args...)
}

// failure 包装为外部明确失败
func failure(format string, args ...interface{}) error {
	return apperr.New(apperr.ErrExternalProviderFailure, format, args...)
}

// classifyTransport 网络错误与超时视为不可用
func classifyTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.ErrExternalProviderUnavailable, fmt.Errorf("request timed out: %w", err))
	}
	return apperr.Wrap(apperr.ErrExternalProviderUnavailable, err)
}
