package provider

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
)

// VODClient 旧版点播转码服务客户端
type VODClient struct {
	cfg    config.ProviderConfig
	http   *httpClient
	mapper *StatusMapper
}

// NewVODClient 创建点播服务客户端
func NewVODClient(cfg config.ProviderConfig) (*VODClient, error) {
	mapper, err := NewStatusMapper(cfg.StatusMapping)
	if err != nil {
		return nil, err
	}
	return &VODClient{
		cfg:    cfg,
		http:   newHTTPClient(cfg.Timeout),
		mapper: mapper,
	}, nil
}

// UpdateStatusMapping 热更新状态映射
func (c *VODClient) UpdateStatusMapping(mapping map[string]string) error {
	return c.mapper.Replace(mapping)
}

// Source 任务来源
func (c *VODClient) Source() model.TaskSource {
	return model.TaskSourceVOD
}

func (c *VODClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Submit 提交转码任务
func (c *VODClient) Submit(ctx context.Context, order *model.OrderModel, materials []string) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/jobs", c.headers(), map[string]interface{}{
		"reference": order.OrderNo,
		"template":  c.cfg.WorkflowID,
		"video_id":  order.VideoID,
		"inputs":    materials,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", unavailable("submit job returned empty job id")
	}
	return resp.JobID, nil
}

// Status 查询转码任务状态
func (c *VODClient) Status(ctx context.Context, taskID string) (*JobStatus, error) {
	var resp struct {
		Status    string `json:"status"`
		Progress  int    `json:"progress"`
		OutputURL string `json:"output_url"`
		Error     string `json:"error"`
	}
	err := c.http.doJSON(ctx, http.MethodGet, c.cfg.BaseURL+"/api/v1/jobs/"+url.PathEscape(taskID), c.headers(), nil, &resp)
	if err != nil {
		return nil, err
	}

	status, ok := c.mapper.Map(resp.Status)
	if !ok {
		return nil, unavailable("unmapped provider status %q", resp.Status)
	}
	if status == model.TaskStatusCompleted && resp.OutputURL == "" {
		return nil, unavailable("job %s finished without output", taskID)
	}

	return &JobStatus{
		Status:    status,
		Raw:       resp.Status,
		Progress:  resp.Progress,
		ResultURL: resp.OutputURL,
		Error:     resp.Error,
	}, nil
}
