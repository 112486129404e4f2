package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
)

// AIClient AI 视频处理服务客户端 (工作流式 OpenAPI)
type AIClient struct {
	cfg    config.ProviderConfig
	http   *httpClient
	mapper *StatusMapper
}

// NewAIClient 创建 AI 服务客户端
func NewAIClient(cfg config.ProviderConfig) (*AIClient, error) {
	mapper, err := NewStatusMapper(cfg.StatusMapping)
	if err != nil {
		return nil, err
	}
	return &AIClient{
		cfg:    cfg,
		http:   newHTTPClient(cfg.Timeout),
		mapper: mapper,
	}, nil
}

type aiEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type aiNodeInfo struct {
	NodeID     string `json:"nodeId"`
	FieldName  string `json:"fieldName"`
	FieldValue string `json:"fieldValue"`
}

// UpdateStatusMapping 热更新状态映射
func (c *AIClient) UpdateStatusMapping(mapping map[string]string) error {
	return c.mapper.Replace(mapping)
}

// Source 任务来源
func (c *AIClient) Source() model.TaskSource {
	return model.TaskSourceAI
}

// Submit 创建工作流任务
func (c *AIClient) Submit(ctx context.Context, order *model.OrderModel, materials []string) (string, error) {
	if len(materials) == 0 {
		return "", failure("order %s has no materials", order.ID)
	}

	nodes := make([]aiNodeInfo, 0, len(materials))
	for i, url := range materials {
		nodes = append(nodes, aiNodeInfo{
			NodeID:     fmt.Sprintf("input_%d", i+1),
			FieldName:  materialField(url),
			FieldValue: url,
		})
	}

	var resp struct {
		aiEnvelope
		Data struct {
			TaskID string `json:"taskId"`
		} `json:"data"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/task/openapi/create", nil, map[string]interface{}{
		"apiKey":       c.cfg.APIKey,
		"workflowId":   c.cfg.WorkflowID,
		"nodeInfoList": nodes,
		"webhookUrl":   "",
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", failure("create task rejected: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data.TaskID == "" {
		return "", unavailable("create task returned empty task id")
	}
	return resp.Data.TaskID, nil
}

// Status 查询任务状态，完成时读取输出地址
func (c *AIClient) Status(ctx context.Context, taskID string) (*JobStatus, error) {
	var resp struct {
		aiEnvelope
		Data string `json:"data"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/task/openapi/status", nil, map[string]string{
		"apiKey": c.cfg.APIKey,
		"taskId": taskID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, unavailable("query status: code=%d msg=%s", resp.Code, resp.Msg)
	}

	status, ok := c.mapper.Map(resp.Data)
	if !ok {
		return nil, unavailable("unmapped provider status %q", resp.Data)
	}

	js := &JobStatus{Status: status, Raw: resp.Data}
	switch status {
	case model.TaskStatusCompleted:
		url, err := c.output(ctx, taskID)
		if err != nil {
			return nil, err
		}
		js.Progress = 100
		js.ResultURL = url
	case model.TaskStatusProcessing:
		js.Progress = 50
	case model.TaskStatusFailed:
		js.Error = fmt.Sprintf("provider reported %s", resp.Data)
	}
	return js, nil
}

// output 读取任务输出文件地址
func (c *AIClient) output(ctx context.Context, taskID string) (string, error) {
	var resp struct {
		aiEnvelope
		Data []struct {
			FileURL  string `json:"fileUrl"`
			FileType string `json:"fileType"`
		} `json:"data"`
	}
	err := c.http.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/task/openapi/outputs", nil, map[string]string{
		"apiKey": c.cfg.APIKey,
		"taskId": taskID,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 || len(resp.Data) == 0 {
		return "", unavailable("task %s outputs not ready", taskID)
	}
	for _, o := range resp.Data {
		if strings.EqualFold(o.FileType, "mp4") {
			return o.FileURL, nil
		}
	}
	return resp.Data[0].FileURL, nil
}

func materialField(url string) string {
	lower := strings.ToLower(url)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return "image"
		}
	}
	return "video"
}
