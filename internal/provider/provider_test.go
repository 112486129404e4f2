package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var aiMapping = map[string]string{
	"QUEUED":  "queued",
	"RUNNING": "processing",
	"SUCCESS": "completed",
	"FAILED":  "failed",
}

// TestStatusMapper 测试状态映射
func TestStatusMapper(t *testing.T) {
	m, err := provider.NewStatusMapper(aiMapping)
	require.NoError(t, err)

	s, ok := m.Map("running")
	assert.True(t, ok)
	assert.Equal(t, model.TaskStatusProcessing, s)

	s, ok = m.Map(" Success ")
	assert.True(t, ok)
	assert.Equal(t, model.TaskStatusCompleted, s)

	_, ok = m.Map("paused")
	assert.False(t, ok)

	_, err = provider.NewStatusMapper(map[string]string{"x": "done"})
	assert.Error(t, err)

	_, err = provider.NewStatusMapper(map[string]string{"expired": "timeout"})
	assert.Error(t, err)
}

// TestStatusMapper_Replace 测试映射热更新，非法配置保留原映射
func TestStatusMapper_Replace(t *testing.T) {
	m, err := provider.NewStatusMapper(aiMapping)
	require.NoError(t, err)

	require.NoError(t, m.Replace(map[string]string{"DONE": "completed", "WORKING": "processing"}))
	assert.Equal(t, 2, m.Len())
	s, ok := m.Map("done")
	assert.True(t, ok)
	assert.Equal(t, model.TaskStatusCompleted, s)
	_, ok = m.Map("RUNNING")
	assert.False(t, ok)

	assert.Error(t, m.Replace(map[string]string{"DONE": "finished"}))
	assert.Equal(t, 2, m.Len())
}

func newAIServer(t *testing.T, status string, code int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		assert.Equal(t, "key-001", body["apiKey"])

		switch r.URL.Path {
		case "/task/openapi/create":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "msg": "ok", "data": map[string]string{"taskId": "rh-001"}})
		case "/task/openapi/status":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": status})
		case "/task/openapi/outputs":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": []map[string]string{
				{"fileUrl": "https://cdn.example.com/preview.png", "fileType": "png"},
				{"fileUrl": "https://cdn.example.com/result.mp4", "fileType": "mp4"},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func aiConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:       baseURL,
		APIKey:        "key-001",
		WorkflowID:    "wf-001",
		Timeout:       time.Second,
		StatusMapping: aiMapping,
	}
}

// TestAIClient_SubmitAndStatus 测试 AI 服务提交与查询
func TestAIClient_SubmitAndStatus(t *testing.T) {
	srv := newAIServer(t, "SUCCESS", 0)
	defer srv.Close()

	client, err := provider.NewAIClient(aiConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, model.TaskSourceAI, client.Source())

	order := &model.OrderModel{ID: "o1", OrderNo: "NO1"}
	taskID, err := client.Submit(context.Background(), order, []string{"https://cdn.example.com/face.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "rh-001", taskID)

	st, err := client.Status(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, st.Status)
	assert.Equal(t, "https://cdn.example.com/result.mp4", st.ResultURL)
	assert.Equal(t, 100, st.Progress)
}

// TestAIClient_SubmitRejected 测试提交被拒绝
func TestAIClient_SubmitRejected(t *testing.T) {
	srv := newAIServer(t, "RUNNING", 421)
	defer srv.Close()

	client, err := provider.NewAIClient(aiConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), &model.OrderModel{ID: "o1"}, []string{"https://cdn.example.com/a.mp4"})
	assert.True(t, errors.Is(err, apperr.ErrExternalProviderFailure))

	_, err = client.Submit(context.Background(), &model.OrderModel{ID: "o1"}, nil)
	assert.True(t, errors.Is(err, apperr.ErrExternalProviderFailure))
}

// TestAIClient_UnmappedStatus 测试未知外部状态视为不可用
func TestAIClient_UnmappedStatus(t *testing.T) {
	srv := newAIServer(t, "PAUSED", 0)
	defer srv.Close()

	client, err := provider.NewAIClient(aiConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Status(context.Background(), "rh-001")
	assert.True(t, apperr.IsTransient(err))
}

// TestVODClient_Errors 测试点播服务错误分类
func TestVODClient_Errors(t *testing.T) {
	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer vod-key", r.Header.Get("Authorization"))
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		if r.URL.Path == "/api/v1/jobs/slow" {
			time.Sleep(300 * time.Millisecond)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "processing", "progress": 40})
	}))
	defer srv.Close()

	client, err := provider.NewVODClient(config.ProviderConfig{
		BaseURL:       srv.URL,
		APIKey:        "vod-key",
		Timeout:       100 * time.Millisecond,
		StatusMapping: map[string]string{"processing": "processing", "finish": "completed"},
	})
	require.NoError(t, err)

	status.Store(http.StatusOK)
	st, err := client.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusProcessing, st.Status)
	assert.Equal(t, 40, st.Progress)

	_, err = client.Status(context.Background(), "slow")
	assert.True(t, errors.Is(err, apperr.ErrExternalProviderUnavailable))

	status.Store(http.StatusServiceUnavailable)
	_, err = client.Status(context.Background(), "job-1")
	assert.True(t, errors.Is(err, apperr.ErrExternalProviderUnavailable))

	status.Store(http.StatusBadRequest)
	_, err = client.Status(context.Background(), "job-1")
	assert.True(t, errors.Is(err, apperr.ErrExternalProviderFailure))
}
