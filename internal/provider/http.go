package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient 外部服务 JSON 调用
type httpClient struct {
	client  *http.Client
	timeout time.Duration
}

func newHTTPClient(timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// doJSON 发送请求并解析 JSON 响应
// 超时、网络错误、5xx、429 返回不可用；其他 4xx 返回失败
func (c *httpClient) doJSON(ctx context.Context, method, url string, headers map[string]string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return classifyTransport(err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return unavailable("%s %s returned %d", method, url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return failure("%s %s returned %d: %s", method, url, resp.StatusCode, truncate(string(data), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return unavailable("invalid response from %s: %v", url, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
