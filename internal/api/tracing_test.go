package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/api"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func initTestTracing(t *testing.T, cfg config.TracingConfig) {
	t.Helper()
	prev := otel.GetTracerProvider()
	require.NoError(t, api.InitTracing(cfg, "test"))
	t.Cleanup(func() {
		assert.NoError(t, api.ShutdownTracing(context.Background()))
		otel.SetTracerProvider(prev)
	})
}

// TestInitTracing_UsesConfig 测试追踪按配置初始化，非法采样率全量采样
func TestInitTracing_UsesConfig(t *testing.T) {
	initTestTracing(t, config.TracingConfig{
		Enabled:        true,
		JaegerEndpoint: "http://127.0.0.1:1/api/traces",
		SampleRatio:    0,
	})

	_, ok := otel.GetTracerProvider().(*tracesdk.TracerProvider)
	require.True(t, ok)

	_, span := otel.Tracer("test").Start(context.Background(), "root")
	assert.True(t, span.SpanContext().IsSampled())
}

// TestInitTracing_ParentBasedSampler 测试低采样率下仍跟随上游采样决定
func TestInitTracing_ParentBasedSampler(t *testing.T) {
	initTestTracing(t, config.TracingConfig{
		Enabled:        true,
		ServiceName:    "videoflow-test",
		JaegerEndpoint: "http://127.0.0.1:1/api/traces",
		SampleRatio:    1e-12,
	})
	tracer := otel.Tracer("test")

	_, root := tracer.Start(context.Background(), "root")
	assert.False(t, root.SpanContext().IsSampled())

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	_, child := tracer.Start(trace.ContextWithRemoteSpanContext(context.Background(), parent), "child")
	assert.True(t, child.SpanContext().IsSampled())
	assert.Equal(t, parent.TraceID(), child.SpanContext().TraceID())
}

// TestTracingMiddleware 测试追踪中间件透传请求
func TestTracingMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(api.TracingMiddleware(""))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}
