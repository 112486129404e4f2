package api

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const defaultServiceName = "videoflow-gin"

var tracerProvider *tracesdk.TracerProvider

// InitTracing 初始化 OpenTelemetry 追踪
// 巡检步骤与 HTTP 请求的 span 都经由 Jaeger 导出
func InitTracing(cfg config.TracingConfig, env string) error {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName(cfg.ServiceName)),
			semconv.DeploymentEnvironmentKey.String(env),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create tracing resource: %w", err)
	}

	// 采样率非法时全量采样
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

// TracingMiddleware 追踪中间件
func TracingMiddleware(name string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName(name))
}

// ShutdownTracing 关闭追踪，导出剩余 span
func ShutdownTracing(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

func serviceName(name string) string {
	if name == "" {
		return defaultServiceName
	}
	return name
}
