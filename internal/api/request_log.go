package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/videoflow-gin/internal/logger"
	"github.com/mautops/videoflow-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// GetLogger 获取 API 层日志记录器
func GetLogger() *logrus.Logger {
	return logger.Get()
}

// RequestIDMiddleware 请求 ID 中间件
// 沿用调用方传入的 X-Request-ID,没有则生成
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

func requestFields(c *gin.Context) logrus.Fields {
	return logrus.Fields{
		"request_id": c.GetString("request_id"),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	}
}

// RequestLogMiddleware 请求日志中间件
func RequestLogMiddleware() gin.HandlerFunc {
	log := GetLogger()

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 使用路由模板作为指标标签，避免 ID 造成高基数
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, route, status, latency.Seconds())

		entry := log.WithFields(requestFields(c)).WithFields(logrus.Fields{
			"status":  status,
			"latency": latency.String(),
			"ip":      c.ClientIP(),
		})
		if userID := c.GetString("user_id"); userID != "" {
			entry = entry.WithField("user_id", userID)
		}

		// 根据状态码选择日志级别
		if status >= 500 {
			entry.Error("API request")
		} else if status >= 400 {
			entry.Warn("API request")
		} else {
			entry.Info("API request")
		}
	}
}
