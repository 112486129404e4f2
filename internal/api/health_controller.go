package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/redis/go-redis/v9"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
}

// HealthController 健康检查控制器
type HealthController struct {
	store     docstore.Store
	redis     redis.UniversalClient
	fgaClient HealthChecker
}

// NewHealthController 创建健康检查控制器
// redis 与 fgaClient 未启用时传 nil
func NewHealthController(store docstore.Store, rdb redis.UniversalClient, fgaClient HealthChecker) *HealthController {
	return &HealthController{
		store:     store,
		redis:     rdb,
		fgaClient: fgaClient,
	}
}

// Check 健康检查
// @Summary      健康检查
// @Tags         系统
// @Produce      json
// @Success      200
// @Failure      503
// @Router       /health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	// 存储是必需依赖
	if c.store == nil {
		status = "unhealthy"
		checks["store"] = "not configured"
	} else if err := c.store.Ping(reqCtx); err != nil {
		status = "unhealthy"
		checks["store"] = "unhealthy: " + err.Error()
	} else {
		checks["store"] = "healthy"
	}

	// redis 只承载巡检租约，不可用时降级为 degraded
	if c.redis != nil {
		if err := c.redis.Ping(reqCtx).Err(); err != nil {
			if status == "healthy" {
				status = "degraded"
			}
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	if c.fgaClient != nil {
		if c.fgaClient.CheckHealth(reqCtx) {
			checks["openfga"] = "healthy"
		} else {
			status = "unhealthy"
			checks["openfga"] = "unhealthy"
		}
	} else {
		checks["openfga"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
