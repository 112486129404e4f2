package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/service"
)

// AdminController 运营管理控制器
type AdminController struct {
	scheduler  *service.SweepScheduler
	statistics service.StatisticsService
}

// NewAdminController 创建运营管理控制器
func NewAdminController(scheduler *service.SweepScheduler, statistics service.StatisticsService) *AdminController {
	return &AdminController{
		scheduler:  scheduler,
		statistics: statistics,
	}
}

// TriggerSweep 手动触发一次对账巡检
// @Summary      触发对账巡检
// @Tags         运营管理
// @Produce      json
// @Success      200  {object}  Response{data=service.SweepSummary}
// @Failure      403  {object}  ErrorResponse
// @Router       /admin/sweep [post]
// @Security     BearerAuth
func (c *AdminController) TriggerSweep(ctx *gin.Context) {
	summary, err := c.scheduler.Trigger(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, summary)
}

// LastSweep 最近一次巡检结果
func (c *AdminController) LastSweep(ctx *gin.Context) {
	summary := c.scheduler.LastSummary()
	if summary == nil {
		Error(ctx, http.StatusNotFound, apperr.ErrNotFound.Code, "no sweep has run yet", "")
		return
	}
	Success(ctx, summary)
}

// Overview 运营概览
func (c *AdminController) Overview(ctx *gin.Context) {
	overview, err := c.statistics.Overview(ctx.Request.Context())
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, overview)
}

// RequireAdmin 仅允许管理员访问
func RequireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !actorFrom(ctx).IsAdmin() {
			HandleError(ctx, apperr.ErrForbidden)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
