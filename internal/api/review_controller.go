package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/service"
)

// ReviewController 作品审核控制器
type ReviewController struct {
	reviewService service.ReviewService
	queryService  service.QueryService
}

// NewReviewController 创建作品审核控制器
func NewReviewController(reviewService service.ReviewService, queryService service.QueryService) *ReviewController {
	return &ReviewController{
		reviewService: reviewService,
		queryService:  queryService,
	}
}

// Create 上传作品
// @Summary      上传作品
// @Description  创作者上传原始素材，进入初审
// @Tags         作品审核
// @Accept       json
// @Produce      json
// @Param        request body service.CreateReviewItemRequest true "上传请求"
// @Success      200  {object}  Response{data=model.ReviewItemModel}
// @Failure      400  {object}  ErrorResponse
// @Router       /review-items [post]
// @Security     BearerAuth
func (c *ReviewController) Create(ctx *gin.Context) {
	var req service.CreateReviewItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	item, err := c.reviewService.Create(ctx.Request.Context(), actorFrom(ctx), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, item)
}

// Get 获取作品详情
func (c *ReviewController) Get(ctx *gin.Context) {
	item, err := c.reviewService.Get(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, item)
}

// List 获取作品列表
// @Summary      获取作品列表
// @Description  管理员查看全部作品，创作者查看自己的作品，已上架作品对所有人开放
// @Tags         作品审核
// @Produce      json
// @Param        creator_id query string false "创作者"
// @Param        review_status query string false "审核状态"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Param        sort_by query string false "排序字段" default(created_at)
// @Param        order query string false "排序方向" Enums(asc, desc) default(desc)
// @Success      200  {object}  PaginatedResponse
// @Router       /review-items [get]
// @Security     BearerAuth
func (c *ReviewController) List(ctx *gin.Context) {
	var filter service.ListReviewItemsFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		bindError(ctx, err)
		return
	}

	items, page, err := c.queryService.ListReviewItems(ctx.Request.Context(), actorFrom(ctx), &filter)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Paginated(ctx, items, page)
}

// InitialReview 初审
// @Summary      初审
// @Description  管理员初审通过进入待报价，驳回需填写原因
// @Tags         作品审核
// @Accept       json
// @Produce      json
// @Param        id path string true "作品 ID"
// @Param        request body service.InitialReviewRequest true "初审请求"
// @Success      200  {object}  Response{data=model.ReviewItemModel}
// @Failure      409  {object}  ErrorResponse
// @Router       /review-items/{id}/initial-review [post]
// @Security     BearerAuth
func (c *ReviewController) InitialReview(ctx *gin.Context) {
	var req service.InitialReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	c.respond(ctx, func(rc context.Context, id string, actor service.Actor) (*model.ReviewItemModel, error) {
		return c.reviewService.SubmitInitialReview(rc, id, actor, &req)
	})
}

// Quote 报价
func (c *ReviewController) Quote(ctx *gin.Context) {
	var req service.QuoteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	c.respond(ctx, func(rc context.Context, id string, actor service.Actor) (*model.ReviewItemModel, error) {
		return c.reviewService.SubmitQuote(rc, id, actor, &req)
	})
}

// AcceptQuote 接受报价
func (c *ReviewController) AcceptQuote(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.AcceptQuote)
}

// StartProduction 开始制作
func (c *ReviewController) StartProduction(ctx *gin.Context) {
	var req service.StartProductionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	c.respond(ctx, func(rc context.Context, id string, actor service.Actor) (*model.ReviewItemModel, error) {
		return c.reviewService.StartProduction(rc, id, actor, &req)
	})
}

// Deliver 交付成片
func (c *ReviewController) Deliver(ctx *gin.Context) {
	var req service.DeliverResultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}
	c.respond(ctx, func(rc context.Context, id string, actor service.Actor) (*model.ReviewItemModel, error) {
		return c.reviewService.DeliverResult(rc, id, actor, &req)
	})
}

// RequestModification 申请修改
// @Summary      申请修改
// @Description  创作者对成片提出修改意见，超过次数上限返回 422
// @Tags         作品审核
// @Param        id path string true "作品 ID"
// @Success      200  {object}  Response{data=model.ReviewItemModel}
// @Failure      422  {object}  ErrorResponse
// @Router       /review-items/{id}/request-modification [post]
// @Security     BearerAuth
func (c *ReviewController) RequestModification(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.RequestModification)
}

// ConfirmDelivery 确认成片
func (c *ReviewController) ConfirmDelivery(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.ConfirmDelivery)
}

// Publish 上架
func (c *ReviewController) Publish(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.Publish)
}

// TakeOffline 下架
func (c *ReviewController) TakeOffline(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.TakeOffline)
}

// Republish 重新上架
func (c *ReviewController) Republish(ctx *gin.Context) {
	c.comment(ctx, c.reviewService.Republish)
}

// Logs 审核日志
func (c *ReviewController) Logs(ctx *gin.Context) {
	logs, err := c.queryService.ReviewLogs(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, logs)
}

// AddMessage 留言
func (c *ReviewController) AddMessage(ctx *gin.Context) {
	var req service.MessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	msg, err := c.reviewService.AddMessage(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, msg)
}

// ListMessages 留言列表
func (c *ReviewController) ListMessages(ctx *gin.Context) {
	msgs, page, err := c.reviewService.ListMessages(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx),
		queryInt(ctx, "page", 1), queryInt(ctx, "page_size", 20))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Paginated(ctx, msgs, page)
}

type reviewActionFunc func(ctx context.Context, videoID string, actor service.Actor, req *service.CommentRequest) (*model.ReviewItemModel, error)

// comment 处理只带备注的审核动作，请求体可以为空
func (c *ReviewController) comment(ctx *gin.Context, fn reviewActionFunc) {
	var req service.CommentRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			bindError(ctx, err)
			return
		}
	}
	c.respond(ctx, func(rc context.Context, id string, actor service.Actor) (*model.ReviewItemModel, error) {
		return fn(rc, id, actor, &req)
	})
}

func (c *ReviewController) respond(ctx *gin.Context, fn func(context.Context, string, service.Actor) (*model.ReviewItemModel, error)) {
	item, err := fn(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, item)
}
