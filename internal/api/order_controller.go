package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/model"
	"github.com/mautops/videoflow-gin/internal/service"
)

// OrderController 订单控制器
type OrderController struct {
	orderService service.OrderService
	queryService service.QueryService
}

// NewOrderController 创建订单控制器
func NewOrderController(orderService service.OrderService, queryService service.QueryService) *OrderController {
	return &OrderController{
		orderService: orderService,
		queryService: queryService,
	}
}

// Checkout 下单
// @Summary      下单
// @Description  购买已上架作品，返回订单与拉起支付所需参数
// @Tags         订单
// @Accept       json
// @Produce      json
// @Param        request body service.CheckoutRequest true "下单请求"
// @Success      200  {object}  Response{data=service.CheckoutResult}
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /orders [post]
// @Security     BearerAuth
func (c *OrderController) Checkout(ctx *gin.Context) {
	var req service.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	result, err := c.orderService.Checkout(ctx.Request.Context(), actorFrom(ctx), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// List 获取订单列表
// @Summary      获取订单列表
// @Tags         订单
// @Produce      json
// @Param        status query string false "订单状态"
// @Param        payment_status query string false "支付状态"
// @Param        type query string false "订单类型"
// @Param        user_id query string false "购买者(仅管理员)"
// @Param        page query int false "页码" default(1)
// @Param        page_size query int false "每页数量" default(20)
// @Success      200  {object}  PaginatedResponse
// @Router       /orders [get]
// @Security     BearerAuth
func (c *OrderController) List(ctx *gin.Context) {
	var filter service.ListOrdersFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		bindError(ctx, err)
		return
	}

	orders, page, err := c.queryService.ListOrders(ctx.Request.Context(), actorFrom(ctx), &filter)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Paginated(ctx, orders, page)
}

// Get 获取订单详情
func (c *OrderController) Get(ctx *gin.Context) {
	order, err := c.orderService.Get(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, order)
}

// Pay 重新获取支付参数
func (c *OrderController) Pay(ctx *gin.Context) {
	result, err := c.orderService.Pay(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Cancel 取消未支付订单
func (c *OrderController) Cancel(ctx *gin.Context) {
	c.comment(ctx, c.orderService.Cancel)
}

// RequestRefund 申请退款
func (c *OrderController) RequestRefund(ctx *gin.Context) {
	c.comment(ctx, c.orderService.RequestRefund)
}

// RejectRefund 驳回退款
func (c *OrderController) RejectRefund(ctx *gin.Context) {
	c.comment(ctx, c.orderService.RejectRefund)
}

// CompleteRefund 完成退款
func (c *OrderController) CompleteRefund(ctx *gin.Context) {
	c.comment(ctx, c.orderService.CompleteRefund)
}

// Logs 订单审计日志
func (c *OrderController) Logs(ctx *gin.Context) {
	logs, err := c.orderService.Logs(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, logs)
}

// Tasks 订单的处理任务
func (c *OrderController) Tasks(ctx *gin.Context) {
	tasks, err := c.orderService.Tasks(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, tasks)
}

func (c *OrderController) comment(ctx *gin.Context, fn func(context.Context, string, service.Actor, *service.CommentRequest) (*model.OrderModel, error)) {
	var req service.CommentRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			bindError(ctx, err)
			return
		}
	}

	order, err := fn(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, order)
}
