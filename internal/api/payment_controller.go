package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/service"
	"github.com/sirupsen/logrus"
)

// 回调请求体上限
const maxCallbackBody = 1 << 20

// PaymentController 支付回调控制器
type PaymentController struct {
	paymentService service.PaymentService
}

// NewPaymentController 创建支付回调控制器
func NewPaymentController(paymentService service.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// Callback 支付渠道异步通知
// 响应体按渠道要求的格式返回，不使用统一响应结构
// @Summary      支付回调
// @Tags         支付
// @Param        provider path string true "支付渠道" Enums(wechat, alipay)
// @Success      200
// @Router       /payments/callback/{provider} [post]
func (c *PaymentController) Callback(ctx *gin.Context) {
	name := ctx.Param("provider")

	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxCallbackBody))
	if err != nil {
		Error(ctx, http.StatusBadRequest, apperr.ErrInvalidCallback.Code, "failed to read callback body", err.Error())
		return
	}

	req := &provider.CallbackRequest{
		Headers: ctx.Request.Header.Clone(),
		Body:    body,
		Form:    parseForm(ctx, body),
	}

	ack, err := c.paymentService.HandleCallback(ctx.Request.Context(), name, req)
	if err != nil {
		entry := GetLogger().WithFields(requestFields(ctx)).WithFields(logrus.Fields{
			"provider": name,
			"code":     apperr.CodeOf(err),
		}).WithError(err)
		if errors.Is(err, apperr.ErrOrphanedCallback) || apperr.HTTPStatus(err) < http.StatusInternalServerError {
			entry.Warn("Payment callback not applied")
		} else {
			entry.Error("Payment callback failed")
		}
	}

	status := ack.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := ack.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	ctx.Data(status, contentType, ack.Body)
}

// parseForm 解析表单格式的通知(支付宝)
func parseForm(ctx *gin.Context, body []byte) url.Values {
	if ctx.ContentType() != "application/x-www-form-urlencoded" {
		return nil
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil
	}
	return form
}
