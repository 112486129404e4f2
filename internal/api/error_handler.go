package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/apperr"
)

// ErrorHandlerMiddleware 错误处理中间件
// 处理器通过 c.Error 上报而未写响应的错误在此统一输出
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		HandleError(c, c.Errors.Last().Err)
	}
}

// HandleError 将业务错误转换为错误响应
func HandleError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		Error(c, appErr.Status, appErr.Code, appErr.Message, detailOf(appErr))
		return
	}

	// 非业务错误不向调用方暴露内部细节
	GetLogger().WithFields(requestFields(c)).WithError(err).Error("Unhandled error")
	Error(c, http.StatusInternalServerError, apperr.CodeOf(err), "internal server error", "")
}

func detailOf(err *apperr.Error) string {
	if cause := errors.Unwrap(err); cause != nil {
		return cause.Error()
	}
	return ""
}

// bindError 请求参数错误
func bindError(c *gin.Context, err error) {
	Error(c, http.StatusBadRequest, apperr.ErrValidation.Code, "invalid request body", err.Error())
}
