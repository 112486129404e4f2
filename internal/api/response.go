package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/docstore"
)

// Response 统一响应格式
// @Description 统一响应格式,包含状态码、消息和数据
type Response struct {
	Code    string      `json:"code" example:"OK"`         // 状态码: OK 表示成功
	Message string      `json:"message" example:"success"` // 响应消息
	Data    interface{} `json:"data"`                      // 响应数据
}

// ErrorResponse 错误响应格式
// @Description 错误响应格式,包含错误码、错误消息和错误详情
type ErrorResponse struct {
	Code    string `json:"code" example:"INVALID_STATE_TRANSITION"`           // 错误码
	Message string `json:"message" example:"invalid state transition"`        // 错误消息
	Detail  string `json:"detail,omitempty" example:"publish is not allowed"` // 错误详情(可选)
}

// PaginatedResponse 分页响应
// @Description 分页响应格式,包含数据列表和分页信息
type PaginatedResponse struct {
	Code       string         `json:"code" example:"OK"`
	Message    string         `json:"message" example:"success"`
	Data       interface{}    `json:"data"`       // 数据列表
	Pagination PaginationInfo `json:"pagination"` // 分页信息
}

// PaginationInfo 分页信息
type PaginationInfo struct {
	Page      int   `json:"page" example:"1"`       // 当前页码
	PageSize  int   `json:"page_size" example:"20"` // 每页数量
	Total     int64 `json:"total" example:"100"`    // 总记录数
	TotalPage int   `json:"total_page" example:"5"` // 总页数
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    "OK",
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, status int, code, message, detail string) {
	if status < 400 || status >= 600 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

// Paginated 分页响应
func Paginated(c *gin.Context, data interface{}, page docstore.PageInfo) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Code:       "OK",
		Message:    "success",
		Data:       data,
		Pagination: PaginationInfo(page),
	})
}
