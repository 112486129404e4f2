package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error 业务错误
// Code 用于区分错误类别，Message 给调用方展示
type Error struct {
	Code    string
	Message string
	Status  int // 对应的 HTTP 状态码
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.cause
}

// Is 按 Code 匹配，允许携带上下文的副本与哨兵错误比较
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// 错误定义
var (
	ErrInvalidStateTransition      = &Error{Code: "INVALID_STATE_TRANSITION", Message: "invalid state transition", Status: http.StatusConflict}
	ErrConcurrentModification      = &Error{Code: "CONCURRENT_MODIFICATION", Message: "record was modified concurrently", Status: http.StatusConflict}
	ErrModificationLimitExceeded   = &Error{Code: "MODIFICATION_LIMIT_EXCEEDED", Message: "modification limit exceeded", Status: http.StatusUnprocessableEntity}
	ErrExternalProviderUnavailable = &Error{Code: "EXTERNAL_PROVIDER_UNAVAILABLE", Message: "external provider unavailable", Status: http.StatusServiceUnavailable}
	ErrExternalProviderFailure     = &Error{Code: "EXTERNAL_PROVIDER_FAILURE", Message: "external provider reported failure", Status: http.StatusBadGateway}
	ErrOrphanedCallback            = &Error{Code: "ORPHANED_CALLBACK", Message: "callback references unknown order", Status: http.StatusOK}
	ErrInvalidCallback             = &Error{Code: "INVALID_CALLBACK", Message: "callback verification failed", Status: http.StatusBadRequest}
	ErrNotFound                    = &Error{Code: "NOT_FOUND", Message: "resource not found", Status: http.StatusNotFound}
	ErrForbidden                   = &Error{Code: "FORBIDDEN", Message: "operation not permitted", Status: http.StatusForbidden}
	ErrValidation                  = &Error{Code: "VALIDATION_FAILED", Message: "validation failed", Status: http.StatusBadRequest}
)

// New 基于哨兵错误生成带说明的副本
func New(base *Error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    base.Code,
		Message: fmt.Sprintf("%s: %s", base.Message, fmt.Sprintf(format, args...)),
		Status:  base.Status,
	}
}

// Wrap 包装底层错误，保持错误类别
func Wrap(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Status:  base.Status,
		cause:   cause,
	}
}

// HTTPStatus 返回错误对应的 HTTP 状态码，未知错误返回 500
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// CodeOf 返回错误码，未知错误返回 INTERNAL
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// IsTransient 是否为可重试的临时性错误
func IsTransient(err error) bool {
	return errors.Is(err, ErrExternalProviderUnavailable) || errors.Is(err, ErrConcurrentModification)
}
