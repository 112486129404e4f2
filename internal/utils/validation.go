package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SanitizeString 清理字符串，移除或转义危险字符
func SanitizeString(input string) string {
	sanitized := html.EscapeString(input)

	// 移除控制字符（除了换行符和制表符）
	var result strings.Builder
	for _, r := range sanitized {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// ValidateID 验证资源 ID 格式（订单、作品、任务通用）
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > 128 {
		return ErrIDTooLong
	}
	// 只允许字母、数字、连字符、下划线
	if !idPattern.MatchString(id) {
		return ErrInvalidIDFormat
	}
	return nil
}

// ValidateURL 验证成片/素材地址
func ValidateURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ErrEmptyURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return ErrInvalidURL
	}
	return nil
}

// TrimAndValidate 清理并验证字符串
func TrimAndValidate(s string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrEmptyString
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", ErrStringTooLong
	}
	return SanitizeString(trimmed), nil
}

// 错误定义
var (
	ErrEmptyID         = &ValidationError{Code: "EMPTY_ID", Message: "id cannot be empty"}
	ErrInvalidIDFormat = &ValidationError{Code: "INVALID_ID_FORMAT", Message: "id contains invalid characters"}
	ErrIDTooLong       = &ValidationError{Code: "ID_TOO_LONG", Message: "id exceeds maximum length"}
	ErrEmptyString     = &ValidationError{Code: "EMPTY_STRING", Message: "string cannot be empty"}
	ErrStringTooLong   = &ValidationError{Code: "STRING_TOO_LONG", Message: "string exceeds maximum length"}
	ErrEmptyURL        = &ValidationError{Code: "EMPTY_URL", Message: "url cannot be empty"}
	ErrInvalidURL      = &ValidationError{Code: "INVALID_URL", Message: "url must be http or https"}
)

// ValidationError 验证错误
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
