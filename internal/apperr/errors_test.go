package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mautops/videoflow-gin/internal/apperr"
	"github.com/stretchr/testify/assert"
)

// TestError_Is 测试带上下文的错误与哨兵错误匹配
func TestError_Is(t *testing.T) {
	err := apperr.New(apperr.ErrInvalidStateTransition, "%s -> %s", "published", "quoted")
	assert.True(t, errors.Is(err, apperr.ErrInvalidStateTransition))
	assert.False(t, errors.Is(err, apperr.ErrConcurrentModification))
	assert.Contains(t, err.Error(), "published -> quoted")

	wrapped := fmt.Errorf("submit quote: %w", err)
	assert.True(t, errors.Is(wrapped, apperr.ErrInvalidStateTransition))
}

// TestWrap 测试包装底层错误
func TestWrap(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := apperr.Wrap(apperr.ErrExternalProviderUnavailable, cause)

	assert.True(t, errors.Is(err, apperr.ErrExternalProviderUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))
}

// TestHTTPStatus 测试错误码映射
func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(apperr.ErrConcurrentModification))
	assert.Equal(t, http.StatusUnprocessableEntity, apperr.HTTPStatus(apperr.ErrModificationLimitExceeded))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("boom")))
	assert.Equal(t, "INTERNAL", apperr.CodeOf(errors.New("boom")))
	assert.Equal(t, "NOT_FOUND", apperr.CodeOf(apperr.ErrNotFound))
}
