package httpapi

import (
	"errors"
	"net/http"

	"hivedesk-core/internal/domain"
)

// Result 统一响应包络
// - code: 2000成功；-1业务错误；60401令牌过期（客户端拦截器特殊处理）
// - type: 'success' | 'error'
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess      = 2000
	ResultError        = -1
	ResultTokenExpired = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// writeError 领域错误到HTTP状态码的映射
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, Result[any]{
			Code: ResultTokenExpired, Type: "error", Message: err.Error(),
		})
	case errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, Fail(err.Error()))
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, domain.ErrDomainAlreadyExists),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrDescriptorImmutable),
		errors.Is(err, domain.ErrAlreadyLoggedOut),
		errors.Is(err, domain.ErrProvisioningIncomplete):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	case errors.Is(err, domain.ErrInvalidOperation):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, domain.ErrConnectionFailed):
		writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
	}
}
