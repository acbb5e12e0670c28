// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 准入控制错误 (2xxx)
	CodeInsufficientCredits ErrorCode = "2001"
	CodeRateLimited         ErrorCode = "2002"

	// 业务错误 (4xxx)
	CodeGenerationFailed  ErrorCode = "4001"
	CodeValidationFailed  ErrorCode = "4002"
	CodeGenerationAborted ErrorCode = "4003"
	CodeLLMCallFailed     ErrorCode = "4005"

	// 外部服务错误 (5xxx)
	CodeDatabaseError           ErrorCode = "5001"
	CodeCacheError              ErrorCode = "5002"
	CodeStorageError            ErrorCode = "5004"
	CodeLLMProviderError        ErrorCode = "5005"
	CodeProviderUnavailable     ErrorCode = "5006"
	CodeProviderConfig          ErrorCode = "5007"
	CodeUnsupportedModel        ErrorCode = "5008"
	CodeCounterStoreUnavailable ErrorCode = "5009"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，便于 errors.Is(err, ErrNoProviderAvailable)
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息（返回副本，避免污染预定义错误）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 添加底层错误（返回副本）
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 创建带格式化消息的应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable, CodeProviderUnavailable, CodeCounterStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeGenerationAborted:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized       = New(CodeUnauthorized, "unauthorized")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrInsufficientCredits = New(CodeInsufficientCredits, "insufficient_credits")
	ErrRateLimited         = New(CodeRateLimited, "insufficient_rate_limit")
	ErrDailyLimitReached   = New(CodeRateLimited, "insufficient_daily_limit")
	ErrCounterStore        = New(CodeCounterStoreUnavailable, "counter store unavailable")

	ErrGenerationFailed  = New(CodeGenerationFailed, "website generation failed")
	ErrGenerationAborted = New(CodeGenerationAborted, "generation aborted by client")
	ErrLLMCallFailed     = New(CodeLLMCallFailed, "LLM call failed")

	ErrNoProviderAvailable = New(CodeProviderUnavailable, "no provider available for requested model")
	ErrProviderDisabled    = New(CodeProviderConfig, "provider is disabled or not configured")
	ErrUnsupportedModel    = New(CodeUnsupportedModel, "model not supported by provider")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsConfiguration 判断是否为配置类错误：缺少凭证、提供商未启用、模型不支持、无可用提供商。
// 这类错误重试无法修复。
func IsConfiguration(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeProviderConfig, CodeProviderUnavailable, CodeUnsupportedModel, CodeInvalidParam:
		return true
	default:
		return false
	}
}
