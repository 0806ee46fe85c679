// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess       ErrorCode = "0"
	CodeInvalidParam  ErrorCode = "1001"
	CodeInternalError ErrorCode = "1007"

	// 业务错误 (4xxx)
	CodeGenerationFailed       ErrorCode = "4001"
	CodeValidationFailed       ErrorCode = "4002"
	CodeUnsupportedContentType ErrorCode = "4003"
	CodeRateLimitExceeded      ErrorCode = "4004"
	CodeQuotaExceeded          ErrorCode = "4005"
	CodeExportFailed           ErrorCode = "4006"

	// 上游模型错误 (5xxx)
	CodeProviderAuth        ErrorCode = "5001"
	CodeProviderRateLimited ErrorCode = "5002"
	CodeProviderTimeout     ErrorCode = "5003"
	CodeProviderUnknown     ErrorCode = "5004"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	Field      string    `json:"field,omitempty"`
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

// WithDetail 添加详细信息（返回副本，预定义错误不会被修改）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithField 标记出错字段
func (e *AppError) WithField(field string) *AppError {
	cp := *e
	cp.Field = field
	return &cp
}

// WithError 添加底层错误
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
	case CodeInvalidParam, CodeValidationFailed, CodeUnsupportedContentType:
		return http.StatusBadRequest
	case CodeRateLimitExceeded, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeProviderAuth, CodeProviderRateLimited, CodeProviderUnknown:
		return http.StatusBadGateway
	case CodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrInternalError = New(CodeInternalError, "internal server error")

	ErrValidationFailed       = New(CodeValidationFailed, "validation failed")
	ErrUnsupportedContentType = New(CodeUnsupportedContentType, "unsupported content type")
	ErrRateLimitExceeded      = New(CodeRateLimitExceeded, "rate limit exceeded, please try again later")
	ErrQuotaExceeded          = New(CodeQuotaExceeded, "daily quota exceeded, please try again tomorrow")
	ErrGenerationFailed       = New(CodeGenerationFailed, "content generation failed")
	ErrExportFailed           = New(CodeExportFailed, "failed to generate PDF")

	ErrProviderAuth        = New(CodeProviderAuth, "AI service authentication failed")
	ErrProviderRateLimited = New(CodeProviderRateLimited, "AI service is rate limiting requests, please try again later")
	ErrProviderTimeout     = New(CodeProviderTimeout, "AI service timed out")
	ErrProviderUnknown     = New(CodeProviderUnknown, "AI service is temporarily unavailable")
)
