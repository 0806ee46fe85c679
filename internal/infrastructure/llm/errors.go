package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
)

// ErrorKind 后端错误分类
type ErrorKind string

const (
	KindAuth        ErrorKind = "AuthError"
	KindRateLimited ErrorKind = "RateLimited"
	KindTimeout     ErrorKind = "Timeout"
	KindUnknown     ErrorKind = "Unknown"
)

// ProviderError 后端调用失败
//
// Message 已脱敏，可以直接返回给调用方；Err 保留原始错误用于 errors.Is/As，不应输出。
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (%s, status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError 创建已脱敏的后端错误
func NewProviderError(provider string, kind ErrorKind, status int, msg string, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Message:    Sanitize(msg),
		Err:        err,
	}
}

// KindFromStatus 按 HTTP 状态码分类
func KindFromStatus(status int) ErrorKind {
	switch status {
	case 401, 403:
		return KindAuth
	case 429:
		return KindRateLimited
	case 408, 504:
		return KindTimeout
	default:
		return KindUnknown
	}
}

var (
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=\-]+`),
		regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_\-]{8,}`),
		regexp.MustCompile(`hf_[A-Za-z0-9]{8,}`),
		regexp.MustCompile(`AIza[A-Za-z0-9_\-]{20,}`),
		regexp.MustCompile(`(?i)((?:api[_-]?key|access[_-]?token|authorization)["']?\s*[:=]\s*["']?)[^\s"'&,}]+`),
	}
	statusPattern = regexp.MustCompile(`status code:?\s*(\d{3})`)
)

const redacted = "[REDACTED]"

// Sanitize 去掉消息中的密钥与令牌
func Sanitize(msg string) string {
	for i, p := range secretPatterns {
		if i == len(secretPatterns)-1 {
			msg = p.ReplaceAllString(msg, "${1}"+redacted)
			continue
		}
		msg = p.ReplaceAllString(msg, redacted)
	}
	return msg
}

// Classify 将后端 SDK 或传输层错误映射为 ProviderError
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, KindTimeout, 0, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(provider, KindTimeout, 0, "request timed out", err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("upstream returned status %d", apiErr.StatusCode)
		}
		return NewProviderError(provider, KindFromStatus(apiErr.StatusCode), apiErr.StatusCode, msg, err)
	}

	// 其他 SDK 只在错误文本里带状态码
	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		return NewProviderError(provider, KindFromStatus(status), status, msg, err)
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit"):
		return NewProviderError(provider, KindRateLimited, 0, msg, err)
	case strings.Contains(lower, "api key"), strings.Contains(lower, "unauthorized"):
		return NewProviderError(provider, KindAuth, 0, msg, err)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return NewProviderError(provider, KindTimeout, 0, msg, err)
	}
	return NewProviderError(provider, KindUnknown, 0, msg, err)
}
