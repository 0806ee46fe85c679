// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"content-ai-api/internal/application/validation"
	"content-ai-api/internal/infrastructure/export"
	"content-ai-api/internal/infrastructure/llm"
	"content-ai-api/internal/infrastructure/persistence/memory"
	"content-ai-api/internal/interfaces/http/dto"
	"content-ai-api/internal/interfaces/http/middleware"
	apperrors "content-ai-api/pkg/errors"
	"content-ai-api/pkg/logger"
)

// statusClientClosedRequest 客户端在响应前断开（nginx 约定）
const statusClientClosedRequest = 499

func clientIP(c *gin.Context) string {
	if ip := c.GetString(middleware.ClientIPContextKey); ip != "" {
		return ip
	}
	return c.ClientIP()
}

// toAppError 把领域错误映射为带 HTTP 状态的 AppError
func toAppError(err error) *apperrors.AppError {
	var (
		appErr *apperrors.AppError
		verr   *validation.Error
		cterr  *validation.UnsupportedContentTypeError
		rlerr  *memory.RateLimitExceededError
		qerr   *memory.QuotaExceededError
		perr   *llm.ProviderError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verr):
		return apperrors.ErrValidationFailed.WithField(verr.Field).WithDetail(verr.Reason).WithError(err)
	case errors.As(err, &cterr):
		return apperrors.ErrUnsupportedContentType.WithField("content_type").WithDetail(cterr.Error()).WithError(err)
	case errors.As(err, &rlerr):
		return apperrors.ErrRateLimitExceeded.
			WithDetail(fmt.Sprintf("at most %d requests per %s", rlerr.Limit, rlerr.Window)).
			WithError(err)
	case errors.As(err, &qerr):
		return apperrors.ErrQuotaExceeded.
			WithDetail(fmt.Sprintf("daily %s quota of %d reached", qerr.Resource, qerr.Max)).
			WithError(err)
	case errors.As(err, &perr):
		return providerAppError(perr)
	case errors.Is(err, export.ErrEmptyContent):
		return apperrors.ErrInvalidParam.WithField("content").WithDetail("content must not be empty").WithError(err)
	default:
		return apperrors.ErrGenerationFailed.WithError(err)
	}
}

// providerAppError 上游错误只带脱敏后的消息
func providerAppError(perr *llm.ProviderError) *apperrors.AppError {
	var base *apperrors.AppError
	switch perr.Kind {
	case llm.KindAuth:
		base = apperrors.ErrProviderAuth
	case llm.KindRateLimited:
		base = apperrors.ErrProviderRateLimited
	case llm.KindTimeout:
		base = apperrors.ErrProviderTimeout
	default:
		base = apperrors.ErrProviderUnknown
	}
	return base.WithDetail(perr.Message).WithError(perr)
}

// respondError 写出 JSON 错误响应
func respondError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info(ctx, "client went away before response", "path", c.FullPath())
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}

	appErr := toAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(ctx, "request failed", err, "code", appErr.Code, "status", appErr.HTTPStatus)
	} else {
		logger.Warn(ctx, "request rejected", "code", appErr.Code, "status", appErr.HTTPStatus, "detail", appErr.Detail)
	}

	var rlerr *memory.RateLimitExceededError
	if errors.As(err, &rlerr) && rlerr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rlerr.RetryAfter.Seconds()))))
	}

	c.Abort()
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Field:     appErr.Field,
		Details:   appErr.Detail,
	})
}
