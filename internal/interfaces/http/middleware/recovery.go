// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"runtime/debug"

	"content-ai-api/pkg/errors"
	"content-ai-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery Panic 恢复中间件
//
// 响应已开始写出（如 SSE 流）时只能中断连接，不再补写 JSON。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", rec),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				if c.Writer.Written() {
					c.Abort()
					return
				}
				appErr := errors.ErrInternalError
				c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
					"code":     appErr.HTTPStatus,
					"message":  appErr.Message,
					"error":    gin.H{"error_code": appErr.Code},
					"trace_id": c.GetString("trace_id"),
				})
			}
		}()

		c.Next()
	}
}
