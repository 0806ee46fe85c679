package middleware

import (
	"github.com/gin-gonic/gin"

	"content-ai-api/pkg/logger"
)

// ClientIPContextKey gin.Context 中客户端标识的键
const ClientIPContextKey = "client_ip"

// ClientIP 解析限流与配额使用的客户端标识，并注入 gin 与日志上下文
//
// 交给 gin 的 ClientIP：只有对端是受信代理（Engine.SetTrustedProxies）时
// 才依次采信 X-Forwarded-For、X-Real-IP，否则使用连接的对端地址。
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		c.Set(ClientIPContextKey, ip)
		ctx := logger.WithContext(c.Request.Context(), logger.ClientIPKey, ip)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
