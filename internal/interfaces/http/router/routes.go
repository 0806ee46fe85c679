// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册业务路由；路径不带版本前缀，与现有前端保持一致
func RegisterRoutes(engine *gin.Engine, h Handlers) {
	engine.POST("/generate", h.Generate.Generate)
	engine.GET("/generate/stream", h.Stream.Stream)
	engine.POST("/export/pdf", h.Export.ExportPDF)
}
