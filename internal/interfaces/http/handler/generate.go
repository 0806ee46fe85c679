package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"content-ai-api/internal/application/generation"
	"content-ai-api/internal/interfaces/http/dto"
	apperrors "content-ai-api/pkg/errors"
)

// GenerateHandler 同步生成处理器
type GenerateHandler struct {
	svc *generation.Service
}

// NewGenerateHandler 创建同步生成处理器
func NewGenerateHandler(svc *generation.Service) *GenerateHandler {
	return &GenerateHandler{svc: svc}
}

// Generate 生成内容
// @Summary 生成内容
// @Description 按内容类型生成文本并返回元数据；相同请求命中缓存时 X-Cache 为 HIT
// @Tags Generation
// @Accept json
// @Produce json
// @Param body body dto.GenerateRequest true "生成请求"
// @Success 200 {object} entity.GenerateResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err))
		return
	}

	resp, err := h.svc.Generate(c.Request.Context(), clientIP(c), req.ToEntity())
	if err != nil {
		respondError(c, err)
		return
	}

	if resp.Metadata.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, resp)
}
