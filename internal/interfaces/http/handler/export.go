package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"content-ai-api/internal/infrastructure/export"
	"content-ai-api/internal/interfaces/http/dto"
	apperrors "content-ai-api/pkg/errors"
)

// unsafeFilenameChars 文件名里只保留字母数字、下划线和连字符
var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ExportHandler 文档导出处理器
type ExportHandler struct {
	renderer *export.PDFRenderer
	now      func() time.Time
}

// NewExportHandler 创建导出处理器
func NewExportHandler(renderer *export.PDFRenderer) *ExportHandler {
	if renderer == nil {
		renderer = export.NewPDFRenderer()
	}
	return &ExportHandler{renderer: renderer, now: time.Now}
}

// ExportPDF 导出 PDF
// @Summary 导出 PDF
// @Description 把 markdown 内容渲染为 Letter 尺寸的 PDF
// @Tags Export
// @Accept json
// @Produce application/pdf
// @Param body body dto.ExportPDFRequest true "导出请求"
// @Success 200 {file} binary
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /export/pdf [post]
func (h *ExportHandler) ExportPDF(c *gin.Context) {
	var req dto.ExportPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err))
		return
	}

	contentType := unsafeFilenameChars.ReplaceAllString(req.ContentType, "_")
	var buf bytes.Buffer
	if err := h.renderer.Render(c.Request.Context(), req.Content, contentType, &buf); err != nil {
		if errors.Is(err, export.ErrEmptyContent) {
			respondError(c, err)
			return
		}
		respondError(c, apperrors.ErrExportFailed.WithError(err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(contentType, h.now())))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
