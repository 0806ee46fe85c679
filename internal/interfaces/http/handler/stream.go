package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"content-ai-api/internal/application/generation"
	"content-ai-api/internal/interfaces/http/dto"
	apperrors "content-ai-api/pkg/errors"
	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/metrics"
)

// doneSentinel 流正常结束的终止帧
const doneSentinel = "[DONE]"

// StreamHandler SSE 流式生成处理器
type StreamHandler struct {
	svc *generation.Service
}

// NewStreamHandler 创建流式生成处理器
func NewStreamHandler(svc *generation.Service) *StreamHandler {
	return &StreamHandler{svc: svc}
}

// Stream 流式生成内容
// @Summary 流式生成内容
// @Description 查询参数 data 为 URL 编码的生成请求 JSON。增量帧为 {"content": "..."}，以 [DONE] 结束；
// @Description 失败时发送一个 {"error": "...", "code": "..."} 帧后关闭
// @Tags Generation
// @Produce text/event-stream
// @Param data query string true "生成请求 JSON"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /generate/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	raw := c.Query("data")
	if raw == "" {
		respondError(c, apperrors.ErrInvalidParam.WithField("data").WithDetail("query parameter data is required"))
		return
	}
	var req dto.GenerateRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		respondError(c, apperrors.ErrInvalidParam.WithField("data").WithDetail("data is not valid JSON").WithError(err))
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		respondError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()).WithError(err))
		return
	}

	// 准入失败时还没有写出流，直接返回普通 JSON 错误
	ctx := c.Request.Context()
	sess, err := h.svc.Stream(ctx, clientIP(c), req.ToEntity())
	if err != nil {
		respondError(c, err)
		return
	}
	defer sess.Close()

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	if !relay(c, sess) {
		metrics.StreamDisconnects.Inc()
		logger.Info(ctx, "client disconnected, upstream cancelled")
		return
	}

	if _, err := sess.Result(); err != nil {
		appErr := toAppError(err)
		logger.Warn(ctx, "stream ended with error", "code", appErr.Code, "error", err.Error())
		writeJSONFrame(c, dto.StreamError{Error: streamErrorMessage(appErr), Code: string(appErr.Code)})
		return
	}
	writeFrame(c, doneSentinel)
}

// relay 按顺序转发增量；客户端断开时返回 false
func relay(c *gin.Context, sess *generation.Session) bool {
	done := c.Request.Context().Done()
	deltas := sess.Deltas()
	for {
		select {
		case delta, ok := <-deltas:
			if !ok {
				return true
			}
			if err := writeJSONFrame(c, dto.StreamDelta{Content: delta}); err != nil {
				sess.Close()
				return false
			}
		case <-done:
			sess.Close()
			return false
		}
	}
}

func streamErrorMessage(appErr *apperrors.AppError) string {
	if appErr.Detail != "" {
		return appErr.Message + ": " + appErr.Detail
	}
	return appErr.Message
}

func writeJSONFrame(c *gin.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFrame(c, string(payload))
}

func writeFrame(c *gin.Context, data string) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
