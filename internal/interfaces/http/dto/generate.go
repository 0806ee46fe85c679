package dto

import (
	"content-ai-api/internal/domain/entity"
)

// GenerateRequest 生成请求体；context/specifications 的字段随内容类型变化，
// 由应用层按类型解码校验
type GenerateRequest struct {
	ContentType      string         `json:"content_type" binding:"required"`
	Context          map[string]any `json:"context" binding:"required"`
	Specifications   map[string]any `json:"specifications"`
	GenerationParams *struct {
		Temperature *float64 `json:"temperature,omitempty"`
		MaxTokens   *int     `json:"max_tokens,omitempty"`
		TopP        *float64 `json:"top_p,omitempty"`
		UseFewShot  *bool    `json:"use_few_shot,omitempty"`
	} `json:"generation_params,omitempty"`
}

// ToEntity 转为领域请求
func (r *GenerateRequest) ToEntity() *entity.GenerateRequest {
	req := &entity.GenerateRequest{
		ContentType:    entity.ContentType(r.ContentType),
		Context:        r.Context,
		Specifications: r.Specifications,
	}
	if p := r.GenerationParams; p != nil {
		req.GenerationParams = &entity.GenerationParamsInput{
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
			TopP:        p.TopP,
			UseFewShot:  p.UseFewShot,
		}
	}
	return req
}

// ExportPDFRequest PDF 导出请求
type ExportPDFRequest struct {
	Content     string `json:"content" binding:"required"`
	ContentType string `json:"content_type" binding:"required,max=50"`
}

// StreamDelta SSE 增量帧
type StreamDelta struct {
	Content string `json:"content"`
}

// StreamError SSE 终止错误帧
type StreamError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
