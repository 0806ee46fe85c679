package llm

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"content-ai-api/internal/config"
	"content-ai-api/internal/domain/entity"
)

// DefaultHuggingFaceBaseURL Hugging Face 的 OpenAI 兼容路由
const DefaultHuggingFaceBaseURL = "https://router.huggingface.co/v1"

// HuggingFaceProvider 通过 openai-go SDK 调用 Hugging Face 推理路由
type HuggingFaceProvider struct {
	model  string
	client openai.Client
}

// NewHuggingFaceProvider 创建 Hugging Face 后端
func NewHuggingFaceProvider(cfg config.ProviderConfig) (*HuggingFaceProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("huggingface api key missing; set HF_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("huggingface model is required; set HF_MODEL")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	// 超时由网关统一控制，SDK 自身不重试
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
	return &HuggingFaceProvider{model: cfg.Model, client: client}, nil
}

func (p *HuggingFaceProvider) Name() string  { return config.ProviderHuggingFace }
func (p *HuggingFaceProvider) Model() string { return p.model }

func (p *HuggingFaceProvider) Generate(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (*Result, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(msgs, params))
	if err != nil {
		return nil, Classify(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), KindUnknown, 0, "empty choices in completion response", nil)
	}
	return &Result{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func (p *HuggingFaceProvider) Stream(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (Stream, error) {
	req := p.params(msgs, params)
	req.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	return &sdkStream{provider: p.Name(), stream: p.client.Chat.Completions.NewStreaming(ctx, req)}, nil
}

func (p *HuggingFaceProvider) params(msgs []*schema.Message, params entity.GenerationParams) openai.ChatCompletionNewParams {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case schema.System:
			out = append(out, openai.SystemMessage(m.Content))
		case schema.Assistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    out,
		Temperature: openai.Float(params.Temperature),
		MaxTokens:   openai.Int(int64(params.MaxTokens)),
		TopP:        openai.Float(params.TopP),
	}
}

type sdkStream struct {
	provider string
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *sdkStream) Recv() (Chunk, error) {
	for s.stream.Next() {
		cur := s.stream.Current()
		var chunk Chunk
		if len(cur.Choices) > 0 {
			chunk.Content = cur.Choices[0].Delta.Content
		}
		chunk.TokensUsed = int(cur.Usage.TotalTokens)
		if chunk.Content != "" || chunk.TokensUsed > 0 {
			return chunk, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return Chunk{}, Classify(s.provider, err)
	}
	return Chunk{}, io.EOF
}

func (s *sdkStream) Close() error {
	return s.stream.Close()
}
