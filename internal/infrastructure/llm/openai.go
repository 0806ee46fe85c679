package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"content-ai-api/internal/config"
	"content-ai-api/internal/domain/entity"
)

// OpenAIProvider 通过 Eino ChatModel 调用 OpenAI 兼容的对话接口
type OpenAIProvider struct {
	model string
	chat  model.BaseChatModel
}

// NewOpenAIProvider 创建 OpenAI 后端
func NewOpenAIProvider(ctx context.Context, cfg config.ProviderConfig, timeout time.Duration) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY")
	}
	chatModel, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model: %w", Classify(config.ProviderOpenAI, err))
	}
	return &OpenAIProvider{model: cfg.Model, chat: chatModel}, nil
}

func (p *OpenAIProvider) Name() string  { return config.ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Generate(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (*Result, error) {
	out, err := p.chat.Generate(ctx, msgs, modelOptions(params)...)
	if err != nil {
		return nil, Classify(p.Name(), err)
	}
	return &Result{Content: out.Content, TokensUsed: usageOf(out)}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (Stream, error) {
	sr, err := p.chat.Stream(ctx, msgs, modelOptions(params)...)
	if err != nil {
		return nil, Classify(p.Name(), err)
	}
	return &einoStream{provider: p.Name(), reader: sr}, nil
}

func modelOptions(params entity.GenerationParams) []model.Option {
	return []model.Option{
		model.WithTemperature(float32(params.Temperature)),
		model.WithMaxTokens(params.MaxTokens),
		model.WithTopP(float32(params.TopP)),
	}
}

func usageOf(msg *schema.Message) int {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0
	}
	return msg.ResponseMeta.Usage.TotalTokens
}

type einoStream struct {
	provider string
	reader   *schema.StreamReader[*schema.Message]
}

func (s *einoStream) Recv() (Chunk, error) {
	msg, err := s.reader.Recv()
	if errors.Is(err, io.EOF) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, Classify(s.provider, err)
	}
	return Chunk{Content: msg.Content, TokensUsed: usageOf(msg)}, nil
}

func (s *einoStream) Close() error {
	s.reader.Close()
	return nil
}
