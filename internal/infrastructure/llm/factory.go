package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"content-ai-api/internal/config"
)

// NewFromConfig 按配置创建启动时选定的后端，并包上网关
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	name := strings.ToLower(cfg.LLM.Provider)
	providerCfg := cfg.LLM.Active()

	var (
		p   Provider
		err error
	)
	switch name {
	case config.ProviderOpenAI:
		p, err = NewOpenAIProvider(ctx, providerCfg, cfg.LLM.Timeout)
	case config.ProviderHuggingFace:
		p, err = NewHuggingFaceProvider(providerCfg)
	case config.ProviderFalcon:
		p, err = NewFalconProvider(providerCfg, &http.Client{})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	return NewGateway(p, cfg.LLM.Timeout, cfg.LLM.MaxConcurrency), nil
}
