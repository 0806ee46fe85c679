// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"content-ai-api/internal/application/generation"
	"content-ai-api/internal/application/postprocess"
	"content-ai-api/internal/application/prompt"
	"content-ai-api/internal/application/validation"
	"content-ai-api/internal/config"
	"content-ai-api/internal/infrastructure/export"
	"content-ai-api/internal/infrastructure/llm"
	"content-ai-api/internal/infrastructure/persistence/memory"
	"content-ai-api/internal/interfaces/http/handler"
	"content-ai-api/internal/interfaces/http/router"
)

// PipelineSet 生成流水线组件
var PipelineSet = wire.NewSet(
	ProvideValidator,
	ProvideRateLimiter,
	ProvideQuotaTracker,
	ProvideResponseCache,
	prompt.NewRegistry,
	prompt.NewBuilder,
	ProvideProcessor,
	ProvideProvider,
	ProvideGenerationService,
)

// RouterSet HTTP 层
var RouterSet = wire.NewSet(
	export.NewPDFRenderer,
	handler.NewHealthHandler,
	handler.NewGenerateHandler,
	handler.NewStreamHandler,
	handler.NewExportHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)

// ProvideValidator 请求校验器
func ProvideValidator(cfg *config.Config) *validation.Validator {
	return validation.New(cfg.Pipeline.Validation.MinWordCount)
}

// ProvideRateLimiter 限流器；关闭时返回 nil
func ProvideRateLimiter(cfg *config.Config) *memory.RateLimiter {
	rl := cfg.Pipeline.RateLimit
	if !rl.Enabled {
		return nil
	}
	return memory.NewRateLimiter(rl.MaxRequests, rl.Window)
}

// ProvideQuotaTracker 配额统计器；关闭时返回 nil
func ProvideQuotaTracker(cfg *config.Config) *memory.QuotaTracker {
	q := cfg.Pipeline.Quota
	if !q.Enabled {
		return nil
	}
	return memory.NewQuotaTracker(q.MaxRequestsPerDay, q.MaxTokensPerDay)
}

// ProvideResponseCache 响应缓存
func ProvideResponseCache(cfg *config.Config) *memory.ResponseCache {
	return memory.NewResponseCache(cfg.Pipeline.Cache.TTL, cfg.Pipeline.Cache.MaxEntries)
}

// ProvideProcessor 后处理器
func ProvideProcessor(cfg *config.Config) (*postprocess.Processor, error) {
	pp := cfg.Pipeline.PostProcess
	return postprocess.New(postprocess.Options{
		WordCountTolerance: pp.WordCountTolerance,
		WordsPerMinute:     pp.WordsPerMinute,
		MaxKeywords:        pp.MaxKeywords,
		ArtifactPatterns:   pp.ArtifactPatterns,
	})
}

// ProvideProvider 启动时选定的模型后端（带超时与并发网关）
func ProvideProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	return llm.NewFromConfig(ctx, cfg)
}

// ProvideGenerationService 流水线服务，cleanup 时停止后台清理
func ProvideGenerationService(
	cfg *config.Config,
	validator *validation.Validator,
	limiter *memory.RateLimiter,
	quota *memory.QuotaTracker,
	cache *memory.ResponseCache,
	builder *prompt.Builder,
	provider llm.Provider,
	processor *postprocess.Processor,
) (*generation.Service, func(), error) {
	svc, err := generation.NewService(generation.Options{
		Validator:       validator,
		Limiter:         limiter,
		Quota:           quota,
		Cache:           cache,
		Builder:         builder,
		Provider:        provider,
		Processor:       processor,
		JanitorInterval: cfg.Pipeline.JanitorInterval,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, svc.Close, nil
}
