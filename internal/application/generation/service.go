// Package generation 串联校验、限流、配额、缓存、提示词、模型调用与后处理
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"content-ai-api/internal/application/postprocess"
	"content-ai-api/internal/application/prompt"
	"content-ai-api/internal/application/validation"
	"content-ai-api/internal/domain/entity"
	"content-ai-api/internal/infrastructure/llm"
	"content-ai-api/internal/infrastructure/persistence/memory"
	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/metrics"
	"content-ai-api/pkg/tracer"
)

// DefaultJanitorInterval 后台清理的默认周期
const DefaultJanitorInterval = time.Minute

// Options 流水线组件
//
// Limiter、Quota 为 nil 表示关闭对应的准入检查。
type Options struct {
	Validator       *validation.Validator
	Limiter         *memory.RateLimiter
	Quota           *memory.QuotaTracker
	Cache           *memory.ResponseCache
	Builder         *prompt.Builder
	Provider        llm.Provider
	Processor       *postprocess.Processor
	JanitorInterval time.Duration
}

// Service 内容生成流水线
//
// 持有进程内的限流桶、配额记录与缓存，生命周期由 NewService/Close 管理。
type Service struct {
	validator *validation.Validator
	limiter   *memory.RateLimiter
	quota     *memory.QuotaTracker
	cache     *memory.ResponseCache
	builder   *prompt.Builder
	provider  llm.Provider
	processor *postprocess.Processor

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService 创建流水线并启动后台清理
func NewService(opts Options) (*Service, error) {
	if opts.Provider == nil {
		return nil, errors.New("generation: provider is required")
	}
	if opts.Validator == nil {
		opts.Validator = validation.New(validation.DefaultMinWordCount)
	}
	if opts.Cache == nil {
		opts.Cache = memory.NewResponseCache(memory.DefaultCacheTTL, 0)
	}
	if opts.Builder == nil {
		opts.Builder = prompt.NewBuilder(nil)
	}
	if opts.Processor == nil {
		p, err := postprocess.New(postprocess.Options{})
		if err != nil {
			return nil, err
		}
		opts.Processor = p
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = DefaultJanitorInterval
	}

	s := &Service{
		validator: opts.Validator,
		limiter:   opts.Limiter,
		quota:     opts.Quota,
		cache:     opts.Cache,
		builder:   opts.Builder,
		provider:  opts.Provider,
		processor: opts.Processor,
		stop:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.janitor(opts.JanitorInterval)
	return s, nil
}

// ProviderName 当前后端名称
func (s *Service) ProviderName() string { return s.provider.Name() }

// Close 停止后台清理，可重复调用
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *Service) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	var buckets, records int
	if s.limiter != nil {
		buckets = s.limiter.Sweep()
	}
	if s.quota != nil {
		records = s.quota.Sweep()
	}
	entries := s.cache.Sweep()
	if buckets+records+entries > 0 {
		logger.Debug(context.Background(), "janitor swept idle state",
			"rate_limit_buckets", buckets,
			"quota_records", records,
			"cache_entries", entries,
		)
	}
}

// Generate 同步生成
//
// 相同指纹的并发请求只会调用一次模型；Token 只记到实际发起调用的客户端。
func (s *Service) Generate(ctx context.Context, clientIP string, req *entity.GenerateRequest) (_ *entity.GenerateResponse, err error) {
	ctx, span := tracer.Start(ctx, "generation.Generate")
	defer func() { tracer.EndWithError(span, err) }()

	start := time.Now()
	norm, fingerprint, err := s.admit(ctx, clientIP, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("content.type", string(norm.ContentType)))

	resp, cached, err := s.cache.Do(ctx, fingerprint, func(ctx context.Context) (*entity.GenerateResponse, error) {
		return s.run(ctx, norm)
	})
	if err != nil {
		s.observe(norm.ContentType, "batch", start, nil, err)
		logger.Error(ctx, "generation failed", err, "content_type", norm.ContentType)
		return nil, err
	}
	if !cached {
		s.charge(ctx, clientIP, resp.Metadata.TokensUsed)
	}

	s.observe(norm.ContentType, "batch", start, resp, nil)
	logger.Info(ctx, "generation completed",
		"content_type", norm.ContentType,
		"cached", cached,
		"word_count", resp.Metadata.WordCount,
		"tokens_used", resp.Metadata.TokensUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// admit 校验、限流、配额，全部通过后返回归一化请求与指纹
func (s *Service) admit(ctx context.Context, clientIP string, req *entity.GenerateRequest) (*entity.NormalizedRequest, string, error) {
	norm, err := s.validator.Validate(req)
	if err != nil {
		s.reject(ctx, "validation", err)
		return nil, "", err
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, clientIP); err != nil {
			s.reject(ctx, "rate_limit", err)
			return nil, "", err
		}
	}
	if s.quota != nil {
		if err := s.quota.Admit(ctx, clientIP); err != nil {
			s.reject(ctx, "quota", err)
			return nil, "", err
		}
	}
	fingerprint, err := memory.Fingerprint(norm)
	if err != nil {
		return nil, "", err
	}
	return norm, fingerprint, nil
}

func (s *Service) reject(ctx context.Context, reason string, err error) {
	metrics.AdmissionRejected.WithLabelValues(reason).Inc()
	logger.Warn(ctx, "request rejected", "reason", reason, "error", err.Error())
}

// run 领头者执行的部分：渲染提示词、调用模型、后处理
func (s *Service) run(ctx context.Context, norm *entity.NormalizedRequest) (*entity.GenerateResponse, error) {
	msgs, err := s.builder.Build(ctx, norm)
	if err != nil {
		return nil, err
	}
	res, err := s.provider.Generate(ctx, msgs, norm.Params)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, norm, res.Content, res.TokensUsed), nil
}

// finish 后处理并补齐调用信息
func (s *Service) finish(ctx context.Context, norm *entity.NormalizedRequest, raw string, tokens int) *entity.GenerateResponse {
	resp := s.processor.Process(ctx, norm, raw)
	resp.Metadata.TokensUsed = tokens
	resp.Metadata.Provider = s.provider.Name()
	resp.Metadata.Model = s.provider.Model()
	return resp
}

func (s *Service) charge(ctx context.Context, clientIP string, tokens int) {
	if s.quota == nil || tokens <= 0 {
		return
	}
	s.quota.Charge(ctx, clientIP, tokens)
	metrics.QuotaTokensCharged.Add(float64(tokens))
}

func (s *Service) observe(ct entity.ContentType, mode string, start time.Time, resp *entity.GenerateResponse, err error) {
	status := "success"
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		status = "canceled"
	case err != nil:
		status = "error"
	case resp.Metadata.Cached:
		status = "cached"
	}
	metrics.GenerationTotal.WithLabelValues(string(ct), mode, status).Inc()
	metrics.GenerationDuration.WithLabelValues(string(ct), mode).Observe(time.Since(start).Seconds())
	if resp != nil {
		metrics.GenerationWordCount.WithLabelValues(string(ct)).Observe(float64(resp.Metadata.WordCount))
	}
}
