package llm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"content-ai-api/internal/domain/entity"
	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/metrics"
	"content-ai-api/pkg/tracer"
)

// DefaultTimeout 单次调用（含整个流）的默认时限
const DefaultTimeout = 60 * time.Second

// Gateway 为后端统一加上超时、并发上限、指标与追踪
//
// 不做自动重试。
type Gateway struct {
	provider Provider
	timeout  time.Duration
	sem      *semaphore.Weighted
}

// NewGateway 包装后端；maxConcurrency <= 0 表示不限制并发
func NewGateway(p Provider, timeout time.Duration, maxConcurrency int) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := &Gateway{provider: p, timeout: timeout}
	if maxConcurrency > 0 {
		g.sem = semaphore.NewWeighted(int64(maxConcurrency))
	}
	return g
}

func (g *Gateway) Name() string  { return g.provider.Name() }
func (g *Gateway) Model() string { return g.provider.Model() }

// Generate 同步生成
func (g *Gateway) Generate(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (_ *Result, err error) {
	ctx, span := g.startSpan(ctx, "batch", params)
	defer func() { tracer.EndWithError(span, err) }()

	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.provider.Generate(callCtx, msgs, params)
	if err != nil {
		err = g.classify(ctx, callCtx, err)
		g.observe("batch", start, 0, err)
		logger.Error(ctx, "llm generate failed", err, "provider", g.Name(), "model", g.Model())
		return nil, err
	}

	if res.TokensUsed <= 0 {
		res.TokensUsed = EstimateTokens(msgs, res.Content)
	}
	span.SetAttributes(attribute.Int("llm.tokens_used", res.TokensUsed))
	g.observe("batch", start, res.TokensUsed, nil)
	logger.Info(ctx, "llm generate completed",
		"provider", g.Name(),
		"model", g.Model(),
		"tokens_used", res.TokensUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Stream 流式生成；时限覆盖整个流，Close 后释放并发名额
func (g *Gateway) Stream(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (Stream, error) {
	ctx, span := g.startSpan(ctx, "stream", params)

	release, err := g.acquire(ctx)
	if err != nil {
		tracer.EndWithError(span, err)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	start := time.Now()
	inner, err := g.provider.Stream(callCtx, msgs, params)
	if err != nil {
		err = g.classify(ctx, callCtx, err)
		cancel()
		release()
		g.observe("stream", start, 0, err)
		tracer.EndWithError(span, err)
		return nil, err
	}

	return &gatewayStream{
		gateway: g,
		inner:   inner,
		parent:  ctx,
		callCtx: callCtx,
		cancel:  cancel,
		release: release,
		span:    span,
		start:   start,
		msgs:    msgs,
	}, nil
}

func (g *Gateway) startSpan(ctx context.Context, mode string, params entity.GenerationParams) (context.Context, trace.Span) {
	return tracer.StartStage(ctx, "provider",
		attribute.String("llm.provider", g.Name()),
		attribute.String("llm.model", g.Model()),
		attribute.String("llm.mode", mode),
		attribute.Float64("llm.temperature", params.Temperature),
		attribute.Int("llm.max_tokens", params.MaxTokens),
	)
}

func (g *Gateway) acquire(ctx context.Context) (func(), error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, g.classify(ctx, ctx, err)
		}
	}
	metrics.LLMInFlight.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.LLMInFlight.Dec()
			if g.sem != nil {
				g.sem.Release(1)
			}
		})
	}, nil
}

// classify 区分调用方取消与超时；调用方取消时原样返回 context 错误
func (g *Gateway) classify(parent, callCtx context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		if errors.Is(perr, context.DeadlineExceeded) {
			return NewProviderError(g.Name(), KindTimeout, 0, "request deadline exceeded", perr)
		}
		return perr
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return NewProviderError(g.Name(), KindTimeout, 0, "no response within "+g.timeout.String(), err)
	}
	return Classify(g.Name(), err)
}

func (g *Gateway) observe(mode string, start time.Time, tokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
		var perr *ProviderError
		if errors.As(err, &perr) {
			status = string(perr.Kind)
		} else if errors.Is(err, context.Canceled) {
			status = "canceled"
		}
	}
	metrics.LLMCallTotal.WithLabelValues(g.Name(), g.Model(), mode, status).Inc()
	metrics.LLMCallDuration.WithLabelValues(g.Name(), g.Model(), mode).Observe(time.Since(start).Seconds())
	if tokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(g.Name(), g.Model()).Add(float64(tokens))
	}
}

type gatewayStream struct {
	gateway *Gateway
	inner   Stream
	parent  context.Context
	callCtx context.Context
	cancel  context.CancelFunc
	release func()
	span    trace.Span
	start   time.Time
	msgs    []*schema.Message

	mu        sync.Mutex
	content   []byte
	tokens    int
	estimated bool
	err       error
	done      bool
	once      sync.Once
}

func (s *gatewayStream) Recv() (Chunk, error) {
	chunk, err := s.inner.Recv()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			if s.tokens == 0 && !s.estimated {
				// 后端没有报告用量，补一段只含估算用量的增量
				s.estimated = true
				s.tokens = EstimateTokens(s.msgs, string(s.content))
				return Chunk{TokensUsed: s.tokens}, nil
			}
			return Chunk{}, io.EOF
		}
		s.err = s.gateway.classify(s.parent, s.callCtx, err)
		return Chunk{}, s.err
	}

	s.content = append(s.content, chunk.Content...)
	if chunk.TokensUsed > 0 {
		s.tokens = chunk.TokensUsed
	}
	return chunk, nil
}

// Close 释放连接与并发名额，可重复调用
func (s *gatewayStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.inner.Close()
		s.cancel()
		s.release()

		s.mu.Lock()
		outcome := s.err
		if outcome == nil && !s.done {
			outcome = context.Canceled
		}
		tokens := s.tokens
		s.mu.Unlock()

		s.gateway.observe("stream", s.start, tokens, outcome)
		s.span.SetAttributes(attribute.Int("llm.tokens_used", tokens))
		tracer.EndWithError(s.span, outcome)
	})
	return err
}
