package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"content-ai-api/internal/domain/entity"
)

// blockingProvider 在 ctx 结束前一直阻塞
type blockingProvider struct {
	started chan struct{}
	tokens  int
}

func (p *blockingProvider) Name() string  { return "fake" }
func (p *blockingProvider) Model() string { return "fake-model" }

func (p *blockingProvider) Generate(ctx context.Context, _ []*schema.Message, _ entity.GenerationParams) (*Result, error) {
	if p.started != nil {
		close(p.started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *blockingProvider) Stream(ctx context.Context, _ []*schema.Message, _ entity.GenerationParams) (Stream, error) {
	return &ctxStream{ctx: ctx, parts: []string{"a", "b"}, tokens: p.tokens}, nil
}

type ctxStream struct {
	ctx    context.Context
	parts  []string
	tokens int
	closed bool
}

func (s *ctxStream) Recv() (Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if len(s.parts) == 0 {
		return Chunk{}, io.EOF
	}
	c := Chunk{Content: s.parts[0]}
	s.parts = s.parts[1:]
	if len(s.parts) == 0 {
		c.TokensUsed = s.tokens
	}
	return c, nil
}

func (s *ctxStream) Close() error {
	s.closed = true
	return nil
}

func TestGatewayTimeoutBecomesProviderTimeout(t *testing.T) {
	g := NewGateway(&blockingProvider{}, 20*time.Millisecond, 0)
	_, err := g.Generate(context.Background(), testMessages(), testParams)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindTimeout {
		t.Fatalf("err = %v, want Timeout ProviderError", err)
	}
}

func TestGatewayCallerCancelIsNotTimeout(t *testing.T) {
	p := &blockingProvider{started: make(chan struct{})}
	g := NewGateway(p, time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-p.started
		cancel()
	}()
	_, err := g.Generate(ctx, testMessages(), testParams)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGatewayStreamEstimatesMissingUsage(t *testing.T) {
	g := NewGateway(&blockingProvider{}, time.Minute, 1)
	st, err := g.Stream(context.Background(), testMessages(), testParams)
	if err != nil {
		t.Fatal(err)
	}

	var content string
	var tokens int
	for {
		c, err := st.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		content += c.Content
		tokens += c.TokensUsed
	}
	if content != "ab" {
		t.Errorf("content = %q", content)
	}
	if tokens <= 0 {
		t.Errorf("tokens = %d, want estimate", tokens)
	}
	_ = st.Close()

	// 名额已释放，第二个流可以立即打开
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	st2, err := g.Stream(ctx, testMessages(), testParams)
	if err != nil {
		t.Fatalf("second stream: %v", err)
	}
	_ = st2.Close()
}

func TestGatewayStreamCloseCancelsUpstream(t *testing.T) {
	g := NewGateway(&blockingProvider{tokens: 5}, time.Minute, 0)
	st, err := g.Stream(context.Background(), testMessages(), testParams)
	if err != nil {
		t.Fatal(err)
	}
	inner := st.(*gatewayStream).inner.(*ctxStream)
	if _, err := st.Recv(); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if !inner.closed {
		t.Error("inner stream not closed")
	}
	if inner.ctx.Err() == nil {
		t.Error("upstream context still live after Close")
	}
}
