package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"content-ai-api/internal/domain/entity"
	"content-ai-api/pkg/logger"
)

// Session 一次流式生成
//
// Deltas 按模型输出顺序投递增量，生成结束（成功、失败或取消）后关闭；
// 之后 Result 返回最终结果或错误。
type Session struct {
	deltas chan string
	done   chan struct{}
	cancel context.CancelFunc

	resp *entity.GenerateResponse
	err  error
}

// Deltas 增量文本通道
func (s *Session) Deltas() <-chan string { return s.deltas }

// Result 等待生成结束并返回结果
func (s *Session) Result() (*entity.GenerateResponse, error) {
	<-s.done
	return s.resp, s.err
}

// Close 取消上游调用，可重复调用
func (s *Session) Close() { s.cancel() }

// Stream 流式生成
//
// 校验、限流、配额在返回前同步完成，失败时直接返回错误；之后的缓存、模型
// 与后处理错误通过 Session.Result 返回。ctx 结束或调用 Close 都会取消上游。
func (s *Service) Stream(ctx context.Context, clientIP string, req *entity.GenerateRequest) (*Session, error) {
	norm, fingerprint, err := s.admit(ctx, clientIP, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		deltas: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(sess.done)
		defer cancel()
		defer close(sess.deltas)

		start := time.Now()
		sess.resp, sess.err = s.stream(ctx, clientIP, norm, fingerprint, sess.deltas)
		s.observe(norm.ContentType, "stream", start, sess.resp, sess.err)
		if sess.err != nil && !errors.Is(sess.err, context.Canceled) {
			logger.Error(ctx, "stream generation failed", sess.err, "content_type", norm.ContentType)
		}
	}()
	return sess, nil
}

func (s *Service) stream(
	ctx context.Context,
	clientIP string,
	norm *entity.NormalizedRequest,
	fingerprint string,
	out chan<- string,
) (*entity.GenerateResponse, error) {
	cached, lease, err := s.cache.Acquire(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		// 命中缓存或共享了其他请求的结果：整段作为一个增量回放
		if err := send(ctx, out, cached.Content); err != nil {
			return nil, err
		}
		return cached, nil
	}

	resp, err := s.relay(ctx, norm, out)
	switch {
	case err == nil:
		lease.Commit(resp)
		s.charge(ctx, clientIP, resp.Metadata.TokensUsed)
		return resp, nil
	case ctx.Err() != nil:
		// 客户端离开：释放占位，让等待者重新生成
		lease.Abandon()
		return nil, ctx.Err()
	default:
		lease.Fail(err)
		return nil, err
	}
}

// relay 打开上游流并转发增量，结束后对全文做后处理
//
// 生产者读取上游，消费者转发并累积全文；任一方出错或 ctx 取消都会让另一方退出。
func (s *Service) relay(ctx context.Context, norm *entity.NormalizedRequest, out chan<- string) (*entity.GenerateResponse, error) {
	msgs, err := s.builder.Build(ctx, norm)
	if err != nil {
		return nil, err
	}
	upstream, err := s.provider.Stream(ctx, msgs, norm.Params)
	if err != nil {
		return nil, err
	}
	defer upstream.Close()

	// content 只由消费者写，tokens 只由生产者写，Wait 之后才读取
	var (
		content strings.Builder
		tokens  int
	)
	pipe := make(chan string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pipe)
		for {
			chunk, err := upstream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if chunk.TokensUsed > 0 {
				tokens = chunk.TokensUsed
			}
			if chunk.Content == "" {
				continue
			}
			if err := send(gctx, pipe, chunk.Content); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		for delta := range pipe {
			content.WriteString(delta)
			if err := send(gctx, out, delta); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return s.finish(ctx, norm, content.String(), tokens), nil
}

func send(ctx context.Context, ch chan<- string, v string) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
