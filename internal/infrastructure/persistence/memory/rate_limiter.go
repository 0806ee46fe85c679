// Package memory 提供进程内的限流、配额与响应缓存实现
//
// 状态只存在于当前进程，重启即清空。
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("memory")

// RateLimitExceededError 客户端在窗口内的请求数已达上限
type RateLimitExceededError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: key=%s limit=%d window=%s", e.Key, e.Limit, e.Window)
}

// RateLimiter 滑动窗口限流器，按客户端标识分桶
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// bucket 单个客户端的请求时间戳，按时间升序
type bucket struct {
	mu   sync.Mutex
	hits []time.Time
	dead bool
}

// NewRateLimiter 创建限流器：window 内最多 limit 次请求
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow 检查并记录一次请求；超限时返回 *RateLimitExceededError
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	_, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", l.limit),
		attribute.Int64("ratelimit.window_ms", l.window.Milliseconds()),
	)
	defer span.End()

	for {
		b := l.bucketFor(key)
		b.mu.Lock()
		if b.dead {
			// 已被清理协程摘除，重新取桶
			b.mu.Unlock()
			continue
		}

		now := l.now()
		b.prune(now.Add(-l.window))
		span.SetAttributes(attribute.Int("ratelimit.current_count", len(b.hits)))

		if len(b.hits) >= l.limit {
			retryAfter := b.hits[0].Add(l.window).Sub(now)
			b.mu.Unlock()
			span.SetAttributes(attribute.Bool("ratelimit.allowed", false))
			return &RateLimitExceededError{Key: key, Limit: l.limit, Window: l.window, RetryAfter: retryAfter}
		}

		b.hits = append(b.hits, now)
		b.mu.Unlock()
		span.SetAttributes(attribute.Bool("ratelimit.allowed", true))
		return nil
	}
}

// Remaining 返回窗口内剩余可用次数
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	b, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		return l.limit
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(l.now().Add(-l.window))
	return max(0, l.limit-len(b.hits))
}

// Reset 清空指定客户端的记录
func (l *RateLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		b.mu.Lock()
		b.dead = true
		b.mu.Unlock()
		delete(l.buckets, key)
	}
}

// Sweep 摘除窗口内已无请求的桶，返回摘除数量
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		b.prune(cutoff)
		if len(b.hits) == 0 {
			b.dead = true
			delete(l.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

func (l *RateLimiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

// prune 丢弃 cutoff 及之前的时间戳，保证桶内只保留一个窗口的数据
func (b *bucket) prune(cutoff time.Time) {
	i := 0
	for i < len(b.hits) && !b.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.hits = append(b.hits[:0], b.hits[i:]...)
	}
}
