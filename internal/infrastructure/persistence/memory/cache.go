package memory

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"content-ai-api/internal/domain/entity"
	"content-ai-api/pkg/metrics"
)

// DefaultCacheTTL 默认缓存有效期
const DefaultCacheTTL = time.Hour

// Fingerprint 计算归一化请求的稳定指纹
//
// 结构体字段按固定顺序序列化，map 键由 encoding/json 排序，
// 因此与原始请求中键的顺序无关。
func Fingerprint(req *entity.NormalizedRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal normalized request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CacheEntry 缓存条目
type CacheEntry struct {
	Fingerprint string
	Response    entity.GenerateResponse
	CreatedAt   time.Time
	TTL         time.Duration
}

// Expired 判断条目在 now 时是否已过期
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// flight 某个指纹上正在进行的生成
type flight struct {
	done chan struct{}
	resp *entity.GenerateResponse
	err  error
	// abandoned 表示领头者放弃（客户端断开等），等待者应自行重试
	abandoned bool
}

// ResponseCache 带 TTL 与请求合并的响应缓存
//
// 同一指纹同一时刻至多一个生成在进行；其余调用方等待并共享结果。
type ResponseCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element // value: *CacheEntry
	order   *list.List               // 按写入时间从旧到新
	flights map[string]*flight
}

// NewResponseCache 创建响应缓存；maxEntries 为 0 表示不限条目数
func NewResponseCache(ttl time.Duration, maxEntries int) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		flights:    make(map[string]*flight),
	}
}

// Get 返回未过期的缓存响应
func (c *ResponseCache) Get(fingerprint string) (*entity.GenerateResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(fingerprint)
}

// Put 写入缓存
func (c *ResponseCache) Put(fingerprint string, resp *entity.GenerateResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(fingerprint, resp)
}

// Len 返回当前条目数（含尚未清理的过期条目）
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep 清理过期条目，返回清理数量
func (c *ResponseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if entry := el.Value.(*CacheEntry); entry.Expired(now) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	metrics.CacheEntries.Set(float64(c.order.Len()))
	return removed
}

// Acquire 查找缓存或加入正在进行的生成
//
// 返回值三选一：命中时 resp 非空；成为领头者时 lease 非空，调用方必须
// Commit/Fail/Abandon 之一；ctx 结束时返回 ctx.Err()。
func (c *ResponseCache) Acquire(ctx context.Context, fingerprint string) (*entity.GenerateResponse, *Lease, error) {
	ctx, span := tracer.Start(ctx, "cache.Acquire")
	span.SetAttributes(attribute.String("cache.fingerprint", fingerprint))
	defer span.End()

	for {
		c.mu.Lock()
		if resp, ok := c.getLocked(fingerprint); ok {
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			span.SetAttributes(attribute.String("cache.result", "hit"))
			return resp, nil, nil
		}

		f, inFlight := c.flights[fingerprint]
		if !inFlight {
			f = &flight{done: make(chan struct{})}
			c.flights[fingerprint] = f
			c.mu.Unlock()
			metrics.CacheLookups.WithLabelValues("miss").Inc()
			span.SetAttributes(attribute.String("cache.result", "miss"))
			return nil, &Lease{cache: c, fingerprint: fingerprint, flight: f}, nil
		}
		c.mu.Unlock()

		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}

		if f.abandoned {
			continue
		}
		if f.err != nil {
			return nil, nil, f.err
		}
		metrics.CacheLookups.WithLabelValues("shared").Inc()
		span.SetAttributes(attribute.String("cache.result", "shared"))
		return withCached(f.resp), nil, nil
	}
}

// Do 读穿缓存：命中直接返回，否则以领头者身份执行 fn 并写入缓存
// cached 表示结果来自缓存或其他调用方的共享生成
func (c *ResponseCache) Do(
	ctx context.Context,
	fingerprint string,
	fn func(context.Context) (*entity.GenerateResponse, error),
) (resp *entity.GenerateResponse, cached bool, err error) {
	resp, lease, err := c.Acquire(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	if lease == nil {
		return resp, true, nil
	}
	defer lease.Abandon()

	resp, err = fn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			lease.Abandon()
		} else {
			lease.Fail(err)
		}
		return nil, false, err
	}
	lease.Commit(resp)
	return resp, false, nil
}

func (c *ResponseCache) getLocked(fingerprint string) (*entity.GenerateResponse, bool) {
	el, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*CacheEntry)
	if entry.Expired(c.now()) {
		c.removeLocked(el)
		metrics.CacheEntries.Set(float64(c.order.Len()))
		return nil, false
	}
	return withCached(&entry.Response), true
}

func (c *ResponseCache) putLocked(fingerprint string, resp *entity.GenerateResponse) {
	if el, ok := c.entries[fingerprint]; ok {
		c.removeLocked(el)
	}

	entry := &CacheEntry{
		Fingerprint: fingerprint,
		Response:    *resp.Clone(),
		CreatedAt:   c.now(),
		TTL:         c.ttl,
	}
	entry.Response.Metadata.Cached = false
	c.entries[fingerprint] = c.order.PushBack(entry)

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Front())
	}
	metrics.CacheEntries.Set(float64(c.order.Len()))
}

func (c *ResponseCache) removeLocked(el *list.Element) {
	entry := c.order.Remove(el).(*CacheEntry)
	delete(c.entries, entry.Fingerprint)
}

// withCached 返回标记了缓存来源的深拷贝，调用方修改不会影响缓存
func withCached(resp *entity.GenerateResponse) *entity.GenerateResponse {
	cp := resp.Clone()
	cp.Metadata.Cached = true
	return cp
}

// Lease 某指纹生成权的租约，三种结束方式只生效第一次
type Lease struct {
	cache       *ResponseCache
	fingerprint string
	flight      *flight
	once        sync.Once
}

// Commit 写入缓存并唤醒等待者共享结果
func (l *Lease) Commit(resp *entity.GenerateResponse) {
	l.finish(func(c *ResponseCache) {
		c.putLocked(l.fingerprint, resp)
		l.flight.resp = resp.Clone()
	})
}

// Fail 以错误结束，等待者收到同一错误
func (l *Lease) Fail(err error) {
	l.finish(func(*ResponseCache) {
		l.flight.err = err
	})
}

// Abandon 放弃生成（领头者取消），等待者重新竞争生成权
func (l *Lease) Abandon() {
	l.finish(func(*ResponseCache) {
		l.flight.abandoned = true
	})
}

func (l *Lease) finish(apply func(*ResponseCache)) {
	l.once.Do(func() {
		c := l.cache
		c.mu.Lock()
		apply(c)
		if c.flights[l.fingerprint] == l.flight {
			delete(c.flights, l.fingerprint)
		}
		c.mu.Unlock()
		close(l.flight.done)
	})
}
