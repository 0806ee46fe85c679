package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 配额资源类型
const (
	QuotaResourceRequests = "requests"
	QuotaResourceTokens   = "tokens"
)

// QuotaExceededError 客户端当日配额已耗尽
type QuotaExceededError struct {
	Key      string
	Resource string
	Used     int64
	Max      int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s quota exceeded: key=%s used=%d max=%d", e.Resource, e.Key, e.Used, e.Max)
}

// QuotaUsage 某客户端当日用量快照
type QuotaUsage struct {
	Day      time.Time
	Requests int64
	Tokens   int64
}

// QuotaTracker 按 UTC 自然日统计的请求数与 Token 配额
//
// Token 在模型调用完成后才扣减，并发请求可能让当日 Token 总量略微超过上限。
// 扣减按完成时刻归日：跨越 UTC 零点的请求，其请求数记在前一天，Token 记在新的一天。
type QuotaTracker struct {
	maxRequests int64
	maxTokens   int64
	now         func() time.Time

	mu      sync.Mutex
	records map[string]*QuotaUsage
}

// NewQuotaTracker 创建配额统计器
func NewQuotaTracker(maxRequestsPerDay, maxTokensPerDay int64) *QuotaTracker {
	return &QuotaTracker{
		maxRequests: maxRequestsPerDay,
		maxTokens:   maxTokensPerDay,
		now:         time.Now,
		records:     make(map[string]*QuotaUsage),
	}
}

// Admit 检查当日配额并计入一次请求
func (q *QuotaTracker) Admit(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec := q.current(key)
	if rec.Requests >= q.maxRequests {
		return &QuotaExceededError{Key: key, Resource: QuotaResourceRequests, Used: rec.Requests, Max: q.maxRequests}
	}
	if rec.Tokens >= q.maxTokens {
		return &QuotaExceededError{Key: key, Resource: QuotaResourceTokens, Used: rec.Tokens, Max: q.maxTokens}
	}
	rec.Requests++
	return nil
}

// Charge 记入实际消耗的 Token
func (q *QuotaTracker) Charge(_ context.Context, key string, tokens int) {
	if tokens <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current(key).Tokens += int64(tokens)
}

// Usage 返回当日用量
func (q *QuotaTracker) Usage(key string) QuotaUsage {
	today := utcDay(q.now())

	q.mu.Lock()
	defer q.mu.Unlock()
	if rec, ok := q.records[key]; ok && rec.Day.Equal(today) {
		return *rec
	}
	return QuotaUsage{Day: today}
}

// Sweep 清理非当日的记录
func (q *QuotaTracker) Sweep() int {
	today := utcDay(q.now())

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for key, rec := range q.records {
		if !rec.Day.Equal(today) {
			delete(q.records, key)
			removed++
		}
	}
	return removed
}

// current 返回当日记录，跨日时归零；调用方需持有锁
func (q *QuotaTracker) current(key string) *QuotaUsage {
	today := utcDay(q.now())
	rec, ok := q.records[key]
	if !ok || !rec.Day.Equal(today) {
		rec = &QuotaUsage{Day: today}
		q.records[key] = rec
	}
	return rec
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
