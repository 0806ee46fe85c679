package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"content-ai-api/internal/domain/entity"
)

func sampleRequest(temp float64) *entity.NormalizedRequest {
	return &entity.NormalizedRequest{
		ContentType: entity.ContentTypeBlogPost,
		WordTarget:  800,
		Tone:        entity.ToneFriendly,
		Brief:       entity.BlogPostBrief{Topic: "Go generics", Audience: "developers", Expertise: "intermediate"},
		Params:      entity.GenerationParams{Temperature: temp, MaxTokens: 2000, TopP: 0.9},
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	a, err := Fingerprint(sampleRequest(0.7))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Fingerprint(sampleRequest(0.7))
	if a != b {
		t.Errorf("same request produced different fingerprints")
	}
	c, _ := Fingerprint(sampleRequest(0.8))
	if a == c {
		t.Errorf("temperature change did not change fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("len = %d, want 64 hex chars", len(a))
	}
}

func TestCacheHitMarksCopy(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	c.Put("fp", &entity.GenerateResponse{Content: "hello", Metadata: entity.Metadata{WordCount: 1}})

	got, ok := c.Get("fp")
	if !ok || !got.Metadata.Cached || got.Content != "hello" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	got.Content = "mutated"
	again, _ := c.Get("fp")
	if again.Content != "hello" {
		t.Errorf("stored entry was mutated through returned copy")
	}
}

func TestCacheEntriesDoNotShareSlices(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	dev := 0.2
	orig := &entity.GenerateResponse{
		Content: "hello",
		Metadata: entity.Metadata{
			Sections:    []string{"Intro", "Body"},
			Hashtags:    []string{"go"},
			SEOKeywords: []string{"generics"},
			Warnings:    []entity.Warning{{Code: entity.WarningWordCountOutOfRange, Deviation: &dev}},
		},
	}
	c.Put("fp", orig)

	// 修改写入方与读取方持有的切片都不能影响缓存
	orig.Metadata.Sections[0] = "changed"
	got, _ := c.Get("fp")
	got.Metadata.Hashtags[0] = "changed"
	got.Metadata.SEOKeywords[0] = "changed"
	got.Metadata.Warnings[0].Code = "changed"
	*got.Metadata.Warnings[0].Deviation = 9

	again, _ := c.Get("fp")
	m := again.Metadata
	if m.Sections[0] != "Intro" || m.Hashtags[0] != "go" || m.SEOKeywords[0] != "generics" {
		t.Errorf("cached slices mutated: %+v", m)
	}
	if m.Warnings[0].Code != entity.WarningWordCountOutOfRange || *m.Warnings[0].Deviation != 0.2 {
		t.Errorf("cached warning mutated: %+v", m.Warnings[0])
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewResponseCache(time.Minute, 0)
	c.now = clock.Now
	c.Put("fp", &entity.GenerateResponse{Content: "x"})

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("fp"); !ok {
		t.Fatal("entry expired early")
	}
	clock.Advance(time.Second)
	if _, ok := c.Get("fp"); ok {
		t.Fatal("entry served after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want expired entry dropped", c.Len())
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewResponseCache(time.Hour, 2)
	c.Put("a", &entity.GenerateResponse{Content: "a"})
	c.Put("b", &entity.GenerateResponse{Content: "b"})
	c.Put("c", &entity.GenerateResponse{Content: "c"})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	for _, fp := range []string{"b", "c"} {
		if _, ok := c.Get(fp); !ok {
			t.Errorf("%s missing", fp)
		}
	}
}

func TestCacheSweep(t *testing.T) {
	clock := newFakeClock()
	c := NewResponseCache(time.Minute, 0)
	c.now = clock.Now
	c.Put("old", &entity.GenerateResponse{})
	clock.Advance(45 * time.Second)
	c.Put("new", &entity.GenerateResponse{})
	clock.Advance(30 * time.Second)

	if n := c.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCacheCoalescesConcurrentCalls(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (*entity.GenerateResponse, error) {
		calls.Add(1)
		<-release
		return &entity.GenerateResponse{Content: "generated"}, nil
	}

	const n = 20
	var wg sync.WaitGroup
	var cachedCount atomic.Int32
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, cached, err := c.Do(ctx, "fp", fn)
			if err != nil {
				t.Errorf("Do: %v", err)
				return
			}
			if cached {
				cachedCount.Add(1)
			}
			results[i] = resp.Content
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("fn called %d times, want 1", got)
	}
	if got := cachedCount.Load(); got != n-1 {
		t.Errorf("cached = %d, want %d", got, n-1)
	}
	for i, r := range results {
		if r != "generated" {
			t.Errorf("result[%d] = %q", i, r)
		}
	}
}

func TestCacheFailureSharedNotCached(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	ctx := context.Background()
	boom := errors.New("provider down")

	_, _, err := c.Do(ctx, "fp", func(context.Context) (*entity.GenerateResponse, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get("fp"); ok {
		t.Fatal("failed generation must not be cached")
	}

	// 失败后下一次调用重新生成
	resp, cached, err := c.Do(ctx, "fp", func(context.Context) (*entity.GenerateResponse, error) {
		return &entity.GenerateResponse{Content: "ok"}, nil
	})
	if err != nil || cached || resp.Content != "ok" {
		t.Fatalf("retry = %+v, %v, %v", resp, cached, err)
	}
}

func TestAbandonedLeaseLetsWaiterTakeOver(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	ctx := context.Background()

	_, lease, err := c.Acquire(ctx, "fp")
	if err != nil || lease == nil {
		t.Fatalf("leader Acquire = %v, %v", lease, err)
	}

	type outcome struct {
		lease *Lease
		err   error
	}
	waiter := make(chan outcome, 1)
	go func() {
		_, l, err := c.Acquire(ctx, "fp")
		waiter <- outcome{l, err}
	}()

	time.Sleep(20 * time.Millisecond)
	lease.Abandon()

	select {
	case got := <-waiter:
		if got.err != nil || got.lease == nil {
			t.Fatalf("waiter = %+v, want new lease", got)
		}
		got.lease.Commit(&entity.GenerateResponse{Content: "second"})
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after abandon")
	}

	resp, ok := c.Get("fp")
	if !ok || resp.Content != "second" {
		t.Errorf("Get = %+v, %v", resp, ok)
	}
}

func TestWaiterContextCancelled(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	_, lease, _ := c.Acquire(context.Background(), "fp")
	defer lease.Abandon()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, l, err := c.Acquire(ctx, "fp")
	if l != nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire = %v, %v; want deadline exceeded", l, err)
	}
}

func TestLeaseFinishesOnce(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	_, lease, _ := c.Acquire(context.Background(), "fp")
	lease.Commit(&entity.GenerateResponse{Content: "first"})
	lease.Fail(errors.New("late"))
	lease.Abandon()

	resp, ok := c.Get("fp")
	if !ok || resp.Content != "first" {
		t.Errorf("Get = %+v, %v", resp, ok)
	}
}
