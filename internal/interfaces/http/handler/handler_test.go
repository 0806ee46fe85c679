package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"content-ai-api/internal/application/generation"
	"content-ai-api/internal/config"
	"content-ai-api/internal/domain/entity"
	"content-ai-api/internal/infrastructure/export"
	"content-ai-api/internal/infrastructure/llm"
	"content-ai-api/internal/infrastructure/persistence/memory"
	"content-ai-api/internal/interfaces/http/dto"
	"content-ai-api/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	calls   atomic.Int32
	content string
	chunks  []string
	err     error
	// block 为 true 时流在发完 chunks 后阻塞到 ctx 结束
	block     bool
	cancelled chan struct{}
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-model" }

func (p *stubProvider) Generate(ctx context.Context, _ []*schema.Message, _ entity.GenerationParams) (*llm.Result, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Result{Content: p.content, TokensUsed: 20}, nil
}

func (p *stubProvider) Stream(ctx context.Context, _ []*schema.Message, _ entity.GenerationParams) (llm.Stream, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &stubStream{ctx: ctx, p: p}, nil
}

type stubStream struct {
	ctx context.Context
	p   *stubProvider
	i   int
}

func (s *stubStream) Recv() (llm.Chunk, error) {
	if s.i < len(s.p.chunks) {
		s.i++
		return llm.Chunk{Content: s.p.chunks[s.i-1]}, nil
	}
	if s.p.block {
		<-s.ctx.Done()
		close(s.p.cancelled)
		return llm.Chunk{}, s.ctx.Err()
	}
	return llm.Chunk{TokensUsed: 5}, io.EOF
}

func (s *stubStream) Close() error { return nil }

// testProxies httptest.NewRequest 的对端地址与内网段视为受信代理
var testProxies = []string{"192.0.2.1", "10.0.0.0/8"}

func newEngine(t *testing.T, p *stubProvider, limiter *memory.RateLimiter) *gin.Engine {
	t.Helper()
	return newEngineTrusting(t, p, limiter, testProxies)
}

func newEngineTrusting(t *testing.T, p *stubProvider, limiter *memory.RateLimiter, trusted []string) *gin.Engine {
	t.Helper()
	svc, err := generation.NewService(generation.Options{
		Limiter:  limiter,
		Cache:    memory.NewResponseCache(time.Hour, 0),
		Provider: p,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)

	cfg := &config.Config{}
	cfg.App.Name = "content-ai-api"
	cfg.App.Version = "test"
	cfg.LLM.Provider = "openai"

	e := gin.New()
	if err := e.SetTrustedProxies(trusted); err != nil {
		t.Fatal(err)
	}
	e.Use(middleware.ClientIP())
	e.GET("/health", NewHealthHandler(cfg).Health)
	e.GET("/ready", NewHealthHandler(cfg).Ready)
	e.POST("/generate", NewGenerateHandler(svc).Generate)
	e.GET("/generate/stream", NewStreamHandler(svc).Stream)
	e.POST("/export/pdf", NewExportHandler(export.NewPDFRenderer()).ExportPDF)
	return e
}

const linkedInBody = `{
	"content_type": "linkedin",
	"context": {"topic": "Remote work habits", "target_audience": "Engineering managers", "tone": "professional"},
	"specifications": {"word_target": 100}
}`

func post(e *gin.Engine, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestGenerateCacheHeader(t *testing.T) {
	p := &stubProvider{content: "# Remote work\n\nAsync first. #remote #management"}
	e := newEngine(t, p, nil)

	w := post(e, "/generate", linkedInBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q", got)
	}
	var resp entity.GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.Provider != "stub" || resp.Metadata.TokensUsed != 20 {
		t.Errorf("metadata = %+v", resp.Metadata)
	}

	w = post(e, "/generate", linkedInBody)
	if got := w.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q", got)
	}
	if p.calls.Load() != 1 {
		t.Errorf("provider calls = %d", p.calls.Load())
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		provider error
		status   int
		code     string
	}{
		{"malformed json", `{"content_type":`, nil, 400, "1001"},
		{"missing field", `{"content_type":"linkedin","context":{"topic":"Remote work"}}`, nil, 400, "4002"},
		{"unsupported type", `{"content_type":"poem","context":{"topic":"x"}}`, nil, 400, "4003"},
		{"provider auth", linkedInBody, llm.NewProviderError("stub", llm.KindAuth, 401, "invalid key", nil), 502, "5001"},
		{"provider rate limited", linkedInBody, llm.NewProviderError("stub", llm.KindRateLimited, 429, "slow down", nil), 502, "5002"},
		{"provider timeout", linkedInBody, llm.NewProviderError("stub", llm.KindTimeout, 0, "no response", nil), 504, "5003"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newEngine(t, &stubProvider{content: "x", err: c.provider}, nil)
			w := post(e, "/generate", c.body)
			if w.Code != c.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, c.status, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Error == nil || resp.Error.ErrorCode != c.code {
				t.Errorf("error = %+v, want code %s", resp.Error, c.code)
			}
		})
	}
}

func TestGenerateValidationNamesField(t *testing.T) {
	e := newEngine(t, &stubProvider{content: "x"}, nil)
	w := post(e, "/generate", `{"content_type":"linkedin","context":{"topic":"Remote work","tone":"professional"}}`)
	resp := decodeError(t, w)
	if resp.Error == nil || resp.Error.Field != "context.target_audience" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestGenerateRateLimitPerClient(t *testing.T) {
	e := newEngine(t, &stubProvider{content: "x"}, memory.NewRateLimiter(1, time.Minute))

	if w := post(e, "/generate", linkedInBody, "X-Forwarded-For", "203.0.113.7, 10.0.0.1"); w.Code != 200 {
		t.Fatalf("first status = %d", w.Code)
	}
	w := post(e, "/generate", linkedInBody, "X-Forwarded-For", "203.0.113.7")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if w := post(e, "/generate", linkedInBody, "X-Real-IP", "198.51.100.2"); w.Code != 200 {
		t.Errorf("other client status = %d", w.Code)
	}
}

func TestGenerateRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	e := newEngineTrusting(t, &stubProvider{content: "x"}, memory.NewRateLimiter(2, time.Minute), nil)

	admitted := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(linkedInBody))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.18.0.%d", i+1))
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("admitted = %d, want 2", admitted)
	}
}

func TestProviderErrorDoesNotLeakKey(t *testing.T) {
	perr := llm.NewProviderError("stub", llm.KindAuth, 401, "Incorrect API key provided: sk-abcdefghijklmnopqrstuvwx", nil)
	e := newEngine(t, &stubProvider{err: perr}, nil)
	w := post(e, "/generate", linkedInBody)
	if strings.Contains(w.Body.String(), "sk-abcdefghijklmnopqrstuvwx") {
		t.Fatalf("credential leaked: %s", w.Body.String())
	}
}

func streamURL(base, body string) string {
	return base + "/generate/stream?data=" + url.QueryEscape(body)
}

func TestStreamFrames(t *testing.T) {
	p := &stubProvider{chunks: []string{"Hello ", "async ", "world"}}
	srv := httptest.NewServer(newEngine(t, p, nil))
	defer srv.Close()

	resp, err := http.Get(streamURL(srv.URL, linkedInBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp.Header.Get("X-Accel-Buffering") != "no" {
		t.Error("missing X-Accel-Buffering")
	}
	body, _ := io.ReadAll(resp.Body)
	want := `data: {"content":"Hello "}` + "\n\n" +
		`data: {"content":"async "}` + "\n\n" +
		`data: {"content":"world"}` + "\n\n" +
		"data: [DONE]\n\n"
	if string(body) != want {
		t.Errorf("body =\n%s\nwant\n%s", body, want)
	}
}

func TestStreamAdmissionErrorIsJSON(t *testing.T) {
	e := newEngine(t, &stubProvider{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/generate/stream?data="+url.QueryEscape(`{"content_type":"linkedin","context":{}}`), nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Error("stream opened for rejected request")
	}

	req = httptest.NewRequest(http.MethodGet, "/generate/stream", nil)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if resp := decodeError(t, w); resp.Error == nil || resp.Error.Field != "data" {
		t.Errorf("missing data error = %+v", resp.Error)
	}
}

func TestStreamProviderErrorFrame(t *testing.T) {
	p := &stubProvider{err: llm.NewProviderError("stub", llm.KindTimeout, 0, "no response within 60s", nil)}
	srv := httptest.NewServer(newEngine(t, p, nil))
	defer srv.Close()

	resp, err := http.Get(streamURL(srv.URL, linkedInBody))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if strings.Contains(string(body), "[DONE]") {
		t.Errorf("error stream sent [DONE]: %s", body)
	}
	line := strings.TrimSpace(strings.TrimPrefix(string(body), "data: "))
	var frame dto.StreamError
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		t.Fatalf("frame %q: %v", line, err)
	}
	if frame.Code != "5003" || !strings.Contains(frame.Error, "timed out") {
		t.Errorf("frame = %+v", frame)
	}
}

func TestStreamClientDisconnectCancelsUpstream(t *testing.T) {
	p := &stubProvider{chunks: []string{"first "}, block: true, cancelled: make(chan struct{})}
	srv := httptest.NewServer(newEngine(t, p, nil))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, streamURL(srv.URL, linkedInBody), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(line, "first") {
		t.Fatalf("first frame = %q", line)
	}

	cancel()
	resp.Body.Close()

	select {
	case <-p.cancelled:
	case <-time.After(3 * time.Second):
		t.Fatal("upstream call not cancelled after client disconnect")
	}
}

func TestExportPDF(t *testing.T) {
	e := newEngine(t, &stubProvider{}, nil)

	w := post(e, "/export/pdf", `{"content":"# Title\n\nBody text.","content_type":"blog_post\r\nX-Evil: 1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="content-ai-blog_post_X-Evil_1-`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a pdf")
	}

	w = post(e, "/export/pdf", `{"content":"   ","content_type":"email"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank content status = %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newEngine(t, &stubProvider{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	var resp dto.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Provider != "openai" || resp.Service != "content-ai-api" {
		t.Errorf("health = %+v", resp)
	}

	// 没有配置 API key
	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d", w.Code)
	}
}
