package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"content-ai-api/internal/config"
	"content-ai-api/internal/domain/entity"
)

const (
	falconModel = "falcon"
	// falconChunkSize 伪流式每段字符数
	falconChunkSize = 50
	maxFalconBody   = 8 << 20
)

// falconContentPaths 自建服务常见的正文字段，按顺序尝试
var falconContentPaths = []string{
	"text", "content", "response", "output",
	"choices.0.text", "choices.0.message.content",
}

// FalconProvider 调用自建的 Falcon HTTP 服务
//
// 服务只有 POST {base}/generate 一个同步接口，流式通过切分完整结果模拟。
type FalconProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewFalconProvider 创建 Falcon 后端；client 为空时使用默认客户端
func NewFalconProvider(cfg config.ProviderConfig, client *http.Client) (*FalconProvider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("falcon base url missing; set FALCON_API_BASE_URL")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &FalconProvider{baseURL: base, apiKey: cfg.APIKey, client: client}, nil
}

func (p *FalconProvider) Name() string  { return config.ProviderFalcon }
func (p *FalconProvider) Model() string { return falconModel }

func (p *FalconProvider) Generate(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (*Result, error) {
	payload, err := falconPayload(joinPrompt(msgs), params)
	if err != nil {
		return nil, NewProviderError(p.Name(), KindUnknown, 0, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError(p.Name(), KindUnknown, 0, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Classify(p.Name(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFalconBody))
	if err != nil {
		return nil, Classify(p.Name(), err)
	}
	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("falcon returned %d: %s", resp.StatusCode, truncate(string(body), 512))
		return nil, NewProviderError(p.Name(), KindFromStatus(resp.StatusCode), resp.StatusCode, msg, nil)
	}

	content, tokens, err := parseFalconResponse(body)
	if err != nil {
		return nil, NewProviderError(p.Name(), KindUnknown, resp.StatusCode, err.Error(), err)
	}
	return &Result{Content: content, TokensUsed: tokens}, nil
}

func (p *FalconProvider) Stream(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (Stream, error) {
	res, err := p.Generate(ctx, msgs, params)
	if err != nil {
		return nil, err
	}
	return &chunkedStream{ctx: ctx, chunks: splitRunes(res.Content, falconChunkSize), tokens: res.TokensUsed}, nil
}

func falconPayload(prompt string, params entity.GenerationParams) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"prompt", prompt},
		{"temperature", params.Temperature},
		{"max_tokens", params.MaxTokens},
		{"top_p", params.TopP},
	} {
		if body, err = sjson.SetBytes(body, kv.path, kv.value); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// parseFalconResponse 兼容纯字符串、常见字段名以及 OpenAI 兼容格式
func parseFalconResponse(body []byte) (string, int, error) {
	if !gjson.ValidBytes(body) {
		return "", 0, errors.New("falcon returned a non-JSON response")
	}
	root := gjson.ParseBytes(body)
	if root.Type == gjson.String {
		return strings.TrimSpace(root.String()), 0, nil
	}

	var content string
	for _, path := range falconContentPaths {
		if v := root.Get(path); v.Exists() && v.String() != "" {
			content = v.String()
			break
		}
	}

	tokens := root.Get("usage.total_tokens")
	if !tokens.Exists() {
		tokens = root.Get("tokens_used")
	}
	return strings.TrimSpace(content), int(tokens.Int()), nil
}

func splitRunes(s string, size int) []string {
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// 回退到 rune 起始字节，避免截断多字节字符
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// chunkedStream 将完整结果切段回放；用量挂在最后一段
type chunkedStream struct {
	ctx    context.Context
	chunks []string
	tokens int
	next   int
}

func (s *chunkedStream) Recv() (Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.next >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	c := Chunk{Content: s.chunks[s.next]}
	s.next++
	if s.next == len(s.chunks) {
		c.TokensUsed = s.tokens
	}
	return c, nil
}

func (s *chunkedStream) Close() error {
	s.next = len(s.chunks)
	return nil
}
