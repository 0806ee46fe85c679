// Package llm 封装可替换的大模型后端，提供同步与流式两种生成方式
package llm

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"content-ai-api/internal/domain/entity"
)

// Result 一次同步生成的结果
type Result struct {
	Content    string
	TokensUsed int
}

// Chunk 流式生成的一段增量；TokensUsed 只在后端报告用量的那一段非零
type Chunk struct {
	Content    string
	TokensUsed int
}

// Stream 惰性、有限、不可重放的增量序列
//
// Recv 在正常结束时返回 io.EOF。提前停止读取的调用方必须 Close 以释放连接。
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider 大模型后端
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (*Result, error)
	Stream(ctx context.Context, msgs []*schema.Message, params entity.GenerationParams) (Stream, error)
}

// EstimateTokens 后端未返回用量时按字符数粗略估算（约 4 字符 1 token）
func EstimateTokens(msgs []*schema.Message, completion string) int {
	chars := utf8.RuneCountInString(completion)
	for _, m := range msgs {
		chars += utf8.RuneCountInString(m.Content)
	}
	return (chars + 3) / 4
}

// joinPrompt 将消息拼成单段提示词，供只接受纯文本的后端使用
func joinPrompt(msgs []*schema.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}
