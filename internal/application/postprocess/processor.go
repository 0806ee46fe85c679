// Package postprocess 解析、清洗并标注模型生成的文本
//
// 所有检查都是软失败：偏差只记入元数据与警告，从不让请求失败。
package postprocess

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"content-ai-api/internal/domain/entity"
	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/metrics"
	"content-ai-api/pkg/tracer"
)

// DefaultArtifactPatterns 默认剔除的 AI 自我声明短语
//
// 两端带 \b，避免命中 "I am an aircraft" 之类的正常文本。
var DefaultArtifactPatterns = []string{
	`\bas an ai (assistant|model|language model)\b`,
	`\bi'm an ai\b`,
	`\bi am an ai\b`,
	`\bi'm sorry,? but i\b`,
	`\bas a (language model|ai)\b`,
}

// Options 后处理参数
type Options struct {
	// WordCountTolerance 字数容差比例，0.1 表示 ±10%
	WordCountTolerance float64
	WordsPerMinute     int
	MaxKeywords        int
	// ArtifactPatterns 按原样编译（仅追加大小写不敏感），词边界需自行写入
	ArtifactPatterns   []string
}

func (o *Options) applyDefaults() {
	if o.WordCountTolerance <= 0 {
		o.WordCountTolerance = 0.1
	}
	if o.WordsPerMinute <= 0 {
		o.WordsPerMinute = 200
	}
	if o.MaxKeywords <= 0 {
		o.MaxKeywords = 5
	}
	if len(o.ArtifactPatterns) == 0 {
		o.ArtifactPatterns = DefaultArtifactPatterns
	}
}

// Processor 后处理器，创建后只读，可并发使用
type Processor struct {
	opts      Options
	artifacts []*regexp.Regexp
	md        goldmark.Markdown
}

// New 创建后处理器；短语按大小写不敏感编译
func New(opts Options) (*Processor, error) {
	opts.applyDefaults()
	p := &Processor{opts: opts, md: goldmark.New()}
	for _, pattern := range opts.ArtifactPatterns {
		re, err := regexp.Compile(`(?i)` + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid artifact pattern %q: %w", pattern, err)
		}
		p.artifacts = append(p.artifacts, re)
	}
	return p, nil
}

// Process 清洗文本并计算元数据
//
// 返回的 Metadata 不含 TokensUsed/Provider/Model，由调用方补充。
func (p *Processor) Process(ctx context.Context, req *entity.NormalizedRequest, raw string) *entity.GenerateResponse {
	_, span := tracer.StartStage(ctx, "postprocess")
	defer span.End()

	var warnings []entity.Warning

	content, removed := p.removeArtifacts(raw)
	if removed > 0 {
		warnings = append(warnings, entity.Warning{
			Code:    entity.WarningArtifactsRemoved,
			Message: fmt.Sprintf("removed %d AI disclosure phrase(s)", removed),
		})
	}
	content = normalizeWhitespace(content)

	doc := p.parse(req.ContentType, content)
	wordCount := CountWords(content)
	valid, w := p.checkWordCount(wordCount, req.WordTarget)
	if w != nil {
		warnings = append(warnings, *w)
	}

	spec := req.Spec()
	complete, missing := checkSections(spec.Structure, doc)
	if !complete {
		warnings = append(warnings, entity.Warning{
			Code:    entity.WarningMissingSections,
			Message: "missing expected structure: " + strings.Join(missing, ", "),
		})
	}

	meta := entity.Metadata{
		WordCount:         wordCount,
		TargetWordCount:   req.WordTarget,
		WordCountValid:    valid,
		Title:             doc.Title,
		Subject:           doc.Subject,
		Sections:          doc.Sections,
		SectionsComplete:  complete,
		EstimatedReadTime: p.readTime(wordCount),
		Warnings:          warnings,
	}
	if meta.Sections == nil {
		meta.Sections = []string{}
	}
	p.annotate(req, doc, content, &meta)

	for _, w := range warnings {
		metrics.PostProcessWarnings.WithLabelValues(string(req.ContentType), w.Code).Inc()
		logger.Warn(ctx, "post-processing warning", "code", w.Code, "detail", w.Message)
	}
	return &entity.GenerateResponse{Content: content, Metadata: meta}
}

// removeArtifacts 删除配置的短语，返回删除次数
func (p *Processor) removeArtifacts(s string) (string, int) {
	removed := 0
	for _, re := range p.artifacts {
		n := len(re.FindAllStringIndex(s, -1))
		if n == 0 {
			continue
		}
		removed += n
		s = re.ReplaceAllString(s, "")
	}
	if removed > 0 {
		// 短语删掉后行首可能残留标点
		s = danglingPunct.ReplaceAllString(s, "")
	}
	return s, removed
}

// checkWordCount 容差内外都会在有偏差时给出警告，区别只在警告码
func (p *Processor) checkWordCount(actual, target int) (bool, *entity.Warning) {
	if target <= 0 {
		return true, nil
	}
	tol := p.opts.WordCountTolerance
	lower := float64(target) * (1 - tol)
	upper := float64(target) * (1 + tol)
	valid := float64(actual) >= lower && float64(actual) <= upper

	if actual == target {
		return true, nil
	}
	deviation := math.Round(float64(actual-target)/float64(target)*1000) / 1000
	direction := "above"
	if deviation < 0 {
		direction = "below"
	}
	w := &entity.Warning{Deviation: &deviation}
	if valid {
		w.Code = entity.WarningWordCountDeviation
		w.Message = fmt.Sprintf("word count %d is %.1f%% %s target %d (within ±%.0f%% tolerance)",
			actual, math.Abs(deviation)*100, direction, target, tol*100)
	} else {
		w.Code = entity.WarningWordCountOutOfRange
		w.Message = fmt.Sprintf("word count %d is %.1f%% %s target %d (outside ±%.0f%% tolerance)",
			actual, math.Abs(deviation)*100, direction, target, tol*100)
	}
	return valid, w
}

func (p *Processor) readTime(words int) string {
	minutes := int(math.Max(1, math.RoundToEven(float64(words)/float64(p.opts.WordsPerMinute))))
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

var (
	markdownPunct    = regexp.MustCompile("[#*`_\\[\\]()]")
	danglingPunct    = regexp.MustCompile(`(?m)^[ \t]*[,;:][ \t]*`)
	trailingSpace    = regexp.MustCompile(`(?m)[ \t]+$`)
	innerSpaceRun    = regexp.MustCompile(`(\S) {2,}`)
	headingNoGap     = regexp.MustCompile(`(?m)^(#{2,6}[^\n]*)\n([^\n])`)
	excessBlankLines = regexp.MustCompile(`\n{3,}`)
)

// CountWords 去掉 markdown 符号后按空白切分计数
func CountWords(s string) int {
	return len(strings.Fields(markdownPunct.ReplaceAllString(s, "")))
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "")
	s = innerSpaceRun.ReplaceAllString(s, "$1 ")
	s = headingNoGap.ReplaceAllString(s, "$1\n\n$2")
	s = excessBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
