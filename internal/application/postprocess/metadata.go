package postprocess

import (
	"regexp"
	"strings"

	"content-ai-api/internal/domain/entity"
)

var (
	keywordWord = regexp.MustCompile(`\b[a-z]{4,}\b`)
	hashtagWord = regexp.MustCompile(`#(\w+)`)
)

// linkedInFallbackHashtags 领英帖子未带话题标签时从标题补齐的数量
const linkedInFallbackHashtags = 5

// annotate 按内容类型补充关键词与话题标签
func (p *Processor) annotate(req *entity.NormalizedRequest, doc document, content string, meta *entity.Metadata) {
	switch brief := req.Brief.(type) {
	case entity.BlogPostBrief:
		if brief.SEOEnabled {
			meta.SEOKeywords = headingKeywords(doc, p.opts.MaxKeywords)
		}
	case entity.SocialMediaBrief:
		meta.Hashtags = extractHashtags(content)
		if len(meta.Hashtags) == 0 && brief.HashtagCount > 0 {
			meta.Hashtags = headingKeywords(doc, brief.HashtagCount)
		}
	case entity.LinkedInBrief:
		meta.Hashtags = extractHashtags(content)
		if len(meta.Hashtags) == 0 && brief.IncludeHashtags {
			meta.Hashtags = headingKeywords(doc, linkedInFallbackHashtags)
		}
	}
}

// headingKeywords H1-H3 标题中 4 个字母以上的单词，去重保序
func headingKeywords(doc document, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range doc.Headings {
		if h.Level > 3 {
			continue
		}
		for _, w := range keywordWord.FindAllString(strings.ToLower(h.Text), -1) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// extractHashtags 正文中的 #标签，去重保序，忽略 2 个字符及以下的
func extractHashtags(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range hashtagWord.FindAllStringSubmatch(content, -1) {
		tag := m[1]
		if len(tag) <= 2 {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
