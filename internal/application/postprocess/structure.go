package postprocess

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"content-ai-api/internal/domain/entity"
)

var subjectLine = regexp.MustCompile(`(?mi)^Subject:[ \t]*(.+)$`)

// heading 文档中的一个标题
type heading struct {
	Level int
	Text  string
}

// document 解析出的结构
type document struct {
	Title    string
	Subject  string
	Sections []string
	Headings []heading
}

// parse 用 goldmark 解析标题层级；邮件额外提取 Subject 行
func (p *Processor) parse(ct entity.ContentType, content string) document {
	src := []byte(content)
	root := p.md.Parser().Parse(text.NewReader(src))

	var doc document
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		t := inlineText(h, src)
		doc.Headings = append(doc.Headings, heading{Level: h.Level, Text: t})
		switch {
		case h.Level == 1 && doc.Title == "":
			doc.Title = t
		case h.Level == 2:
			doc.Sections = append(doc.Sections, t)
		}
		return ast.WalkSkipChildren, nil
	})

	if ct == entity.ContentTypeEmail {
		if m := subjectLine.FindStringSubmatch(content); m != nil {
			doc.Subject = strings.TrimSpace(m[1])
		}
	}
	return doc
}

// inlineText 拼接节点下的纯文本
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// checkSections 按内容类型的结构描述检查，返回缺失项
func checkSections(s entity.Structure, doc document) (bool, []string) {
	var missing []string
	if s.RequireTitle && doc.Title == "" {
		missing = append(missing, "title (H1)")
	}
	if s.MinSections > 0 && len(doc.Sections) < s.MinSections {
		missing = append(missing, "at least "+strconv.Itoa(s.MinSections)+" sections (H2)")
	}
	if len(s.ClosingKeywords) > 0 && !hasClosing(doc.Sections, s.ClosingKeywords) {
		missing = append(missing, "closing section ("+strings.Join(s.ClosingKeywords, "/")+")")
	}
	if s.RequireSubject && doc.Subject == "" {
		missing = append(missing, "subject line")
	}
	return len(missing) == 0, missing
}

func hasClosing(sections, keywords []string) bool {
	for _, sec := range sections {
		lower := strings.ToLower(sec)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
