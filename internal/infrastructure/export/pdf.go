// Package export 把生成的 markdown 渲染为可下载文档
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"content-ai-api/pkg/logger"
	"content-ai-api/pkg/tracer"
)

// ErrEmptyContent 待导出内容为空
var ErrEmptyContent = errors.New("export: content is empty")

// 版式参数，单位 mm
const (
	pageMargin  = 25.4 // 1 inch
	bodySize    = 11
	bodyLeading = 5.5
)

type rgb struct{ r, g, b int }

var (
	titleColor   = rgb{14, 165, 233}
	sectionColor = rgb{7, 89, 133}
	bodyColor    = rgb{33, 37, 41}
)

// PDFRenderer markdown → PDF 渲染器，可并发使用
type PDFRenderer struct {
	md goldmark.Markdown
}

// NewPDFRenderer 创建渲染器
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{md: goldmark.New()}
}

// Filename 下载文件名
func Filename(contentType string, now time.Time) string {
	return fmt.Sprintf("content-ai-%s-%d.pdf", contentType, now.Unix())
}

// Render 渲染 PDF 并写入 w
func (r *PDFRenderer) Render(ctx context.Context, content, contentType string, w io.Writer) (err error) {
	_, span := tracer.StartStage(ctx, "export")
	defer func() { tracer.EndWithError(span, err) }()

	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("content-ai "+contentType, true)
	pdf.SetCreator("content-ai-api", true)
	pdf.AddPage()

	doc := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	src := []byte(content)
	root := r.md.Parser().Parse(text.NewReader(src))
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		doc.block(n, src)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("export: render pdf: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	logger.Info(ctx, "pdf exported", "content_type", contentType, "bytes", buf.Len())
	return nil
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (d *document) block(n ast.Node, src []byte) {
	switch b := n.(type) {
	case *ast.Heading:
		d.heading(b.Level, plainText(b, src))
	case *ast.Paragraph, *ast.TextBlock:
		d.paragraph("", plainText(b, src))
	case *ast.List:
		i := b.Start
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			bullet := "- "
			if b.IsOrdered() {
				bullet = fmt.Sprintf("%d. ", i)
				i++
			}
			d.paragraph(bullet, plainText(item, src))
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		d.code(blockLines(b, src))
	case *ast.Blockquote:
		for c := b.FirstChild(); c != nil; c = c.NextSibling() {
			d.block(c, src)
		}
	}
}

func (d *document) heading(level int, s string) {
	switch level {
	case 1:
		d.setColor(titleColor)
		d.pdf.SetFont("Helvetica", "B", 24)
		d.pdf.MultiCell(0, 11, d.tr(s), "", "C", false)
		d.pdf.Ln(8)
	case 2:
		d.pdf.Ln(5)
		d.setColor(sectionColor)
		d.pdf.SetFont("Helvetica", "B", 16)
		d.pdf.MultiCell(0, 8, d.tr(s), "", "L", false)
		d.pdf.Ln(3)
	default:
		d.pdf.Ln(3)
		d.setColor(bodyColor)
		d.pdf.SetFont("Helvetica", "B", 13)
		d.pdf.MultiCell(0, 7, d.tr(s), "", "L", false)
		d.pdf.Ln(2)
	}
}

func (d *document) paragraph(prefix, s string) {
	if s == "" {
		return
	}
	d.setColor(bodyColor)
	d.pdf.SetFont("Helvetica", "", bodySize)
	d.pdf.MultiCell(0, bodyLeading, d.tr(prefix+s), "", "L", false)
	d.pdf.Ln(3)
}

func (d *document) code(s string) {
	if s == "" {
		return
	}
	d.setColor(bodyColor)
	d.pdf.SetFont("Courier", "", 9)
	d.pdf.MultiCell(0, 4.5, d.tr(s), "", "L", false)
	d.pdf.Ln(3)
}

func (d *document) setColor(c rgb) {
	d.pdf.SetTextColor(c.r, c.g, c.b)
}

// plainText 拼接节点下所有文本，去掉行内 markdown 标记
func plainText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			switch {
			case t.HardLineBreak():
				sb.WriteByte('\n')
			case t.SoftLineBreak():
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.List:
			// 嵌套列表另起一行
			if c != n && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}
