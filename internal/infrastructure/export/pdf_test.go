package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuin/goldmark/text"
)

func TestRenderProducesPDF(t *testing.T) {
	r := NewPDFRenderer()
	content := "# Quarterly Update\n\n## Highlights\n\nRevenue grew **12%** with [details](https://example.com).\n\n" +
		"- first item\n- second item\n\n1. step one\n2. step two\n\n```\ncode line\n```\n\n## Conclusion\n\nThanks, see you next quarter."

	var buf bytes.Buffer
	if err := r.Render(context.Background(), content, "blog_post", &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", buf.Bytes()[:16])
	}
	if buf.Len() < 500 {
		t.Errorf("suspiciously small pdf: %d bytes", buf.Len())
	}
}

func TestRenderRejectsEmptyContent(t *testing.T) {
	var buf bytes.Buffer
	err := NewPDFRenderer().Render(context.Background(), "  \n\t", "email", &buf)
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("err = %v", err)
	}
	if buf.Len() != 0 {
		t.Error("wrote bytes for empty content")
	}
}

func TestPlainTextStripsInlineMarkup(t *testing.T) {
	r := NewPDFRenderer()
	src := []byte("Some **bold** and `code` with [a link](http://x) here.")
	root := r.md.Parser().Parse(text.NewReader(src))
	got := plainText(root.FirstChild(), src)
	if got != "Some bold and code with a link here." {
		t.Errorf("plainText = %q", got)
	}
}

func TestFilename(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if got := Filename("linkedin", now); got != "content-ai-linkedin-1700000000.pdf" {
		t.Errorf("Filename = %q", got)
	}
}
