package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []string{
		"Incorrect API key provided: sk-proj-abcdefghijklmnop",
		"Authorization: Bearer abc.def.ghi",
		"request failed api_key=supersecretvalue&model=x",
		"token hf_abcdefghijklmnop rejected",
	}
	secrets := []string{"sk-proj-abcdefghijklmnop", "abc.def.ghi", "supersecretvalue", "hf_abcdefghijklmnop"}
	for i, c := range cases {
		got := Sanitize(c)
		if strings.Contains(got, secrets[i]) {
			t.Errorf("Sanitize(%q) = %q, secret survived", c, got)
		}
		if !strings.Contains(got, redacted) {
			t.Errorf("Sanitize(%q) = %q, no redaction marker", c, got)
		}
	}
	if got := Sanitize("plain message"); got != "plain message" {
		t.Errorf("Sanitize changed plain text: %q", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{errors.New("error, status code: 429, message: slow down"), KindRateLimited},
		{errors.New("error, status code: 401, message: bad key"), KindAuth},
		{errors.New("status code: 503 service unavailable"), KindUnknown},
		{errors.New("Rate limit reached for requests"), KindRateLimited},
		{errors.New("connection reset by peer"), KindUnknown},
	}
	for _, c := range cases {
		if got := Classify("openai", c.err); got.Kind != c.kind {
			t.Errorf("Classify(%v).Kind = %s, want %s", c.err, got.Kind, c.kind)
		}
	}

	orig := NewProviderError("falcon", KindAuth, 403, "denied", nil)
	if got := Classify("openai", orig); got != orig {
		t.Error("existing ProviderError should pass through")
	}
}

func TestKindFromStatus(t *testing.T) {
	for status, want := range map[int]ErrorKind{401: KindAuth, 403: KindAuth, 429: KindRateLimited, 504: KindTimeout, 500: KindUnknown} {
		if got := KindFromStatus(status); got != want {
			t.Errorf("KindFromStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
