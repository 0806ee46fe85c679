package errors

import (
	stderrors "errors"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{ErrInvalidParam, http.StatusBadRequest},
		{ErrValidationFailed, http.StatusBadRequest},
		{ErrUnsupportedContentType, http.StatusBadRequest},
		{ErrRateLimitExceeded, http.StatusTooManyRequests},
		{ErrQuotaExceeded, http.StatusTooManyRequests},
		{ErrProviderAuth, http.StatusBadGateway},
		{ErrProviderRateLimited, http.StatusBadGateway},
		{ErrProviderUnknown, http.StatusBadGateway},
		{ErrProviderTimeout, http.StatusGatewayTimeout},
		{ErrGenerationFailed, http.StatusInternalServerError},
		{ErrInternalError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if c.err.HTTPStatus != c.want {
			t.Errorf("%s: status = %d, want %d", c.err.Code, c.err.HTTPStatus, c.want)
		}
	}
}

func TestBuildersCopy(t *testing.T) {
	cause := stderrors.New("boom")
	got := ErrValidationFailed.WithField("context.topic").WithDetail("too short").WithError(cause)

	if ErrValidationFailed.Field != "" || ErrValidationFailed.Detail != "" || ErrValidationFailed.Err != nil {
		t.Fatal("predefined error was mutated")
	}
	if got.Field != "context.topic" || got.Detail != "too short" {
		t.Errorf("got = %+v", got)
	}
	if !stderrors.Is(got, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !strings.Contains(got.Error(), "[4002]") || !strings.Contains(got.Error(), "boom") {
		t.Errorf("Error() = %q", got.Error())
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(stderrors.New("disk full"), CodeExportFailed, "failed to generate PDF")
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("status = %d", err.HTTPStatus)
	}
	if err.Error() != "[4006] failed to generate PDF: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
}
