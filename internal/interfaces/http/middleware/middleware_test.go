package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func clientIPEngine(t *testing.T, trusted []string) *gin.Engine {
	t.Helper()
	e := gin.New()
	if err := e.SetTrustedProxies(trusted); err != nil {
		t.Fatal(err)
	}
	e.Use(ClientIP())
	e.GET("/", func(c *gin.Context) { c.String(200, c.GetString(ClientIPContextKey)) })
	return e
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		trusted []string
		headers map[string]string
		remote  string
		want    string
	}{
		{"untrusted peer ignores forwarded", nil, map[string]string{"X-Forwarded-For": "198.51.100.9"}, "203.0.113.7:5000", "203.0.113.7"},
		{"untrusted peer ignores real ip", nil, map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.7:5000", "203.0.113.7"},
		{"trusted proxy forwarded", []string{"10.0.0.0/8"}, map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"trusted proxy real ip", []string{"10.0.0.0/8"}, map[string]string{"X-Real-IP": "198.51.100.1"}, "10.0.0.2:5000", "198.51.100.1"},
		{"remote addr", nil, nil, "192.0.2.10:43210", "192.0.2.10"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := clientIPEngine(t, c.trusted)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = c.remote
			for k, v := range c.headers {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, r)
			if got := w.Body.String(); got != c.want {
				t.Errorf("client ip = %q, want %q", got, c.want)
			}
		})
	}
}

func TestRequestIDPropagatesOrGenerates(t *testing.T) {
	e := gin.New()
	e.Use(RequestID())
	e.GET("/", func(c *gin.Context) { c.String(200, c.GetString("request_id")) })

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	if w.Body.String() != "req-123" || w.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("propagated id = %q / %q", w.Body.String(), w.Header().Get(RequestIDHeader))
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "bad id\nwith newline")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	if got := w.Body.String(); len(got) != 36 || strings.Contains(got, " ") {
		t.Errorf("expected generated uuid, got %q", got)
	}
}

func TestRecoveryReturnsJSON(t *testing.T) {
	e := gin.New()
	e.Use(Recovery())
	e.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error_code":"1007"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
