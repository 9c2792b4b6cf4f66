package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maktheus/AgentBenchMark/internal/config"
	"github.com/maktheus/AgentBenchMark/internal/dataset"
	"github.com/maktheus/AgentBenchMark/internal/service"
	"github.com/maktheus/AgentBenchMark/internal/store"
)

func newCORSServer(t *testing.T, server config.ServerConfig) *Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	svc := service.New(st, dataset.NewDirLoader(t.TempDir()), noopRunner{}, config.BenchmarkConfig{
		MaxAgents:    5,
		Samples:      1,
		QueryTimeout: 30 * time.Second,
	})

	s, err := NewServer(&config.Config{Server: server}, svc)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestNewCORSPolicy(t *testing.T) {
	t.Parallel()

	if p := newCORSPolicy(nil); p != nil {
		t.Fatalf("empty origins: got policy %+v", p)
	}
	if p := newCORSPolicy([]string{"", "  "}); p != nil {
		t.Fatalf("blank origins: got policy %+v", p)
	}

	p := newCORSPolicy([]string{" https://a.example ", "https://b.example"})
	if p == nil || p.any {
		t.Fatalf("explicit origins: %+v", p)
	}
	if !p.allows("https://a.example") || p.allows("https://c.example") {
		t.Fatalf("allows misbehaves: %+v", p)
	}

	if p := newCORSPolicy([]string{"*"}); p == nil || !p.allows("https://anything.example") {
		t.Fatalf("wildcard: %+v", p)
	}
}

func TestCORSFromConfig(t *testing.T) {
	s := newCORSServer(t, config.ServerConfig{
		APIKey:      "sekret",
		CORSOrigins: []string{"https://ui.example"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("X-API-Key", "sekret")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("vary = %q", got)
	}

	// Unlisted origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("X-API-Key", "sekret")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin got allow-origin %q", got)
	}
}

func TestCORSWildcard(t *testing.T) {
	s := newCORSServer(t, config.ServerConfig{
		APIKey:      "sekret",
		CORSOrigins: []string{"*"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	req.Header.Set("X-API-Key", "sekret")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
	if got := w.Header().Get("Vary"); got != "" {
		t.Fatalf("wildcard should not vary on origin, got %q", got)
	}
}

func TestCORSPreflightSkipsAuth(t *testing.T) {
	s := newCORSServer(t, config.ServerConfig{
		APIKey:      "sekret",
		CORSOrigins: []string{"https://ui.example"},
	})

	// No API key on the preflight.
	req := httptest.NewRequest(http.MethodOptions, "/api/benchmark/run", nil)
	req.Header.Set("Origin", "https://ui.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != corsMethods {
		t.Fatalf("allow-methods = %q, want %q", got, corsMethods)
	}
}

func TestNoCORSWithoutConfig(t *testing.T) {
	t.Setenv("AGENTBENCH_DISABLE_AUTH", "true")
	s := newCORSServer(t, config.ServerConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://ui.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
