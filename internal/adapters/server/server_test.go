package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hylla/worktally/internal/adapters/server/common"
)

// stubTimers satisfies common.TimerService with empty responses.
type stubTimers struct {
	common.TimerService
	active []common.Trackable
}

// ListActive returns the configured rows.
func (s stubTimers) ListActive(context.Context) ([]common.Trackable, error) {
	return s.active, nil
}

// TestNewHandlerRoutes verifies health, API, and readiness endpoints.
func TestNewHandlerRoutes(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, Dependencies{
		Timers: stubTimers{active: []common.Trackable{{ID: "t-1"}}},
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("active status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"t-1"`) {
		t.Fatalf("unexpected active body %q", rec.Body.String())
	}
}

// TestReadyzReportsFailingCheck verifies /readyz turns 503 and names the failing backend.
func TestReadyzReportsFailingCheck(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{
		Timers: stubTimers{},
		Checks: []ReadyCheck{
			{Name: "sqlite", Check: func(context.Context) error { return nil }},
			{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body readinessStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	if body.Status != "unavailable" || body.Checks["sqlite"] != "ok" || body.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected readyz body %#v", body)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestReadyzAllChecksPass verifies every passing backend is listed as ok.
func TestReadyzAllChecksPass(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{
		Timers: stubTimers{},
		Checks: []ReadyCheck{{Name: "sqlite", Check: func(context.Context) error { return nil }}},
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"sqlite":"ok"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

// TestNewHandlerValidation verifies dependency and endpoint checks.
func TestNewHandlerValidation(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("NewHandler() error = nil, want missing dependency error")
	}
	if _, _, err := NewHandler(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}, Dependencies{Timers: stubTimers{}}); err == nil {
		t.Fatal("NewHandler() error = nil, want endpoint collision error")
	}
}

// TestNormalizeEndpoint verifies endpoint canonicalization.
func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":          "/api/v1",
		"/":         "/api/v1",
		"api/v2/":   "/api/v2",
		" /tools ":  "/tools",
		"//nested/": "/nested",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/api/v1"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestRunShutsDownOnCancel verifies graceful shutdown after context cancellation.
func TestRunShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: addr}, Dependencies{Timers: stubTimers{}})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server did not become reachable: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
