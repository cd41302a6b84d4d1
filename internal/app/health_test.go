package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	svc, _ := newTestService(t, nil)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Errorf("expected a request id header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	svc, _ := newTestService(t, nil)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response["status"] != "ready" {
		t.Errorf("expected status=ready, got %v", response["status"])
	}

	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %T", response["checks"])
	}
	db, ok := checks["database"].(map[string]any)
	if !ok || db["status"] != "ok" {
		t.Errorf("expected database status ok, got %v", checks["database"])
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	svc, td := newTestService(t, nil)
	td.store.pingErr = errors.New("connection refused")
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if response["ok"] != false {
		t.Errorf("expected ok=false, got %v", response["ok"])
	}
	if response["status"] != "not_ready" {
		t.Errorf("expected status=not_ready, got %v", response["status"])
	}

	checks := response["checks"].(map[string]any)
	db := checks["database"].(map[string]any)
	if db["status"] != "error" {
		t.Errorf("expected database status error, got %v", db["status"])
	}
	if db["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", db["error"])
	}
}

func TestHealthEndpoint_CORSPreflight(t *testing.T) {
	svc, _ := newTestService(t, nil)
	server := NewHTTPServer(svc, "https://feed.example")

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://feed.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
}
