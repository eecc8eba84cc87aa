package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"backend-runshare/internal/auth"
	"backend-runshare/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() config.Config {
	return config.Config{JWTSecret: "secret", ServerPort: ":0", APIBaseURL: "http://127.0.0.1:1"}
}

func TestHealthRoute(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
}

func TestHealthReportsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewServer(testConfig(), nil, rdb)
	defer s.Close()

	resp, err := s.App.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["redis"] != true || body["outbox"] != false {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	for _, path := range []string{"/tracking/sessions", "/courses", "/results/pending"} {
		method := http.MethodGet
		if path == "/tracking/sessions" {
			method = http.MethodPost
		}
		resp, err := s.App.Test(httptest.NewRequest(method, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected unauthorized, got %d", path, resp.StatusCode)
		}
	}
}

func TestSessionCreateAndErrorHandler(t *testing.T) {
	s := NewServer(testConfig(), nil, nil)
	defer s.Close()

	token, err := auth.SignToken("secret", "42", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/tracking/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %v", err)
	}

	// no outbox configured
	req = httptest.NewRequest(http.MethodGet, "/results/pending", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable")
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] == "" {
		t.Fatalf("expected error body")
	}
}

func TestSQLiteOutboxFallback(t *testing.T) {
	cfg := testConfig()
	cfg.OutboxSQLitePath = filepath.Join(t.TempDir(), "outbox.sqlite3")
	s := NewServer(cfg, nil, nil)
	defer s.Close()

	if s.SQLite == nil || s.Outbox == nil {
		t.Fatalf("expected sqlite outbox")
	}

	resp, err := s.App.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	if health["outbox"] != true {
		t.Fatalf("expected outbox reported, got %v", health)
	}

	token, err := auth.SignToken("secret", "42", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/results/pending", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected empty pending list")
	}
	var pending []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&pending)
	if len(pending) != 0 {
		t.Fatalf("expected no pending submissions, got %v", pending)
	}
}

func TestSQLiteOutboxUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.OutboxSQLitePath = filepath.Join(t.TempDir(), "missing", "outbox.sqlite3")
	s := NewServer(cfg, nil, nil)
	defer s.Close()

	if s.SQLite != nil || s.Outbox != nil {
		t.Fatalf("expected outbox disabled")
	}
}
