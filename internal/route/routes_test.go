package route

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"livedetect/internal/config"
	"livedetect/internal/logger"
	"livedetect/internal/middleware"
	"livedetect/internal/repository/sqlite"
	hub "livedetect/internal/service/websocket"
)

func setupServer(t *testing.T, password string) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	staticDir := filepath.Join(dir, "static")
	if err := os.MkdirAll(staticDir, 0755); err != nil {
		t.Fatalf("Failed to create static dir: %v", err)
	}
	for name, body := range map[string]string{
		"index.html":    "<h1>live</h1>",
		"sessions.html": "<h1>sessions</h1>",
	} {
		if err := os.WriteFile(filepath.Join(staticDir, name), []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	db, err := sqlite.New(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Password:    password,
		StaticDir:   staticDir,
		SnapshotDir: filepath.Join(dir, "snapshots"),
	}
	handler := SetupRoutes(cfg, logger.NewDiscard(), Deps{
		Hub:        hub.NewHubService(logger.NewDiscard()),
		Sessions:   sqlite.NewSessionRepository(db),
		Detections: sqlite.NewDetectionRepository(db),
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestDynamicHTMLRoutes(t *testing.T) {
	server := setupServer(t, "")

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "live"},
		{"/sessions", http.StatusOK, "sessions"},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			if !strings.Contains(string(body), tt.body) {
				t.Errorf("unexpected body %q", body)
			}
		})
	}
}

func TestRoutesRequireLogin(t *testing.T) {
	server := setupServer(t, "secret")
	client := &http.Client{CheckRedirect: noRedirect}

	tests := []struct {
		path   string
		status int
	}{
		{"/", http.StatusSeeOther},
		{"/api/sessions", http.StatusUnauthorized},
		{"/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := client.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestRoutesWithAuthCookie(t *testing.T) {
	server := setupServer(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: middleware.CookieValue("secret")})

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("expected JSON, got %q", ct)
	}
}
