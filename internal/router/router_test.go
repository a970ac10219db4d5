package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fetch-go/internal/cache"
	"fetch-go/internal/config"
	"fetch-go/internal/fetch"
	"fetch-go/internal/handler"
	"fetch-go/internal/storage"
)

const testToken = "test-admin-token"

func newTestRouter(t *testing.T) (http.Handler, *config.ConfigManager) {
	t.Helper()
	dir := t.TempDir()
	backend, err := storage.NewFileBackend(filepath.Join(dir, "cache.json"))
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewStore(backend, cache.Options{})
	if _, err := store.Put(context.Background(), "http://cached.example/", []byte("cached")); err != nil {
		t.Fatal(err)
	}

	cm, err := config.NewConfigManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}

	fetcher := fetch.NewFetcher(store, fetch.NewDispatcher(4), fetch.Options{Timeout: time.Second})
	t.Cleanup(fetcher.Close)

	return New(Handlers{
		Auth:   handler.NewAuthHandler(testToken),
		Fetch:  handler.NewFetchHandler(fetcher, time.Second),
		Cache:  handler.NewCacheAdminHandler(store, fetcher, nil, cm),
		Config: handler.NewConfigHandler(cm),
		Health: handler.NewHealthHandler(store),
	}), cm
}

func TestRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/fetch?url=http://cached.example/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/admin/api/cache/stats", http.StatusOK},
		{http.MethodPost, "/admin/api/cache/sweep", http.StatusOK},
		{http.MethodGet, "/admin/api/cache/config", http.StatusOK},
		{http.MethodGet, "/admin/api/config/get", http.StatusOK},
		{http.MethodPost, "/api/fetch", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.status)
		}
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r, cm := newTestRouter(t)

	admin := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/admin/api/cache/stats"},
		{http.MethodPost, "/admin/api/cache/sweep"},
		{http.MethodGet, "/admin/api/cache/config"},
		{http.MethodGet, "/admin/api/config/get"},
		{http.MethodPost, "/admin/api/config/save"},
	}

	for _, auth := range []string{"", "Bearer wrong-token", testToken, "Basic " + testToken} {
		for _, route := range admin {
			body := `{"Cache":{"S3":{"Endpoint":"http://attacker.example"}}}`
			req := httptest.NewRequest(route.method, route.path, strings.NewReader(body))
			if auth != "" {
				req.Header.Set("Authorization", auth)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with %q = %d, want 401", route.method, route.path, auth, rec.Code)
			}
		}
	}

	if got := cm.GetConfig().Cache.S3.Endpoint; got != "" {
		t.Errorf("unauthenticated save changed S3 endpoint to %q", got)
	}

	// 公开接口不需要令牌
	for _, path := range []string{"/health", "/api/fetch?url=http://cached.example/"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
