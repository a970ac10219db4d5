package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fetch-go/internal/compression"
	"fetch-go/internal/config"
)

func newManager() *compression.Manager {
	return compression.NewManager(config.CompressionConfig{
		Gzip: config.CompressorConfig{Enabled: true, Level: 6},
	})
}

func TestCompressionMiddleware(t *testing.T) {
	body := strings.Repeat("cached text ", 200)
	h := Compression(newManager())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, body)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/fetch", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Error("decompressed body mismatch")
	}
}

func TestCompressionSkipsErrorsAndBinary(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
	}{
		{"error status", http.StatusBadGateway, "text/plain"},
		{"binary", http.StatusOK, "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Compression(newManager())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				io.WriteString(w, "payload")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", "gzip")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get("Content-Encoding") != "" {
				t.Error("response should not be compressed")
			}
			if rec.Body.String() != "payload" {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}
