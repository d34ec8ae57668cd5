package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected underlying status 404, got %d", w.Code)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("Expected 5 bytes written, got %d", rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected wroteHeader after Write")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/search", "/api/search"},
		{"a\nb\rc", "a b c"},
		{"\x1b[31mred", "[31mred"},
		{"nul\x00byte", "nulbyte"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	cfg := DefaultLoggingConfig()

	if !shouldSkip("/output/abc.mp4", cfg) {
		t.Error("Expected output files to be skipped")
	}
	if !shouldSkip("/healthz", cfg) {
		t.Error("Expected health checks to be skipped by default")
	}
	if shouldSkip("/api/search", cfg) {
		t.Error("Expected API requests to be logged")
	}

	cfg.LogHealthChecks = true
	if shouldSkip("/readyz", cfg) {
		t.Error("Expected health checks to be logged when enabled")
	}
}

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	req := httptest.NewRequest(http.MethodGet, "/api/search?phrase=hi%0Athere", nil)
	req.Header.Set("User-Agent", "agent\nforged")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	rw := newResponseWriter(httptest.NewRecorder())
	rw.WriteHeader(http.StatusBadRequest)
	_, _ = rw.Write([]byte("oops"))

	logRequest(logger, req, rw, 15*time.Millisecond)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["status"] != float64(http.StatusBadRequest) || entry["bytes"] != float64(4) {
		t.Errorf("entry = %v", entry)
	}
	if entry["client_ip"] != "10.0.0.1" {
		t.Errorf("client_ip = %v", entry["client_ip"])
	}
	if entry["user_agent"] != "agent forged" {
		t.Errorf("user_agent = %v", entry["user_agent"])
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("expected exactly one log line, got %q", buf.String())
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("generated id %q is not a uuid", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Error("Expected the id to be echoed")
	}

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Errorf("Expected incoming id to be kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad\nid")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad\nid" {
		t.Error("Expected malformed id to be replaced")
	}
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, body)
	})
}

func TestCompressionMiddleware(t *testing.T) {
	large := `{"results":"` + strings.Repeat("kenobi ", 500) + `"}`

	tests := []struct {
		name         string
		body         string
		contentType  string
		acceptGzip   bool
		wantEncoding string
	}{
		{"large json", large, "application/json", true, "gzip"},
		{"small json", `{"a":1}`, "application/json", true, ""},
		{"no gzip support", large, "application/json", false, ""},
		{"media", large, "video/mp4", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusCreated)
				// Two writes exercise the buffering path.
				half := len(tt.body) / 2
				_, _ = io.WriteString(w, tt.body[:half])
				_, _ = io.WriteString(w, tt.body[half:])
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusCreated {
				t.Errorf("status = %d, want 201", rec.Code)
			}
			if got := rec.Header().Get("Content-Encoding"); got != tt.wantEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.wantEncoding)
			}

			body := rec.Body.Bytes()
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatal(err)
				}
				body, err = io.ReadAll(zr)
				if err != nil {
					t.Fatal(err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompressionEmptyBody(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/scan", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted || rec.Body.Len() != 0 {
		t.Errorf("got %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	cfg := DefaultMetricsConfig()
	for _, p := range []string{"/metrics", "/healthz", "/readyz"} {
		found := false
		for _, s := range cfg.SkipPaths {
			found = found || s == p
		}
		if !found {
			t.Errorf("Expected %s to be skipped", p)
		}
	}
}

func TestMetricsMiddlewareStatusCode(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(jsonHandler(`{}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/render", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/search", "/api/search"},
		{"/api/files/12", "/api/files/{id}"},
		{"/api/files/12/thumbnail", "/api/files/{id}/thumbnail"},
		{"/api/tracks/99", "/api/tracks/{id}"},
		{"/output/Zm9vYmFy.mp4", "/output/{file}"},
		{"/", "/"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
