package spec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoad_BlocksFileURL(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "file:///etc/hosts", DefaultSettings())
	if err == nil {
		t.Fatalf("expected error for file:// URL")
	}
	if !HasReason(err, Unreadable) {
		t.Fatalf("expected ParsingError/Unreadable, got %v (%T)", err, err)
	}
}

func TestLoad_UnsupportedScheme(t *testing.T) {
	t.Parallel()
	_, err := Load(context.Background(), "ftp://example.com/spec.yaml", DefaultSettings())
	var se *SpecError
	if !errors.As(err, &se) || se.Code != ParsingError {
		t.Fatalf("expected ParsingError, got %v (%T)", err, err)
	}
}

func TestLoad_NetworkError(t *testing.T) {
	t.Parallel()
	// Unused port to provoke a quick network failure.
	url := "http://127.0.0.1:1/spec.yaml"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	settings := DefaultSettings()
	settings.RemoteTimeout = 200 * time.Millisecond
	settings.MaxRetries = 2
	settings.BackoffBase = 10 * time.Millisecond
	_, err := Load(ctx, url, settings)
	if !HasCode(err, ParsingError) {
		t.Fatalf("expected ParsingError, got %v (%T)", err, err)
	}
}

func TestLoad_LocalYAML(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "petstore.yaml", petstoreYAML)

	doc, err := Load(context.Background(), path, DefaultSettings())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Fatalf("openapi: got %v", doc["openapi"])
	}
	// Integer response keys are normalized to strings.
	paths := doc["paths"].(map[string]any)
	get := paths["/pets"].(map[string]any)["get"].(map[string]any)
	if _, ok := get["responses"].(map[string]any)["200"]; !ok {
		t.Fatalf("expected string response key 200, got %v", get["responses"])
	}
}

func TestLoad_LocalJSON(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "spec.json", `{"openapi":"3.0.0","info":{"title":"J","version":"1"},"paths":{}}`)
	doc, err := Load(context.Background(), path, DefaultSettings())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc["openapi"] != "3.0.0" {
		t.Fatalf("openapi: got %v", doc["openapi"])
	}
}

func TestLoad_TooLargeFile(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "big.yaml", petstoreYAML)
	settings := DefaultSettings()
	settings.MaxFileSize = 64
	_, err := Load(context.Background(), path, settings)
	if !HasReason(err, TooLarge) {
		t.Fatalf("expected TooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "64 B") {
		t.Fatalf("expected humanized limit in message, got %q", err.Error())
	}
}

func TestLoad_Undecodable(t *testing.T) {
	t.Parallel()
	path := writeSpec(t, "bad.yaml", "openapi: [unterminated\n  - : :\n")
	_, err := Load(context.Background(), path, DefaultSettings())
	if !HasReason(err, Undecodable) {
		t.Fatalf("expected Undecodable, got %v", err)
	}
}

func TestLoad_ScalarDocumentIsUndecodable(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`"just a string"`), "inline")
	if !HasReason(err, Undecodable) {
		t.Fatalf("expected Undecodable, got %v", err)
	}
}

func TestLoad_Remote(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, petstoreYAML)
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.BackoffBase = 5 * time.Millisecond
	doc, err := Load(context.Background(), srv.URL+"/openapi.yaml", settings)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d requests", hits.Load())
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatalf("expected paths in remote document")
	}
}

func TestLoad_RemoteTooLarge(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.MaxFileSize = 1024
	_, err := Load(context.Background(), srv.URL, settings)
	if !HasReason(err, TooLarge) {
		t.Fatalf("expected TooLarge, got %v", err)
	}
}

func TestLoad_RemoteClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.BackoffBase = 5 * time.Millisecond
	_, err := Load(context.Background(), srv.URL, settings)
	if !HasReason(err, Unreadable) {
		t.Fatalf("expected Unreadable, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single request, got %d", hits.Load())
	}
}

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}
