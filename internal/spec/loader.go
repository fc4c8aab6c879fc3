package spec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"gopkg.in/yaml.v3"
)

// Load reads source and decodes it into a RawDocument.
//
// source may be a filesystem path or an http/https URL. Other URL schemes,
// file:// included, are rejected. The document size is bounded by
// settings.MaxFileSize both before and after reading.
func Load(ctx context.Context, source string, settings Settings) (RawDocument, error) {
	settings = settings.withDefaults()
	if strings.TrimSpace(source) == "" {
		return nil, parsingError(Unreadable, "", nil, "spec: source is empty")
	}

	// Classify input as URL or file path.
	u, uerr := url.Parse(source)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""

	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, parsingError(Unreadable, source, nil, "spec: unsupported URL scheme %q (only http/https allowed)", scheme)
		}
		raw, err := fetchWithRetry(ctx, source, settings)
		if err != nil {
			var se *SpecError
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, parsingError(Unreadable, source, err, "fetch %s: %v", source, err)
		}
		return Decode(raw, source)
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, parsingError(Unreadable, source, err, "resolve path: %v", err)
	}
	raw, err := readFile(abs, settings.MaxFileSize)
	if err != nil {
		return nil, err
	}
	return Decode(raw, abs)
}

// Decode parses data as JSON, falling back to YAML.
func Decode(data []byte, location string) (RawDocument, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		var yroot any
		if yerr := yaml.Unmarshal(data, &yroot); yerr != nil {
			return nil, parsingError(Undecodable, location, yerr, "spec: %s is neither valid JSON nor YAML: %v", displayLocation(location), yerr)
		}
		root = normalizeYAML(yroot)
	}
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, parsingError(Undecodable, location, nil, "spec: %s does not decode to a mapping (got %T)", displayLocation(location), root)
	}
	return RawDocument(doc), nil
}

func readFile(path string, limit int64) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, parsingError(Unreadable, path, err, "read file %s: %v", path, err)
	}
	if st.IsDir() {
		return nil, parsingError(Unreadable, path, nil, "read file %s: is a directory", path)
	}
	if st.Size() > limit {
		return nil, tooLarge(path, st.Size(), limit)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, parsingError(Unreadable, path, err, "read file %s: %v", path, err)
	}
	defer f.Close()
	return readLimited(f, path, limit)
}

// readLimited reads at most limit bytes and fails when more are available.
func readLimited(r io.Reader, location string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, parsingError(Unreadable, location, err, "read %s: %v", location, err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge(location, int64(len(data)), limit)
	}
	return data, nil
}

func tooLarge(location string, size, limit int64) *SpecError {
	return parsingError(TooLarge, location, nil, "spec: %s exceeds the maximum size of %s (got at least %s)",
		displayLocation(location), humanize.IBytes(uint64(limit)), humanize.IBytes(uint64(size)))
}

// transientError marks fetch failures worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.RemoteTimeout}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := settings.BackoffBase
	policy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			var te *transientError
			return errors.As(err, &te)
		}).
		WithBackoff(backoff, backoff*time.Duration(1<<uint(attempts))).
		WithMaxAttempts(attempts).
		Build()

	data, err := failsafe.With(policy).WithContext(ctx).Get(func() ([]byte, error) {
		return fetchOnce(ctx, client, rawURL, settings.MaxFileSize)
	})
	if err != nil {
		var se *SpecError
		if errors.As(err, &se) {
			return nil, se
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func fetchOnce(ctx context.Context, client *http.Client, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &transientError{err: fmt.Errorf("transient http error %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.ContentLength > limit {
		return nil, tooLarge(rawURL, resp.ContentLength, limit)
	}
	return readLimited(resp.Body, rawURL, limit)
}

// normalizeYAML rewrites map[any]any nodes produced by yaml.v3 for
// non-string keys (e.g. numeric response codes) into map[string]any.
func normalizeYAML(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

func displayLocation(location string) string {
	if location == "" {
		return "document"
	}
	return location
}
