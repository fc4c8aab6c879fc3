package spec

import (
	"time"

	"github.com/go-kit/log"
)

const (
	// DefaultMaxFileSize bounds both remote and local documents.
	DefaultMaxFileSize   = 10 << 20
	DefaultRemoteTimeout = 30 * time.Second
	DefaultCacheTTL      = time.Hour
)

// DefaultSupportedVersions is the allow-list checked by ValidateVersion.
var DefaultSupportedVersions = []string{"3.0.0", "3.0.1", "3.0.2", "3.0.3", "3.1.0"}

// Settings configures a Parser. A zero value is completed by DefaultSettings.
type Settings struct {
	// CacheEnabled consults Cache at the boundary of Parse.
	CacheEnabled bool
	CacheTTL     time.Duration
	Cache        Cache

	// RemoteTimeout bounds each HTTP request for remote documents.
	RemoteTimeout time.Duration

	// MaxFileSize is the byte ceiling on the source document.
	MaxFileSize       int64
	SupportedVersions []string

	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int

	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	Logger      log.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:      false,
		CacheTTL:          DefaultCacheTTL,
		Cache:             NoopCache{},
		RemoteTimeout:     DefaultRemoteTimeout,
		MaxFileSize:       DefaultMaxFileSize,
		SupportedVersions: append([]string(nil), DefaultSupportedVersions...),
		MaxRetries:        3,
		BackoffBase:       200 * time.Millisecond,
		Logger:            log.NewNopLogger(),
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithCache(c Cache) Option                 { return func(s *Settings) { s.Cache = c; s.CacheEnabled = c != nil } }
func WithCacheEnabled(enabled bool) Option     { return func(s *Settings) { s.CacheEnabled = enabled } }
func WithCacheTTL(d time.Duration) Option      { return func(s *Settings) { s.CacheTTL = d } }
func WithRemoteTimeout(d time.Duration) Option { return func(s *Settings) { s.RemoteTimeout = d } }
func WithMaxFileSize(n int64) Option           { return func(s *Settings) { s.MaxFileSize = n } }
func WithMaxRetries(n int) Option              { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option   { return func(s *Settings) { s.BackoffBase = d } }
func WithLogger(l log.Logger) Option           { return func(s *Settings) { s.Logger = l } }

// WithSupportedVersions replaces the version allow-list.
func WithSupportedVersions(versions ...string) Option {
	return func(s *Settings) { s.SupportedVersions = append([]string(nil), versions...) }
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.CacheTTL <= 0 {
		s.CacheTTL = d.CacheTTL
	}
	if s.Cache == nil {
		s.Cache = d.Cache
	}
	if s.RemoteTimeout <= 0 {
		s.RemoteTimeout = d.RemoteTimeout
	}
	if s.MaxFileSize <= 0 {
		s.MaxFileSize = d.MaxFileSize
	}
	if len(s.SupportedVersions) == 0 {
		s.SupportedVersions = d.SupportedVersions
	}
	if s.BackoffBase <= 0 {
		s.BackoffBase = d.BackoffBase
	}
	if s.Logger == nil {
		s.Logger = d.Logger
	}
	return s
}
