package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/query"
	"github.com/mabou7agar/laravel-api-model-client-sub002/internal/spec"
)

// EngineConfig captures the parser settings shared by every command after
// merging defaults, config file values, and CLI overrides.
type EngineConfig struct {
	CacheEnabled      bool
	CacheTTL          time.Duration
	CacheSize         int
	RemoteTimeout     time.Duration
	MaxFileSize       int64
	SupportedVersions []string
	MaxRetries        int
	DefaultPageSize   int
	ConfigPath        string
	Verbose           bool
}

const defaultCacheSize = 64

func defaultEngineConfig() EngineConfig {
	d := spec.DefaultSettings()
	return EngineConfig{
		CacheEnabled:      d.CacheEnabled,
		CacheTTL:          d.CacheTTL,
		CacheSize:         defaultCacheSize,
		RemoteTimeout:     d.RemoteTimeout,
		MaxFileSize:       d.MaxFileSize,
		SupportedVersions: d.SupportedVersions,
		MaxRetries:        d.MaxRetries,
		DefaultPageSize:   query.DefaultPageSize,
	}
}

// addEngineFlags registers the parser flags on a subcommand.
func addEngineFlags(flags *pflag.FlagSet) {
	flags.Bool("cache", false, "Cache parsed contracts in memory for the life of the process")
	flags.Duration("cache-ttl", 0, "Time-to-live of cached contracts (e.g. 30m)")
	flags.Duration("remote-timeout", 0, "Timeout of each HTTP request for remote documents")
	flags.String("max-file-size", "", "Largest accepted document (e.g. 10MB, 512KiB)")
	flags.StringSlice("supported-versions", nil, "OpenAPI versions to accept")
	flags.Int("max-retries", 0, "Retries for transient failures when fetching remote documents")
}

func resolveEngineConfig(cmd *cobra.Command) (*EngineConfig, error) {
	cfg := defaultEngineConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyEngineConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyEngineFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEngineFlagOverrides(flags *pflag.FlagSet, cfg *EngineConfig) error {
	if flags.Changed("cache") {
		value, err := flags.GetBool("cache")
		if err != nil {
			return err
		}
		cfg.CacheEnabled = value
	}
	if flags.Changed("cache-ttl") {
		value, err := flags.GetDuration("cache-ttl")
		if err != nil {
			return err
		}
		cfg.CacheTTL = value
	}
	if flags.Changed("remote-timeout") {
		value, err := flags.GetDuration("remote-timeout")
		if err != nil {
			return err
		}
		cfg.RemoteTimeout = value
	}
	if flags.Changed("max-file-size") {
		value, err := flags.GetString("max-file-size")
		if err != nil {
			return err
		}
		size, err := valueAsByteSize(value)
		if err != nil {
			return newUsageError(fmt.Sprintf("--max-file-size: %v", err))
		}
		cfg.MaxFileSize = size
	}
	if flags.Changed("supported-versions") {
		value, err := flags.GetStringSlice("supported-versions")
		if err != nil {
			return err
		}
		cfg.SupportedVersions = value
	}
	if flags.Changed("max-retries") {
		value, err := flags.GetInt("max-retries")
		if err != nil {
			return err
		}
		cfg.MaxRetries = value
	}
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = value
	}

	return nil
}

func (c *EngineConfig) normalize() {
	versions := make([]string, 0, len(c.SupportedVersions))
	for _, v := range c.SupportedVersions {
		if v = strings.TrimSpace(v); v != "" {
			versions = append(versions, v)
		}
	}
	c.SupportedVersions = versions
}

func (c *EngineConfig) validate() error {
	if c.CacheTTL <= 0 {
		return newUsageError(fmt.Sprintf("config: cache TTL must be positive, got %s", c.CacheTTL))
	}
	if c.CacheSize <= 0 {
		return newUsageError(fmt.Sprintf("config: cache size must be positive, got %d", c.CacheSize))
	}
	if c.RemoteTimeout <= 0 {
		return newUsageError(fmt.Sprintf("config: remote timeout must be positive, got %s", c.RemoteTimeout))
	}
	if c.MaxFileSize <= 0 {
		return newUsageError(fmt.Sprintf("config: max file size must be positive, got %d", c.MaxFileSize))
	}
	if c.MaxRetries < 0 {
		return newUsageError(fmt.Sprintf("config: max retries cannot be negative, got %d", c.MaxRetries))
	}
	if c.DefaultPageSize <= 0 {
		return newUsageError(fmt.Sprintf("config: default page size must be positive, got %d", c.DefaultPageSize))
	}
	if len(c.SupportedVersions) == 0 {
		return newUsageError("config: supported versions cannot be empty")
	}
	return nil
}

// parser builds a spec.Parser from the merged configuration.
func (c *EngineConfig) parser(logger log.Logger) *spec.Parser {
	opts := []spec.Option{
		spec.WithCacheTTL(c.CacheTTL),
		spec.WithRemoteTimeout(c.RemoteTimeout),
		spec.WithMaxFileSize(c.MaxFileSize),
		spec.WithMaxRetries(c.MaxRetries),
		spec.WithSupportedVersions(c.SupportedVersions...),
		spec.WithLogger(logger),
	}
	if c.CacheEnabled {
		opts = append(opts, spec.WithCache(spec.NewMemoryCache(c.CacheSize, c.CacheTTL)))
	}
	return spec.NewParser(opts...)
}

// newLogger writes logfmt to w; debug lines appear only when verbose.
func newLogger(w io.Writer, verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	allow := level.AllowInfo()
	if verbose {
		allow = level.AllowDebug()
	}
	return level.NewFilter(logger, allow)
}

func applyEngineConfigFromFile(cfg *EngineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		var err error
		switch normalizeKey(key) {
		case "cacheenabled", "cache":
			cfg.CacheEnabled, err = valueAsBool(value)
		case "cachettl":
			cfg.CacheTTL, err = valueAsDuration(value)
		case "cachesize":
			cfg.CacheSize, err = valueAsInt(value)
		case "remotetimeout":
			cfg.RemoteTimeout, err = valueAsDuration(value)
		case "maxfilesize":
			cfg.MaxFileSize, err = valueAsByteSize(value)
		case "supportedversions":
			cfg.SupportedVersions, err = valueAsStringSlice(value)
		case "maxretries":
			cfg.MaxRetries, err = valueAsInt(value)
		case "defaultpagesize":
			cfg.DefaultPageSize, err = valueAsInt(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case int, float64:
		return fmt.Sprint(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// valueAsDuration accepts Go duration strings; bare numbers are seconds.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case string:
		trimmed := strings.TrimSpace(val)
		if secs, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(trimmed)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

// valueAsByteSize accepts byte counts or humanized sizes such as "10MB".
func valueAsByteSize(v any) (int64, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case string:
		n, err := humanize.ParseBytes(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid size %q", val)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected size, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
