// Package config loads inferkit settings from a TOML, YAML or JSON (with
// comments) file, a .env file and INFERKIT_* environment variables, in
// increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/inferkit"
	"github.com/unkn0wn-root/inferkit/selection"
	"github.com/unkn0wn-root/inferkit/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INFERKIT_"

// Duration is a time.Duration written as "30s", "1h" in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	API       APIConfig       `toml:"api" yaml:"api" json:"api"`
	Cache     CacheConfig     `toml:"cache" yaml:"cache" json:"cache"`
	Selection SelectionConfig `toml:"selection" yaml:"selection" json:"selection"`
	Log       LogConfig       `toml:"log" yaml:"log" json:"log"`
}

type APIConfig struct {
	BaseURL      string   `toml:"base_url" yaml:"base_url" json:"base_url"`
	GeneratePath string   `toml:"generate_path" yaml:"generate_path" json:"generate_path"`
	Timeout      Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
	MaxBodyBytes int64    `toml:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	UserAgent    string   `toml:"user_agent" yaml:"user_agent" json:"user_agent"`
}

type CacheConfig struct {
	// PrefixMode is "raw" (default) or "segment".
	PrefixMode         string   `toml:"prefix_mode" yaml:"prefix_mode" json:"prefix_mode"`
	RefreshDescendants bool     `toml:"refresh_descendants" yaml:"refresh_descendants" json:"refresh_descendants"`
	MaxConcurrency     int      `toml:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency"`
	GenCleanupInterval Duration `toml:"gen_cleanup_interval" yaml:"gen_cleanup_interval" json:"gen_cleanup_interval"`
	GenRetention       Duration `toml:"gen_retention" yaml:"gen_retention" json:"gen_retention"`
}

type SelectionConfig struct {
	// Backend is file, memory, ristretto, bigcache or redis.
	Backend       string `toml:"backend" yaml:"backend" json:"backend"`
	Key           string `toml:"key" yaml:"key" json:"key"`
	Dir           string `toml:"dir" yaml:"dir" json:"dir"` // file backend; "" => user config dir
	RedisAddr     string `toml:"redis_addr" yaml:"redis_addr" json:"redis_addr"`
	RedisDB       int    `toml:"redis_db" yaml:"redis_db" json:"redis_db"`
	RedisPassword string `toml:"redis_password" yaml:"redis_password" json:"redis_password"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"` // json | console
	// Adapter picks the library logger: zap (default), logrus or slog.
	Adapter string `toml:"adapter" yaml:"adapter" json:"adapter"`
	// Events logs cache and generation events: off (default), sync or async.
	Events     string `toml:"events" yaml:"events" json:"events"`
	RedactKeys bool   `toml:"redact_keys" yaml:"redact_keys" json:"redact_keys"`
	File       string `toml:"file" yaml:"file" json:"file"` // "" => stderr only
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups" json:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://127.0.0.1:8080/api",
			GeneratePath: "generate",
			Timeout:      Duration(30 * time.Second),
		},
		Cache: CacheConfig{
			PrefixMode:         "raw",
			GenCleanupInterval: Duration(time.Hour),
			GenRetention:       Duration(24 * time.Hour),
		},
		Selection: SelectionConfig{
			Backend: selection.BackendFile,
			Key:     selection.DefaultKey,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Adapter:    "zap",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads path over the defaults, then applies the .env file next to it
// (if any) and the process environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	dir := "."
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
		dir = filepath.Dir(path)
	}

	env, err := readDotEnv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := env[k]
		return v, ok
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes path into cfg, picking the format from the extension.
// Keys absent from the file keep their current values.
func LoadFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".json", ".hujson", ".jsonc":
		var std []byte
		if std, err = hujson.Standardize(b); err == nil {
			err = json.Unmarshal(std, cfg)
		}
	default:
		return fmt.Errorf("config: %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return env, nil
}

// ApplyEnv overrides fields from INFERKIT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			}
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("BASE_URL", &c.API.BaseURL)
	str("GENERATE_PATH", &c.API.GeneratePath)
	dur("TIMEOUT", &c.API.Timeout)
	if v, ok := lookup(EnvPrefix + "MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sMAX_BODY_BYTES: %w", EnvPrefix, err))
		} else {
			c.API.MaxBodyBytes = n
		}
	}

	str("PREFIX_MODE", &c.Cache.PrefixMode)
	flag("REFRESH_DESCENDANTS", &c.Cache.RefreshDescendants)
	num("MAX_CONCURRENCY", &c.Cache.MaxConcurrency)

	str("SELECTION_BACKEND", &c.Selection.Backend)
	str("SELECTION_KEY", &c.Selection.Key)
	str("SELECTION_DIR", &c.Selection.Dir)
	str("REDIS_ADDR", &c.Selection.RedisAddr)
	num("REDIS_DB", &c.Selection.RedisDB)
	str("REDIS_PASSWORD", &c.Selection.RedisPassword)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("LOG_ADAPTER", &c.Log.Adapter)
	str("LOG_EVENTS", &c.Log.Events)

	return errors.Join(errs...)
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{"api.base_url", fmt.Sprintf("invalid URL %q", c.API.BaseURL)})
	}
	if c.API.Timeout < 0 {
		errs = append(errs, ValidationError{"api.timeout", "must not be negative"})
	}
	if _, err := inferkit.ParsePrefixMode(c.Cache.PrefixMode); err != nil {
		errs = append(errs, ValidationError{"cache.prefix_mode", fmt.Sprintf("invalid mode %q, must be raw or segment", c.Cache.PrefixMode)})
	}
	if c.Cache.MaxConcurrency < 0 {
		errs = append(errs, ValidationError{"cache.max_concurrency", "must not be negative"})
	}
	switch strings.ToLower(c.Selection.Backend) {
	case "", selection.BackendFile, selection.BackendMemory, selection.BackendRistretto, selection.BackendBigcache, selection.BackendRedis:
	default:
		errs = append(errs, ValidationError{"selection.backend", fmt.Sprintf("unknown backend %q", c.Selection.Backend)})
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"log.level", fmt.Sprintf("unknown level %q", c.Log.Level)})
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, ValidationError{"log.format", fmt.Sprintf("unknown format %q", c.Log.Format)})
	}
	switch strings.ToLower(c.Log.Adapter) {
	case "", "zap", "logrus", "slog":
	default:
		errs = append(errs, ValidationError{"log.adapter", fmt.Sprintf("unknown adapter %q", c.Log.Adapter)})
	}
	switch strings.ToLower(c.Log.Events) {
	case "", "off", "sync", "async":
	default:
		errs = append(errs, ValidationError{"log.events", fmt.Sprintf("unknown mode %q", c.Log.Events)})
	}
	return errors.Join(errs...)
}

// Transport returns the HTTP transport settings.
func (c *Config) Transport() *transport.Config {
	return &transport.Config{
		BaseURL:      c.API.BaseURL,
		Timeout:      time.Duration(c.API.Timeout),
		MaxBodyBytes: c.API.MaxBodyBytes,
		UserAgent:    c.API.UserAgent,
	}
}

// ClientOptions returns cache options over tr. Logger and Hooks are left for
// the caller.
func (c *Config) ClientOptions(tr transport.Doer) (inferkit.Options, error) {
	mode, err := inferkit.ParsePrefixMode(c.Cache.PrefixMode)
	if err != nil {
		return inferkit.Options{}, err
	}
	return inferkit.Options{
		Transport:          tr,
		PrefixMode:         mode,
		RefreshDescendants: c.Cache.RefreshDescendants,
		MaxConcurrency:     c.Cache.MaxConcurrency,
		GenCleanupInterval: time.Duration(c.Cache.GenCleanupInterval),
		GenRetention:       time.Duration(c.Cache.GenRetention),
		MaxDecodeBytes:     int(c.API.MaxBodyBytes),
	}, nil
}

// SelectionBackend returns the slot store settings.
func (c *Config) SelectionBackend() selection.BackendConfig {
	return selection.BackendConfig{
		Backend:       c.Selection.Backend,
		Dir:           c.Selection.Dir,
		RedisAddr:     c.Selection.RedisAddr,
		RedisPassword: c.Selection.RedisPassword,
		RedisDB:       c.Selection.RedisDB,
	}
}
