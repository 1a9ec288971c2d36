package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"alertengine/internal/backoff"
	"alertengine/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "alert-engine"
	defaultRemoteTimeoutSec   = 10
	defaultRateBurst          = 1
	defaultHTTPListen         = ":9102"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultMetricsPath        = "/metrics"
	defaultAnnounceQueueSize  = 256
	defaultAnnounceTimeoutSec = 5
	defaultNATSSubject        = "alertengine.transitions"
	defaultNATSStream         = "ALERTENGINE_TRANSITIONS"
	defaultNATSMaxAgeSec      = 24 * 60 * 60
	defaultTelegramAPIBase    = "https://api.telegram.org"
	defaultTelegramTemplate   = `{{ .Icon }} <b>{{ .Alert }}</b> {{ .From }} → {{ .To }}{{ if .Message }}: {{ .Message }}{{ end }} (value {{ .Value }})`
)

// Config is the root runtime configuration.
// Params: decoded TOML sections.
// Returns: validated runtime settings.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	Remote   RemoteConfig   `toml:"remote"`
	HTTP     HTTPConfig     `toml:"http"`
	Log      LogConfig      `toml:"log"`
	Announce AnnounceConfig `toml:"announce"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Name string `toml:"name"`
}

// RemoteConfig describes the remote alert/query/notify service.
// Params: base URL, per-attempt timeout, concurrency and rate caps, backoff steps.
// Returns: transport and API client options.
type RemoteConfig struct {
	BaseURL               string        `toml:"base_url"`
	TimeoutSec            int           `toml:"timeout_sec"`
	MaxConcurrentRequests int           `toml:"max_concurrent_requests"`
	RequestsPerSecond     float64       `toml:"requests_per_second"`
	Burst                 int           `toml:"burst"`
	Backoff               BackoffConfig `toml:"backoff"`
}

// BackoffConfig lists retry delays in milliseconds.
type BackoffConfig struct {
	StepsMS []int `toml:"steps_ms"`
}

// HTTPConfig controls the status server.
type HTTPConfig struct {
	Enabled     bool   `toml:"enabled"`
	Listen      string `toml:"listen"`
	HealthPath  string `toml:"health_path"`
	ReadyPath   string `toml:"ready_path"`
	MetricsPath string `toml:"metrics_path"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// AnnounceConfig controls publication of alert transitions.
type AnnounceConfig struct {
	QueueSize  int              `toml:"queue_size"`
	TimeoutSec int              `toml:"timeout_sec"`
	NATS       NATSAnnounce     `toml:"nats"`
	Telegram   TelegramAnnounce `toml:"telegram"`
}

// NATSAnnounce publishes transitions into a JetStream stream.
type NATSAnnounce struct {
	Enabled   bool     `toml:"enabled"`
	URL       []string `toml:"url"`
	Subject   string   `toml:"subject"`
	Stream    string   `toml:"stream"`
	MaxAgeSec int      `toml:"max_age_sec"`
}

// TelegramAnnounce posts rendered transitions into one chat.
type TelegramAnnounce struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
	Template string `toml:"template"`
}

// ConfigSource selects where configuration is loaded from.
// Params: at most one of file path or directory path; both empty means built-in defaults.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// Overrides are command-line values applied on top of the loaded snapshot.
type Overrides struct {
	BaseURL               string
	MaxConcurrentRequests *int
}

// FromCLI builds a normalized source from command-line paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	return ConfigSource{File: filePath, Dir: dirPath}, nil
}

// LoadSnapshot loads, defaults, overrides and validates configuration.
// Params: source and command-line overrides.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource, overrides Overrides) (Config, error) {
	var cfg Config
	switch {
	case src.File != "":
		if err := decodeFile(src.File, &cfg); err != nil {
			return Config{}, err
		}
	case src.Dir != "":
		if err := decodeDir(src.Dir, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyOverrides(&cfg, overrides)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequestTimeout returns the per-attempt remote timeout.
func (c RemoteConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// BackoffPolicy converts configured steps into a retry policy.
// Params: none.
// Returns: default policy when no steps are configured, or validation error.
func (c RemoteConfig) BackoffPolicy() (backoff.Policy, error) {
	if len(c.Backoff.StepsMS) == 0 {
		return backoff.Default(), nil
	}
	steps := make([]time.Duration, 0, len(c.Backoff.StepsMS))
	for _, ms := range c.Backoff.StepsMS {
		steps = append(steps, time.Duration(ms)*time.Millisecond)
	}
	return backoff.NewPolicy(steps)
}

// decodeFile overlays one TOML file onto cfg.
// Params: file path and destination config.
// Returns: read/decode error.
func decodeFile(path string, cfg *Config) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	decoder := toml.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	return nil
}

// decodeDir overlays every .toml file in dir onto cfg in name order.
// Params: directory containing config fragments.
// Returns: read/decode error.
func decodeDir(dir string, cfg *Config) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := decodeFile(file, cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyOverrides(cfg *Config, overrides Overrides) {
	if strings.TrimSpace(overrides.BaseURL) != "" {
		cfg.Remote.BaseURL = strings.TrimSpace(overrides.BaseURL)
	}
	if overrides.MaxConcurrentRequests != nil {
		cfg.Remote.MaxConcurrentRequests = *overrides.MaxConcurrentRequests
	}
}

// applyDefaults fills optional values.
// Params: config to mutate.
// Returns: none.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}

	if cfg.Remote.TimeoutSec <= 0 {
		cfg.Remote.TimeoutSec = defaultRemoteTimeoutSec
	}
	if cfg.Remote.Burst <= 0 {
		cfg.Remote.Burst = defaultRateBurst
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(cfg.HTTP.MetricsPath) == "" {
		cfg.HTTP.MetricsPath = defaultMetricsPath
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if cfg.Announce.QueueSize <= 0 {
		cfg.Announce.QueueSize = defaultAnnounceQueueSize
	}
	if cfg.Announce.TimeoutSec <= 0 {
		cfg.Announce.TimeoutSec = defaultAnnounceTimeoutSec
	}
	cfg.Announce.NATS.URL = normalizeNATSURLs(cfg.Announce.NATS.URL)
	if strings.TrimSpace(cfg.Announce.NATS.Subject) == "" {
		cfg.Announce.NATS.Subject = defaultNATSSubject
	}
	if strings.TrimSpace(cfg.Announce.NATS.Stream) == "" {
		cfg.Announce.NATS.Stream = defaultNATSStream
	}
	if cfg.Announce.NATS.MaxAgeSec <= 0 {
		cfg.Announce.NATS.MaxAgeSec = defaultNATSMaxAgeSec
	}
	if strings.TrimSpace(cfg.Announce.Telegram.APIBase) == "" {
		cfg.Announce.Telegram.APIBase = defaultTelegramAPIBase
	}
	if strings.TrimSpace(cfg.Announce.Telegram.Template) == "" {
		cfg.Announce.Telegram.Template = defaultTelegramTemplate
	}
}

// validateConfig checks a defaulted snapshot.
// Params: config snapshot.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return errors.New("remote.base_url is required")
	}
	parsed, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("remote.base_url must be an absolute http(s) URL, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.MaxConcurrentRequests < 0 {
		return errors.New("remote.max_concurrent_requests must be >=0")
	}
	if cfg.Remote.RequestsPerSecond < 0 {
		return errors.New("remote.requests_per_second must be >=0")
	}
	if _, err := cfg.Remote.BackoffPolicy(); err != nil {
		return fmt.Errorf("remote.backoff.steps_ms: %w", err)
	}

	if cfg.HTTP.Enabled {
		for name, path := range map[string]string{
			"http.health_path":  cfg.HTTP.HealthPath,
			"http.ready_path":   cfg.HTTP.ReadyPath,
			"http.metrics_path": cfg.HTTP.MetricsPath,
		} {
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("%s must start with /, got %q", name, path)
			}
		}
	}

	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	if cfg.Announce.NATS.Enabled && len(cfg.Announce.NATS.URL) == 0 {
		return errors.New("announce.nats.url is required when announce.nats.enabled=true")
	}
	if cfg.Announce.Telegram.Enabled {
		if strings.TrimSpace(cfg.Announce.Telegram.BotToken) == "" {
			return errors.New("announce.telegram.bot_token is required when announce.telegram.enabled=true")
		}
		if strings.TrimSpace(cfg.Announce.Telegram.ChatID) == "" {
			return errors.New("announce.telegram.chat_id is required when announce.telegram.enabled=true")
		}
		if err := validateMessageTemplate("announce.telegram.template", cfg.Announce.Telegram.Template); err != nil {
			return err
		}
	}
	return nil
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validateMessageTemplate checks one announcement template.
// Params: config path and template body.
// Returns: parse error.
func validateMessageTemplate(path, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%s is required", path)
	}
	if _, err := templatefmt.ParseTransitionTemplate(path, trimmed); err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}
	return nil
}
