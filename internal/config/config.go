// Package config provides configuration types, defaults and validation for
// gitfold.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/gitfold/internal/enrich"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/modules"
	"github.com/zjrosen/gitfold/internal/search"
	"github.com/zjrosen/gitfold/internal/tracing"
)

// Backend names.
const (
	BackendGoGit = "gogit"
	BackendCLI   = "cli"
)

// Config holds all configuration options for gitfold.
type Config struct {
	Backend string         `mapstructure:"backend"`
	History history.Config `mapstructure:"history"`
	Search  search.Config  `mapstructure:"search"`
	UI      UIConfig       `mapstructure:"ui"`
	Modules ModulesConfig  `mapstructure:"modules"`
	Enrich  enrich.Config  `mapstructure:"enrich"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Watch   WatchConfig    `mapstructure:"watch"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	DateFormat  string  `mapstructure:"date_format"` // relative | iso | short
	AuthorWidth int     `mapstructure:"author_width"`
	ShowModules bool    `mapstructure:"show_modules"`
	ShowDetail  bool    `mapstructure:"show_detail"`
	DetailWidth float64 `mapstructure:"detail_width"` // fraction of the terminal width
	Theme       string  `mapstructure:"theme"`        // glamour style: dark | light | notty
}

// ModulesConfig lists module definitions and the subtrees file to merge in.
type ModulesConfig struct {
	SubtreesFile string               `mapstructure:"subtrees_file"`
	Definitions  []modules.Definition `mapstructure:"definitions"`
}

// CacheConfig controls the sqlite annotation cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// WatchConfig controls the repository watcher.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Backend: BackendGoGit,
		History: history.DefaultConfig(),
		Search:  search.DefaultConfig(),
		UI: UIConfig{
			DateFormat:  string(history.DateRelative),
			AuthorWidth: 18,
			ShowModules: true,
			ShowDetail:  false,
			DetailWidth: 0.45,
			Theme:       "dark",
		},
		Modules: ModulesConfig{SubtreesFile: modules.SubtreesFile},
		Enrich:  enrich.DefaultConfig(),
		Cache:   CacheConfig{Enabled: true},
		Watch:   WatchConfig{Enabled: true, Debounce: 250 * time.Millisecond},
		Tracing: tracing.DefaultConfig(),
	}
}

// Validate returns the first configuration error found.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGoGit, BackendCLI:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendGoGit, BackendCLI, c.Backend)
	}
	if err := ValidateHistory(c.History); err != nil {
		return err
	}
	if err := ValidateSearch(c.Search); err != nil {
		return err
	}
	if err := ValidateUI(c.UI); err != nil {
		return err
	}
	if _, err := modules.New(c.Modules.Definitions); err != nil {
		return fmt.Errorf("modules.definitions: %w", err)
	}
	if c.Enrich.Workers < 1 {
		return fmt.Errorf("enrich.workers must be at least 1, got %d", c.Enrich.Workers)
	}
	if c.Enrich.Timeout <= 0 {
		return fmt.Errorf("enrich.timeout must be positive, got %s", c.Enrich.Timeout)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateHistory checks the paging limits.
func ValidateHistory(h history.Config) error {
	if h.PageSize < 1 {
		return fmt.Errorf("history.page_size must be at least 1, got %d", h.PageSize)
	}
	if h.LinkHorizon < h.PageSize {
		return fmt.Errorf("history.link_horizon must be at least history.page_size (%d), got %d", h.PageSize, h.LinkHorizon)
	}
	if h.MaxSubtree < 1 {
		return fmt.Errorf("history.max_subtree must be at least 1, got %d", h.MaxSubtree)
	}
	return nil
}

// ValidateSearch checks search batching.
func ValidateSearch(s search.Config) error {
	if s.BatchSize < 1 {
		return fmt.Errorf("search.batch_size must be at least 1, got %d", s.BatchSize)
	}
	if s.ProgressEvery < 1 {
		return fmt.Errorf("search.progress_every must be at least 1, got %d", s.ProgressEvery)
	}
	return nil
}

// ValidateUI checks display options.
func ValidateUI(u UIConfig) error {
	switch history.DateFormat(u.DateFormat) {
	case history.DateRelative, history.DateISO, history.DateShort:
	default:
		return fmt.Errorf("ui.date_format must be \"relative\", \"iso\", or \"short\", got %q", u.DateFormat)
	}
	if u.AuthorWidth < 0 {
		return fmt.Errorf("ui.author_width must not be negative, got %d", u.AuthorWidth)
	}
	if u.DetailWidth <= 0 || u.DetailWidth >= 1 {
		return fmt.Errorf("ui.detail_width must be between 0 and 1, got %v", u.DetailWidth)
	}
	switch u.Theme {
	case "", "dark", "light", "notty", "dracula", "tokyo-night", "pink", "ascii":
	default:
		return fmt.Errorf("ui.theme %q is not a known glamour style", u.Theme)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
func ValidateTracing(tracing tracing.Config) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled && tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// DefaultConfigPath returns ~/.config/gitfold/config.yaml, honoring
// XDG_CONFIG_HOME. Empty when no home directory is known.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "gitfold", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gitfold", "config.yaml")
}

// DefaultCacheDir returns $XDG_CACHE_HOME/gitfold or the platform cache
// directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "gitfold")
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gitfold")
}

// DefaultTracesFilePath returns the trace file used when tracing.file_path
// is empty.
func DefaultTracesFilePath() string {
	dir := DefaultCacheDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# gitfold configuration

# Repository backend: "gogit" (pure Go, default) or "cli" (shells out to git)
backend: gogit

history:
  page_size: 200        # rows loaded per step while scrolling
  link_horizon: 20000   # rows scanned at most when following a link
  max_subtree: 5000     # commits spliced in by a single unfold

search:
  ignore_case: true
  batch_size: 500       # rows loaded per step while searching forward
  progress_every: 100   # rows between progress updates

ui:
  date_format: relative # relative | iso | short (cycle with "t")
  author_width: 18
  show_modules: true
  show_detail: false    # toggle with "d"
  detail_width: 0.45    # fraction of the terminal width
  theme: dark           # glamour style for commit messages

modules:
  subtrees_file: .gitsubtrees
  # Named path prefixes shown next to each commit
  # definitions:
  #   - name: docs
  #     path: docs/

enrich:
  workers: 4
  timeout: 2s

cache:
  enabled: true
  dir: ""               # default: $XDG_CACHE_HOME/gitfold

watch:
  enabled: true
  debounce: 250ms

tracing:
  enabled: false
  exporter: file        # none | file | stdout | otlp
  file_path: ""         # default: $XDG_CACHE_HOME/gitfold/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
