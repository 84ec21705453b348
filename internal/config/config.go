// Package config loads the scanner configuration from YAML.
//
// Any problem with the file (missing, unparseable, invalid) falls back to
// the built-in defaults with a warning; loading never aborts a scan.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/logging"
)

const (
	DefaultMaxFileSize       = 100 << 20
	DefaultMaxBlobBytes      = 64 << 20
	DefaultMaxCacheFiles     = 100
	DefaultMaxCacheFileBytes = 1 << 20
	DefaultMaxDepth          = 32
)

type Config struct {
	Scan       ScanConfig            `yaml:"scan"`
	Hash       HashConfig            `yaml:"hash"`
	Browser    BrowserConfig         `yaml:"browser"`
	Chat       ChatConfig            `yaml:"chat"`
	Indicators IndicatorConfig       `yaml:"indicators"`
	Weights    intelligence.Weights  `yaml:"weights"`
	Ceilings   intelligence.Ceilings `yaml:"ceilings"`
	Logging    logging.Config        `yaml:"logging"`
	DataDir    string                `yaml:"data_dir"`
	API        APIConfig             `yaml:"api"`
	NATS       NATSConfig            `yaml:"nats"`
}

type ScanConfig struct {
	Concurrent bool          `yaml:"concurrent"`
	Timeout    time.Duration `yaml:"timeout" validate:"min=0"`
	WriteCase  bool          `yaml:"write_case"`
}

type HashConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Roots          []string `yaml:"roots"`
	Recursive      bool     `yaml:"recursive"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
	MaxDepth       int      `yaml:"max_depth" validate:"min=1,max=256"`
	MaxFileSize    int64    `yaml:"max_file_size" validate:"min=1"`
	Exclude        []string `yaml:"exclude"`
	Database       string   `yaml:"database"`
	CacheSize      int      `yaml:"cache_size" validate:"min=0"`
}

type BrowserConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Profiles     []string `yaml:"profiles"`
	Exports      []string `yaml:"exports"`
	MaxBlobBytes int64    `yaml:"max_blob_bytes" validate:"min=1"`
}

type ChatConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Roots             []string `yaml:"roots"`
	Exports           []string `yaml:"exports"`
	MaxBlobBytes      int64    `yaml:"max_blob_bytes" validate:"min=1"`
	MaxCacheFiles     int      `yaml:"max_cache_files" validate:"min=1"`
	MaxCacheFileBytes int64    `yaml:"max_cache_file_bytes" validate:"min=1"`
}

// IndicatorConfig holds inline lists and optional list files.
// A non-empty file replaces the matching inline list.
type IndicatorConfig struct {
	Keywords     []string `yaml:"keywords"`
	Sites        []string `yaml:"sites"`
	ChatServers  []string `yaml:"chat_servers"`
	ChatChannels []string `yaml:"chat_channels"`
	KeywordsFile string   `yaml:"keywords_file"`
	SitesFile    string   `yaml:"sites_file"`
	ChatFile     string   `yaml:"chat_file"`
}

type APIConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type NATSConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	Subject string `yaml:"subject" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	src := intelligence.DefaultSources()
	return &Config{
		Scan: ScanConfig{WriteCase: true},
		Hash: HashConfig{
			Enabled:     true,
			Recursive:   true,
			MaxDepth:    DefaultMaxDepth,
			MaxFileSize: DefaultMaxFileSize,
			Database:    "config/hash_database.txt",
			CacheSize:   intelligence.DefaultDigestCacheSize,
		},
		Browser: BrowserConfig{
			Enabled:      true,
			MaxBlobBytes: DefaultMaxBlobBytes,
		},
		Chat: ChatConfig{
			Enabled:           true,
			MaxBlobBytes:      DefaultMaxBlobBytes,
			MaxCacheFiles:     DefaultMaxCacheFiles,
			MaxCacheFileBytes: DefaultMaxCacheFileBytes,
		},
		Indicators: IndicatorConfig{
			Keywords:     src.Keywords,
			Sites:        src.Sites,
			ChatServers:  src.ChatServers,
			ChatChannels: src.ChatChannels,
		},
		Weights:  intelligence.DefaultWeights(),
		Ceilings: intelligence.DefaultCeilings(),
		Logging:  logging.Config{Level: "info", RecorderSize: 500},
		API:      APIConfig{Addr: "127.0.0.1:8080"},
		NATS:     NATSConfig{Subject: "cheatwatch.events"},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	return cfg, nil
}

// Load reads the file at path. An empty path means defaults. Every failure
// falls back to defaults with a warning.
func Load(path string, logger *slog.Logger) *Config {
	if path == "" {
		return withExpandedPaths(Default())
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("config file not found, using defaults", "path", path)
		} else {
			logger.Warn("config file unreadable, using defaults", "path", path, "error", err)
		}
		return withExpandedPaths(Default())
	}

	cfg, err := Parse(data)
	if err != nil {
		logger.Warn("config rejected, using defaults", "path", path, "error", err)
		return withExpandedPaths(Default())
	}
	logger.Debug("config loaded", "path", path)
	return cfg
}

func withExpandedPaths(c *Config) *Config {
	c.expandPaths()
	return c
}

func (c *Config) expandPaths() {
	expandAll := func(ps []string) {
		for i := range ps {
			ps[i] = ExpandPath(ps[i])
		}
	}
	expandAll(c.Hash.Roots)
	expandAll(c.Hash.Exclude)
	expandAll(c.Browser.Profiles)
	expandAll(c.Browser.Exports)
	expandAll(c.Chat.Roots)
	expandAll(c.Chat.Exports)
	c.Hash.Database = ExpandPath(c.Hash.Database)
	c.Indicators.KeywordsFile = ExpandPath(c.Indicators.KeywordsFile)
	c.Indicators.SitesFile = ExpandPath(c.Indicators.SitesFile)
	c.Indicators.ChatFile = ExpandPath(c.Indicators.ChatFile)
	c.Logging.LogDir = ExpandPath(c.Logging.LogDir)
	c.DataDir = ExpandPath(c.DataDir)
}

var windowsVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_()]*)%`)

// ExpandPath expands a leading ~ plus $VAR, ${VAR} and %VAR% references.
// Unknown %VAR% references are left as written.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	p = windowsVar.ReplaceAllStringFunc(p, func(m string) string {
		if v, ok := os.LookupEnv(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
	return os.ExpandEnv(p)
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
