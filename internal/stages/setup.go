package stages

import (
	"log/slog"

	"cheatwatch/internal/config"
	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
	"cheatwatch/internal/platform"
	"cheatwatch/internal/scanners"
)

// Setup carries the collaborators NewFromConfig wires in.
type Setup struct {
	Env        platform.Env
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Emitters   []core.Emitter
	OnProgress func(Status)
}

// NewFromConfig builds an orchestrator whose indicators and scanners follow
// cfg. Roots left empty in cfg are resolved from env. The digest cache is
// shared by every scan the orchestrator runs.
func NewFromConfig(cfg *config.Config, s Setup) *Orchestrator {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cache *intelligence.DigestCache
	if cfg.Hash.CacheSize > 0 {
		c, err := intelligence.NewDigestCache(cfg.Hash.CacheSize)
		if err != nil {
			logger.Warn("digest cache disabled", "error", err)
		} else {
			cache = c
		}
	}

	dirs := DataDirs(cfg)
	opts := Options{Concurrent: cfg.Scan.Concurrent, Timeout: cfg.Scan.Timeout}
	if cfg.Scan.WriteCase {
		opts.CaseDir = dirs.Cases
	}

	return New(Config{
		Indicators: func() (*intelligence.IndicatorSet, error) {
			return cfg.BuildIndicators(logger)
		},
		Scanners: func(set *intelligence.IndicatorSet) []core.Scanner {
			return BuildScanners(cfg, s.Env, set, cache, logger, s.Metrics)
		},
		Options:    opts,
		Logger:     logger,
		Metrics:    s.Metrics,
		Emitters:   s.Emitters,
		OnProgress: s.OnProgress,
	})
}

// DataDirs returns the tool's own directories for cfg.
func DataDirs(cfg *config.Config) core.Dirs {
	if cfg.DataDir != "" {
		return core.DirsAt(cfg.DataDir)
	}
	return core.DefaultDirs()
}

// BuildScanners instantiates the enabled scanners in phase order.
func BuildScanners(cfg *config.Config, env platform.Env, set *intelligence.IndicatorSet,
	cache *intelligence.DigestCache, logger *slog.Logger, m *metrics.Metrics) []core.Scanner {

	var out []core.Scanner

	if cfg.Hash.Enabled {
		roots := cfg.Hash.Roots
		if len(roots) == 0 {
			roots = platform.HashRoots(env)
		}
		excl := core.NewExclusions(cfg.Hash.Exclude...)
		excl.Add(DataDirs(cfg).Base)
		excl.Add(cfg.Logging.LogDir)

		out = append(out, scanners.NewHashScanner(set, scanners.HashOptions{
			Roots:          roots,
			Recursive:      cfg.Hash.Recursive,
			FollowSymlinks: cfg.Hash.FollowSymlinks,
			MaxDepth:       cfg.Hash.MaxDepth,
			MaxFileSize:    cfg.Hash.MaxFileSize,
			Exclusions:     excl,
		}, cache, logger, m))
	}

	if cfg.Browser.Enabled {
		opts := scanners.DefaultArtifactOptions()
		opts.MaxBlobBytes = cfg.Browser.MaxBlobBytes
		out = append(out, scanners.NewBrowserScanner(set, scanners.BrowserConfig{
			Roots:    platform.BrowserRoots(env),
			Profiles: cfg.Browser.Profiles,
			Exports:  cfg.Browser.Exports,
		}, opts, logger, m))
	}

	if cfg.Chat.Enabled {
		roots := cfg.Chat.Roots
		if len(roots) == 0 {
			roots = platform.ChatRoots(env)
		}
		opts := scanners.DefaultArtifactOptions()
		opts.MaxBlobBytes = cfg.Chat.MaxBlobBytes
		out = append(out, scanners.NewChatScanner(set, scanners.ChatConfig{
			Roots:             roots,
			Exports:           cfg.Chat.Exports,
			MaxCacheFiles:     cfg.Chat.MaxCacheFiles,
			MaxCacheFileBytes: cfg.Chat.MaxCacheFileBytes,
		}, opts, logger, m))
	}

	return out
}
