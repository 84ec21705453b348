package scanners

import (
	"log/slog"
	"path/filepath"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
)

// Chat sub-kinds, for presentation only.
const (
	SubKindSegmentStore = "segment-store"
	SubKindCache        = "cache"
	SubKindLog          = "log"
	SubKindExport       = "export"
)

// ChatConfig selects the chat client artifacts to scan.
type ChatConfig struct {
	// Roots are client variant data directories (stable, canary, ptb, development).
	Roots   []string
	Exports []string

	MaxCacheFiles     int
	MaxCacheFileBytes int64
}

// NewChatScanner scans chat client local storage, caches and logs.
func NewChatScanner(set *intelligence.IndicatorSet, cfg ChatConfig, opts ArtifactOptions,
	logger *slog.Logger, m *metrics.Metrics) *ArtifactScanner {

	keywords, blacklist := set.ChatIndicators()
	opts.AuthBonus = set.Weights().AuthBonus
	return NewArtifactScanner("chat", core.CategoryChat, chatSources(cfg), keywords, blacklist, opts, logger, m)
}

func chatSources(cfg ChatConfig) DiscoverFunc {
	return func() []Source {
		var srcs []Source
		for _, root := range cfg.Roots {
			srcs = append(srcs,
				Source{
					Path:     filepath.Join(root, "Local Storage", "leveldb"),
					SubKind:  SubKindSegmentStore,
					Dir:      true,
					Patterns: []string{"*.ldb", "*.log"},
				},
				cfg.cache(filepath.Join(root, "Cache")),
				cfg.cache(filepath.Join(root, "Cache", "Cache_Data")),
				Source{Path: filepath.Join(root, "logs"), SubKind: SubKindLog, Dir: true},
			)
		}
		for _, path := range cfg.Exports {
			srcs = append(srcs, Source{Path: path, SubKind: SubKindExport})
		}
		return srcs
	}
}

func (cfg ChatConfig) cache(dir string) Source {
	return Source{
		Path:         dir,
		SubKind:      SubKindCache,
		Dir:          true,
		MaxFiles:     cfg.MaxCacheFiles,
		MaxFileBytes: cfg.MaxCacheFileBytes,
	}
}
