package scanners

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
	"cheatwatch/internal/platform"
)

// BrowserConfig selects the browser artifacts to scan.
type BrowserConfig struct {
	// Roots are vendor data directories; profiles are expanded from them.
	Roots []platform.BrowserRoot
	// Profiles, when set, replace discovery with explicit profile directories.
	Profiles []string
	// Exports are exported history files.
	Exports []string
}

// NewBrowserScanner scans browser history stores and exported history.
func NewBrowserScanner(set *intelligence.IndicatorSet, cfg BrowserConfig, opts ArtifactOptions,
	logger *slog.Logger, m *metrics.Metrics) *ArtifactScanner {

	keywords, blacklist := set.BrowserIndicators()
	opts.AuthBonus = set.Weights().AuthBonus
	return NewArtifactScanner("browser", core.CategoryBrowser, browserSources(cfg, logger),
		keywords, blacklist, opts, logger, m)
}

func browserSources(cfg BrowserConfig, logger *slog.Logger) DiscoverFunc {
	return func() []Source {
		var profiles []platform.Profile
		if len(cfg.Profiles) > 0 {
			for _, dir := range cfg.Profiles {
				profiles = append(profiles, platform.Profile{Vendor: vendorOf(dir), Dir: dir})
			}
		} else {
			for _, root := range cfg.Roots {
				found, err := platform.Profiles(root)
				if err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						logger.Debug("browser not installed", "vendor", root.Vendor, "path", root.Dir)
					} else {
						logger.Warn("browser profiles unreadable", "vendor", root.Vendor, "error", err)
					}
					continue
				}
				profiles = append(profiles, found...)
			}
		}

		var srcs []Source
		for _, p := range profiles {
			for _, name := range platform.HistoryFiles {
				srcs = append(srcs, Source{Path: filepath.Join(p.Dir, name), SubKind: p.Vendor})
			}
		}
		for _, path := range cfg.Exports {
			format := FormatRaw
			if strings.EqualFold(filepath.Ext(path), ".json") {
				format = FormatJSON
			}
			srcs = append(srcs, Source{Path: path, SubKind: "export", Format: format})
		}
		return srcs
	}
}

// vendorOf guesses the vendor of an explicitly configured profile path.
func vendorOf(dir string) string {
	lower := strings.ToLower(filepath.ToSlash(dir))
	for _, v := range []struct{ needle, vendor string }{
		{"edge", "edge"}, {"brave", "brave"}, {"opera", "opera"},
		{"firefox", "firefox"}, {"mozilla", "firefox"}, {"chrome", "chrome"},
	} {
		if strings.Contains(lower, v.needle) {
			return v.vendor
		}
	}
	return "browser"
}
