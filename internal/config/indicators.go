package config

import (
	"fmt"
	"log/slog"

	"cheatwatch/internal/intelligence"
)

// BuildIndicators loads the hash database and list files and builds the
// indicator set. Unreadable list files fall back to the inline lists; only a
// set that cannot be constructed at all is returned as an error.
func (c *Config) BuildIndicators(logger *slog.Logger) (*intelligence.IndicatorSet, error) {
	src := intelligence.Sources{
		Keywords:     c.Indicators.Keywords,
		Sites:        c.Indicators.Sites,
		ChatServers:  c.Indicators.ChatServers,
		ChatChannels: c.Indicators.ChatChannels,
	}

	if c.Hash.Database != "" {
		hashes, err := intelligence.LoadHashDatabase(c.Hash.Database, c.Weights.HashMatch, logger)
		if err != nil {
			logger.Warn("hash database unusable, continuing without hashes", "error", err)
		}
		src.Hashes = hashes
	}

	overrideList(&src.Keywords, c.Indicators.KeywordsFile, logger)
	overrideList(&src.Sites, c.Indicators.SitesFile, logger)

	if c.Indicators.ChatFile != "" {
		servers, channels, err := intelligence.LoadChatList(c.Indicators.ChatFile)
		switch {
		case err != nil:
			logger.Warn("chat list unreadable, using inline lists", "path", c.Indicators.ChatFile, "error", err)
		default:
			if len(servers) > 0 {
				src.ChatServers = servers
			}
			if len(channels) > 0 {
				src.ChatChannels = channels
			}
		}
	}

	set, err := intelligence.NewIndicatorSet(src, c.Weights, c.Ceilings)
	if err != nil {
		return nil, fmt.Errorf("build indicator set: %w", err)
	}
	logger.Info("indicators ready", "summary", set.Stats())
	return set, nil
}

func overrideList(dst *[]string, path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	list, err := intelligence.LoadList(path)
	if err != nil {
		logger.Warn("indicator list unreadable, using inline list", "path", path, "error", err)
		return
	}
	if len(list) > 0 {
		*dst = list
	}
}
