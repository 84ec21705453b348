package intelligence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LoadHashDatabase reads a hash database file. Each line is
//
//	hash|category|name|weight
//
// Blank lines and lines starting with '#' are ignored. A missing weight
// falls back to defaultWeight. Lines with a malformed hash are skipped and
// logged. A missing file yields an empty database, not an error.
func LoadHashDatabase(path string, defaultWeight int, logger *slog.Logger) ([]HashEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("hash database not found", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("open hash database: %w", err)
	}
	defer f.Close()

	entries, err := ParseHashDatabase(f, defaultWeight, logger)
	if err != nil {
		return nil, fmt.Errorf("read hash database %s: %w", path, err)
	}
	logger.Info("hash database loaded", "path", path, "entries", len(entries))
	return entries, nil
}

// ParseHashDatabase parses the hash database line format from r.
func ParseHashDatabase(r io.Reader, defaultWeight int, logger *slog.Logger) ([]HashEntry, error) {
	var entries []HashEntry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		hash, ok := NormalizeHash(parts[0])
		if !ok {
			logger.Warn("skipping malformed hash entry", "line", lineNo)
			continue
		}

		e := HashEntry{Hash: hash, Category: "unknown", Weight: defaultWeight}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			e.Category = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			e.Description = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			w, err := strconv.Atoi(strings.TrimSpace(parts[3]))
			if err != nil {
				logger.Warn("invalid hash weight, using default", "line", lineNo, "value", parts[3])
			} else {
				e.Weight = w
			}
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// LoadList reads a one-entry-per-line list with '#' comments.
// A missing file yields nil without error.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open list: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}
	return out, nil
}

// LoadChatList reads a file with [servers] and [channels] sections.
// Entries before any section header are treated as servers.
func LoadChatList(path string) (servers, channels []string, err error) {
	lines, err := LoadList(path)
	if err != nil {
		return nil, nil, err
	}

	section := "servers"
	for _, line := range lines {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.Trim(line, "[] "))
			continue
		}
		switch section {
		case "servers":
			servers = append(servers, line)
		case "channels":
			channels = append(channels, line)
		}
	}
	return servers, channels, nil
}
