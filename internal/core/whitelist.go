package core

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Exclusions holds directories that scanners must never descend into.
// The tool's own data directory is always excluded so written reports,
// which quote matched indicators, can never trigger a later scan.
type Exclusions struct {
	prefixes []string
}

func NewExclusions(paths ...string) *Exclusions {
	e := &Exclusions{}
	for _, p := range paths {
		e.Add(p)
	}
	return e
}

// Add registers a directory. Empty paths are ignored.
func (e *Exclusions) Add(path string) {
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	e.prefixes = append(e.prefixes, normalizePath(filepath.Clean(path)))
}

// IsExcluded reports whether path is one of the excluded directories or inside one.
func (e *Exclusions) IsExcluded(path string) bool {
	if e == nil || len(e.prefixes) == 0 {
		return false
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := normalizePath(filepath.Clean(path))
	for _, prefix := range e.prefixes {
		if p == prefix || strings.HasPrefix(p, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Paths returns the registered directories.
func (e *Exclusions) Paths() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.prefixes))
	copy(out, e.prefixes)
	return out
}

func normalizePath(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(p)
	}
	return p
}
