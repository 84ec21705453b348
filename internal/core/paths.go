package core

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "cheatwatch"

// Dirs holds the tool's own data locations.
type Dirs struct {
	Base   string
	Cases  string
	Logs   string
	Config string
}

// DefaultDirs places everything under the user's config directory.
func DefaultDirs() Dirs {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return DirsAt(filepath.Join(base, appName))
}

// DirsAt derives the layout from an explicit base directory.
func DirsAt(base string) Dirs {
	return Dirs{
		Base:   base,
		Cases:  filepath.Join(base, "Cases"),
		Logs:   filepath.Join(base, "Logs"),
		Config: filepath.Join(base, "config"),
	}
}

// Ensure creates the directory structure.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Base, d.Cases, d.Logs, d.Config} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}
	return nil
}
