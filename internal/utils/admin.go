package utils

import (
	"os"
	"os/user"
	"runtime"
)

// IsAdmin reports whether the process runs elevated (Administrator or root).
func IsAdmin() bool {
	if runtime.GOOS == "windows" {
		// Opening the physical drive requires elevation.
		f, err := os.Open(`\\.\PHYSICALDRIVE0`)
		if err != nil {
			return false
		}
		f.Close()
		return true
	}
	u, err := user.Current()
	if err != nil {
		return false
	}
	return u.Uid == "0"
}

// ElevationHint explains what an unelevated scan may miss. Empty when elevated.
func ElevationHint(elevated bool) string {
	if elevated {
		return ""
	}
	switch runtime.GOOS {
	case "windows":
		return "not running as Administrator: Prefetch and other users' profiles will be skipped"
	default:
		return "not running as root: directories owned by other users will be skipped"
	}
}
