// Package platform resolves where browsers and chat clients keep their data
// on each operating system.
package platform

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// Layout describes how profiles are arranged under a browser root.
type Layout int

const (
	// LayoutChromium: "Default" plus "Profile N" directories.
	LayoutChromium Layout = iota
	// LayoutSingle: the root is the only profile.
	LayoutSingle
	// LayoutFirefox: every subdirectory is a profile.
	LayoutFirefox
)

// BrowserRoot is a vendor's data directory.
type BrowserRoot struct {
	Vendor string
	Dir    string
	Layout Layout
}

// Profile is one browser profile directory.
type Profile struct {
	Vendor string
	Dir    string
}

// Env carries the OS and the base directories locations are derived from.
type Env struct {
	GOOS         string
	Home         string
	ConfigDir    string // XDG config dir on Linux, Application Support on macOS
	AppData      string // %APPDATA%
	LocalAppData string // %LOCALAPPDATA%
	SystemRoot   string // %SystemRoot%
}

// CurrentEnv reads the running host's environment.
func CurrentEnv() Env {
	home, _ := os.UserHomeDir()
	cfg, _ := os.UserConfigDir()
	e := Env{
		GOOS:         runtime.GOOS,
		Home:         home,
		ConfigDir:    cfg,
		AppData:      os.Getenv("APPDATA"),
		LocalAppData: os.Getenv("LOCALAPPDATA"),
		SystemRoot:   os.Getenv("SystemRoot"),
	}
	if e.GOOS == "windows" {
		if e.AppData == "" {
			e.AppData = filepath.Join(home, "AppData", "Roaming")
		}
		if e.LocalAppData == "" {
			e.LocalAppData = filepath.Join(home, "AppData", "Local")
		}
		if e.SystemRoot == "" {
			e.SystemRoot = `C:\Windows`
		}
	}
	return e
}

// ChatVariants are the client builds whose data directories are scanned.
var ChatVariants = []string{"discord", "discordcanary", "discordptb", "discorddevelopment"}

// BrowserRoots returns every known vendor root for env, present or not.
func BrowserRoots(env Env) []BrowserRoot {
	j := filepath.Join
	switch env.GOOS {
	case "windows":
		return []BrowserRoot{
			{"chrome", j(env.LocalAppData, "Google", "Chrome", "User Data"), LayoutChromium},
			{"edge", j(env.LocalAppData, "Microsoft", "Edge", "User Data"), LayoutChromium},
			{"brave", j(env.LocalAppData, "BraveSoftware", "Brave-Browser", "User Data"), LayoutChromium},
			{"opera", j(env.AppData, "Opera Software", "Opera Stable"), LayoutSingle},
			{"firefox", j(env.AppData, "Mozilla", "Firefox", "Profiles"), LayoutFirefox},
		}
	case "darwin":
		support := env.ConfigDir
		if support == "" {
			support = j(env.Home, "Library", "Application Support")
		}
		return []BrowserRoot{
			{"chrome", j(support, "Google", "Chrome"), LayoutChromium},
			{"edge", j(support, "Microsoft Edge"), LayoutChromium},
			{"brave", j(support, "BraveSoftware", "Brave-Browser"), LayoutChromium},
			{"opera", j(support, "com.operasoftware.Opera"), LayoutSingle},
			{"firefox", j(support, "Firefox", "Profiles"), LayoutFirefox},
		}
	default:
		cfg := env.ConfigDir
		if cfg == "" {
			cfg = j(env.Home, ".config")
		}
		return []BrowserRoot{
			{"chrome", j(cfg, "google-chrome"), LayoutChromium},
			{"edge", j(cfg, "microsoft-edge"), LayoutChromium},
			{"brave", j(cfg, "BraveSoftware", "Brave-Browser"), LayoutChromium},
			{"opera", j(cfg, "opera"), LayoutSingle},
			{"firefox", j(env.Home, ".mozilla", "firefox"), LayoutFirefox},
		}
	}
}

// ChatRoots returns every chat client variant root for env, present or not.
func ChatRoots(env Env) []string {
	base := env.ConfigDir
	switch env.GOOS {
	case "windows":
		base = env.AppData
	case "darwin":
		if base == "" {
			base = filepath.Join(env.Home, "Library", "Application Support")
		}
	default:
		if base == "" {
			base = filepath.Join(env.Home, ".config")
		}
	}
	roots := make([]string, len(ChatVariants))
	for i, v := range ChatVariants {
		roots[i] = filepath.Join(base, v)
	}
	return roots
}

// HashRoots returns the default directories for the hash scan.
func HashRoots(env Env) []string {
	j := filepath.Join
	roots := []string{j(env.Home, "Downloads"), j(env.Home, "Desktop")}
	if env.GOOS == "windows" {
		roots = append([]string{
			j(env.AppData, "Microsoft", "Windows", "Recent"),
			j(env.SystemRoot, "Prefetch"),
		}, roots...)
	}
	return roots
}

// HistoryFiles are the history-like files scanned in each profile.
var HistoryFiles = []string{"History", "Archived History", "Top Sites", "Shortcuts", "places.sqlite"}

// Profiles lists the profile directories under root. A missing root yields
// no profiles and fs.ErrNotExist.
func Profiles(root BrowserRoot) ([]Profile, error) {
	info, err := os.Stat(root.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "profiles", Path: root.Dir, Err: errors.New("not a directory")}
	}

	if root.Layout == LayoutSingle {
		return []Profile{{Vendor: root.Vendor, Dir: root.Dir}}, nil
	}

	entries, err := os.ReadDir(root.Dir)
	if err != nil {
		return nil, err
	}
	var out []Profile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if root.Layout == LayoutChromium && name != "Default" && !strings.HasPrefix(name, "Profile ") {
			continue
		}
		out = append(out, Profile{Vendor: root.Vendor, Dir: filepath.Join(root.Dir, name)})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Dir < out[k].Dir })
	return out, nil
}
