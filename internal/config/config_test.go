package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheatwatch/internal/logging"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg := Load("", logging.Discard())
	assert.Equal(t, Default().Weights, cfg.Weights)
	assert.Equal(t, int64(DefaultMaxFileSize), cfg.Hash.MaxFileSize)
	assert.Contains(t, cfg.Indicators.Sites, "unknowncheats.me")
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("scan: [unclosed"), 0o644))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("weights:\n  keyword_found: 400\n"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "missing.yaml")},
		{"unparseable", broken},
		{"invalid", invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := logging.New(logging.Config{Quiet: true, RecorderSize: 8})
			cfg := Load(tt.path, rec.Logger)
			assert.Equal(t, Default().Weights, cfg.Weights)
			require.Len(t, rec.Recorder().Entries(), 1)
			assert.Equal(t, "WARN", rec.Recorder().Entries()[0].Level)
		})
	}
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
scan:
  concurrent: true
  timeout: 90s
hash:
  roots: ["/srv/games"]
  max_file_size: 2048
weights:
  keyword_found: 10
ceilings:
  hash: 60
chat:
  enabled: false
`))
	require.NoError(t, err)

	assert.True(t, cfg.Scan.Concurrent)
	assert.Equal(t, 90*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, []string{"/srv/games"}, cfg.Hash.Roots)
	assert.Equal(t, int64(2048), cfg.Hash.MaxFileSize)
	assert.Equal(t, 10, cfg.Weights.Keyword)
	assert.Equal(t, 40, cfg.Weights.HashMatch)
	assert.Equal(t, 60, cfg.Ceilings.Hash)
	assert.False(t, cfg.Chat.Enabled)
	assert.True(t, cfg.Browser.Enabled)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("CW_TEST_DIR", "/opt/data")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), ExpandPath("~/logs"))
	assert.Equal(t, "/opt/data/x", ExpandPath("$CW_TEST_DIR/x"))
	assert.Equal(t, "/opt/data/x", ExpandPath("%CW_TEST_DIR%/x"))
	assert.Equal(t, "%CW_UNSET_VAR%/x", ExpandPath("%CW_UNSET_VAR%/x"))
	assert.Equal(t, "", ExpandPath(""))
}

func TestBuildIndicators_UsesFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "hashes.txt")
	require.NoError(t, os.WriteFile(db, []byte(
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08|loader|Test Loader|35\n"), 0o644))
	kw := filepath.Join(dir, "keywords.txt")
	require.NoError(t, os.WriteFile(kw, []byte("# custom\nTriggerBot\n"), 0o644))

	cfg := Default()
	cfg.Hash.Database = db
	cfg.Indicators.KeywordsFile = kw
	cfg.Indicators.SitesFile = filepath.Join(dir, "missing.txt")

	set, err := cfg.BuildIndicators(logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, set.HashCount())
	assert.Equal(t, []string{"triggerbot"}, set.Keywords())

	_, bl := set.BrowserIndicators()
	assert.Len(t, bl, len(Default().Indicators.Sites))
}

func TestBuildIndicators_BadWeightsFail(t *testing.T) {
	cfg := Default()
	cfg.Weights.ChatServer = 150
	_, err := cfg.BuildIndicators(logging.Discard())
	require.Error(t, err)
}

func TestWatcher_ReportsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan: {}\n"), 0o644))

	w, err := NewWatcher([]string{path}, 20*time.Millisecond, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []string, 1)
	go w.Run(ctx, func(changed []string) {
		select {
		case got <- changed:
		default:
		}
	})

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("scan:\n  concurrent: true\n"), 0o644))

	select {
	case changed := <-got:
		abs, _ := filepath.Abs(path)
		assert.Equal(t, []string{abs}, changed)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}
}
