package logging

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToWriterAndRecorder(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Writer: &buf, RecorderSize: 4, Service: "test"})
	defer l.Close()

	l.Debug("probing", "path", "/tmp/x")
	l.Warn("unreadable", "err", "denied")

	assert.Contains(t, buf.String(), "probing")
	assert.Contains(t, buf.String(), "service=test")

	entries := l.Recorder().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "DEBUG", entries[0].Level)
	assert.Equal(t, "/tmp/x", entries[0].Attrs["path"])
	assert.Equal(t, "test", entries[1].Attrs["service"])

	warns := l.Recorder().AtLeast(slog.LevelWarn)
	require.Len(t, warns, 1)
	assert.Equal(t, "unreadable", warns[0].Message)
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Writer: &buf, RecorderSize: 4})

	l.Info("hidden")
	l.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Len(t, l.Recorder().Entries(), 1)
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Quiet: true, LogDir: dir, Service: "scan"})
	l.Info("written to file")
	require.NoError(t, l.Close())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(dir + "/" + files[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
}

func TestRecorder_RingKeepsMostRecent(t *testing.T) {
	rec := NewRecorder(3, slog.LevelDebug)
	log := slog.New(rec)
	for _, m := range []string{"a", "b", "c", "d", "e"} {
		log.Info(m)
	}

	var msgs []string
	for _, e := range rec.Entries() {
		msgs = append(msgs, e.Message)
	}
	assert.Equal(t, []string{"c", "d", "e"}, msgs)

	rec.Reset()
	assert.Empty(t, rec.Entries())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
