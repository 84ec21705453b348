package intelligence

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08" // sha256("test")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIndicatorSet_LookupHashIsCaseInsensitive(t *testing.T) {
	set, err := NewIndicatorSet(Sources{
		Hashes: []HashEntry{{Hash: strings.ToUpper(testHash), Category: "injector", Description: "test tool", Weight: 40}},
	}, DefaultWeights(), DefaultCeilings())
	require.NoError(t, err)

	lower, ok := set.LookupHash(testHash)
	require.True(t, ok)
	upper, ok := set.LookupHash(strings.ToUpper(testHash))
	require.True(t, ok)

	assert.Equal(t, lower, upper)
	assert.Equal(t, testHash, lower.Hash)
	assert.Equal(t, 40, lower.Weight)
}

func TestIndicatorSet_RejectsInvalidHash(t *testing.T) {
	_, err := NewIndicatorSet(Sources{
		Hashes: []HashEntry{{Hash: "not-a-hash"}},
	}, DefaultWeights(), DefaultCeilings())
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestIndicatorSet_RejectsOutOfRangeWeights(t *testing.T) {
	w := DefaultWeights()
	w.Keyword = 101
	_, err := NewIndicatorSet(Sources{}, w, DefaultCeilings())
	require.Error(t, err)

	c := DefaultCeilings()
	c.Chat = -1
	_, err = NewIndicatorSet(Sources{}, DefaultWeights(), c)
	require.Error(t, err)
}

func TestIndicatorSet_NormalizesTextIndicators(t *testing.T) {
	set, err := NewIndicatorSet(Sources{
		Keywords: []string{"  AimBot ", "aimbot", "", "ESP"},
		Sites:    []string{"UnknownCheats.ME"},
	}, DefaultWeights(), DefaultCeilings())
	require.NoError(t, err)

	assert.Equal(t, []string{"aimbot", "esp"}, set.Keywords())

	kw, bl := set.BrowserIndicators()
	require.Len(t, kw, 2)
	require.Len(t, bl, 1)
	assert.Equal(t, "unknowncheats.me", bl[0].Value)
	assert.Equal(t, 20, bl[0].Weight)
	assert.Equal(t, 15, kw[0].Weight)
}

func TestIndicatorSet_MatchKeyword(t *testing.T) {
	set, err := NewIndicatorSet(Sources{Keywords: []string{"wallhack", "injector"}}, DefaultWeights(), DefaultCeilings())
	require.NoError(t, err)

	kw, ok := set.MatchKeyword("My_INJECTOR_v2.exe")
	require.True(t, ok)
	assert.Equal(t, "injector", kw)

	_, ok = set.MatchKeyword("notepad.exe")
	assert.False(t, ok)
}

func TestIndicatorSet_ChatIndicatorsMergeServersAndChannels(t *testing.T) {
	set, err := NewIndicatorSet(Sources{
		Keywords:     []string{"aimbot"},
		ChatServers:  []string{"cheat", "leaks"},
		ChatChannels: []string{"leaks", "releases"},
	}, DefaultWeights(), DefaultCeilings())
	require.NoError(t, err)

	kw, bl := set.ChatIndicators()
	require.Len(t, kw, 1)
	assert.Equal(t, 15, kw[0].Weight)

	require.Len(t, bl, 3)
	assert.Equal(t, Indicator{Value: "cheat", Weight: 30, Label: "server"}, bl[0])
	assert.Equal(t, Indicator{Value: "leaks", Weight: 30, Label: "server"}, bl[1])
	assert.Equal(t, Indicator{Value: "releases", Weight: 20, Label: "channel"}, bl[2])
}

func TestParseHashDatabase(t *testing.T) {
	input := `# known cheat loaders
` + testHash + `|injector|Test Injector|45

NOTAHASH|bad|broken|10
` + strings.Repeat("a", 64) + `|spoofer|HWID Spoofer
` + strings.Repeat("b", 64) + `
`
	entries, err := ParseHashDatabase(strings.NewReader(input), 40, quietLogger())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, HashEntry{Hash: testHash, Category: "injector", Description: "Test Injector", Weight: 45}, entries[0])
	assert.Equal(t, 40, entries[1].Weight)
	assert.Equal(t, "HWID Spoofer", entries[1].Description)
	assert.Equal(t, "unknown", entries[2].Category)
}

func TestLoadHashDatabase_MissingFileIsEmpty(t *testing.T) {
	entries, err := LoadHashDatabase(filepath.Join(t.TempDir(), "missing.txt"), 40, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadChatList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discord.txt")
	content := "# chat indicators\n[servers]\nCheat Hub\nbypass\n\n[channels]\nreleases\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	servers, channels, err := LoadChatList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cheat Hub", "bypass"}, servers)
	assert.Equal(t, []string{"releases"}, channels)
}

func TestDigestCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("test"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	cache, err := NewDigestCache(8)
	require.NoError(t, err)

	sum, err := cache.Digest(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.Equal(t, testHash, sum)
	assert.Equal(t, 1, cache.Len())

	// Same key is served from the cache even after the file disappears.
	require.NoError(t, os.Remove(path))
	sum, err = cache.Digest(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.Equal(t, testHash, sum)

	// A changed mtime forces a rehash.
	_, err = cache.Digest(path, info.Size(), info.ModTime().Add(time.Second))
	assert.Error(t, err)
}
