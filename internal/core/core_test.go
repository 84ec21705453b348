package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSink_RejectsEmptyMatchAndClampsWeight(t *testing.T) {
	s := NewEventSink()

	err := s.Append(NewEvent(CategoryHash, KindExactHash, "/x", "", 10))
	assert.ErrorIs(t, err, ErrEmptyMatch)

	ev := NewEvent(CategoryHash, KindExactHash, "/x", "abc", 10)
	ev.Weight = 250
	require.NoError(t, s.Append(ev))

	got := s.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Weight)
	assert.Equal(t, 1, s.Count(CategoryHash))
}

func TestEventSink_SnapshotIsACopy(t *testing.T) {
	s := NewEventSink()
	s.Emit(NewEvent(CategoryBrowser, KindKeyword, "History", "aimbot", 15))

	snap := s.Snapshot()
	snap[0].MatchedValue = "changed"
	s.Emit(NewEvent(CategoryChat, KindKeyword, "log", "wallhack", 12))

	assert.Len(t, snap, 1)
	assert.Equal(t, "aimbot", s.Snapshot()[0].MatchedValue)
}

func TestEventSink_FilterByCategory(t *testing.T) {
	s := NewEventSink()
	s.Emit(NewEvent(CategoryHash, KindExactHash, "/a", "h1", 40))
	s.Emit(NewEvent(CategoryBrowser, KindKeyword, "History", "aimbot", 15))
	s.Emit(NewEvent(CategoryChat, KindBlacklist, "log", "cheat hub", 25))

	assert.Len(t, s.Snapshot(CategoryBrowser), 1)
	assert.Len(t, s.Snapshot(CategoryHash, CategoryChat), 2)

	empty := s.Snapshot(Category("none"))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestEventSink_ConcurrentAppendAndSnapshot(t *testing.T) {
	s := NewEventSink()
	const writers, perWriter = 4, 250

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Emit(NewEvent(CategoryHash, KindExactHash, "/f", "h", 1))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		last := 0
		for i := 0; i < 100; i++ {
			n := len(s.Snapshot())
			assert.GreaterOrEqual(t, n, last)
			last = n
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, writers*perWriter, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Count(CategoryHash))
}

func TestMeter_NeverDecreases(t *testing.T) {
	var seen []float64
	m := NewMeter(func(p Progress) { seen = append(seen, p.Fraction) })

	m.Report(1, 2, "")  // 0.5
	m.Report(1, 10, "") // new directory listed, raw ratio drops
	m.Report(8, 10, "")
	m.Report(20, 10, "")
	m.Finish(20, "done")

	assert.Equal(t, []float64{0.5, 0.5, 0.8, 1, 1}, seen)
}

func TestMeter_PendingKeepsFractionBelowOne(t *testing.T) {
	var seen []Progress
	m := NewMeter(func(p Progress) { seen = append(seen, p) })

	m.ReportPending(3, 3, 2, "")
	m.ReportPending(4, 10, 0, "")
	m.ReportPending(10, 10, 0, "")

	require.Len(t, seen, 3)
	assert.InDelta(t, 0.6, seen[0].Fraction, 1e-9)
	assert.Equal(t, 3, seen[0].Total)
	assert.InDelta(t, 0.6, seen[1].Fraction, 1e-9)
	assert.Equal(t, 1.0, seen[2].Fraction)
}

func TestMeter_NilFuncIsSafe(t *testing.T) {
	m := NewMeter(nil)
	assert.NotPanics(t, func() {
		m.Report(1, 0, "")
		m.Finish(1, "")
	})
}

func TestExclusions(t *testing.T) {
	root := t.TempDir()
	data := filepath.Join(root, "data")
	e := NewExclusions(data, "")

	assert.True(t, e.IsExcluded(data))
	assert.True(t, e.IsExcluded(filepath.Join(data, "Cases", "report.txt")))
	assert.False(t, e.IsExcluded(filepath.Join(root, "data2")))
	assert.False(t, e.IsExcluded(root))
	assert.Len(t, e.Paths(), 1)

	var nilSet *Exclusions
	assert.False(t, nilSet.IsExcluded(data))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelLow, LevelFor(0))
	assert.Equal(t, LevelLow, LevelFor(20))
	assert.Equal(t, LevelMedium, LevelFor(21))
	assert.Equal(t, LevelMedium, LevelFor(50))
	assert.Equal(t, LevelHigh, LevelFor(70))
	assert.Equal(t, LevelCritical, LevelFor(71))
	assert.Contains(t, Recommendation(LevelLow), "No significant findings")
}

func sampleReport() Report {
	ev := NewEvent(CategoryBrowser, KindBlacklist, "Chrome/Default/History", "mpgh.net", 35)
	ev.SubKind = "login"
	ev.Context = "https://mpgh.net/forum/login.php"
	return Report{
		ScanID:    "scan-1",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Summary: RiskSummary{
			TotalPercent:            35,
			Level:                   LevelMedium,
			PerCategoryCount:        map[Category]int{CategoryBrowser: 1},
			PerCategoryContribution: map[Category]int{CategoryBrowser: 35},
			Recommendation:          Recommendation(LevelMedium),
		},
		Stats:  map[Category]Stats{CategoryBrowser: {Processed: 3}},
		Events: []Event{ev},
	}
}

func TestWriteTextReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTextReport(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "TOTAL RISK: 35% (Medium)")
	assert.Contains(t, out, "--- BROWSER (1) ---")
	assert.Contains(t, out, "blacklist (login) weight=35")
	assert.Contains(t, out, "Context: https://mpgh.net/forum/login.php")
	assert.NotContains(t, out, "--- HASH")
}

func TestWriteTextReport_UnfinishedScanHasNoScore(t *testing.T) {
	r := sampleReport()
	r.State = "cancelled"

	var buf bytes.Buffer
	require.NoError(t, WriteTextReport(&buf, r))
	out := buf.String()

	assert.False(t, r.Scored())
	assert.Contains(t, out, "State:    cancelled")
	assert.Contains(t, out, "NO RISK SCORE: scan cancelled before completion.")
	assert.NotContains(t, out, "TOTAL RISK")
	assert.NotContains(t, out, "contribution")
	assert.Contains(t, out, "mpgh.net")
}

func TestWriteJSONReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONReport(&buf, sampleReport()))
	assert.Contains(t, buf.String(), `"level": "Medium"`)
	assert.Contains(t, buf.String(), `"matched_value": "mpgh.net"`)
}

func TestCaseFile_WriteAndSeal(t *testing.T) {
	c := NewCaseFile("20260102-030405-abcd1234", t.TempDir())
	dir, err := c.Write(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, c.Dir(), dir)

	for _, name := range []string{"report.txt", "report.json", "events.json", manifestName} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	manifest, err := os.ReadFile(filepath.Join(dir, manifestName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(manifest)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasSuffix(lines[0], "  events.json"))

	sum, err := hashFile(filepath.Join(dir, "report.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), sum+"  report.txt")
}

func TestFanout_SkipsNil(t *testing.T) {
	var got []string
	a := EmitterFunc(func(ev Event) { got = append(got, "a:"+ev.MatchedValue) })
	b := EmitterFunc(func(ev Event) { got = append(got, "b:"+ev.MatchedValue) })

	Fanout(a, nil, b).Emit(NewEvent(CategoryHash, KindExactHash, "/x", "h", 1))
	assert.Equal(t, []string{"a:h", "b:h"}, got)
}
