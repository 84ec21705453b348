package risk

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
)

func ev(cat core.Category, w int) core.Event {
	return core.NewEvent(cat, core.KindKeyword, "src", "value", w)
}

func TestAggregate_NoEventsIsLow(t *testing.T) {
	s := Aggregate(nil, intelligence.DefaultCeilings())

	assert.Equal(t, 0, s.TotalPercent)
	assert.Equal(t, core.LevelLow, s.Level)
	assert.Equal(t, core.Recommendation(core.LevelLow), s.Recommendation)
	assert.Contains(t, s.Recommendation, "No significant findings")
	for _, c := range core.Categories {
		assert.Equal(t, 0, s.PerCategoryCount[c])
		assert.Equal(t, 0, s.PerCategoryContribution[c])
	}
}

func TestAggregate_SingleHashMatchIsMedium(t *testing.T) {
	s := Aggregate([]core.Event{ev(core.CategoryHash, 40)}, intelligence.DefaultCeilings())

	assert.Equal(t, 40, s.TotalPercent)
	assert.Equal(t, core.LevelMedium, s.Level)
	assert.Equal(t, 1, s.PerCategoryCount[core.CategoryHash])
	assert.Equal(t, 40, s.PerCategoryContribution[core.CategoryHash])
}

func TestAggregate_CeilingsAndTotalClamp(t *testing.T) {
	var events []core.Event
	for i := 0; i < 10; i++ {
		events = append(events, ev(core.CategoryHash, 100), ev(core.CategoryBrowser, 100), ev(core.CategoryChat, 100))
	}
	s := Aggregate(events, intelligence.DefaultCeilings())

	assert.Equal(t, 50, s.PerCategoryContribution[core.CategoryHash])
	assert.Equal(t, 30, s.PerCategoryContribution[core.CategoryBrowser])
	assert.Equal(t, 30, s.PerCategoryContribution[core.CategoryChat])
	assert.Equal(t, 100, s.TotalPercent)
	assert.Equal(t, core.LevelCritical, s.Level)
}

func TestAggregate_SingleSourceCannotReachCritical(t *testing.T) {
	var events []core.Event
	for i := 0; i < 1000; i++ {
		events = append(events, ev(core.CategoryHash, 100))
	}
	s := Aggregate(events, intelligence.DefaultCeilings())
	assert.Equal(t, 50, s.TotalPercent)
	assert.NotEqual(t, core.LevelCritical, s.Level)
}

func TestAggregate_Bounded(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	uncapped := intelligence.Ceilings{Hash: 100, Browser: 100, Chat: 100}
	for trial := 0; trial < 200; trial++ {
		n := r.IntN(500)
		events := make([]core.Event, n)
		for i := range events {
			events[i] = ev(core.Categories[r.IntN(3)], r.IntN(101))
		}
		for _, c := range []intelligence.Ceilings{intelligence.DefaultCeilings(), uncapped} {
			s := Aggregate(events, c)
			require.GreaterOrEqual(t, s.TotalPercent, 0)
			require.LessOrEqual(t, s.TotalPercent, 100)
		}
	}
}

func TestContribution_Monotone(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for trial := 0; trial < 300; trial++ {
		var weights []int
		prev := 0
		for i := 0; i < 40; i++ {
			weights = append(weights, r.IntN(101))
			got := Contribution(weights, 100)
			require.GreaterOrEqual(t, got, prev, "weights=%v", weights)
			prev = got
		}
	}
}

func TestContribution_MonotoneAcrossThreshold(t *testing.T) {
	// The undamped sum of three events must not drop when a fourth arrives,
	// and a zero-weight event must not lower the score.
	assert.Equal(t, 60, Contribution([]int{20, 20, 20}, 100))
	assert.GreaterOrEqual(t, Contribution([]int{20, 20, 20, 20}, 100), 60)
	assert.GreaterOrEqual(t, Contribution([]int{20, 20, 20, 0}, 100), 60)
}

func TestContribution_DiminishingReturns(t *testing.T) {
	eight := make([]int, 8)
	sixteen := make([]int, 16)
	for i := range sixteen {
		sixteen[i] = 10
		if i < 8 {
			eight[i] = 10
		}
	}
	c8 := Contribution(eight, 100)
	c16 := Contribution(sixteen, 100)

	assert.Equal(t, 30, c8)
	assert.Equal(t, 48, c16)
	assert.Less(t, c16, 2*c8)
}

func TestAggregate_DeterministicAndOrderIndependent(t *testing.T) {
	events := []core.Event{
		ev(core.CategoryHash, 40), ev(core.CategoryBrowser, 25), ev(core.CategoryBrowser, 15),
		ev(core.CategoryChat, 30), ev(core.CategoryChat, 20), ev(core.CategoryChat, 15),
		ev(core.CategoryChat, 15), ev(core.CategoryBrowser, 20),
	}
	first := Aggregate(events, intelligence.DefaultCeilings())
	assert.Equal(t, first, Aggregate(events, intelligence.DefaultCeilings()))

	reversed := make([]core.Event, len(events))
	for i, e := range events {
		reversed[len(events)-1-i] = e
	}
	assert.Equal(t, first, Aggregate(reversed, intelligence.DefaultCeilings()))
}

func TestLevelBoundaries(t *testing.T) {
	tests := []struct {
		percent int
		want    core.RiskLevel
	}{
		{0, core.LevelLow}, {20, core.LevelLow}, {21, core.LevelMedium}, {50, core.LevelMedium},
		{51, core.LevelHigh}, {70, core.LevelHigh}, {71, core.LevelCritical}, {100, core.LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.LevelFor(tt.percent), "percent=%d", tt.percent)
	}
}
