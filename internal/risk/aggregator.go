// Package risk turns evidence events into a bounded risk summary.
package risk

import (
	"math"
	"sort"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
)

const (
	// Threshold is the largest event count summed without damping.
	Threshold = 3
	// Scale is applied after the log divisor.
	Scale = 1.5
)

// Aggregate computes the summary for a snapshot of events. It is pure and
// does not depend on event order.
func Aggregate(events []core.Event, ceilings intelligence.Ceilings) core.RiskSummary {
	weights := make(map[core.Category][]int, len(core.Categories))
	for _, ev := range events {
		weights[ev.Category] = append(weights[ev.Category], core.ClampWeight(ev.Weight))
	}

	s := core.RiskSummary{
		PerCategoryCount:        make(map[core.Category]int, len(core.Categories)),
		PerCategoryContribution: make(map[core.Category]int, len(core.Categories)),
	}
	for _, c := range core.Categories {
		s.PerCategoryCount[c] = 0
		s.PerCategoryContribution[c] = 0
	}

	total := 0
	for cat, ws := range weights {
		contrib := Contribution(ws, ceilings.For(cat))
		s.PerCategoryCount[cat] = len(ws)
		s.PerCategoryContribution[cat] = contrib
		total += contrib
	}

	s.TotalPercent = clampPercent(float64(total))
	s.Level = core.LevelFor(s.TotalPercent)
	s.Recommendation = core.Recommendation(s.Level)
	return s
}

// Contribution is the diminishing-returns score of one category, capped at
// ceiling. Small counts are summed; above Threshold the sum is divided by
// 1+log2(count) and scaled. The score is the maximum of that transform over
// every top-m prefix of the weights sorted descending, which keeps it
// non-decreasing when an event is added.
func Contribution(weights []int, ceiling int) int {
	if len(weights) == 0 {
		return 0
	}
	sorted := append([]int(nil), weights...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	best := 0.0
	sum := 0
	for i, w := range sorted {
		sum += w
		if d := damped(sum, i+1); d > best {
			best = d
		}
		if best >= 100 {
			break
		}
	}
	return min(clampPercent(best), clampPercent(float64(ceiling)))
}

func damped(sum, count int) float64 {
	if count <= Threshold {
		return math.Min(float64(sum), 100)
	}
	return math.Min(float64(sum)/(1+math.Log2(float64(count)))*Scale, 100)
}

func clampPercent(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 100:
		return 100
	default:
		return int(math.Round(v))
	}
}
