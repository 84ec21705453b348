package core

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Report is the full, human-facing result of one scan.
type Report struct {
	ScanID    string             `json:"scan_id"`
	State     string             `json:"state,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Duration  time.Duration      `json:"duration_ns"`
	Summary   RiskSummary        `json:"summary"`
	Stats     map[Category]Stats `json:"stats,omitempty"`
	Events    []Event            `json:"events"`
}

// WriteJSONReport writes the report as indented JSON.
func WriteJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// StateCompleted is the only Report.State that carries a risk score.
const StateCompleted = "completed"

// Scored reports whether the report belongs to a finished scan. Reports
// without a state are treated as finished.
func (r Report) Scored() bool {
	return r.State == "" || r.State == StateCompleted
}

// WriteTextReport writes the flat textual report: totals, per-category
// counts and contributions, then every event. Unfinished scans get no score.
func WriteTextReport(w io.Writer, r Report) error {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString(rule + "\n")
	b.WriteString("  Cheat artifact scan report\n")
	fmt.Fprintf(&b, "  Scan:     %s\n", r.ScanID)
	if r.State != "" {
		fmt.Fprintf(&b, "  State:    %s\n", r.State)
	}
	fmt.Fprintf(&b, "  Time:     %s\n", r.Timestamp.Format(time.RFC1123))
	if r.Duration > 0 {
		fmt.Fprintf(&b, "  Duration: %s\n", r.Duration.Round(time.Millisecond))
	}
	b.WriteString(rule + "\n\n")

	if r.Scored() {
		fmt.Fprintf(&b, "TOTAL RISK: %d%% (%s)\n", r.Summary.TotalPercent, r.Summary.Level)
		fmt.Fprintf(&b, "%s\n\n", r.Summary.Recommendation)
	} else {
		fmt.Fprintf(&b, "NO RISK SCORE: scan %s before completion.\n\n", r.State)
	}

	b.WriteString("By category:\n")
	for _, c := range Categories {
		if r.Scored() {
			fmt.Fprintf(&b, "  %-8s events: %-4d contribution: %d%%\n",
				c, r.Summary.PerCategoryCount[c], r.Summary.PerCategoryContribution[c])
		} else {
			fmt.Fprintf(&b, "  %-8s events: %d\n", c, countCategory(r.Events, c))
		}
		if st, ok := r.Stats[c]; ok {
			fmt.Fprintf(&b, "           processed: %d, skipped: %d, errors: %d\n",
				st.Processed, st.Skipped, st.Errors)
		}
	}

	for _, c := range Categories {
		var section []Event
		for _, ev := range r.Events {
			if ev.Category == c {
				section = append(section, ev)
			}
		}
		if len(section) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s (%d) ---\n", strings.ToUpper(string(c)), len(section))
		for i, ev := range section {
			fmt.Fprintf(&b, "[%d] %s", i+1, ev.Kind)
			if ev.SubKind != "" {
				fmt.Fprintf(&b, " (%s)", ev.SubKind)
			}
			fmt.Fprintf(&b, " weight=%d\n", ev.Weight)
			fmt.Fprintf(&b, "    Source:  %s\n", ev.Source)
			fmt.Fprintf(&b, "    Value:   %s\n", ev.MatchedValue)
			if ev.Context != "" {
				fmt.Fprintf(&b, "    Context: %s\n", ev.Context)
			}
			if ev.Detail != "" {
				fmt.Fprintf(&b, "    Detail:  %s\n", ev.Detail)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func countCategory(events []Event, c Category) int {
	n := 0
	for _, ev := range events {
		if ev.Category == c {
			n++
		}
	}
	return n
}

// TriggerLine formats an event as a single log-friendly line.
func TriggerLine(ev Event) string {
	return fmt.Sprintf("[TRIGGER] %s/%s value=%q source=%s weight=%d",
		ev.Category, ev.Kind, ev.MatchedValue, ev.Source, ev.Weight)
}
