package core

// Progress is a scanner-local progress report.
type Progress struct {
	Done     int     // units processed
	Total    int     // units discovered so far
	Fraction float64 // 0..1, never decreases within one run
	Text     string
}

// ProgressFunc receives progress reports. It may be nil.
type ProgressFunc func(Progress)

// Meter turns (done, discovered) counts into a non-decreasing fraction.
// Discovery may run ahead of processing, so the raw ratio can drop when a
// new directory is listed; Meter holds the previous high-water mark instead.
type Meter struct {
	fn   ProgressFunc
	last float64
}

func NewMeter(fn ProgressFunc) *Meter {
	return &Meter{fn: fn}
}

// Report publishes the current counts.
func (m *Meter) Report(done, total int, text string) {
	m.ReportPending(done, total, 0, text)
}

// ReportPending is Report for a walk that still has pending containers
// (directories not yet listed). Each counts as one unit of outstanding work,
// so the fraction stays below 1 while anything is left to list.
func (m *Meter) ReportPending(done, total, pending int, text string) {
	f := 0.0
	if units := total + max(pending, 0); units > 0 {
		f = float64(done) / float64(units)
	}
	if f > 1 {
		f = 1
	}
	if f < m.last {
		f = m.last
	}
	m.last = f
	if m.fn != nil {
		m.fn(Progress{Done: done, Total: total, Fraction: f, Text: text})
	}
}

// Finish reports completion.
func (m *Meter) Finish(done int, text string) {
	m.last = 1
	if m.fn != nil {
		m.fn(Progress{Done: done, Total: done, Fraction: 1, Text: text})
	}
}
