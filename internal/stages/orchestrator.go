// Package stages runs the scan phases (hash, browser, chat, aggregate) and
// owns the lifecycle, progress and results of a scan.
package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
	"cheatwatch/internal/risk"
)

// ErrAlreadyRunning is returned when a scan is started while another runs.
var ErrAlreadyRunning = errors.New("scan already running")

type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Phase names one slice of the 0-100 progress scale.
type Phase string

const (
	PhaseHash      Phase = "hash"
	PhaseBrowser   Phase = "browser"
	PhaseChat      Phase = "chat"
	PhaseAggregate Phase = "aggregate"
)

type band struct {
	phase  Phase
	lo, hi float64
}

// bands partition [0,100] in phase order.
var bands = []band{
	{PhaseHash, 0, 40},
	{PhaseBrowser, 40, 70},
	{PhaseChat, 70, 95},
	{PhaseAggregate, 95, 100},
}

func phaseOf(c core.Category) Phase {
	return Phase(c)
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	ScanID     string    `json:"scan_id,omitempty"`
	State      State     `json:"state"`
	Phase      Phase     `json:"phase,omitempty"`
	Percent    float64   `json:"percent"`
	Text       string    `json:"text,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Result is delivered once per scan. Summary is nil unless the scan completed.
type Result struct {
	ScanID   string
	State    State
	Summary  *core.RiskSummary
	Stats    map[core.Category]core.Stats
	Duration time.Duration
	CaseDir  string
	Err      error
}

// Options tune a scan.
type Options struct {
	// Concurrent runs the three scanners in parallel instead of in phase order.
	Concurrent bool
	// Timeout cancels the scan after this long. Zero means no deadline.
	Timeout time.Duration
	// CaseDir, when set, receives a sealed case file for every completed scan.
	CaseDir string
}

// Config wires an orchestrator. Indicators and Scanners are called once per scan.
type Config struct {
	Indicators func() (*intelligence.IndicatorSet, error)
	Scanners   func(set *intelligence.IndicatorSet) []core.Scanner
	Options    Options
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Emitters receive every event after the sink (publishers, console output).
	Emitters []core.Emitter
	// OnProgress is called after every progress change. It may be nil.
	OnProgress func(Status)
}

// Orchestrator runs one scan at a time in the background and exposes its
// progress and evidence to any number of readers.
type Orchestrator struct {
	cfg  Config
	sink *core.EventSink

	mu        sync.Mutex
	status    Status
	fractions map[Phase]float64
	stats     map[core.Category]core.Stats
	cancel    context.CancelFunc
	last      *Result
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		sink:      core.NewEventSink(),
		status:    Status{State: StateIdle},
		fractions: make(map[Phase]float64),
		stats:     make(map[core.Category]core.Stats),
	}
}

// scan is the state of one Run.
type scan struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time
}

// Run executes a scan and blocks until it finishes.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	s, err := o.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	return o.execute(s), nil
}

// Start executes a scan on a background goroutine. The channel receives
// exactly one Result and is then closed.
func (o *Orchestrator) Start(ctx context.Context) (<-chan Result, error) {
	s, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		done <- o.execute(s)
	}()
	return done, nil
}

// Cancel asks the running scan to stop at its next safe point.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Events returns a snapshot of the evidence, optionally filtered.
func (o *Orchestrator) Events(categories ...core.Category) []core.Event {
	return o.sink.Snapshot(categories...)
}

// Summary returns the risk summary of the last scan. It reports false unless
// that scan completed: running, cancelled and failed scans have no score.
func (o *Orchestrator) Summary() (core.RiskSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.completedLocked() {
		return core.RiskSummary{}, false
	}
	return *o.last.Summary, true
}

// LastResult returns the result of the most recent finished scan.
func (o *Orchestrator) LastResult() (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return Result{}, false
	}
	return *o.last, true
}

// Report builds the full report of the last scan, under the same rule as
// Summary.
func (o *Orchestrator) Report() (core.Report, bool) {
	o.mu.Lock()
	if !o.completedLocked() {
		o.mu.Unlock()
		return core.Report{}, false
	}
	last := *o.last
	started := o.status.StartedAt
	o.mu.Unlock()

	return newReport(last, started, o.sink.Snapshot()), true
}

func (o *Orchestrator) completedLocked() bool {
	return o.status.State == StateCompleted && o.last != nil && o.last.Summary != nil
}

func newReport(res Result, started time.Time, events []core.Event) core.Report {
	r := core.Report{
		ScanID:    res.ScanID,
		State:     res.State.String(),
		Timestamp: started,
		Duration:  res.Duration,
		Stats:     res.Stats,
		Events:    events,
	}
	if res.Summary != nil {
		r.Summary = *res.Summary
	}
	return r
}

func (o *Orchestrator) begin(parent context.Context) (*scan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.State == StateRunning {
		return nil, ErrAlreadyRunning
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if o.cfg.Options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, o.cfg.Options.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s := &scan{id: uuid.NewString(), ctx: ctx, cancel: cancel, started: time.Now().UTC()}
	o.cancel = cancel
	o.status = Status{ScanID: s.id, State: StateRunning, Phase: PhaseHash, StartedAt: s.started, Text: "starting"}
	o.fractions = make(map[Phase]float64)
	o.stats = make(map[core.Category]core.Stats)

	// No scan can be appending here.
	o.sink.Clear()
	return s, nil
}

func (o *Orchestrator) execute(s *scan) Result {
	defer s.cancel()
	logger := o.cfg.Logger.With("scan_id", s.id)
	o.cfg.Metrics.ScanStarted()
	logger.Info("scan started", "concurrent", o.cfg.Options.Concurrent)

	// 1. Indicators
	set, err := o.cfg.Indicators()
	if err != nil {
		logger.Error("scan failed", "error", err)
		return o.finish(s, Result{State: StateFailed, Err: fmt.Errorf("indicators: %w", err)})
	}

	scanners := o.cfg.Scanners(set)
	sort.SliceStable(scanners, func(i, j int) bool {
		return phaseIndex(phaseOf(scanners[i].Category())) < phaseIndex(phaseOf(scanners[j].Category()))
	})

	// Phases without a scanner count as done.
	present := make(map[Phase]bool)
	for _, sc := range scanners {
		present[phaseOf(sc.Category())] = true
	}
	for _, b := range bands[:len(bands)-1] {
		if !present[b.phase] {
			o.progress(b.phase, 1, string(b.phase)+": disabled")
		}
	}

	emitters := append([]core.Emitter{o.sink, o.cfg.Metrics, triggerLogger(logger)}, o.cfg.Emitters...)
	out := validated(core.Fanout(emitters...), logger)

	// 2. Scanners
	if o.cfg.Options.Concurrent {
		err = o.runConcurrent(s.ctx, scanners, out, logger)
	} else {
		err = o.runSequential(s.ctx, scanners, out, logger)
	}
	if err == nil {
		err = s.ctx.Err()
	}
	if err != nil {
		text := "cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			text = "timed out"
		}
		logger.Warn("scan "+text, "events", o.sink.Len())
		return o.finish(s, Result{State: StateCancelled, Err: err})
	}

	// 3. Aggregate
	o.progress(PhaseAggregate, 0, "aggregating")
	t0 := time.Now()
	summary := risk.Aggregate(o.sink.Snapshot(), set.Ceilings())
	o.cfg.Metrics.Phase(string(PhaseAggregate), time.Since(t0))
	o.progress(PhaseAggregate, 1, fmt.Sprintf("risk %d%% (%s)", summary.TotalPercent, summary.Level))

	logger.Info("risk summary",
		"total", summary.TotalPercent,
		"level", summary.Level.String(),
		"hash", summary.PerCategoryContribution[core.CategoryHash],
		"browser", summary.PerCategoryContribution[core.CategoryBrowser],
		"chat", summary.PerCategoryContribution[core.CategoryChat],
	)

	return o.finish(s, Result{State: StateCompleted, Summary: &summary})
}

func (o *Orchestrator) runSequential(ctx context.Context, scanners []core.Scanner, out core.Emitter, logger *slog.Logger) error {
	for _, sc := range scanners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.runPhase(ctx, sc, out, logger); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runConcurrent(ctx context.Context, scanners []core.Scanner, out core.Emitter, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sc := range scanners {
		g.Go(func() error {
			return o.runPhase(gctx, sc, out, logger)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runPhase(ctx context.Context, sc core.Scanner, out core.Emitter, logger *slog.Logger) error {
	phase := phaseOf(sc.Category())
	o.progress(phase, 0, sc.Name()+": starting")

	t0 := time.Now()
	st, err := sc.Run(ctx, out, func(p core.Progress) {
		o.progress(phase, p.Fraction, p.Text)
	})
	elapsed := time.Since(t0)
	o.cfg.Metrics.Phase(string(phase), elapsed)

	o.mu.Lock()
	o.stats[sc.Category()] = st
	o.mu.Unlock()

	logger.Info("phase finished",
		"phase", phase,
		"processed", st.Processed,
		"skipped", st.Skipped,
		"errors", st.Errors,
		"matches", st.Matches,
		"duration", elapsed.Round(time.Millisecond),
	)
	if err != nil {
		return err
	}
	o.progress(phase, 1, fmt.Sprintf("%s: %d processed, %d matches", sc.Name(), st.Processed, st.Matches))
	return nil
}

// progress records a phase fraction and recomputes the overall percent as
// the sum of every band weighted by its phase fraction. Fractions only grow.
func (o *Orchestrator) progress(phase Phase, fraction float64, text string) {
	o.mu.Lock()
	if fraction > o.fractions[phase] {
		o.fractions[phase] = min(fraction, 1)
	}
	var pct float64
	for _, b := range bands {
		pct += (b.hi - b.lo) * o.fractions[b.phase]
	}
	if pct > o.status.Percent {
		o.status.Percent = pct
	}
	o.status.Phase = phase
	o.status.Text = text
	st := o.status
	o.mu.Unlock()

	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(st)
	}
}

func (o *Orchestrator) finish(s *scan, res Result) Result {
	finished := time.Now().UTC()
	res.ScanID = s.id
	res.Duration = finished.Sub(s.started)

	o.mu.Lock()
	res.Stats = make(map[core.Category]core.Stats, len(o.stats))
	for k, v := range o.stats {
		res.Stats[k] = v
	}
	o.mu.Unlock()

	if res.State == StateCompleted && o.cfg.Options.CaseDir != "" {
		report := newReport(res, s.started, o.sink.Snapshot())
		cf := core.NewCaseFile(caseID(s), o.cfg.Options.CaseDir)
		if dir, err := cf.Write(report); err != nil {
			o.cfg.Logger.Warn("cannot write case file", "scan_id", s.id, "error", err)
		} else {
			res.CaseDir = dir
			o.cfg.Logger.Info("case file written", "scan_id", s.id, "dir", dir)
		}
	}

	o.mu.Lock()
	o.cancel = nil
	o.status.State = res.State
	o.status.FinishedAt = finished
	switch res.State {
	case StateCompleted:
		o.status.Percent = 100
	case StateCancelled:
		o.status.Text = "cancelled"
		if errors.Is(res.Err, context.DeadlineExceeded) {
			o.status.Text = "timed out"
		}
	case StateFailed:
		o.status.Text = "failed"
		o.status.Error = res.Err.Error()
	}
	last := res
	o.last = &last
	o.mu.Unlock()

	percent := 0
	if res.Summary != nil {
		percent = res.Summary.TotalPercent
	}
	o.cfg.Metrics.ScanFinished(res.State.String(), percent, res.Summary != nil)
	return res
}

func phaseIndex(p Phase) int {
	for i, b := range bands {
		if b.phase == p {
			return i
		}
	}
	return len(bands)
}

// caseID names the case directory: start time plus the first block of the scan ID.
func caseID(s *scan) string {
	short := s.id
	if len(short) > 8 {
		short = short[:8]
	}
	return s.started.Format("20060102-150405") + "-" + short
}

// validated drops invalid events before they reach any consumer, so the
// sink, metrics and publishers all see the same stream.
func validated(next core.Emitter, logger *slog.Logger) core.Emitter {
	return core.EmitterFunc(func(ev core.Event) {
		if err := core.Validate(ev); err != nil {
			logger.Warn("event dropped", "category", string(ev.Category), "source", ev.Source, "error", err)
			return
		}
		ev.Weight = core.ClampWeight(ev.Weight)
		next.Emit(ev)
	})
}

// triggerLogger logs one line per evidence event.
func triggerLogger(logger *slog.Logger) core.Emitter {
	return core.EmitterFunc(func(ev core.Event) {
		logger.Info("trigger",
			"category", string(ev.Category),
			"kind", string(ev.Kind),
			"value", ev.MatchedValue,
			"source", ev.Source,
			"weight", ev.Weight,
		)
	})
}
