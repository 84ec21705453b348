package scanners

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
)

// Format selects how a blob is prepared before matching.
type Format int

const (
	FormatRaw  Format = iota // opaque bytes
	FormatJSON               // quoted string values of a JSON export
)

// Source is one candidate location handed to an ArtifactScanner.
// Directory sources expand to the files matching Patterns.
type Source struct {
	Path    string
	SubKind string
	Format  Format
	Dir     bool
	// Patterns are glob patterns for Dir sources; empty matches all files.
	Patterns []string
	// MaxFiles caps files taken from a Dir source. 0 = unlimited.
	MaxFiles int
	// MaxFileBytes skips larger files in a Dir source. 0 = unlimited.
	MaxFileBytes int64
}

// Blob is one file to scan.
type Blob struct {
	Path    string
	SubKind string
	Format  Format
	Limit   int64
}

// DiscoverFunc lists the candidate sources for one scan.
type DiscoverFunc func() []Source

// ArtifactOptions bound the work done per scan.
type ArtifactOptions struct {
	MaxBlobBytes    int64
	PerIndicatorCap int
	KeywordRadius   int
	BlacklistRadius int
	AuthPatterns    []string
	AuthBonus       int
}

func DefaultArtifactOptions() ArtifactOptions {
	return ArtifactOptions{
		MaxBlobBytes:    64 << 20,
		PerIndicatorCap: 5,
		KeywordRadius:   50,
		BlacklistRadius: 100,
		AuthPatterns:    intelligence.AuthPatterns,
		AuthBonus:       intelligence.DefaultWeights().AuthBonus,
	}
}

// ArtifactScanner searches raw artifact blobs for keyword and blacklist
// indicators. The structured stores it reads (history databases, key-value
// segments) are treated as byte blobs; their formats are not parsed.
type ArtifactScanner struct {
	name      string
	category  core.Category
	discover  DiscoverFunc
	keywords  []pattern
	blacklist []pattern
	auth      [][]byte
	opts      ArtifactOptions
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type pattern struct {
	ind   intelligence.Indicator
	utf8  []byte
	utf16 []byte
}

func compile(list []intelligence.Indicator) []pattern {
	out := make([]pattern, 0, len(list))
	for _, ind := range list {
		if ind.Value == "" {
			continue
		}
		lower := strings.ToLower(ind.Value)
		out = append(out, pattern{
			ind:   ind,
			utf8:  foldUTF8([]byte(lower)),
			utf16: foldASCII(encodeUTF16LE(lower)),
		})
	}
	return out
}

// NewArtifactScanner builds a scanner over the given indicator lists.
func NewArtifactScanner(name string, cat core.Category, discover DiscoverFunc,
	keywords, blacklist []intelligence.Indicator, opts ArtifactOptions,
	logger *slog.Logger, m *metrics.Metrics) *ArtifactScanner {

	if opts.PerIndicatorCap <= 0 {
		opts.PerIndicatorCap = 5
	}
	if opts.MaxBlobBytes <= 0 {
		opts.MaxBlobBytes = 64 << 20
	}
	auth := make([][]byte, 0, len(opts.AuthPatterns))
	for _, a := range opts.AuthPatterns {
		auth = append(auth, foldUTF8([]byte(strings.ToLower(a))))
	}
	return &ArtifactScanner{
		name:      name,
		category:  cat,
		discover:  discover,
		keywords:  compile(keywords),
		blacklist: compile(blacklist),
		auth:      auth,
		opts:      opts,
		logger:    logger.With("scanner", name),
		metrics:   m,
	}
}

func (s *ArtifactScanner) Name() string            { return s.name }
func (s *ArtifactScanner) Category() core.Category { return s.category }

// Run scans every discovered blob. Only context errors are returned, and the
// context is checked between blobs so a started blob is always finished.
func (s *ArtifactScanner) Run(ctx context.Context, out core.Emitter, progress core.ProgressFunc) (core.Stats, error) {
	var st core.Stats
	meter := core.NewMeter(progress)

	var blobs []Blob
	for _, src := range s.discover() {
		blobs = append(blobs, s.expand(src, &st)...)
	}
	st.Discovered = len(blobs)
	meter.Report(0, len(blobs), s.name+": starting")

	for i, b := range blobs {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		n, err := s.ScanBlob(b, out)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Debug("source vanished", "path", b.Path)
			st.Skipped++
			s.metrics.File(s.name, metrics.OutcomeSkipped)
		case err != nil:
			s.logger.Warn("cannot read artifact", "path", b.Path, "error", err)
			st.Errors++
			s.metrics.File(s.name, metrics.OutcomeError)
		default:
			st.Processed++
			st.Matches += n
			s.metrics.File(s.name, metrics.OutcomeProcessed)
		}
		meter.Report(i+1, len(blobs), b.Path)
	}
	meter.Finish(len(blobs), s.name+": done")
	return st, nil
}

// expand turns a source into blobs. Missing locations only log at debug.
func (s *ArtifactScanner) expand(src Source, st *core.Stats) []Blob {
	info, err := os.Stat(src.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("source not present", "path", src.Path)
		} else {
			s.logger.Warn("source unreadable", "path", src.Path, "error", err)
			st.Errors++
		}
		return nil
	}

	if !src.Dir {
		if info.IsDir() {
			s.logger.Debug("expected a file, found a directory", "path", src.Path)
			return nil
		}
		return []Blob{{Path: src.Path, SubKind: src.SubKind, Format: src.Format, Limit: s.opts.MaxBlobBytes}}
	}

	entries, err := os.ReadDir(src.Path)
	if err != nil {
		s.logger.Warn("source directory unreadable", "path", src.Path, "error", err)
		st.Errors++
		return nil
	}

	var blobs []Blob
	for _, e := range entries {
		if !e.Type().IsRegular() || !matchesAny(e.Name(), src.Patterns) {
			continue
		}
		if src.MaxFiles > 0 && len(blobs) >= src.MaxFiles {
			s.logger.Debug("directory file limit reached", "path", src.Path, "limit", src.MaxFiles)
			break
		}
		if src.MaxFileBytes > 0 {
			fi, err := e.Info()
			if err != nil || fi.Size() > src.MaxFileBytes {
				st.Skipped++
				continue
			}
		}
		blobs = append(blobs, Blob{
			Path:    filepath.Join(src.Path, e.Name()),
			SubKind: src.SubKind,
			Format:  src.Format,
			Limit:   s.opts.MaxBlobBytes,
		})
	}
	return blobs
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// ScanBlob reads one blob and emits its matches in offset order.
// It returns the number of events emitted.
func (s *ArtifactScanner) ScanBlob(b Blob, out core.Emitter) (int, error) {
	limit := b.Limit
	if limit <= 0 {
		limit = s.opts.MaxBlobBytes
	}
	data, truncated, err := readBlob(b.Path, limit)
	if err != nil {
		return 0, err
	}
	if truncated {
		s.logger.Debug("blob scanned up to limit", "path", b.Path, "limit", limit)
	}
	if b.Format == FormatJSON {
		data = quotedStrings(data)
	}

	events := s.Match(data, b.Path, b.SubKind)
	for _, ev := range events {
		out.Emit(ev)
	}
	return len(events), nil
}

type hit struct {
	start, end int
	p          *pattern
	wide       bool
	blacklist  bool
}

// Match finds indicator occurrences in data and returns the events for them,
// ordered by offset.
func (s *ArtifactScanner) Match(data []byte, source, subKind string) []core.Event {
	folded := foldUTF8(data)
	var wide []byte
	needWide := bytes.IndexByte(data, 0) >= 0

	if needWide {
		wide = foldASCII(data)
	}

	counts := make(map[string]int)
	var hits []hit

	// Keyword and blacklist hits are independent: a keyword inside a
	// blacklisted domain yields both events.
	for i := range s.blacklist {
		p := &s.blacklist[i]
		key := "b:" + p.ind.Value
		for _, h := range s.find(folded, wide, p) {
			if counts[key] >= s.opts.PerIndicatorCap {
				break
			}
			counts[key]++
			h.blacklist = true
			hits = append(hits, h)
		}
	}

	for i := range s.keywords {
		p := &s.keywords[i]
		key := "k:" + p.ind.Value
		for _, h := range s.find(folded, wide, p) {
			if counts[key] >= s.opts.PerIndicatorCap {
				break
			}
			counts[key]++
			hits = append(hits, h)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	events := make([]core.Event, 0, len(hits))
	for _, h := range hits {
		events = append(events, s.event(data, folded, h, source, subKind))
	}
	return events
}

// find returns every UTF-8 occurrence of p followed by every UTF-16LE one.
func (s *ArtifactScanner) find(folded, wide []byte, p *pattern) []hit {
	var out []hit
	for off := 0; ; {
		i := bytes.Index(folded[off:], p.utf8)
		if i < 0 {
			break
		}
		start := off + i
		out = append(out, hit{start: start, end: start + len(p.utf8), p: p})
		off = start + len(p.utf8)
	}
	if wide != nil && len(p.utf16) > 0 {
		for off := 0; ; {
			i := bytes.Index(wide[off:], p.utf16)
			if i < 0 {
				break
			}
			start := off + i
			out = append(out, hit{start: start, end: start + len(p.utf16), p: p, wide: true})
			off = start + len(p.utf16)
		}
	}
	return out
}

func (s *ArtifactScanner) event(data, folded []byte, h hit, source, subKind string) core.Event {
	radius := s.opts.KeywordRadius
	kind := core.KindKeyword
	if h.blacklist {
		radius = s.opts.BlacklistRadius
		kind = core.KindBlacklist
	}

	var ctxText string
	if h.wide {
		ctxText = contextWindowUTF16(data, h.start, h.end, radius*2)
	} else {
		ctxText = contextWindow(data, h.start, h.end, radius)
	}

	weight := h.p.ind.Weight
	detail := h.p.ind.Label
	if h.blacklist && s.hasAuthShape(folded, h, radius, ctxText) {
		kind = core.KindAuthPattern
		weight += s.opts.AuthBonus
		detail += ", authentication page"
	}
	if h.wide {
		detail += ", utf-16"
	}

	ev := core.NewEvent(s.category, kind, source, h.p.ind.Value, weight)
	ev.SubKind = subKind
	ev.Context = ctxText
	ev.Detail = detail
	return ev
}

func (s *ArtifactScanner) hasAuthShape(folded []byte, h hit, radius int, ctxText string) bool {
	if h.wide {
		lower := []byte(strings.ToLower(ctxText))
		for _, a := range s.auth {
			if bytes.Contains(lower, a) {
				return true
			}
		}
		return false
	}
	window := folded[max(h.start-radius, 0):min(h.end+radius, len(folded))]
	for _, a := range s.auth {
		if bytes.Contains(window, a) {
			return true
		}
	}
	return false
}
