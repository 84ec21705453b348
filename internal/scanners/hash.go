package scanners

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cheatwatch/internal/core"
	"cheatwatch/internal/intelligence"
	"cheatwatch/internal/metrics"
)

// HashOptions configure the file walk.
type HashOptions struct {
	Roots          []string
	Recursive      bool
	FollowSymlinks bool
	MaxDepth       int
	MaxFileSize    int64
	Exclusions     *core.Exclusions
}

func DefaultHashOptions() HashOptions {
	return HashOptions{
		Recursive:   true,
		MaxDepth:    32,
		MaxFileSize: 100 << 20,
	}
}

// FilenameHeuristicDetail marks keyword events derived from file names.
const FilenameHeuristicDetail = "filename heuristic (not a content match)"

// HashScanner hashes files under its roots and matches the SHA-256 digest
// against the indicator set, falling back to a file name keyword check.
type HashScanner struct {
	set     *intelligence.IndicatorSet
	opts    HashOptions
	cache   *intelligence.DigestCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHashScanner builds a scanner. cache may be nil.
func NewHashScanner(set *intelligence.IndicatorSet, opts HashOptions, cache *intelligence.DigestCache,
	logger *slog.Logger, m *metrics.Metrics) *HashScanner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 32
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100 << 20
	}
	return &HashScanner{
		set:     set,
		opts:    opts,
		cache:   cache,
		logger:  logger.With("scanner", "hash"),
		metrics: m,
	}
}

func (h *HashScanner) Name() string            { return "hash" }
func (h *HashScanner) Category() core.Category { return core.CategoryHash }

// walk holds the state of one Run.
type walk struct {
	ctx     context.Context
	out     core.Emitter
	meter   *core.Meter
	stats   core.Stats
	done    int // files handled, whatever the outcome
	pending int // directories queued for listing
	visited map[string]bool
}

func (w *walk) report(path string) {
	w.meter.ReportPending(w.done, w.stats.Discovered, w.pending, path)
}

// Run walks every root. Discovery and hashing are interleaved: a directory
// is listed when the walk reaches it, so the discovered total grows while
// files are processed. Only context errors are returned.
func (h *HashScanner) Run(ctx context.Context, out core.Emitter, progress core.ProgressFunc) (core.Stats, error) {
	w := &walk{
		ctx:     ctx,
		out:     out,
		meter:   core.NewMeter(progress),
		visited: make(map[string]bool),
	}

	for _, root := range h.opts.Roots {
		if err := ctx.Err(); err != nil {
			return w.stats, err
		}
		info, err := os.Stat(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				h.logger.Debug("scan root not present", "path", root)
			} else {
				h.logger.Warn("scan root unreadable", "path", root, "error", err)
				w.stats.Errors++
			}
			continue
		}

		if !info.IsDir() {
			w.stats.Discovered++
			if err := h.file(w, root, info); err != nil {
				return w.stats, err
			}
			continue
		}
		if err := h.dir(w, root, 0); err != nil {
			return w.stats, err
		}
	}

	w.meter.Finish(w.done, fmt.Sprintf("hash: %d files", w.done))
	return w.stats, nil
}

func (h *HashScanner) dir(w *walk, dir string, depth int) error {
	if h.opts.Exclusions.IsExcluded(dir) {
		h.logger.Debug("excluded directory", "path", dir)
		return nil
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}
	if w.visited[resolved] {
		return nil
	}
	w.visited[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Aborts this subtree only.
		h.logger.Warn("cannot list directory", "path", dir, "error", err)
		w.stats.Errors++
		h.metrics.File("hash", metrics.OutcomeError)
		return nil
	}

	var files []fs.DirEntry
	var subdirs []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			if !h.opts.FollowSymlinks {
				continue
			}
			target, err := os.Stat(path)
			if err != nil {
				h.logger.Debug("dangling symlink", "path", path)
				continue
			}
			if target.IsDir() {
				subdirs = append(subdirs, path)
			} else if target.Mode().IsRegular() {
				files = append(files, e)
			}
		case e.IsDir():
			subdirs = append(subdirs, path)
		case e.Type().IsRegular():
			files = append(files, e)
		}
	}
	w.stats.Discovered += len(files)
	descend := h.opts.Recursive && depth+1 <= h.opts.MaxDepth
	if descend {
		w.pending += len(subdirs)
	}

	for _, e := range files {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			h.logger.Warn("cannot stat file", "path", path, "error", err)
			w.stats.Errors++
			h.metrics.File("hash", metrics.OutcomeError)
			w.done++
			w.report(path)
			continue
		}
		if err := h.file(w, path, info); err != nil {
			return err
		}
	}

	if !descend {
		if h.opts.Recursive && len(subdirs) > 0 {
			h.logger.Debug("max depth reached", "path", dir, "depth", depth)
		}
		return nil
	}
	for _, sub := range subdirs {
		w.pending--
		if err := h.dir(w, sub, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// file processes one regular file. It returns only context errors.
func (h *HashScanner) file(w *walk, path string, info fs.FileInfo) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		w.done++
		w.report(path)
	}()

	if info.Size() > h.opts.MaxFileSize {
		h.logger.Debug("file above size ceiling", "path", path, "size", info.Size())
		w.stats.Skipped++
		h.metrics.File("hash", metrics.OutcomeSkipped)
		return nil
	}

	digest, err := h.cache.Digest(path, info.Size(), info.ModTime())
	if err != nil {
		h.logger.Warn("cannot hash file", "path", path, "error", err)
		w.stats.Errors++
		h.metrics.File("hash", metrics.OutcomeError)
		return nil
	}
	w.stats.Processed++
	h.metrics.File("hash", metrics.OutcomeProcessed)

	if entry, ok := h.set.LookupHash(digest); ok {
		ev := core.NewEvent(core.CategoryHash, core.KindExactHash, path, entry.Hash, entry.Weight)
		ev.Detail = entry.Category
		if entry.Description != "" {
			ev.Detail += ": " + entry.Description
		}
		w.out.Emit(ev)
		w.stats.Matches++
		return nil
	}

	if kw, ok := h.set.MatchKeyword(strings.ToLower(filepath.Base(path))); ok {
		ev := core.NewEvent(core.CategoryHash, core.KindKeyword, path, kw, h.set.Weights().Keyword)
		ev.Context = filepath.Base(path)
		ev.Detail = FilenameHeuristicDetail
		w.out.Emit(ev)
		w.stats.Matches++
	}
	return nil
}
