// Package api serves live scan status, evidence and reports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"cheatwatch/internal/core"
	"cheatwatch/internal/logging"
	"cheatwatch/internal/stages"
)

type Server struct {
	r        *chi.Mux
	orch     *stages.Orchestrator
	recorder *logging.Recorder
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	starts   *rate.Limiter

	// scans started over HTTP outlive the request that started them.
	base context.Context
}

// NewServer builds the router. recorder and gatherer may be nil.
func NewServer(base context.Context, orch *stages.Orchestrator, recorder *logging.Recorder,
	gatherer prometheus.Gatherer, logger *slog.Logger) *Server {

	s := &Server{
		r:        chi.NewRouter(),
		orch:     orch,
		recorder: recorder,
		gatherer: gatherer,
		logger:   logger.With("component", "api"),
		starts:   rate.NewLimiter(rate.Every(time.Second), 5),
		base:     base,
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(s.requestLogger)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	s.r.Get("/status", s.getStatus)
	s.r.Get("/events", s.getEvents)
	s.r.Get("/summary", s.getSummary)
	s.r.Get("/report", s.getReport)
	s.r.Get("/logs", s.getLogs)

	// Scans
	s.r.Post("/scans", s.postScan)
	s.r.Post("/scans/cancel", s.postCancel)

	if s.gatherer != nil {
		s.r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) Handler() http.Handler { return s.r }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	cats, err := parseCategories(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Events(cats...))
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.orch.Summary()
	if !ok {
		s.writeNoResult(w)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "text" {
		writeError(w, http.StatusBadRequest, "format must be json or text")
		return
	}
	report, ok := s.orch.Report()
	if !ok {
		s.writeNoResult(w)
		return
	}
	switch format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		if err := core.WriteJSONReport(w, report); err != nil {
			s.logger.Warn("write report", "error", err)
		}
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := core.WriteTextReport(w, report); err != nil {
			s.logger.Warn("write report", "error", err)
		}
	}
}

// writeNoResult answers summary and report requests while no completed scan
// is available. The status says why: idle, running, cancelled or failed.
func (s *Server) writeNoResult(w http.ResponseWriter) {
	writeJSON(w, http.StatusConflict, struct {
		Error  string        `json:"error"`
		Status stages.Status `json:"status"`
	}{
		Error:  "no completed scan",
		Status: s.orch.Status(),
	})
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []logging.Entry{})
		return
	}
	entries := s.recorder.Entries()
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		entries = s.recorder.AtLeast(logging.ParseLevel(lvl))
	}
	if entries == nil {
		entries = []logging.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	if !s.starts.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many scan requests")
		return
	}
	done, err := s.orch.Start(s.base)
	if errors.Is(err, stages.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	go func() {
		res := <-done
		s.logger.Info("scan finished", "scan_id", res.ScanID, "state", res.State.String(),
			"duration", res.Duration.Round(time.Millisecond))
	}()
	writeJSON(w, http.StatusAccepted, s.orch.Status())
}

func (s *Server) postCancel(w http.ResponseWriter, r *http.Request) {
	s.orch.Cancel()
	writeJSON(w, http.StatusAccepted, s.orch.Status())
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// parseCategories reads a comma-separated category filter. Empty means all.
func parseCategories(raw string) ([]core.Category, error) {
	if raw == "" {
		return nil, nil
	}
	var out []core.Category
	for _, part := range strings.Split(raw, ",") {
		c := core.Category(strings.ToLower(strings.TrimSpace(part)))
		if !known(c) {
			return nil, fmt.Errorf("unknown category %q", part)
		}
		out = append(out, c)
	}
	return out, nil
}

func known(c core.Category) bool {
	for _, k := range core.Categories {
		if c == k {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
