// Package status serves the health and status endpoints.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"splitsync/internal/events"
	"splitsync/internal/log"
	"splitsync/internal/scheduler"
)

// Engine is what the status page reports about the reconciler.
type Engine interface {
	Mirroring() bool
	TrackerSize() int
	ProcessedCount() int
}

// Loops reports poll loop history.
type Loops interface {
	Stats() []scheduler.LoopStats
}

// Report is the /status payload.
type Report struct {
	Status       string                `json:"status"`
	StartedAt    time.Time             `json:"started_at"`
	Uptime       string                `json:"uptime"`
	Mirroring    bool                  `json:"mirroring"`
	Tracked      int                   `json:"tracked_transactions"`
	Processed    int                   `json:"processed_expenses"`
	Loops        []scheduler.LoopStats `json:"loops"`
	EventCounts  map[events.Type]int   `json:"event_counts,omitempty"`
	RecentEvents []events.Event        `json:"recent_events,omitempty"`
}

// Server exposes GET /healthz and GET /status.
type Server struct {
	*http.Server
	engine   Engine
	loops    Loops
	recorder *events.Recorder
	logger   *log.Logger
	started  time.Time
	now      func() time.Time
}

// New creates a Server listening on addr. recorder may be nil.
func New(addr string, engine Engine, loops Loops, recorder *events.Recorder, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		engine:   engine,
		loops:    loops,
		recorder: recorder,
		logger:   logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Get("/healthz", handleHealth)
	r.Get("/status", s.handleStatus)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) report() Report {
	now := s.now()
	rep := Report{
		Status:    "ok",
		StartedAt: s.started.UTC(),
		Uptime:    now.Sub(s.started).Truncate(time.Second).String(),
	}
	if s.engine != nil {
		rep.Mirroring = s.engine.Mirroring()
		rep.Tracked = s.engine.TrackerSize()
		rep.Processed = s.engine.ProcessedCount()
	}
	if s.loops != nil {
		rep.Loops = s.loops.Stats()
		for _, l := range rep.Loops {
			if l.LastError != "" {
				rep.Status = "degraded"
			}
		}
	}
	if s.recorder != nil {
		rep.EventCounts = s.recorder.Counts()
		rep.RecentEvents = s.recorder.Events()
	}
	return rep
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.report()); err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to encode status", log.FieldError, err)
	}
}
