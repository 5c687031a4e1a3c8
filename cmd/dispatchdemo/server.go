package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swind/go-cycle-dispatcher/core"
)

const (
	defaultHistoryLimit = 20
	readHeaderTimeout   = 5 * time.Second
)

// server exposes dispatcher state over HTTP.
type server struct {
	router *chi.Mux
	d      *core.Dispatcher
	host   *core.HostLoop
	logger core.Logger
}

func newServer(d *core.Dispatcher, host *core.HostLoop, gatherer prom.Gatherer, logger core.Logger) *server {
	s := &server{
		router: chi.NewRouter(),
		d:      d,
		host:   host,
		logger: logger,
	}

	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/history", s.handleHistory)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

func (s *server) httpServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.d.IsClosed() {
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "closed"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type statsResponse struct {
	Name            string         `json:"name"`
	Pending         int            `json:"pending"`
	PendingByCycle  map[string]int `json:"pending_by_cycle"`
	RunningRoutines int            `json:"running_routines"`
	Delayed         int            `json:"delayed"`
	Executed        int64          `json:"executed"`
	Rejected        int64          `json:"rejected"`
	Closed          bool           `json:"closed"`
	Frames          int64          `json:"frames"`
	LastTaskName    string         `json:"last_task_name,omitempty"`
	LastTaskAt      *time.Time     `json:"last_task_at,omitempty"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.d.Stats()
	resp := statsResponse{
		Name:            stats.Name,
		Pending:         stats.Pending,
		PendingByCycle:  stats.PendingByCycle,
		RunningRoutines: stats.RunningRoutines,
		Delayed:         stats.Delayed,
		Executed:        stats.Executed,
		Rejected:        stats.Rejected,
		Closed:          stats.Closed,
		LastTaskName:    stats.LastTaskName,
	}
	if s.host != nil {
		resp.Frames = s.host.Frames()
	}
	if !stats.LastTaskAt.IsZero() {
		resp.LastTaskAt = &stats.LastTaskAt
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Cycle      string  `json:"cycle"`
	DurationMS float64 `json:"duration_ms"`
	Panicked   bool    `json:"panicked,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records := s.d.RecentTasks(limit)
	out := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		e := historyEntry{
			ID:         rec.WorkID.String(),
			Name:       rec.Name,
			Kind:       rec.Kind.String(),
			Cycle:      rec.Cycle.String(),
			DurationMS: float64(rec.Duration) / float64(time.Millisecond),
			Panicked:   rec.Panicked,
		}
		if rec.Err != nil {
			e.Error = rec.Err.Error()
		}
		out = append(out, e)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// writeJSON writes v as a JSON response with the given status.
func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", core.F("error", err))
	}
}

// writeError writes a JSON error response.
func (s *server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
