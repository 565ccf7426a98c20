// Package web exposes the loop control surface over HTTP: status, start,
// stop, pause/resume, iteration history, and a live output stream.
package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"autoloop/internal/history"
	"autoloop/internal/performer"
	"autoloop/internal/supervisor"
)

// Counter reports (done, pending) task counts from the tracker.
type Counter interface {
	Count() (done, pending int)
}

// HistoryStore is the slice of the history store the handlers need.
type HistoryStore interface {
	List(f history.Filter) ([]history.Record, int, error)
	Performers() ([]string, error)
	Stats() (*history.Stats, error)
}

// Server wires the supervisor and history store into HTTP handlers.
type Server struct {
	Manager *supervisor.Manager
	Store   HistoryStore
	Counter Counter
	Log     zerolog.Logger
}

// NewServer creates a Server.
func NewServer(m *supervisor.Manager, store HistoryStore, counter Counter, log zerolog.Logger) *Server {
	return &Server{Manager: m, Store: store, Counter: counter, Log: log}
}

// Routes returns the HTTP handler for the whole control surface.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/pause", s.handlePause)
	mux.HandleFunc("/api/resume", s.handleResume)
	mux.HandleFunc("/api/performers", s.handlePerformers)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/stats", s.handleHistoryStats)
	mux.HandleFunc("/events", s.handleEvents)
	return s.logRequests(mux)
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.Log.Info().Str("addr", addr).Msg("web server listening")
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Routes(),
		ReadTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type simpleResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": "autoloop", "status": "ok"})
}

type statusResponse struct {
	Running          bool       `json:"running"`
	Paused           bool       `json:"paused"`
	Status           string     `json:"status"`
	Iteration        int        `json:"iteration"`
	Performer        string     `json:"performer,omitempty"`
	PerformerEmoji   string     `json:"performer_emoji,omitempty"`
	TasksDone        int        `json:"tasks_done"`
	TasksPending     int        `json:"tasks_pending"`
	NoProgressCount  int        `json:"no_progress_count"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	RateLimitedUntil *time.Time `json:"rate_limited_until,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.Manager.State()
	done, pending := st.TasksDone, st.TasksPending
	if s.Counter != nil {
		done, pending = s.Counter.Count()
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Running:          st.Status == supervisor.StatusRunning || st.Status == supervisor.StatusRateLimited,
		Paused:           st.Status == supervisor.StatusPaused,
		Status:           string(st.Status),
		Iteration:        st.Iteration,
		Performer:        st.Performer,
		PerformerEmoji:   st.PerformerEmoji,
		TasksDone:        done,
		TasksPending:     pending,
		NoProgressCount:  st.NoProgressCount,
		StartedAt:        st.StartedAt,
		RateLimitedUntil: st.RateLimitedUntil,
	})
}

type startRequest struct {
	MaxIterations int    `json:"max_iterations"`
	Performer     string `json:"performer"`
	StartHour     int    `json:"start_hour"`
	EndHour       int    `json:"end_hour"`
}

type startResponse struct {
	Success bool   `json:"success"`
	PID     int    `json:"pid,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req := startRequest{EndHour: 24}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Performer != "" && !validPerformer(req.Performer) {
		writeJSON(w, http.StatusBadRequest, startResponse{Error: fmt.Sprintf("unknown performer %q", req.Performer)})
		return
	}

	pid, err := s.Manager.Start(supervisor.StartOptions{
		MaxIterations: req.MaxIterations,
		Performer:     req.Performer,
		StartHour:     req.StartHour,
		EndHour:       req.EndHour,
	})
	if err != nil {
		writeJSON(w, http.StatusConflict, startResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Success: true, PID: pid})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if err := s.Manager.Stop(req.Force); err != nil {
		writeJSON(w, http.StatusInternalServerError, simpleResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResponse{Success: true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Manager.Pause(); err != nil {
		writeJSON(w, http.StatusConflict, simpleResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResponse{Success: true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.Manager.Resume(); err != nil {
		writeJSON(w, http.StatusConflict, simpleResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, simpleResponse{Success: true})
}

func (s *Server) handlePerformers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Registered performers, plus anything only present in old history.
	names := performer.NewRegistry().Names()
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	if s.Store != nil {
		historical, err := s.Store.Performers()
		if err == nil {
			for _, n := range historical {
				if !seen[n] {
					names = append(names, n)
					seen[n] = true
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"performers": names})
}

func validPerformer(name string) bool {
	for _, n := range performer.NewRegistry().Names() {
		if n == name {
			return true
		}
	}
	return false
}
