package web

import (
	"net/http"
	"strconv"

	"autoloop/internal/history"
)

type historyResponse struct {
	Iterations []history.Record `json:"iterations"`
	Total      int              `json:"total"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Store == nil {
		http.Error(w, "history not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	f := history.Filter{
		Result:    q.Get("result"),
		Performer: q.Get("performer"),
		RunID:     q.Get("run_id"),
		Limit:     intParam(q.Get("limit"), 50),
		Offset:    intParam(q.Get("offset"), 0),
	}

	records, total, err := s.Store.List(f)
	if err != nil {
		s.Log.Error().Err(err).Msg("list history")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Iterations: records,
		Total:      total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Store == nil {
		http.Error(w, "history not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.Store.Stats()
	if err != nil {
		s.Log.Error().Err(err).Msg("history stats")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
