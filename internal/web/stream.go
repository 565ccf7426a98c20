package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Output line classifications for the live display channel. Heuristic only;
// control decisions always come from structured events.
const (
	lineError      = "error"
	lineThinking   = "thinking"
	lineToolUse    = "tool_use"
	lineToolResult = "tool_result"
	lineText       = "text"
)

// classifyLine buckets a free-form output line for display styling.
func classifyLine(line string) string {
	lower := strings.ToLower(line)

	if strings.HasPrefix(line, "Error:") || strings.HasPrefix(line, "ERROR:") || strings.Contains(lower, "error") {
		return lineError
	}
	if strings.Contains(lower, "thinking") || strings.HasPrefix(line, ">") {
		return lineThinking
	}
	for _, marker := range []string{"tool:", "using tool", "bash:", "read:", "write:", "edit:"} {
		if strings.Contains(lower, marker) {
			return lineToolUse
		}
	}
	if strings.Contains(lower, "result:") || strings.Contains(lower, "output:") {
		return lineToolResult
	}
	return lineText
}

type outputMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// handleEvents serves a Server-Sent Events stream of the child's output.
// Structured event lines pass through as "event" messages; everything else
// is classified for display and sent as "output" messages.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	lines, cancel := s.Manager.Subscribe()
	defer cancel()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case line, open := <-lines:
			if !open {
				fmt.Fprint(w, "event: done\ndata: stream closed\n\n")
				flusher.Flush()
				return
			}
			if strings.HasPrefix(strings.TrimSpace(line), "{") {
				fmt.Fprintf(w, "event: event\ndata: %s\n\n", line)
				flusher.Flush()
				continue
			}
			msg := outputMessage{
				Type:      classifyLine(line),
				Content:   line,
				Timestamp: time.Now().Format(time.RFC3339),
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: output\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
