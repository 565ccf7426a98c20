// Package events defines the machine-readable lifecycle events the run loop
// emits on stdout under --json-events, and the parser the supervisor uses to
// consume them. One JSON object per line.
package events

import (
	"encoding/json"
	"strings"
)

// Event types.
const (
	TypeIterationStart = "iteration_start"
	TypeIterationEnd   = "iteration_end"
	TypeOutput         = "output"
	TypePaused         = "paused"
	TypeResumed        = "resumed"
	TypeRateLimited    = "rate_limited"
	TypeError          = "error"
	TypeCompleted      = "completed"
	TypeTerminated     = "terminated"
)

// Iteration outcome classifications carried by iteration_end.
const (
	ResultSuccess     = "success"
	ResultNoProgress  = "no_progress"
	ResultError       = "error"
	ResultRateLimited = "rate_limited"
)

// Completion reason codes carried by the completed event.
const (
	ReasonAllTasksDone  = "all_tasks_done"
	ReasonMaxIterations = "max_iterations"
	ReasonNoProgress    = "no_progress"
	ReasonOutsideHours  = "outside_hours"
	ReasonUserRequested = "user_requested"
)

// Event is the wire shape shared by all event types. Fields not used by a
// given type stay zero and are omitted.
type Event struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`

	Iteration     int    `json:"iteration,omitempty"`
	Performer     string `json:"performer,omitempty"`
	Emoji         string `json:"emoji,omitempty"`
	TasksDone     int    `json:"tasks_done,omitempty"`
	TasksPending  int    `json:"tasks_pending,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`

	Result          string `json:"result,omitempty"`
	NoProgressCount int    `json:"no_progress_count,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`

	OutputType string `json:"type,omitempty"`
	Content    string `json:"content,omitempty"`

	AfterIteration int    `json:"after_iteration,omitempty"`
	ResetTime      string `json:"reset_time,omitempty"`

	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`

	Reason          string `json:"reason,omitempty"`
	TotalIterations int    `json:"total_iterations,omitempty"`
	ByUser          bool   `json:"by_user,omitempty"`
}

// Parse decodes a single output line into an Event. It returns false for
// anything that is not a JSON event line (plain human-readable output).
func Parse(line string) (*Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var ev Event
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil || ev.Event == "" {
		return nil, false
	}
	return &ev, true
}
