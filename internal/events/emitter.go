package events

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Emitter writes events as JSON lines. A nil *Emitter is a no-op, so callers
// can hold one unconditionally and only construct it under --json-events.
type Emitter struct {
	w io.Writer

	// now exists for tests; nil means time.Now.
	now func() time.Time
}

// NewEmitter creates an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

func (e *Emitter) emit(ev Event) {
	if e == nil {
		return
	}
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	ev.Timestamp = now().Format(time.RFC3339)
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintln(e.w, string(data))
}

// IterationStart announces the performer chosen for an iteration.
func (e *Emitter) IterationStart(iteration int, performer, emoji string, tasksDone, tasksPending, maxIterations int) {
	e.emit(Event{
		Event:         TypeIterationStart,
		Iteration:     iteration,
		Performer:     performer,
		Emoji:         emoji,
		TasksDone:     tasksDone,
		TasksPending:  tasksPending,
		MaxIterations: maxIterations,
	})
}

// IterationEnd reports an iteration's outcome classification.
func (e *Emitter) IterationEnd(iteration int, result string, tasksDone, tasksPending, noProgressCount int, errorMessage string) {
	e.emit(Event{
		Event:           TypeIterationEnd,
		Iteration:       iteration,
		Result:          result,
		TasksDone:       tasksDone,
		TasksPending:    tasksPending,
		NoProgressCount: noProgressCount,
		ErrorMessage:    errorMessage,
	})
}

// Output forwards a classified agent output line.
func (e *Emitter) Output(outputType, content string) {
	e.emit(Event{Event: TypeOutput, OutputType: outputType, Content: content})
}

// Paused acknowledges a pause request taking effect.
func (e *Emitter) Paused(afterIteration int) {
	e.emit(Event{Event: TypePaused, AfterIteration: afterIteration})
}

// Resumed acknowledges a resume request.
func (e *Emitter) Resumed() {
	e.emit(Event{Event: TypeResumed})
}

// RateLimited reports a throttling condition; reset may be zero when the
// reset time could not be parsed.
func (e *Emitter) RateLimited(reset time.Time) {
	ev := Event{Event: TypeRateLimited}
	if !reset.IsZero() {
		ev.ResetTime = reset.Format(time.RFC3339)
	}
	e.emit(ev)
}

// Error reports a recoverable iteration-level failure.
func (e *Emitter) Error(message string, code int) {
	e.emit(Event{Event: TypeError, Message: message, Code: code})
}

// Completed reports the loop finishing with a named reason.
func (e *Emitter) Completed(reason string, totalIterations, tasksDone, tasksPending int) {
	e.emit(Event{
		Event:           TypeCompleted,
		Reason:          reason,
		TotalIterations: totalIterations,
		TasksDone:       tasksDone,
		TasksPending:    tasksPending,
	})
}

// Terminated reports a user-requested stop after an iteration boundary.
func (e *Emitter) Terminated(byUser bool, afterIteration int) {
	e.emit(Event{Event: TypeTerminated, ByUser: byUser, AfterIteration: afterIteration})
}
