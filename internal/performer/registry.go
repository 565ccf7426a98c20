package performer

import "fmt"

// Registry owns the performer list and the per-run bookkeeping: which
// iteration each performer last ran, and which specials already had their
// final-round run. All state lives on the instance so independent loops
// (and tests) never share anything.
type Registry struct {
	performers    []Performer
	lastRun       map[string]int
	finalRoundRan map[string]bool
}

// NewRegistry returns a registry with the default performer set.
func NewRegistry() *Registry {
	return &Registry{
		performers:    defaultPerformers(),
		lastRun:       make(map[string]int),
		finalRoundRan: make(map[string]bool),
	}
}

// All returns the performers in priority order.
func (r *Registry) All() []Performer {
	out := make([]Performer, len(r.performers))
	copy(out, r.performers)
	return out
}

// Names returns the performer names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.performers))
	for _, p := range r.performers {
		names = append(names, p.Name)
	}
	return names
}

// Get looks up a performer by name.
func (r *Registry) Get(name string) (Performer, bool) {
	for _, p := range r.performers {
		if p.Name == name {
			return p, true
		}
	}
	return Performer{}, false
}

// BuildContext assembles the context for an iteration. New pending work
// resets the final-round tracking: every special performer becomes owed a
// final run again once the backlog empties next time.
func (r *Registry) BuildContext(iteration, pending, done int) *Context {
	if pending > 0 && len(r.finalRoundRan) > 0 {
		r.finalRoundRan = make(map[string]bool)
	}

	lastRun := make(map[string]int, len(r.lastRun))
	for k, v := range r.lastRun {
		lastRun[k] = v
	}
	finalRound := make(map[string]bool, len(r.finalRoundRan))
	for k, v := range r.finalRoundRan {
		finalRound[k] = v
	}

	return &Context{
		Iteration:     iteration,
		CyclePosition: iteration % CycleLength,
		TasksPending:  pending,
		TasksDone:     done,
		LastRun:       lastRun,
		FinalRoundRan: finalRound,
	}
}

// Select returns the first performer in priority order that claims the
// iteration. With pending work the task fallback guarantees a match; an
// error here means the registry is misconfigured.
func (r *Registry) Select(ctx *Context) (Performer, error) {
	for _, p := range r.performers {
		if p.ShouldRun(ctx) {
			return p, nil
		}
	}
	return Performer{}, fmt.Errorf("no performer wants to run at iteration %d", ctx.Iteration)
}

// Record notes that a performer ran at the given iteration. When the pending
// count was zero the run counts as that performer's final-round run.
func (r *Registry) Record(name string, iteration, pending int) {
	r.lastRun[name] = iteration
	if pending == 0 {
		r.finalRoundRan[name] = true
	}
}

// ShouldTerminate reports whether the loop is finished: no pending work and
// every special performer has had its final-round run.
func (r *Registry) ShouldTerminate(ctx *Context) bool {
	if ctx.TasksPending > 0 {
		return false
	}
	for _, p := range r.performers {
		if p.Name == TaskName {
			continue
		}
		if !ctx.FinalRoundRan[p.Name] {
			return false
		}
	}
	return true
}
