// Package performer decides which behaviour the loop runs each iteration.
//
// The performer set is small, closed, and known at compile time, so the
// variants are plain values with predicate functions rather than an open
// interface hierarchy. Selection is "first matching policy wins" over a
// fixed priority order, with the task performer as the unconditional
// fallback whenever work remains.
package performer

// CycleLength is the fixed cadence for the special performers: the cycle
// position is iteration modulo this value.
const CycleLength = 7

// Performer names. TaskName is the primary/fallback performer; the others
// are the "special" performers owed one final-round run each.
const (
	TaskName    = "task"
	CleanupName = "cleanup"
	DeployName  = "deploy"
	ReviewName  = "review"
)

// Context carries the per-iteration facts a performer predicate needs. It is
// rebuilt fresh on every loop pass by Registry.BuildContext.
type Context struct {
	Iteration     int
	CyclePosition int
	TasksPending  int
	TasksDone     int

	// LastRun maps performer name to the iteration it last ran.
	LastRun map[string]int

	// FinalRoundRan holds special performers that already had their
	// post-completion run.
	FinalRoundRan map[string]bool
}

// IterationsSince returns how many iterations ago the named performer ran.
// The second return is false if it has never run.
func (c *Context) IterationsSince(name string) (int, bool) {
	last, ok := c.LastRun[name]
	if !ok {
		return 0, false
	}
	return c.Iteration - last, true
}

// owedFinalRun reports whether a special performer is still owed its one
// final-round run after pending work reached zero.
func (c *Context) owedFinalRun(name string) bool {
	return c.TasksPending == 0 && !c.FinalRoundRan[name]
}

// Performer bundles a name with its scheduling predicate and display info.
type Performer struct {
	Name        string
	Emoji       string
	Description string

	shouldRun func(*Context) bool
}

// ShouldRun reports whether this performer claims the iteration.
func (p Performer) ShouldRun(ctx *Context) bool {
	return p.shouldRun(ctx)
}

// defaultPerformers returns the closed variant set in priority order:
// cleanup > deploy > review > task. The order is positional tie-breaking,
// not a business rule.
func defaultPerformers() []Performer {
	return []Performer{
		{
			Name:        CleanupName,
			Emoji:       "\U0001f9f9", // broom
			Description: "Running cleanup/verification iteration...",
			shouldRun: func(ctx *Context) bool {
				if ctx.CyclePosition == 0 && ctx.Iteration > 0 {
					return true
				}
				if since, ok := ctx.IterationsSince(CleanupName); ok && since >= 10 {
					return true
				}
				return ctx.owedFinalRun(CleanupName)
			},
		},
		{
			Name:        DeployName,
			Emoji:       "\U0001f680", // rocket
			Description: "Running deploy and test iteration...",
			shouldRun: func(ctx *Context) bool {
				if ctx.CyclePosition == 5 {
					return true
				}
				if since, ok := ctx.IterationsSince(DeployName); ok && since >= 4 && ctx.TasksDone >= 5 {
					return true
				}
				return ctx.owedFinalRun(DeployName)
			},
		},
		{
			Name:        ReviewName,
			Emoji:       "\U0001f3a8", // palette
			Description: "Running review iteration...",
			shouldRun: func(ctx *Context) bool {
				if ctx.CyclePosition == 6 {
					return true
				}
				return ctx.owedFinalRun(ReviewName)
			},
		},
		{
			Name:        TaskName,
			Emoji:       "\U0001f527", // wrench
			Description: "Running task performer...",
			shouldRun: func(ctx *Context) bool {
				if ctx.TasksPending == 0 {
					return false
				}
				// Cycle positions 0, 5 and 6 belong to the specials.
				return ctx.CyclePosition != 0 && ctx.CyclePosition != 5 && ctx.CyclePosition != 6
			},
		},
	}
}
