package performer

import (
	"math/rand"
	"testing"
)

func TestCyclePosition(t *testing.T) {
	r := NewRegistry()
	for iteration := 1; iteration <= 30; iteration++ {
		ctx := r.BuildContext(iteration, 3, 0)
		want := iteration % CycleLength
		if ctx.CyclePosition != want {
			t.Errorf("iteration %d: cycle position = %d, want %d", iteration, ctx.CyclePosition, want)
		}
		if ctx.CyclePosition < 0 || ctx.CyclePosition > 6 {
			t.Errorf("iteration %d: cycle position %d out of range", iteration, ctx.CyclePosition)
		}
	}
}

func TestTaskNeverRunsOnSpecialPositions(t *testing.T) {
	for iteration := 1; iteration <= 50; iteration++ {
		r := NewRegistry()
		ctx := r.BuildContext(iteration, 5, 0)
		p, err := r.Select(ctx)
		if err != nil {
			t.Fatalf("iteration %d: %v", iteration, err)
		}
		pos := ctx.CyclePosition
		if (pos == 0 || pos == 5 || pos == 6) && p.Name == TaskName {
			t.Errorf("iteration %d (cycle %d): task selected on a special position", iteration, pos)
		}
		if pos != 0 && pos != 5 && pos != 6 && p.Name != TaskName {
			t.Errorf("iteration %d (cycle %d): %s selected, want task", iteration, pos, p.Name)
		}
	}
}

// Fuzz the fallback invariant: any context with pending work must select
// some performer, whatever the bookkeeping looks like.
func TestSelectAlwaysSucceedsWithPendingWork(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	names := []string{TaskName, CleanupName, DeployName, ReviewName}

	for i := 0; i < 1000; i++ {
		iteration := 1 + rng.Intn(100)
		ctx := &Context{
			Iteration:     iteration,
			CyclePosition: iteration % CycleLength,
			TasksPending:  1 + rng.Intn(20),
			TasksDone:     rng.Intn(20),
			LastRun:       make(map[string]int),
			FinalRoundRan: make(map[string]bool),
		}
		for _, n := range names {
			if rng.Intn(2) == 0 {
				ctx.LastRun[n] = rng.Intn(iteration + 1)
			}
			if rng.Intn(4) == 0 {
				ctx.FinalRoundRan[n] = true
			}
		}

		r := NewRegistry()
		if _, err := r.Select(ctx); err != nil {
			t.Fatalf("case %d: Select failed: %v (ctx=%+v)", i, err, ctx)
		}
	}
}

func TestShouldTerminate(t *testing.T) {
	specials := []string{CleanupName, DeployName, ReviewName}

	// 0..3 specials present in the final-round set.
	for n := 0; n <= len(specials); n++ {
		r := NewRegistry()
		ctx := &Context{
			Iteration:     10,
			CyclePosition: 3,
			TasksPending:  0,
			FinalRoundRan: make(map[string]bool),
		}
		for _, name := range specials[:n] {
			ctx.FinalRoundRan[name] = true
		}
		want := n == len(specials)
		if got := r.ShouldTerminate(ctx); got != want {
			t.Errorf("with %d specials ran: ShouldTerminate = %v, want %v", n, got, want)
		}
	}

	// Pending work always blocks termination.
	r := NewRegistry()
	ctx := &Context{
		Iteration:     10,
		TasksPending:  1,
		FinalRoundRan: map[string]bool{CleanupName: true, DeployName: true, ReviewName: true},
	}
	if r.ShouldTerminate(ctx) {
		t.Error("ShouldTerminate must be false while work is pending")
	}
}

func TestRecordIdempotentInFinalRound(t *testing.T) {
	r := NewRegistry()
	r.Record(DeployName, 5, 0)
	r.Record(DeployName, 5, 0)

	ctx := r.BuildContext(6, 0, 3)
	if !ctx.FinalRoundRan[DeployName] {
		t.Error("deploy should be in the final-round set")
	}
	if len(ctx.FinalRoundRan) != 1 {
		t.Errorf("final-round set has %d entries, want 1", len(ctx.FinalRoundRan))
	}
}

func TestNewWorkClearsFinalRound(t *testing.T) {
	r := NewRegistry()
	r.Record(DeployName, 5, 0)
	r.Record(ReviewName, 6, 0)

	// New pending work appears: the whole set resets.
	ctx := r.BuildContext(7, 2, 3)
	if len(ctx.FinalRoundRan) != 0 {
		t.Errorf("final-round set = %v, want empty after new work", ctx.FinalRoundRan)
	}

	// Recording with pending > 0 must not add to the set.
	r.Record(TaskName, 7, 2)
	ctx = r.BuildContext(8, 0, 4)
	if len(ctx.FinalRoundRan) != 0 {
		t.Errorf("final-round set = %v, want empty", ctx.FinalRoundRan)
	}
}

func TestCleanupOverdue(t *testing.T) {
	r := NewRegistry()
	r.Record(CleanupName, 1, 3)

	// 10 iterations since the last cleanup at a non-special position.
	ctx := r.BuildContext(11, 3, 0)
	p, err := r.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != CleanupName {
		t.Errorf("selected %s, want overdue cleanup", p.Name)
	}

	// Never-run cleanup is not "overdue"; task keeps the slot.
	r2 := NewRegistry()
	ctx = r2.BuildContext(11, 3, 0)
	p, err = r2.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != TaskName {
		t.Errorf("selected %s, want task when cleanup has never run", p.Name)
	}
}

func TestDeployAfterCompletedBurst(t *testing.T) {
	r := NewRegistry()
	r.Record(DeployName, 4, 3)

	// 4+ iterations since deploy and 5+ tasks done, off-cycle position.
	ctx := r.BuildContext(8, 3, 6)
	p, err := r.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != DeployName {
		t.Errorf("selected %s, want deploy", p.Name)
	}

	// Not enough completions: task runs instead.
	r2 := NewRegistry()
	r2.Record(DeployName, 4, 3)
	ctx = r2.BuildContext(8, 3, 4)
	p, err = r2.Select(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != TaskName {
		t.Errorf("selected %s, want task", p.Name)
	}
}

// Walk a full run to exhaustion: three pending tasks burn down over the first
// iterations, then every special performer gets its one final-round run
// before the registry reports termination.
func TestFinalRoundScenario(t *testing.T) {
	r := NewRegistry()

	pending, done := 3, 0
	step := func(iteration, pend, done int) string {
		ctx := r.BuildContext(iteration, pend, done)
		if r.ShouldTerminate(ctx) {
			return ""
		}
		p, err := r.Select(ctx)
		if err != nil {
			t.Fatalf("iteration %d: %v", iteration, err)
		}
		r.Record(p.Name, iteration, pend)
		return p.Name
	}

	// Iterations 1-3: task burns the backlog down to zero.
	for i := 1; i <= 3; i++ {
		if got := step(i, pending, done); got != TaskName {
			t.Fatalf("iteration %d: ran %s, want task", i, got)
		}
		pending--
		done++
	}

	// Iteration 4: backlog empty, cleanup takes its final-round run first.
	if got := step(4, 0, done); got != CleanupName {
		t.Fatalf("iteration 4: ran %s, want cleanup", got)
	}
	// Iteration 5: cycle position 5 and final round both point at deploy.
	if got := step(5, 0, done); got != DeployName {
		t.Fatalf("iteration 5: ran %s, want deploy", got)
	}
	// Iteration 6: review closes out the final round.
	if got := step(6, 0, done); got != ReviewName {
		t.Fatalf("iteration 6: ran %s, want review", got)
	}

	// Iteration 7: cycle position 0 would normally be cleanup's slot, but
	// every special has run and the loop terminates instead.
	ctx := r.BuildContext(7, 0, done)
	if !r.ShouldTerminate(ctx) {
		t.Fatal("iteration 7: expected termination after the final round")
	}
}

func TestGetAndNames(t *testing.T) {
	r := NewRegistry()

	want := []string{CleanupName, DeployName, ReviewName, TaskName}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %s, want %s (priority order)", i, got[i], want[i])
		}
	}

	if _, ok := r.Get(DeployName); !ok {
		t.Error("Get(deploy) should succeed")
	}
	if _, ok := r.Get("nonsense"); ok {
		t.Error("Get(nonsense) should fail")
	}
}
