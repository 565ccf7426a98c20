// Package scheduler drives the iteration loop: it gates on allowed hours,
// picks a performer, invokes the agent, classifies the outcome, and decides
// when the run is over.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"autoloop/internal/agent"
	"autoloop/internal/events"
	"autoloop/internal/history"
	"autoloop/internal/performer"
	"autoloop/internal/prompt"
	"autoloop/internal/ratelimit"
	"autoloop/internal/timeband"
)

// DefaultMaxNoProgress is how many consecutive no-progress task iterations
// end the run.
const DefaultMaxNoProgress = 5

// TaskCounter reports (done, pending) task counts from the tracker.
type TaskCounter interface {
	Count() (done, pending int)
}

// Recorder persists one record per finished iteration.
type Recorder interface {
	Save(r *history.Record) (int64, error)
}

// Options configure one run of the loop.
type Options struct {
	MaxIterations int // 0 = unlimited

	EnforceHours  bool
	StartHour     int
	EndHour       int
	WaitForWindow bool // wait for the window instead of exiting

	MaxNoProgress int // 0 = DefaultMaxNoProgress

	// OnLine, if set, receives every decoded agent output line in addition
	// to the live transcript.
	OnLine func(agent.Line)
}

// Result is the terminal outcome of a run.
type Result struct {
	Reason       string
	Iterations   int
	TasksDone    int
	TasksPending int
	ExitCode     int
}

// Scheduler owns one loop. Dependencies are injected so tests can run the
// loop against fakes; zero instances share state.
type Scheduler struct {
	Registry *performer.Registry
	Counter  TaskCounter
	Runner   agent.Runner
	Prompts  *prompt.Builder
	Detector *ratelimit.Detector
	Emitter  *events.Emitter // may be nil
	History  Recorder        // may be nil
	Control  *Control
	Out      io.Writer // human-readable progress; nil = os.Stdout
	RunID    string
	Opts     Options

	// Test seams; zero values select the real clock and real sleeps.
	now          func() time.Time
	waitReset    func(ctx context.Context, reset time.Time) error
	waitFallback func(ctx context.Context) error
	pausePoll    time.Duration
}

func (s *Scheduler) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Scheduler) doWaitReset(ctx context.Context, reset time.Time) error {
	if s.waitReset != nil {
		return s.waitReset(ctx, reset)
	}
	return ratelimit.Wait(ctx, reset, func(remaining time.Duration) {
		fmt.Fprintf(s.out(), "⏳ Rate limited. %s until reset...\n", remaining.Round(time.Minute))
	})
}

func (s *Scheduler) doWaitFallback(ctx context.Context) error {
	if s.waitFallback != nil {
		return s.waitFallback(ctx)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ratelimit.FallbackWait):
		return nil
	}
}

func (s *Scheduler) control() *Control {
	if s.Control == nil {
		s.Control = NewControl()
	}
	return s.Control
}

// Run executes the loop until a terminal condition is reached. Configuration
// errors (unknown performer, missing template) return a non-nil error before
// or instead of a Result; everything else is absorbed into the loop and
// reported through the Result's reason.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	ctl := s.control()
	maxNoProgress := s.Opts.MaxNoProgress
	if maxNoProgress <= 0 {
		maxNoProgress = DefaultMaxNoProgress
	}
	pausePoll := s.pausePoll
	if pausePoll <= 0 {
		pausePoll = 500 * time.Millisecond
	}

	header := color.New(color.FgCyan, color.Bold)

	iteration := 0
	noProgress := 0
	var done, pending int

	finish := func(reason string) *Result {
		code := 0
		if reason == events.ReasonNoProgress {
			code = 1
		}
		s.Emitter.Completed(reason, iteration, done, pending)
		return &Result{
			Reason:       reason,
			Iterations:   iteration,
			TasksDone:    done,
			TasksPending: pending,
			ExitCode:     code,
		}
	}

	for {
		// Allowed-hours gate.
		if s.Opts.EnforceHours && !timeband.InWindow(s.clock().Hour(), s.Opts.StartHour, s.Opts.EndHour) {
			if !s.Opts.WaitForWindow {
				fmt.Fprintf(s.out(), "\n⏸ Outside allowed hours (%d:00-%d:00). Exiting.\n", s.Opts.StartHour, s.Opts.EndHour)
				return finish(events.ReasonOutsideHours), nil
			}
			gate := &timeband.Gate{
				Start: s.Opts.StartHour,
				End:   s.Opts.EndHour,
				Now:   s.now,
				Progress: func(now time.Time) {
					fmt.Fprintf(s.out(), "⏸ Waiting for allowed hours (%d:00-%d:00), now %s...\n",
						s.Opts.StartHour, s.Opts.EndHour, now.Format("15:04"))
				},
			}
			if err := gate.Wait(ctx); err != nil {
				return finish(events.ReasonUserRequested), nil
			}
		}

		// Pause spin-wait. A stop request received while paused exits
		// without resuming.
		wasPaused := false
		for ctl.Paused() {
			if !wasPaused {
				wasPaused = true
				fmt.Fprintln(s.out(), "\n⏸ Paused")
				s.Emitter.Paused(iteration)
			}
			if ctl.Stopping() {
				s.Emitter.Terminated(true, iteration)
				return finish(events.ReasonUserRequested), nil
			}
			select {
			case <-ctx.Done():
				return finish(events.ReasonUserRequested), nil
			case <-time.After(pausePoll):
			}
		}
		if wasPaused {
			fmt.Fprintln(s.out(), "▶ Resumed")
			s.Emitter.Resumed()
		}
		if ctl.Stopping() || ctx.Err() != nil {
			s.Emitter.Terminated(true, iteration)
			return finish(events.ReasonUserRequested), nil
		}

		iteration++
		done, pending = s.Counter.Count()

		iterInfo := fmt.Sprintf("ITERATION %d", iteration)
		if s.Opts.MaxIterations > 0 {
			iterInfo = fmt.Sprintf("%s/%d", iterInfo, s.Opts.MaxIterations)
		}
		header.Fprintf(s.out(), "\n%s\n%s | Done: %d | Pending: %d\n%s\n",
			dashes, iterInfo, done, pending, dashes)

		if s.Opts.MaxIterations > 0 && iteration > s.Opts.MaxIterations {
			fmt.Fprintf(s.out(), "\n🛑 Reached max iterations (%d). Stopping.\n", s.Opts.MaxIterations)
			iteration--
			return finish(events.ReasonMaxIterations), nil
		}

		pctx := s.Registry.BuildContext(iteration, pending, done)
		if s.Registry.ShouldTerminate(pctx) {
			fmt.Fprintln(s.out(), "\n🎉 All tasks are completed!")
			return finish(events.ReasonAllTasksDone), nil
		}

		perf, err := s.Registry.Select(pctx)
		if err != nil {
			return nil, err
		}
		instruction, err := s.Prompts.Instruction(perf.Name)
		if err != nil {
			return nil, fmt.Errorf("build instruction for %q: %w", perf.Name, err)
		}

		fmt.Fprintf(s.out(), "\n%s %s\n\n", perf.Emoji, perf.Description)
		s.Registry.Record(perf.Name, iteration, pending)
		s.Emitter.IterationStart(iteration, perf.Name, perf.Emoji, done, pending, s.Opts.MaxIterations)
		started := s.clock()

		res, runErr := s.Runner.Run(ctx, instruction, s.Opts.OnLine)
		if runErr != nil {
			if ctx.Err() != nil {
				s.saveRecord(iteration, perf, history.ResultCancelled, done, done, started, runErr.Error())
				return finish(events.ReasonUserRequested), nil
			}
			noProgress++
			fmt.Fprintf(s.out(), "\nError: %v\n", runErr)
			s.Emitter.Error(runErr.Error(), 0)
			s.Emitter.IterationEnd(iteration, events.ResultError, done, pending, noProgress, runErr.Error())
			s.saveRecord(iteration, perf, history.ResultError, done, done, started, runErr.Error())
			if noProgress >= maxNoProgress {
				fmt.Fprintf(s.out(), "\n🛑 No progress in %d iterations. Stopping.\n", maxNoProgress)
				return finish(events.ReasonNoProgress), nil
			}
			if ctl.Stopping() {
				return finish(events.ReasonUserRequested), nil
			}
			continue
		}

		// Rate-limit conditions are retried, never counted as failures.
		errText := res.ResultText + "\n" + res.Stderr
		if s.Detector != nil && s.Detector.Detect(errText) {
			reset, ok := ratelimit.ParseReset(errText, s.clock())
			if ok {
				s.Emitter.RateLimited(reset)
			} else {
				s.Emitter.RateLimited(time.Time{})
			}
			s.Emitter.IterationEnd(iteration, events.ResultRateLimited, done, pending, 0, "")
			s.saveRecord(iteration, perf, history.ResultRateLimited, done, done, started, "")

			var waitErr error
			if ok {
				waitErr = s.doWaitReset(ctx, reset)
			} else {
				fmt.Fprintln(s.out(), "\n⏳ Rate limit hit. Waiting 1 hour...")
				waitErr = s.doWaitFallback(ctx)
			}
			if waitErr != nil {
				return finish(events.ReasonUserRequested), nil
			}
			noProgress = 0
			iteration-- // retry under the same iteration number
			continue
		}

		newDone, newPending := s.Counter.Count()
		resultClass := events.ResultSuccess
		errMsg := ""
		switch {
		case newDone > done:
			total := newDone + newPending
			pct := 0
			if total > 0 {
				pct = newDone * 100 / total
			}
			fmt.Fprintf(s.out(), "\n✓ Task completed! (%d/%d - %d%%)\n", newDone, total, pct)
			noProgress = 0
		case res.ExitCode != 0:
			fmt.Fprintf(s.out(), "\n⚠ Agent exited with code %d, continuing...\n", res.ExitCode)
			resultClass = events.ResultError
			errMsg = fmt.Sprintf("agent exited with code %d", res.ExitCode)
			noProgress++
		case perf.Name == performer.TaskName && newDone == done && newPending == pending:
			// Only the task performer advances the no-progress counter.
			noProgress++
			resultClass = events.ResultNoProgress
			fmt.Fprintf(s.out(), "\n⚠ No progress detected (%d/%d)\n", noProgress, maxNoProgress)
		}

		s.Emitter.IterationEnd(iteration, resultClass, newDone, newPending, noProgress, errMsg)
		s.saveRecord(iteration, perf, historyResult(resultClass), done, newDone, started, errMsg)
		done, pending = newDone, newPending

		if noProgress >= maxNoProgress {
			fmt.Fprintf(s.out(), "\n🛑 No progress in %d iterations. Stopping.\n", maxNoProgress)
			return finish(events.ReasonNoProgress), nil
		}
		if ctl.Stopping() {
			fmt.Fprintln(s.out(), "\n⏹ Terminated by user after iteration completed.")
			s.Emitter.Terminated(true, iteration)
			return finish(events.ReasonUserRequested), nil
		}
	}
}

const dashes = "============================================================"

func historyResult(class string) string {
	switch class {
	case events.ResultNoProgress:
		return history.ResultNoProgress
	case events.ResultError:
		return history.ResultError
	case events.ResultRateLimited:
		return history.ResultRateLimited
	default:
		return history.ResultSuccess
	}
}

func (s *Scheduler) saveRecord(iteration int, perf performer.Performer, result string, before, after int, started time.Time, errMsg string) {
	if s.History == nil {
		return
	}
	ended := s.clock()
	_, err := s.History.Save(&history.Record{
		RunID:           s.RunID,
		IterationNumber: iteration,
		PerformerName:   perf.Name,
		PerformerEmoji:  perf.Emoji,
		Result:          result,
		TasksBefore:     before,
		TasksAfter:      after,
		DurationSeconds: ended.Sub(started).Seconds(),
		StartedAt:       started,
		EndedAt:         ended,
		ErrorMessage:    errMsg,
	})
	if err != nil {
		fmt.Fprintf(s.out(), "⚠ Could not save iteration record: %v\n", err)
	}
}
