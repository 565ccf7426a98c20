// Package supervisor runs the loop as a child process for the web control
// surface: start/stop/force-kill, pause/resume via signals, a live state
// snapshot, and output fan-out to subscribers.
package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autoloop/internal/events"
	"autoloop/internal/history"
)

// Status of the supervised process.
type Status string

const (
	StatusStopped     Status = "stopped"
	StatusRunning     Status = "running"
	StatusPaused      Status = "paused"
	StatusRateLimited Status = "rate_limited"
)

// State is a snapshot of the supervised process.
type State struct {
	Status           Status     `json:"status"`
	PID              int        `json:"pid,omitempty"`
	Iteration        int        `json:"iteration,omitempty"`
	Performer        string     `json:"performer,omitempty"`
	PerformerEmoji   string     `json:"performer_emoji,omitempty"`
	TasksDone        int        `json:"tasks_done"`
	TasksPending     int        `json:"tasks_pending"`
	NoProgressCount  int        `json:"no_progress_count"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	RateLimitedUntil *time.Time `json:"rate_limited_until,omitempty"`
}

// StartOptions configure a run launched through the supervisor.
type StartOptions struct {
	MaxIterations int
	Performer     string // force a single performer for a one-shot run
	StartHour     int
	EndHour       int
}

// Recorder persists iteration records the child could not write itself.
type Recorder interface {
	Save(r *history.Record) (int64, error)
}

// inflight tracks the iteration currently running in the child, so a
// forced stop can still persist it as cancelled.
type inflight struct {
	number      int
	performer   string
	emoji       string
	startedAt   time.Time
	tasksBefore int
}

// Manager supervises one loop child process. All state mutation happens
// under mu; the output drain goroutine and the HTTP handlers never touch
// fields directly.
type Manager struct {
	Command string   // child binary, default "autoloop"
	Args    []string // extra args prepended before "run"
	Dir     string
	Log     zerolog.Logger
	History Recorder // may be nil

	// StopTimeout bounds graceful shutdown before escalating to SIGKILL.
	StopTimeout time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	state    State
	current  *inflight
	waitDone chan struct{}
	runID    string

	subMu   sync.Mutex
	subs    map[int]chan string
	nextSub int
}

// NewManager returns a stopped Manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		Log:         log,
		StopTimeout: 10 * time.Second,
		state:       State{Status: StatusStopped},
		subs:        make(map[int]chan string),
	}
}

// State returns a copy of the current process state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether the child is alive and in the running state.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningLocked()
}

func (m *Manager) runningLocked() bool {
	return m.cmd != nil && m.state.Status != StatusStopped
}

// Start launches the loop child process. It fails if one is already running.
func (m *Manager) Start(opts StartOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningLocked() {
		return 0, errors.New("process is already running")
	}

	command := m.Command
	if command == "" {
		command = "autoloop"
	}
	args := append([]string{}, m.Args...)
	args = append(args, "run", "--json-events")
	if opts.MaxIterations > 0 {
		args = append(args, "--max-iterations", fmt.Sprint(opts.MaxIterations))
	}
	if opts.Performer != "" {
		args = append(args, "--performer", opts.Performer)
	}
	args = append(args, "--start-hour", fmt.Sprint(opts.StartHour))
	args = append(args, "--end-hour", fmt.Sprint(opts.EndHour))

	cmd := exec.Command(command, args...)
	cmd.Dir = m.Dir

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return 0, fmt.Errorf("start loop process: %w", err)
	}

	now := time.Now()
	m.cmd = cmd
	m.current = nil
	m.runID = uuid.NewString()
	m.state = State{
		Status:    StatusRunning,
		PID:       cmd.Process.Pid,
		StartedAt: &now,
	}
	m.waitDone = make(chan struct{})
	waitDone := m.waitDone

	m.Log.Info().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("loop process started")

	go m.drainOutput(pr)
	go func() {
		err := cmd.Wait()
		pw.Close()
		close(waitDone)

		m.mu.Lock()
		m.state.Status = StatusStopped
		m.state.PID = 0
		m.mu.Unlock()

		if err != nil {
			m.Log.Warn().Err(err).Msg("loop process exited")
		} else {
			m.Log.Info().Msg("loop process exited cleanly")
		}
	}()

	return cmd.Process.Pid, nil
}

// Stop terminates the child. Graceful stop sends SIGTERM and waits up to
// StopTimeout before escalating to SIGKILL; force kills immediately.
func (m *Manager) Stop(force bool) error {
	m.mu.Lock()
	cmd := m.cmd
	waitDone := m.waitDone
	m.saveInflightLocked(history.ResultCancelled, "")
	if cmd == nil || m.state.Status == StatusStopped {
		m.state.Status = StatusStopped
		m.state.PID = 0
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if force {
		_ = cmd.Process.Kill()
	} else {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-waitDone:
	case <-time.After(m.StopTimeout):
		m.Log.Warn().Msg("graceful stop timed out, killing")
		_ = cmd.Process.Kill()
		<-waitDone
	}

	m.mu.Lock()
	m.state.Status = StatusStopped
	m.state.PID = 0
	m.mu.Unlock()
	return nil
}

// Pause sends the pause signal. Valid only while running.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.runningLocked() || m.state.Status != StatusRunning {
		return errors.New("process is not running")
	}
	if err := m.cmd.Process.Signal(syscall.SIGUSR1); err != nil {
		return fmt.Errorf("signal pause: %w", err)
	}
	m.state.Status = StatusPaused
	return nil
}

// Resume sends the resume signal. Valid only while paused.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status != StatusPaused {
		return errors.New("process is not paused")
	}
	if err := m.cmd.Process.Signal(syscall.SIGUSR2); err != nil {
		return fmt.Errorf("signal resume: %w", err)
	}
	m.state.Status = StatusRunning
	return nil
}

// Subscribe returns a channel of raw output lines and a cancel function.
// Slow subscribers drop lines rather than stalling the drain goroutine.
func (m *Manager) Subscribe() (<-chan string, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan string, 256)
	m.subs[id] = ch
	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (m *Manager) broadcast(line string) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

func (m *Manager) drainOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m.broadcast(line)
		if ev, ok := events.Parse(line); ok {
			m.handleEvent(ev)
		}
	}
}

// handleEvent updates state from the child's structured events. Plain text
// lines never drive control decisions; they are broadcast only.
func (m *Manager) handleEvent(ev *events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Event {
	case events.TypeIterationStart:
		m.state.Iteration = ev.Iteration
		m.state.Performer = ev.Performer
		m.state.PerformerEmoji = ev.Emoji
		m.state.TasksDone = ev.TasksDone
		m.state.TasksPending = ev.TasksPending
		if m.state.Status == StatusRateLimited {
			m.state.Status = StatusRunning
			m.state.RateLimitedUntil = nil
		}
		m.current = &inflight{
			number:      ev.Iteration,
			performer:   ev.Performer,
			emoji:       ev.Emoji,
			startedAt:   time.Now(),
			tasksBefore: ev.TasksDone,
		}

	case events.TypeIterationEnd:
		// The child persists its own record; just drop the in-flight marker.
		m.state.NoProgressCount = ev.NoProgressCount
		m.state.TasksDone = ev.TasksDone
		m.state.TasksPending = ev.TasksPending
		m.current = nil

	case events.TypeRateLimited:
		m.state.Status = StatusRateLimited
		if ev.ResetTime != "" {
			if t, err := time.Parse(time.RFC3339, ev.ResetTime); err == nil {
				m.state.RateLimitedUntil = &t
			}
		}

	case events.TypePaused:
		m.state.Status = StatusPaused

	case events.TypeResumed:
		m.state.Status = StatusRunning

	case events.TypeCompleted, events.TypeTerminated:
		m.current = nil

	case events.TypeError:
		// Recorded by the child; surfaced here only for the log.
		m.Log.Debug().Str("message", ev.Message).Msg("loop error event")
	}
}

// saveInflightLocked persists an iteration the child will not get to finish.
// Callers hold mu.
func (m *Manager) saveInflightLocked(result, errMsg string) {
	if m.current == nil || m.History == nil {
		return
	}
	now := time.Now()
	_, err := m.History.Save(&history.Record{
		RunID:           m.runID,
		IterationNumber: m.current.number,
		PerformerName:   m.current.performer,
		PerformerEmoji:  m.current.emoji,
		Result:          result,
		TasksBefore:     m.current.tasksBefore,
		TasksAfter:      m.state.TasksDone,
		DurationSeconds: now.Sub(m.current.startedAt).Seconds(),
		StartedAt:       m.current.startedAt,
		EndedAt:         now,
		ErrorMessage:    errMsg,
	})
	if err != nil {
		m.Log.Warn().Err(err).Msg("could not save cancelled iteration")
	}
	m.current = nil
}
