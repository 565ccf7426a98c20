package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"autoloop/internal/agent"
	"autoloop/internal/config"
	"autoloop/internal/events"
	"autoloop/internal/filelock"
	"autoloop/internal/history"
	"autoloop/internal/performer"
	"autoloop/internal/prompt"
	"autoloop/internal/ratelimit"
	"autoloop/internal/scheduler"
	"autoloop/internal/tracker"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop until all tasks are done",
	Long: `Run the coding agent in a loop. Each iteration picks one performer
(task work, cleanup, deploy, or review) based on the cycle position and the
state of the backlog, and stops when the backlog is done, progress stalls
for too long, or a termination is requested.

Press Ctrl+C once for a graceful stop after the current iteration; twice to
force quit.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().Bool("ask", false, "Ask for confirmation before running")
	runCmd.Flags().StringP("performer", "p", "", "Run a specific performer once instead of the normal cycle")
	runCmd.Flags().IntP("max-iterations", "n", 0, "Max iterations to run (0 = unlimited)")
	runCmd.Flags().Bool("print-only", false, "Print the instruction without invoking the agent")
	runCmd.Flags().Int("start-hour", -1, "Start of allowed hours (default from config)")
	runCmd.Flags().Int("end-hour", -1, "End of allowed hours (default from config)")
	runCmd.Flags().Bool("wait-for-time-band", false, "Wait for allowed hours instead of exiting")
	runCmd.Flags().Bool("json-events", false, "Emit machine-readable lifecycle events on stdout")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	whiteboard := cfg.Whiteboard
	if !filepath.IsAbs(whiteboard) {
		whiteboard = filepath.Join(workdir, whiteboard)
	}
	builder := &prompt.Builder{
		Workdir:        workdir,
		WhiteboardPath: whiteboard,
		TrackerTag:     cfg.Tracker.Tag,
	}

	forced, _ := cmd.Flags().GetString("performer")
	printOnly, _ := cmd.Flags().GetBool("print-only")
	registry := performer.NewRegistry()

	if printOnly {
		name := forced
		if name == "" {
			name = performer.TaskName
		}
		if _, ok := registry.Get(name); !ok {
			return fmt.Errorf("unknown performer %q", name)
		}
		instruction, err := builder.Instruction(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Instruction that would be sent to the agent (%s):\n", name)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))
		fmt.Fprintln(cmd.OutOrStdout(), instruction)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("-", 40))
		return nil
	}

	ctl := scheduler.NewControl()
	runner := &agent.CLIRunner{
		Command: cfg.Agent.Command,
		Args:    agentArgs(cfg),
		Dir:     workdir,
		Prefix: func() string {
			mark := ""
			if ctl.Stopping() {
				mark = color.New(color.FgRed, color.Bold).Sprint(" (Terminating...)")
			}
			return color.New(color.FgGreen, color.Bold).Sprintf("[%s]%s> ", time.Now().Format("15:04"), mark)
		},
	}

	// One-shot: run the named performer once, bypassing the registry cycle.
	if forced != "" {
		p, ok := registry.Get(forced)
		if !ok {
			return fmt.Errorf("unknown performer %q", forced)
		}
		instruction, err := builder.Instruction(p.Name)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n\n", p.Emoji, p.Description)
		res, err := runner.Run(cmd.Context(), instruction, nil)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			os.Exit(res.ExitCode)
		}
		return nil
	}

	trackerClient := tracker.NewClient(
		&tracker.ExecRunner{Command: cfg.Tracker.Command, Dir: workdir},
		cfg.Tracker.Tag,
	)

	if ask, _ := cmd.Flags().GetBool("ask"); ask {
		done, pending := trackerClient.Count()
		fmt.Printf("Tasks (%s tag): %d done, %d pending\n", cfg.Tracker.Tag, done, pending)
		fmt.Println("\nAbout to run the agent in a loop until all tasks are done.")
		fmt.Print("\nContinue? [y/N] ")
		reply, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(reply)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	lock, err := filelock.ForProject(workdir)
	if err != nil {
		return err
	}
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another loop instance holds %s", lock.Path())
	}
	defer lock.Release()

	historyPath := cfg.History.Path
	if historyPath == "" {
		historyPath, err = history.DefaultPath()
		if err != nil {
			return err
		}
	}
	store, err := history.Open(historyPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	patterns := ratelimit.DefaultPatterns
	if len(cfg.RateLimit.Patterns) > 0 {
		patterns = append(append([]string{}, patterns...), cfg.RateLimit.Patterns...)
	}
	detector, err := ratelimit.NewDetector(patterns...)
	if err != nil {
		return err
	}

	var emitter *events.Emitter
	if jsonEvents, _ := cmd.Flags().GetBool("json-events"); jsonEvents {
		emitter = events.NewEmitter(os.Stdout)
	}

	maxIterations, _ := cmd.Flags().GetInt("max-iterations")
	startHour, _ := cmd.Flags().GetInt("start-hour")
	endHour, _ := cmd.Flags().GetInt("end-hour")
	if startHour < 0 {
		startHour = cfg.Loop.StartHour
	}
	if endHour < 0 {
		endHour = cfg.Loop.EndHour
	}
	waitForWindow, _ := cmd.Flags().GetBool("wait-for-time-band")

	sched := &scheduler.Scheduler{
		Registry: registry,
		Counter:  trackerClient,
		Runner:   runner,
		Prompts:  builder,
		Detector: detector,
		Emitter:  emitter,
		History:  store,
		Control:  ctl,
		RunID:    uuid.NewString(),
		Opts: scheduler.Options{
			MaxIterations: maxIterations,
			EnforceHours:  true,
			StartHour:     startHour,
			EndHour:       endHour,
			WaitForWindow: waitForWindow || cfg.Loop.WaitForWindow,
			MaxNoProgress: cfg.Loop.MaxNoProgress,
		},
	}

	stopSignals(ctl)

	res, err := sched.Run(cmd.Context())
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		os.Exit(res.ExitCode)
	}
	return nil
}

func agentArgs(cfg *config.Config) []string {
	if len(cfg.Agent.Args) > 0 {
		return cfg.Agent.Args
	}
	return nil
}

// stopSignals routes process signals into the control token: SIGINT and
// SIGTERM request a graceful stop (a second SIGINT force-quits with 130),
// SIGUSR1 pauses, SIGUSR2 resumes.
func stopSignals(ctl *scheduler.Control) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		interrupted := false
		for sig := range ch {
			switch sig {
			case syscall.SIGINT:
				if interrupted {
					fmt.Println("\n\n⏹ Force quit")
					os.Exit(130)
				}
				interrupted = true
				ctl.RequestStop()
				fmt.Println("\n\n⏹ Finishing current iteration... (Ctrl+C again to force quit)")
			case syscall.SIGTERM:
				ctl.RequestStop()
			case syscall.SIGUSR1:
				ctl.Pause()
			case syscall.SIGUSR2:
				ctl.Resume()
			}
		}
	}()
}
