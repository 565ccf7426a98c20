// Package agent launches the coding-agent subprocess, streams its structured
// output, and extracts the final result text.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// LineKind classifies a decoded unit of agent output.
type LineKind string

const (
	LineText       LineKind = "text"
	LineThinking   LineKind = "thinking"
	LineToolUse    LineKind = "tool_use"
	LineToolResult LineKind = "tool_result"
	LineResult     LineKind = "result"
)

// Line is one decoded unit of agent output, delivered to the per-line
// callback for live display or broadcast.
type Line struct {
	Kind LineKind
	Text string
}

// Result is the outcome of one agent invocation.
type Result struct {
	ExitCode   int
	ResultText string
	Stderr     string
}

// Runner abstracts the agent subprocess for the scheduler.
type Runner interface {
	Run(ctx context.Context, instruction string, onLine func(Line)) (*Result, error)
}

// DefaultCommand is the agent CLI binary.
const DefaultCommand = "claude"

// DefaultArgs put the agent in non-interactive mode with newline-delimited
// JSON event output.
var DefaultArgs = []string{
	"-p",
	"--dangerously-skip-permissions",
	"--output-format", "stream-json",
	"--include-partial-messages",
	"--verbose",
}

// CLIRunner runs the agent CLI as a subprocess. The instruction is written to
// stdin and stdin is closed; stdout is decoded incrementally so partial
// content streams as it is produced.
type CLIRunner struct {
	Command string   // empty = DefaultCommand
	Args    []string // nil = DefaultArgs
	Dir     string   // working directory, empty = inherit

	// Out receives the live transcript; nil = os.Stdout. Prefix, if set,
	// is evaluated at print time for each prefixed line.
	Out    io.Writer
	Prefix func() string
}

func (r *CLIRunner) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func (r *CLIRunner) prefix() string {
	if r.Prefix != nil {
		return r.Prefix()
	}
	return ""
}

// Run invokes the agent with the given instruction. The subprocess runs in
// its own process group so an interrupt aimed at the loop does not reach an
// in-flight invocation.
func (r *CLIRunner) Run(ctx context.Context, instruction string, onLine func(Line)) (*Result, error) {
	command := r.Command
	if command == "" {
		command = DefaultCommand
	}
	args := r.Args
	if args == nil {
		args = DefaultArgs
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	// Deliver the full instruction once, then close so the agent sees EOF.
	if _, err := io.WriteString(stdin, instruction); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return nil, fmt.Errorf("write instruction: %w", err)
	}
	stdin.Close()

	var lastResult string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		r.handleLine(line, onLine, &lastResult)
	}
	fmt.Fprintln(r.out())

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("wait for agent: %w", err)
		}
	}

	return &Result{
		ExitCode:   exitCode,
		ResultText: lastResult,
		Stderr:     stderr.String(),
	}, nil
}

// agentEvent is the wire shape of one stdout line from the agent CLI. A
// top-level type field discriminates; unknown types are ignored.
type agentEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Name    string `json:"name"`
	Result  string `json:"result"`

	Event *struct {
		Type  string `json:"type"`
		Delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Thinking    string `json:"thinking"`
			PartialJSON string `json:"partial_json"`
		} `json:"delta"`
		ContentBlock struct {
			Type  string         `json:"type"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		} `json:"content_block"`
	} `json:"event"`

	Message *struct {
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
	} `json:"message"`
}

// handleLine decodes one stdout line. Lines that are not well-formed events
// are non-fatal noise and are skipped.
func (r *CLIRunner) handleLine(line string, onLine func(Line), lastResult *string) {
	var ev agentEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return
	}

	emit := func(kind LineKind, text string) {
		if onLine != nil && text != "" {
			onLine(Line{Kind: kind, Text: text})
		}
	}

	switch ev.Type {
	case "stream_event":
		if ev.Event == nil {
			return
		}
		switch ev.Event.Type {
		case "content_block_delta":
			switch ev.Event.Delta.Type {
			case "text_delta":
				fmt.Fprint(r.out(), ev.Event.Delta.Text)
				emit(LineText, ev.Event.Delta.Text)
			case "thinking_delta":
				fmt.Fprintf(r.out(), "\U0001f4ad %s", ev.Event.Delta.Thinking)
				emit(LineThinking, ev.Event.Delta.Thinking)
			case "input_json_delta":
				fmt.Fprint(r.out(), ev.Event.Delta.PartialJSON)
			}
		case "content_block_start":
			block := ev.Event.ContentBlock
			if block.Type != "tool_use" {
				return
			}
			display := block.Name
			if len(block.Input) > 0 {
				input, err := json.Marshal(block.Input)
				if err == nil {
					display = fmt.Sprintf("%s: %s", block.Name, truncate(string(input), 200))
				}
			}
			fmt.Fprintf(r.out(), "\n%s\U0001f527 %s\n", r.prefix(), display)
			emit(LineToolUse, display)
		}

	case "assistant":
		switch ev.Subtype {
		case "tool_use":
			name := ev.Name
			if name == "" {
				name = "unknown"
			}
			fmt.Fprintf(r.out(), "\n%s\U0001f527 Tool: %s\n", r.prefix(), name)
			emit(LineToolUse, name)
		case "tool_result":
			fmt.Fprintf(r.out(), "\n%s✓ Tool done\n", r.prefix())
			emit(LineToolResult, "Tool done")
		}

	case "user":
		if ev.Message == nil {
			return
		}
		for _, item := range ev.Message.Content {
			if item.Type == "tool_result" {
				fmt.Fprintf(r.out(), "\n%s✓ Tool done\n", r.prefix())
				emit(LineToolResult, "Tool done")
				break
			}
		}

	case "result":
		if ev.Result == "" {
			return
		}
		*lastResult = ev.Result
		fmt.Fprintf(r.out(), "\n%s\U0001f4cb Result: %s\n", r.prefix(), truncate(ev.Result, 300))
		emit(LineResult, ev.Result)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
