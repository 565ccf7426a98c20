// Package tracker queries the external task tracker CLI and reduces its
// records to done/pending counts for the loop.
package tracker

import (
	"encoding/json"
	"fmt"
	"os/exec"
)

// DefaultTag filters tracker queries to tasks managed by the loop.
const DefaultTag = "autoloop"

// Task is one record returned by the tracker query. Unknown status values are
// passed through unmodified; classification happens in Count.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

// CommandRunner abstracts the tracker CLI invocation for testability.
type CommandRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner shells out to the tracker binary.
type ExecRunner struct {
	Command string // tracker binary, default "beans"
	Dir     string // working directory, empty = inherit
}

func (e *ExecRunner) Run(args ...string) (string, error) {
	bin := e.Command
	if bin == "" {
		bin = "beans"
	}
	cmd := exec.Command(bin, args...)
	cmd.Dir = e.Dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run %s: %w", bin, err)
	}
	return string(out), nil
}

// Client queries tasks carrying the configured tag.
type Client struct {
	cmd CommandRunner
	tag string
}

// NewClient creates a Client. An empty tag means DefaultTag.
func NewClient(cmd CommandRunner, tag string) *Client {
	if tag == "" {
		tag = DefaultTag
	}
	return &Client{cmd: cmd, tag: tag}
}

// Query returns all tagged tasks. An unreachable tracker or malformed payload
// degrades to an empty list; the loop treats it as no visible work, never as
// a fatal condition.
func (c *Client) Query() []Task {
	query := fmt.Sprintf(
		`{ beans(filter: { tags: [%q] }) { id title status type priority } }`,
		c.tag,
	)
	out, err := c.cmd.Run("query", "--json", query)
	if err != nil {
		return nil
	}

	var payload struct {
		Beans []Task `json:"beans"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil
	}
	return payload.Beans
}

// Count reduces the tagged tasks to (done, pending). Completed and scrapped
// tasks count as done; todo, in-progress and draft count as pending; any
// other status is excluded from both.
func (c *Client) Count() (done, pending int) {
	for _, task := range c.Query() {
		switch task.Status {
		case "completed", "scrapped":
			done++
		case "todo", "in-progress", "draft":
			pending++
		}
	}
	return done, pending
}
