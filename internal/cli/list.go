package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autoloop/internal/config"
	"autoloop/internal/tracker"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked tasks grouped by status",
	RunE:  listTasks,
}

var statusOrder = []string{"in-progress", "todo", "draft", "completed", "scrapped"}

var statusHeaders = map[string]string{
	"in-progress": "🔨 In Progress",
	"todo":        "📋 Todo",
	"draft":       "📝 Draft",
	"completed":   "✅ Completed",
	"scrapped":    "🗑  Scrapped",
}

var priorityIcons = map[string]string{
	"critical": "🔴",
	"high":     "🟠",
	"normal":   "🟢",
	"low":      "🔵",
	"deferred": "⚪",
}

func listTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

	client := tracker.NewClient(
		&tracker.ExecRunner{Command: cfg.Tracker.Command, Dir: workdir},
		cfg.Tracker.Tag,
	)
	tasks := client.Query()
	if len(tasks) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No tasks found under the %q tag.\n", cfg.Tracker.Tag)
		return nil
	}

	byStatus := make(map[string][]tracker.Task)
	for _, task := range tasks {
		byStatus[task.Status] = append(byStatus[task.Status], task)
	}

	out := cmd.OutOrStdout()
	header := color.New(color.Bold)
	dim := color.New(color.Faint)
	for _, status := range statusOrder {
		group := byStatus[status]
		if len(group) == 0 {
			continue
		}
		header.Fprintf(out, "\n%s (%d)\n", statusHeaders[status], len(group))
		for _, task := range group {
			icon := priorityIcons[task.Priority]
			if icon == "" {
				icon = "⚫"
			}
			fmt.Fprintf(out, "  %s %s ", icon, task.Title)
			dim.Fprintf(out, "[%s]\n", task.ID)
		}
	}

	done := len(byStatus["completed"]) + len(byStatus["scrapped"])
	total := 0
	for _, status := range statusOrder {
		total += len(byStatus[status])
	}
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}
	fmt.Fprintf(out, "\nTotal: %d/%d tasks completed (%d%%)\n", done, total, percent)
	return nil
}
