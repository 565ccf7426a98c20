package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autoloop/internal/config"
	"autoloop/internal/history"
	"autoloop/internal/supervisor"
	"autoloop/internal/tracker"
	"autoloop/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web control surface",
	Long: `Serve the HTTP control surface. The server supervises the loop as a child
process: start, stop, pause and resume it over the API, watch its output over
the event stream, and browse iteration history.`,
	RunE: serveWeb,
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (default from config)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config)")
}

func serveWeb(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	workdir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}

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

	manager := supervisor.NewManager(log)
	manager.Dir = workdir
	manager.History = store
	// Supervise this same binary as the child loop process.
	if exe, err := os.Executable(); err == nil {
		manager.Command = exe
	}

	counter := tracker.NewClient(
		&tracker.ExecRunner{Command: cfg.Tracker.Command, Dir: workdir},
		cfg.Tracker.Tag,
	)

	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	if host == "" {
		host = cfg.Web.Host
	}
	if port == 0 {
		port = cfg.Web.Port
	}

	srv := web.NewServer(manager, store, counter, log)
	return srv.ListenAndServe(fmt.Sprintf("%s:%d", host, port))
}
