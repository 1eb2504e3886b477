package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running Hands server",
		Long: `Stop a Hands server started with 'hands serve'. The server stops scheduling,
finishes in-flight syncs and records them before exiting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 35*time.Second, "How long to wait for the server to exit")

	return cmd
}

func runStop(wait time.Duration) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err := readPID(cfg)
	if err != nil {
		return fmt.Errorf("no running server found (missing PID file at %s)", pidFilePath(cfg))
	}

	if !isProcessRunning(pid) {
		removePID(cfg)
		return fmt.Errorf("server (PID %d) is not running (stale PID file removed)", pid)
	}

	fmt.Printf("Stopping Hands server (PID %d)...\n", pid)

	if err := stopProcess(pid); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		if !isProcessRunning(pid) {
			fmt.Println("Server stopped.")
			return nil
		}
	}

	return fmt.Errorf("server (PID %d) did not stop within %s; syncs may still be finishing", pid, wait)
}
