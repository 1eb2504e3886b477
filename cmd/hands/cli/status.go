package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if the Hands server is running",
		Long:  "Check the status of the Hands server, including process state, readiness and definitions loaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err := readPID(cfg)
	if err != nil {
		fmt.Println("Server is not running (no PID file found).")
		return nil
	}

	if !isProcessRunning(pid) {
		removePID(cfg)
		fmt.Println("Server is not running (stale PID file removed).")
		return nil
	}

	// Server process is alive, check readiness
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	readyAddr := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)) + "/readyz"
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		fmt.Printf("Server process is running (PID %d) but not responding to HTTP.\n", pid)
		return nil
	}
	defer resp.Body.Close()

	var ready struct {
		Status  string            `json:"status"`
		Checks  map[string]string `json:"checks"`
		Sources int               `json:"sources"`
	}
	json.NewDecoder(resp.Body).Decode(&ready)

	fmt.Printf("Server is running (PID %d)\n", pid)
	fmt.Printf("  Ready:       %s (%d)\n", readyAddr, resp.StatusCode)
	fmt.Printf("  Workbook:    %s\n", ready.Checks["workbook"])
	fmt.Printf("  Discovery:   %s\n", ready.Checks["discovery"])
	fmt.Printf("  Definitions: %d\n", ready.Sources)
	return nil
}
