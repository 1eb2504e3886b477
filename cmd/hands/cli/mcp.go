package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	hmcp "github.com/handsdb/hands/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that lets AI agents list the
workbook's sources, run them, and read the schema and run history. Supports stdio
(default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for clients that launch hands as a subprocess.

In HTTP mode, the server listens on the specified port using Streamable HTTP.
'hands serve' also mounts the same server at /mcp behind API authentication.`,
		Example: `  hands mcp                                 # stdio mode
  hands mcp --transport http --port 3001    # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			wb, err := openWorkbook(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer wb.Close()

			mcpSrv := hmcp.NewMCPServer(wb.registry, wb.exec, wb.conn, wb.store, versionString(), logger)

			switch transport {
			case "stdio":
				err = mcpSrv.ServeStdio()
			case "http":
				err = mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
			default:
				return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
			}

			// Let syncs started by the agent finish recording.
			if waitErr := wb.exec.Wait(cmd.Context()); waitErr != nil {
				logger.Warn("in-flight syncs did not finish", "running", wb.exec.Running())
			}
			return err
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}
