package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/task"
)

type versionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Drivers   []string `json:"drivers"`
	Kinds     []string `json:"kinds"`
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the build version along with the workbook drivers and definition kinds this binary supports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version,
				Commit:    commit,
				Built:     date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				Drivers:   newConnectorRegistry().Drivers(),
				Kinds:     task.Builtins().Kinds(),
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, info)
			}
			fmt.Fprintf(w, "hands %s\n", info.Version)
			fmt.Fprintf(w, "  commit:   %s\n", info.Commit)
			fmt.Fprintf(w, "  built:    %s\n", info.Built)
			fmt.Fprintf(w, "  go:       %s (%s)\n", info.GoVersion, info.Platform)
			fmt.Fprintf(w, "  drivers:  %s\n", strings.Join(info.Drivers, ", "))
			fmt.Fprintf(w, "  kinds:    %s\n", strings.Join(info.Kinds, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
