package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/openapi"
	"github.com/handsdb/hands/internal/scheduler"
	"github.com/handsdb/hands/internal/source"
	"github.com/handsdb/hands/internal/task"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 specification of the Hands API for this workbook. Every
definition with an input schema gets its own sync operation. The server serves
the same document at /openapi.json.`,
		Example: `  hands openapi                          # print to stdout
  hands openapi -o openapi.json           # write to file
  hands openapi --base-url https://hands.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = "http://" + cfg.Addr()
			}

			// Discovery alone: the document does not need the workbook database.
			registry := source.NewRegistry(source.FileLoader{}, task.Builtins(), []source.Root{
				{Dir: cfg.Workbook.SourcesDir, Type: source.TypeSource},
				{Dir: cfg.Workbook.ActionsDir, Type: source.TypeAction},
			}, source.WithScheduleCheck(scheduler.Validate), source.WithLogger(logger))
			registry.Load(cmd.Context())

			doc := openapi.Generate(baseURL, registry.List())
			doc.Info.Version = versionString()

			if outputFile == "" {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("create %s: %w", outputFile, err)
			}
			defer f.Close()
			if err := printJSON(f, doc); err != nil {
				return fmt.Errorf("write %s: %w", outputFile, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL in the document (default http://<server.host>:<server.port>)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}
