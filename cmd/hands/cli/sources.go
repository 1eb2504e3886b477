package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/schema"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source", "src"},
		Short:   "Inspect and run workbook sources and actions",
		Long:    "List discovered definitions, check them against the workbook database, print their DDL, or run one now.",
	}

	cmd.AddCommand(newSourcesListCmd())
	cmd.AddCommand(newSourcesValidateCmd())
	cmd.AddCommand(newSourcesSyncCmd())
	cmd.AddCommand(newSourcesDDLCmd())

	return cmd
}

// withWorkbook loads the config, opens the workbook and hands it to fn.
func withWorkbook(ctx context.Context, fn func(wb *workbook) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	wb, err := openWorkbook(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer wb.Close()
	return fn(wb)
}

// ---------- sources list ----------

func newSourcesListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List discovered sources and actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbook(cmd.Context(), func(wb *workbook) error {
				return runSourcesList(cmd.OutOrStdout(), wb, wantJSON(jsonOutput))
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSourcesList(w io.Writer, wb *workbook, jsonOutput bool) error {
	type sourceRow struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Kind      string `json:"kind"`
		Schedule  string `json:"schedule,omitempty"`
		Name      string `json:"name,omitempty"`
		HasSchema bool   `json:"has_schema"`
	}

	list := wb.registry.List()
	rows := make([]sourceRow, len(list))
	for i, src := range list {
		rows[i] = sourceRow{
			ID:        src.ID,
			Type:      string(src.Type),
			Kind:      src.Definition.Kind,
			Schedule:  src.Definition.Schedule,
			Name:      src.Definition.Name,
			HasSchema: src.HasSchema(),
		}
	}

	if jsonOutput {
		return printJSON(w, map[string]interface{}{
			"sources": rows,
			"errors":  wb.registry.Errors(),
		})
	}

	if len(rows) == 0 {
		fmt.Fprintf(w, "No definitions found under %s or %s.\n", wb.cfg.Workbook.SourcesDir, wb.cfg.Workbook.ActionsDir)
	} else {
		fmt.Fprintf(w, "%-24s %-8s %-12s %-16s %s\n", "ID", "TYPE", "KIND", "SCHEDULE", "NAME")
		fmt.Fprintf(w, "%-24s %-8s %-12s %-16s %s\n", "--", "----", "----", "--------", "----")
		for _, r := range rows {
			sched := r.Schedule
			if sched == "" {
				sched = "-"
			}
			fmt.Fprintf(w, "%-24s %-8s %-12s %-16s %s\n", r.ID, r.Type, r.Kind, sched, r.Name)
		}
	}

	if errs := wb.registry.Errors(); len(errs) > 0 {
		fmt.Fprintf(w, "\n%d definition(s) failed to load:\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(w, "  %s: %s\n", e.File, e.Error)
		}
	}
	return nil
}

// ---------- sources validate ----------

func newSourcesValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Check a definition's declared tables against the workbook database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbook(cmd.Context(), func(wb *workbook) error {
				return runSourcesValidate(cmd.Context(), cmd.OutOrStdout(), wb, args[0])
			})
		},
	}
	return cmd
}

func runSourcesValidate(ctx context.Context, w io.Writer, wb *workbook, id string) error {
	src, err := wb.lookup(id)
	if err != nil {
		return err
	}
	db, err := wb.conn.IntrospectSchema(ctx)
	if err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}
	result := schema.ValidateSchema(src.Definition.Schema, *db)
	if err := printJSON(w, result); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%s: schema does not match the workbook database", id)
	}
	return nil
}

// ---------- sources sync ----------

func newSourcesSyncCmd() *cobra.Command {
	var (
		inputJSON string
		inputFile string
	)

	cmd := &cobra.Command{
		Use:     "sync <id>",
		Aliases: []string{"run"},
		Short:   "Run a source or action now",
		Long: `Run a source or action once and print its result. The run is recorded in the
run history with trigger "cli". Exits non-zero when the run fails.`,
		Example: `  hands sources sync hacker-news
  hands sources sync orders --input '{"days": 7}'
  hands sources sync orders --input-file input.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(inputJSON, inputFile)
			if err != nil {
				return err
			}
			return withWorkbook(cmd.Context(), func(wb *workbook) error {
				return runSourcesSync(cmd.Context(), cmd.OutOrStdout(), wb, args[0], input)
			})
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "", "Run input as a JSON object")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Read run input from a JSON file (- for stdin)")

	return cmd
}

func parseInput(inline, file string) (map[string]interface{}, error) {
	var data []byte
	switch {
	case inline != "" && file != "":
		return nil, errors.New("use either --input or --input-file, not both")
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		data = b
	default:
		return nil, nil
	}

	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	return input, nil
}

func runSourcesSync(ctx context.Context, w io.Writer, wb *workbook, id string, input map[string]interface{}) error {
	src, err := wb.lookup(id)
	if err != nil {
		return err
	}
	run, err := wb.exec.Run(ctx, src, model.TriggerCLI, input)
	if err != nil {
		return fmt.Errorf("sync %s: %w", id, err)
	}
	if err := printJSON(w, run); err != nil {
		return err
	}
	if !run.Success {
		return fmt.Errorf("sync %s failed: %s", id, run.Error)
	}
	return nil
}

// ---------- sources ddl ----------

func newSourcesDDLCmd() *cobra.Command {
	var missing bool

	cmd := &cobra.Command{
		Use:   "ddl <id>",
		Short: "Print CREATE TABLE statements for a definition's declared tables",
		Long: `Print the DDL for the tables a definition declares, in the workbook database's
dialect. With --missing, print only what provisioning would run against the
current database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbook(cmd.Context(), func(wb *workbook) error {
				return runSourcesDDL(cmd.Context(), cmd.OutOrStdout(), wb, args[0], missing)
			})
		},
	}

	cmd.Flags().BoolVar(&missing, "missing", false, "Only statements for tables and columns the database lacks")

	return cmd
}

func runSourcesDDL(ctx context.Context, w io.Writer, wb *workbook, id string, missing bool) error {
	src, err := wb.lookup(id)
	if err != nil {
		return err
	}

	var stmts []string
	if missing {
		db, err := wb.conn.IntrospectSchema(ctx)
		if err != nil {
			return fmt.Errorf("introspect schema: %w", err)
		}
		stmts, err = schema.PlanProvision(wb.conn, src.Definition.Schema, *db)
		if err != nil {
			return err
		}
	} else {
		stmts, err = schema.GenerateCreateTables(wb.conn, src.Definition.Schema.Tables)
		if err != nil {
			return err
		}
	}

	if len(stmts) == 0 {
		fmt.Fprintf(os.Stderr, "-- nothing to do for %s\n", id)
		return nil
	}
	for _, s := range stmts {
		fmt.Fprintln(w, strings.TrimRight(s, ";")+";")
	}
	return nil
}
