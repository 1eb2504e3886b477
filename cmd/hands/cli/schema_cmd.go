package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/model"
)

func newSchemaCmd() *cobra.Command {
	var (
		raw        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "schema [table]",
		Short: "Describe the workbook database",
		Long: `Print the tables and columns of the workbook database with normalized types.
With --raw, print the introspection rows as the database reports them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkbook(cmd.Context(), func(wb *workbook) error {
				w := cmd.OutOrStdout()
				if raw {
					rows, err := wb.conn.ColumnRows(cmd.Context())
					if err != nil {
						return fmt.Errorf("introspect columns: %w", err)
					}
					return printJSON(w, rows)
				}

				db, err := wb.conn.IntrospectSchema(cmd.Context())
				if err != nil {
					return fmt.Errorf("introspect schema: %w", err)
				}
				tables := db.Tables
				if len(args) == 1 {
					t, ok := db.Table(args[0])
					if !ok {
						return fmt.Errorf("table %q not found", args[0])
					}
					tables = []model.Table{t}
				}
				if wantJSON(jsonOutput) {
					if len(args) == 1 {
						return printJSON(w, tables[0])
					}
					return printJSON(w, db)
				}
				printTables(w, tables)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw introspection rows")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printTables(w io.Writer, tables []model.Table) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "The workbook database has no tables.")
		return
	}
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", t.Name)
		for _, c := range t.Columns {
			flags := ""
			if c.IsPrimaryKey {
				flags += " pk"
			}
			if !c.Nullable {
				flags += " not null"
			}
			fmt.Fprintf(w, "  %-28s %-10s %-20s%s\n", c.Name, c.Type, c.DBType, flags)
		}
	}
}
