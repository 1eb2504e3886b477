package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/handsdb/hands/internal/model"
	"github.com/handsdb/hands/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run-history"},
		Short:   "Inspect and prune the run history",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsStatsCmd())
	cmd.AddCommand(newRunsCleanupCmd())

	return cmd
}

// ---------- runs list ----------

func newRunsListCmd() *cobra.Command {
	var (
		actionID   string
		since      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recorded runs, newest first",
		Example: `  hands runs list
  hands runs list --action orders --since 24h
  hands runs list --since 2024-03-01T00:00:00Z --limit 200 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := model.RunQuery{ActionID: actionID, Limit: limit}
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				q.Since = t
			}

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.QueryActionRuns(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("query runs: %w", err)
			}
			return printRuns(cmd.OutOrStdout(), runs, wantJSON(jsonOutput))
		},
	}

	cmd.Flags().StringVar(&actionID, "action", "", "Only runs of this source or action")
	cmd.Flags().StringVar(&since, "since", "", "Only runs started after this time (RFC 3339, Unix ms, or a duration ago like 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum runs to list (max 1000)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// parseSince accepts RFC 3339, Unix milliseconds, or a duration before now.
func parseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use RFC 3339, Unix milliseconds or a duration like 24h", s)
}

func printRuns(w io.Writer, runs []model.ActionRun, jsonOutput bool) error {
	if jsonOutput {
		if runs == nil {
			runs = []model.ActionRun{}
		}
		return printJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-20s %-9s %-20s %-8s %s\n", "RUN ID", "ACTION", "TRIGGER", "STARTED", "STATUS", "DURATION")
	fmt.Fprintf(w, "%-36s %-20s %-9s %-20s %-8s %s\n", "------", "------", "-------", "-------", "------", "--------")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		fmt.Fprintf(w, "%-36s %-20s %-9s %-20s %-8s %dms\n",
			r.RunID, r.ActionID, r.Trigger, r.StartedAt.Local().Format("2006-01-02 15:04:05"), status, r.DurationMs)
	}
	return nil
}

// ---------- runs stats ----------

func newRunsStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <action-id>",
		Short: "Summarize the run history of one source or action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.GetActionRunStats(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run stats: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	return cmd
}

// ---------- runs cleanup ----------

func newRunsCleanupCmd() *cobra.Command {
	var (
		maxAge   time.Duration
		maxCount int
		actionID string
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old runs according to the retention policy",
		Long: `Delete runs older than --max-age, then all but the --max-count newest. Flags
that are not given fall back to the retention section of the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			policy := cfg.RetentionPolicy()
			if cmd.Flags().Changed("max-age") {
				policy.MaxAge = maxAge
			}
			if cmd.Flags().Changed("max-count") {
				policy.MaxCount = maxCount
			}
			policy.ActionID = actionID
			return runCleanup(cmd, st, policy)
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Delete runs older than this (0 keeps all ages)")
	cmd.Flags().IntVar(&maxCount, "max-count", 0, "Keep at most this many runs (0 keeps all)")
	cmd.Flags().StringVar(&actionID, "action", "", "Only prune runs of this source or action")

	return cmd
}

func runCleanup(cmd *cobra.Command, st *store.Store, policy model.Retention) error {
	if policy.MaxCount < 0 || policy.MaxAge < 0 {
		return fmt.Errorf("retention limits must not be negative")
	}
	deleted, err := st.CleanupOldRuns(cmd.Context(), policy)
	if err != nil {
		return fmt.Errorf("cleanup runs: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s) (max age %s, max count %d)\n", deleted, policy.MaxAge, policy.MaxCount)
	return nil
}
