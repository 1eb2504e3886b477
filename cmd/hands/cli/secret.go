package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/handsdb/hands/internal/store"
)

var secretNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "secret",
		Aliases: []string{"secrets"},
		Short:   "Manage secrets available to definitions",
		Long: `Store, list, and remove the named secrets that definitions declare. Stored
secrets live in the workbook's state database. A HANDS_SECRET_<NAME>
environment variable takes precedence over a stored value.`,
	}

	cmd.AddCommand(newSecretSetCmd())
	cmd.AddCommand(newSecretListCmd())
	cmd.AddCommand(newSecretRmCmd())

	return cmd
}

// ---------- secret set ----------

func newSecretSetCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret",
		Long:  "Store or replace a secret. Without --value the value is prompted for (hidden) or read from stdin.",
		Example: `  hands secret set GITHUB_TOKEN
  echo "$TOKEN" | hands secret set GITHUB_TOKEN`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !secretNameRegex.MatchString(name) {
				return fmt.Errorf("invalid secret name %q: use letters, digits and underscores", name)
			}

			if !cmd.Flags().Changed("value") {
				v, err := readSecretValue(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				value = v
			}
			if value == "" {
				return errors.New("secret value must not be empty")
			}

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetSecret(cmd.Context(), name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Secret value (visible in shell history; prefer the prompt)")

	return cmd
}

// readSecretValue prompts without echo on a terminal, or reads one line
// from piped stdin.
func readSecretValue(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, "Value: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ---------- secret list ----------

func newSecretListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored secret names",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			names, err := st.ListSecretNames(cmd.Context())
			if err != nil {
				return err
			}

			type secretRow struct {
				Name        string `json:"name"`
				EnvOverride bool   `json:"env_override"`
			}
			rows := make([]secretRow, len(names))
			for i, n := range names {
				rows[i] = secretRow{Name: n, EnvOverride: os.Getenv(secretEnvPrefix+n) != ""}
			}

			w := cmd.OutOrStdout()
			if wantJSON(jsonOutput) {
				return printJSON(w, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(w, "No secrets stored. Use 'hands secret set' to add one.")
				return nil
			}
			for _, r := range rows {
				if r.EnvOverride {
					fmt.Fprintf(w, "%s (overridden by %s%s)\n", r.Name, secretEnvPrefix, r.Name)
				} else {
					fmt.Fprintln(w, r.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- secret rm ----------

func newSecretRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a stored secret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteSecret(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no secret named %q", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed secret %s\n", args[0])
			return nil
		},
	}
}
