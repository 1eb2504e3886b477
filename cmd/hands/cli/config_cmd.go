package cli

import (
	"fmt"
	"io"
	"net/url"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/handsdb/hands/internal/config"
	"github.com/handsdb/hands/internal/connector"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Hands configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default hands.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Created %s\n", path)
			fmt.Fprintln(w, "Point database.dsn at your workbook database, then run 'hands serve'.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "hands.yaml", "Path of the file to create")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		Long:  "Print the configuration after merging defaults, the config file and HANDS_* environment variables. Secrets are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), cfg)
		},
	}
}

func showConfig(w io.Writer, file string, cfg *config.Config) error {
	if file != "" {
		fmt.Fprintf(w, "# Config file: %s\n", file)
	} else {
		fmt.Fprintln(w, "# Config file: (none found, using defaults and environment)")
	}

	masked := *cfg
	if masked.Auth.JWTSecret != "" {
		masked.Auth.JWTSecret = "********"
	}
	masked.Database.DSN = maskDSN(masked.Database.Driver, masked.Database.DSN)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(&masked)
}

var kvPasswordRegex = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)

// maskDSN hides the password of a Postgres DSN in URL or key=value form.
func maskDSN(driver, dsn string) string {
	if driver != "postgres" || dsn == "" {
		return dsn
	}
	if u, err := url.Parse(connector.SanitizeDSN(driver, dsn)); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	return kvPasswordRegex.ReplaceAllString(dsn, "${1}xxxxx")
}
