package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/handsdb/hands/internal/config"
)

var (
	cfgFile    string
	devMode    bool
	appVersion string // set in Execute, reported by serve, mcp and the OpenAPI document
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hands",
		Short: "Sync external data into your workbook database",
		Long: `Hands: keep a workbook database fed with data from the outside world.

Hands discovers source and action definitions in the workbook directory, runs them
on a cron schedule or on demand, provisions the tables they declare, and records
every run. Runs can be triggered over HTTP, from the command line, or by AI agents
through the built-in MCP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hands.yaml)")
	cmd.PersistentFlags().StringP("workbook", "w", "", "workbook directory (default: current directory)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Development mode (debug logging)")
	viper.BindPFlag("workbook.dir", cmd.PersistentFlags().Lookup("workbook"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newSecretCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hands")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.hands")
	}

	viper.SetEnvPrefix("HANDS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())
	viper.ReadInConfig() // Ignore error - config file is optional
}
