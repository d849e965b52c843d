package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	dev        bool
	appVersion string // set in Execute, reported by the stat view console
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "druid",
		Short: "Bind spring.datasource.druid configuration to a monitored connection pool",
		Long: `druid binds the spring.datasource and spring.datasource.druid configuration
trees to a pooled data source, and serves its stat view console and web
request statistics over HTTP.

Configuration is read from druid.yaml (current directory or $HOME/.druid) and
from environment variables such as SPRING_DATASOURCE_DRUID_MAXACTIVE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./druid.yaml)")
	cmd.PersistentFlags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPingCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("druid")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.druid")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
