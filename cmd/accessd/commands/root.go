// Package commands implements the CLI commands for accessd management.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/vigilo-nms/accessd/cmd/accessd/commands/config"
	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "accessd",
	Short: "Vigilo access control service",
	Long: `accessd is the access-control service of the Vigilo monitoring
platform. It resolves request identities (local credentials or an
upstream single sign-on), synchronizes external users from an LDAP
directory, and guards the monitored-entity API behind group-based ACLs.

Use "accessd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/accessd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configcmd.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger configures the process logger from the loaded configuration.
func InitLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}
