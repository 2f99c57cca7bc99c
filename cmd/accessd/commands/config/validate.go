package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vigilo-nms/accessd/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the accessd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  accessd config validate

  # Validate specific config file
  accessd config validate --config /etc/accessd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if cfg.Auth.RemoteUserHeader == "" {
		warnings = append(warnings, "remote user header not configured - external single sign-on is disabled")
	}
	if !cfg.LDAP.Enabled {
		warnings = append(warnings, "directory sync is disabled - external accounts will not be provisioned")
	}
	if cfg.API.SecureCookies != nil && !*cfg.API.SecureCookies {
		warnings = append(warnings, "secure cookies disabled - only acceptable for plain-HTTP development")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  API address:     %s:%d\n", cfg.API.Host, cfg.API.Port)
	fmt.Printf("  Admin groups:    %s\n", cfg.Auth.AdminGroups)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
