package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/store"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample accessd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/accessd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  accessd init

  # Initialize with custom path
  accessd init --config /etc/accessd/config.yaml

  # Force overwrite existing config
  accessd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	// A random development secret; production deployments should replace
	// it or override via ACCESSD_API_TOKEN_SECRET.
	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate token secret: %w", err)
	}
	cfg.API.TokenSecret = secret

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: accessd serve")
	fmt.Printf("  3. Or specify custom config: accessd serve --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random token secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    export ACCESSD_API_TOKEN_SECRET=$(openssl rand -hex 32)")
	fmt.Printf("\n  The initial password of the %q account can be fixed with %s.\n",
		store.DefaultManagerUsername, store.EnvManagerInitialPassword)

	return nil
}

func generateSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
