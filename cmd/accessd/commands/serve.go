package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/api"
	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the accessd API server",
	Long: `Start the accessd API server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/accessd/config.yaml.

Examples:
  # Start with default config location
  accessd serve

  # Start with custom config file
  accessd serve --config /etc/accessd/config.yaml

  # Start with environment variable overrides
  ACCESSD_LOGGING_LEVEL=DEBUG accessd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	// Bootstrap the manager account on first run. The generated password
	// is printed once and never again.
	managerPassword, err := st.EnsureManagerUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to ensure manager user: %w", err)
	}
	if managerPassword != "" {
		logger.Info("manager user created", "username", store.DefaultManagerUsername)
		fmt.Printf("\n*** IMPORTANT: Manager user created with password: %s ***\n", managerPassword)
		fmt.Println("Please save this password. It will not be shown again.")
		fmt.Println()
	}
	if err := st.EnsureAdminGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure admin group: %w", err)
	}
	if err := st.EnsureDefaultPermissions(ctx); err != nil {
		return fmt.Errorf("failed to ensure default permissions: %w", err)
	}

	if cfg.LDAP.Enabled {
		logger.Info("directory sync enabled", "servers", cfg.LDAP.Servers())
	} else {
		logger.Info("directory sync disabled")
	}

	srv, err := api.NewServer(cfg, st)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Reload the admin-group set when the config file is edited in place.
	if source := getConfigSource(GetConfigFile()); source != "defaults" {
		err := config.Watch(source, func(next *config.Config) {
			srv.ReloadAuth(next)
		}, func(err error) {
			logger.Error("configuration reload failed", "error", err)
		})
		if err != nil {
			logger.Warn("configuration watching disabled", "error", err)
		}
	}

	logger.Info("server is running", "addr", srv.Addr())

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				reloadConfig(srv)
				continue
			}
			signal.Stop(sigChan)
			logger.Info("shutdown signal received, initiating graceful shutdown")
			cancel()

			if err := <-serverDone; err != nil {
				logger.Error("server shutdown error", "error", err)
				return err
			}
			logger.Info("server stopped gracefully")
			return nil

		case err := <-serverDone:
			signal.Stop(sigChan)
			if err != nil {
				logger.Error("server error", "error", err)
				return err
			}
			logger.Info("server stopped")
			return nil
		}
	}
}

// reloadConfig re-reads the configuration on SIGHUP and applies the
// runtime-swappable parts: log settings and the admin-group set.
func reloadConfig(srv *api.Server) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		logger.Error("SIGHUP reload failed", "error", err)
		return
	}
	if err := InitLogger(cfg); err != nil {
		logger.Error("SIGHUP logger reconfiguration failed", "error", err)
	}
	srv.ReloadAuth(cfg)
	logger.Info("configuration reloaded", "signal", "SIGHUP")
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
