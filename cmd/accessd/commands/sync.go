package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/ldapsync"
	"github.com/vigilo-nms/accessd/pkg/store"
)

var syncCCache string

var syncCmd = &cobra.Command{
	Use:   "sync <login>",
	Short: "Synchronize one user from the LDAP directory",
	Long: `Fetch a user's entry from the LDAP directory and reconcile the local
account and its monitoring-group memberships to match it.

This is the same operation the server performs when an externally
authenticated user makes a request. Running it by hand is useful to
verify the directory configuration or to pre-provision an account.

Examples:
  # Sync one user
  accessd sync jdoe

  # Sync using a delegated Kerberos credential cache
  accessd sync jdoe --ccache /tmp/krb5cc_1000`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncCCache, "ccache", "", "Kerberos credential cache for the directory bind")
}

func runSync(cmd *cobra.Command, args []string) error {
	login := args[0]

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}
	if !cfg.LDAP.Enabled {
		return fmt.Errorf("directory sync is disabled in the configuration")
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	engine := ldapsync.New(cfg.LDAP, st)
	if err := engine.SyncUser(context.Background(), login, syncCCache); err != nil {
		return fmt.Errorf("sync failed for %q: %w", login, err)
	}

	fmt.Printf("User %q synchronized from the directory.\n", login)
	return nil
}
