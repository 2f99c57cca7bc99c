package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vigilo-nms/accessd/internal/cli/output"
	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

var userListOutput string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local user accounts",
	Long: `Manage local accessd accounts directly against the store.

These commands operate offline, without going through the API. They are
meant for provisioning and recovery; day-to-day administration should
use the REST API.`,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE:  runUserList,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a local user account",
	Long: `Create a local user account with a password.

The password is read from the terminal, or from stdin when piped.
External (directory-managed) accounts are created automatically on
first request and should not be added by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: runUserAdd,
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset a local user's password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPasswd,
}

func init() {
	userListCmd.Flags().StringVarP(&userListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userPasswdCmd)
	rootCmd.AddCommand(userCmd)
}

func openStore() (*store.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	format, err := output.ParseFormat(userListOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, users)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, users)
	default:
		rows := make([][]string, 0, len(users))
		for _, u := range users {
			source := "local"
			if u.External {
				source = "directory"
			}
			groups := make([]string, 0, len(u.Groups))
			for _, g := range u.Groups {
				groups = append(groups, g.Name)
			}
			sort.Strings(groups)
			rows = append(rows, []string{
				u.Username,
				source,
				strconv.FormatBool(u.Enabled),
				strings.Join(groups, ", "),
			})
		}
		return output.PrintTable(os.Stdout, []string{"Username", "Source", "Enabled", "Groups"}, rows)
	}
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	st, err := openStore()
	if err != nil {
		return err
	}

	password, err := promptPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := store.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
	}
	if _, err := st.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User %q created.\n", username)
	return nil
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	st, err := openStore()
	if err != nil {
		return err
	}

	user, err := st.GetUser(context.Background(), username)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.External {
		return fmt.Errorf("user %q is directory-managed and has no local password", username)
	}

	password, err := promptPassword(fmt.Sprintf("New password for %s: ", username))
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := store.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := st.UpdatePassword(context.Background(), username, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Printf("Password updated for %q.\n", username)
	return nil
}

// promptPassword prompts for a password without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(password), nil
	}

	// Piped input.
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(password), nil
}
