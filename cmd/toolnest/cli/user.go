package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/toolnest/toolnest/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long:  "Create, list, activate and deactivate the accounts that log in and own API keys.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserSetActiveCmd("activate", true))
	cmd.AddCommand(newUserSetActiveCmd("deactivate", false))

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var in service.RegisterInput

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user account",
		Example: `  toolnest user create --username alice --email alice@example.com --password s3cretpass
  toolnest user create --username alice --email alice@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				pw, err := promptPassword()
				if err != nil {
					return err
				}
				in.Password = pw
			}
			return runUserCreate(cmd.Context(), cmd.OutOrStdout(), in)
		},
	}

	cmd.Flags().StringVar(&in.Username, "username", "", "Username (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password (prompted if omitted)")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

func runUserCreate(ctx context.Context, out io.Writer, in service.RegisterInput) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	users := service.NewUserService(store, nil, 0)
	user, err := users.Register(ctx, in)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(out, "Created user %q (id %d)\n", user.Username, user.ID)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(ctx context.Context, out io.Writer, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users. Use 'toolnest user create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-24s %-32s %-8s %s\n", "ID", "USERNAME", "EMAIL", "ACTIVE", "CREATED")
	fmt.Fprintf(out, "%-6s %-24s %-32s %-8s %s\n", "--", "--------", "-----", "------", "-------")
	for _, u := range users {
		fmt.Fprintf(out, "%-6d %-24s %-32s %-8s %s\n",
			u.ID, u.Username, u.Email, yesNo(u.IsActive), u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// ---------- user activate / deactivate ----------

func newUserSetActiveCmd(use string, active bool) *cobra.Command {
	short := "Allow a user to log in again"
	if !active {
		short = "Block a user from logging in and from using their API keys"
	}
	return &cobra.Command{
		Use:   use + " <username|email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(cmd.Context(), cmd.OutOrStdout(), args[0], active)
		},
	}
}

func runUserSetActive(ctx context.Context, out io.Writer, login string, active bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	user, err := lookupUser(ctx, store, login)
	if err != nil {
		return err
	}
	if err := store.SetUserActive(ctx, user.ID, active); err != nil {
		return err
	}

	state := "activated"
	if !active {
		state = "deactivated"
	}
	fmt.Fprintf(out, "User %q %s\n", user.Username, state)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
