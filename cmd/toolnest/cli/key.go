package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, revoke and inspect the usage of API keys on behalf of a user.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyUsageCmd())

	return cmd
}

// keyCommand opens the store and a key manager and resolves the owning user
// before running fn.
func keyCommand(ctx context.Context, login string, fn func(keys *service.KeyManager, owner *model.User) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.Logging, false)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	owner, err := lookupUser(ctx, store, login)
	if err != nil {
		return err
	}

	keys, done := newKeyManager(cfg, store, logger)
	defer done()
	return fn(keys, owner)
}

func parseKeyID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid key id %q", s)
	}
	return id, nil
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		login string
		name  string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key owned by a user. The raw key is shown once and cannot be retrieved again.",
		Example: `  toolnest key create --user alice --name "CI pipeline"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.Context(), cmd.OutOrStdout(), login, name)
		},
	}

	cmd.Flags().StringVar(&login, "user", "", "Owning username or email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the key (required)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(ctx context.Context, out io.Writer, login, name string) error {
	return keyCommand(ctx, login, func(keys *service.KeyManager, owner *model.User) error {
		created, err := keys.Create(ctx, owner.ID, name)
		if err != nil {
			return fmt.Errorf("create api key: %w", err)
		}

		fmt.Fprintln(out, "API Key created:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Key:    %s\n", created.Secret)
		fmt.Fprintf(out, "  ID:     %d\n", created.Key.ID)
		fmt.Fprintf(out, "  Name:   %s\n", created.Key.Name)
		fmt.Fprintf(out, "  Owner:  %s\n", owner.Username)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
		return nil
	})
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		login          string
		includeRevoked bool
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.Context(), cmd.OutOrStdout(), login, includeRevoked, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&login, "user", "", "Owning username or email (required)")
	cmd.Flags().BoolVar(&includeRevoked, "all", false, "Include revoked keys")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyList(ctx context.Context, out io.Writer, login string, includeRevoked, jsonOutput bool) error {
	return keyCommand(ctx, login, func(keys *service.KeyManager, owner *model.User) error {
		list, err := keys.List(ctx, owner.ID, includeRevoked)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}

		if len(list) == 0 {
			fmt.Fprintf(out, "No API keys for %s. Use 'toolnest key create' to create one.\n", owner.Username)
			return nil
		}

		fmt.Fprintf(out, "%-6s %-16s %-24s %-8s %-17s %s\n", "ID", "PREFIX", "NAME", "STATUS", "CREATED", "LAST USED")
		fmt.Fprintf(out, "%-6s %-16s %-24s %-8s %-17s %s\n", "--", "------", "----", "------", "-------", "---------")
		for _, k := range list {
			lastUsed := "never"
			if k.LastUsedAt != nil {
				lastUsed = k.LastUsedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-6d %-16s %-24s %-8s %-17s %s\n",
				k.ID, k.KeyPrefix, k.Name, k.Status, k.CreatedAt.Format("2006-01-02 15:04"), lastUsed)
		}
		return nil
	})
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	var login string

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Permanently revoke an API key. Its usage history is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return runKeyRevoke(cmd.Context(), cmd.OutOrStdout(), login, id)
		},
	}

	cmd.Flags().StringVar(&login, "user", "", "Owning username or email (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyRevoke(ctx context.Context, out io.Writer, login string, id int64) error {
	return keyCommand(ctx, login, func(keys *service.KeyManager, owner *model.User) error {
		key, err := keys.Revoke(ctx, id, owner.ID)
		if err != nil {
			return fmt.Errorf("revoke api key %d: %w", id, err)
		}
		fmt.Fprintf(out, "Revoked API key %d (%s)\n", key.ID, key.KeyPrefix)
		return nil
	})
}

// ---------- key usage ----------

func newKeyUsageCmd() *cobra.Command {
	var (
		login      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "usage <key-id>",
		Short: "Show usage statistics for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseKeyID(args[0])
			if err != nil {
				return err
			}
			return runKeyUsage(cmd.Context(), cmd.OutOrStdout(), login, id, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&login, "user", "", "Owning username or email (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyUsage(ctx context.Context, out io.Writer, login string, id int64, jsonOutput bool) error {
	return keyCommand(ctx, login, func(keys *service.KeyManager, owner *model.User) error {
		stats, err := keys.Usage(ctx, id, owner.ID)
		if err != nil {
			return fmt.Errorf("usage for api key %d: %w", id, err)
		}

		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		printUsage(out, stats)
		return nil
	})
}

func printUsage(out io.Writer, stats *model.UsageStats) {
	fmt.Fprintf(out, "API key %d\n", stats.APIKeyID)
	fmt.Fprintf(out, "  Total:       %d\n", stats.TotalRequests)
	fmt.Fprintf(out, "  Successful:  %d\n", stats.SuccessfulRequests)
	fmt.Fprintf(out, "  Failed:      %d\n", stats.FailedRequests)
	fmt.Fprintf(out, "  Avg latency: %.1f ms\n", stats.AverageLatencyMs)

	if len(stats.UsageByEndpoint) > 0 {
		endpoints := make([]string, 0, len(stats.UsageByEndpoint))
		for ep := range stats.UsageByEndpoint {
			endpoints = append(endpoints, ep)
		}
		sort.Strings(endpoints)

		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %-40s %s\n", "ENDPOINT", "CALLS")
		for _, ep := range endpoints {
			fmt.Fprintf(out, "  %-40s %d\n", ep, stats.UsageByEndpoint[ep])
		}
	}

	if len(stats.RecentUsage) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %-20s %-40s %-8s %s\n", "TIME", "ENDPOINT", "OUTCOME", "LATENCY")
		for _, rec := range stats.RecentUsage {
			fmt.Fprintf(out, "  %-20s %-40s %-8s %.0fms\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Endpoint, rec.Outcome, rec.LatencyMs)
		}
	}
}
