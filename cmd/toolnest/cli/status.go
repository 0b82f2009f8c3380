package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the toolnest server is running",
		Long:  "Query the liveness and readiness endpoints of a running toolnest server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server base URL (default: from server.host and server.port)")

	return cmd
}

func runStatus(ctx context.Context, out io.Writer, addr string) error {
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}

	client := &http.Client{Timeout: 2 * time.Second}

	live, err := probe(ctx, client, addr+"/healthz")
	if err != nil {
		fmt.Fprintf(out, "Server is not running at %s (%v)\n", addr, err)
		return nil
	}
	ready, err := probe(ctx, client, addr+"/readyz")
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}

	state := "running"
	if ready != http.StatusOK {
		state = "running but not ready"
	}
	fmt.Fprintf(out, "Server is %s at %s\n", state, addr)
	fmt.Fprintf(out, "  Health:  %s/healthz (%d)\n", addr, live)
	fmt.Fprintf(out, "  Ready:   %s/readyz (%d)\n", addr, ready)
	return nil
}

func probe(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
