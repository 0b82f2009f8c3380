package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tmcp "github.com/toolnest/toolnest/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the summarize,
paraphrase and image-to-text tools to AI agents. Every tool call is made with
the given API key: it is authenticated, rate limited and recorded as usage
exactly like a REST call carrying the key.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with desktop MCP clients.

In HTTP mode, the server listens on the specified port using the streamable
HTTP transport.`,
		Example: `  toolnest mcp --api-key tn_...                          # stdio mode
  TOOLNEST_MCP_API_KEY=tn_... toolnest mcp --transport http --port 3001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(viper.GetString("mcp.api_key"), transport, port)
		},
	}

	cmd.Flags().String("api-key", "", "API key the MCP session acts as (or TOOLNEST_MCP_API_KEY)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	viper.BindPFlag("mcp.api_key", cmd.Flags().Lookup("api-key"))

	return cmd
}

func runMCP(apiKey, transport string, port int) error {
	if apiKey == "" {
		return fmt.Errorf("an API key is required: pass --api-key or set TOOLNEST_MCP_API_KEY")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol in stdio mode, so logs always go to stderr.
	logger, err := newLogger(os.Stderr, cfg.Logging, false)
	if err != nil {
		return err
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer gw.close()

	mcpSrv := tmcp.NewMCPServer(tmcp.Deps{
		Tools:   gw.tools,
		Keys:    gw.keys,
		Limiter: gw.limiter,
		Rules:   gw.rules,
		Usage:   gw.recorder,
		Logger:  logger,
	}, apiKey, versionString())

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
