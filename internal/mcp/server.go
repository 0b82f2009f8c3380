package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/ratelimit"
)

// Tools runs the provider-backed operations.
type Tools interface {
	Summarize(ctx context.Context, req provider.SummarizeRequest) (*provider.SummarizeResult, error)
	Paraphrase(ctx context.Context, req provider.ParaphraseRequest) (*provider.ParaphraseResult, error)
	AnalyzeImage(ctx context.Context, req provider.ImageRequest) (*provider.ImageResult, error)
}

// Keys authenticates the session key and reads its usage.
type Keys interface {
	Authenticate(ctx context.Context, presented string) (*model.APIKey, error)
	Usage(ctx context.Context, keyID, ownerID int64) (*model.UsageStats, error)
}

// Checker makes fixed-window rate limit decisions.
type Checker interface {
	Check(ctx context.Context, identity, endpoint string, rule ratelimit.Rule) (ratelimit.Decision, error)
}

// UsageSink accepts usage records without blocking.
type UsageSink interface {
	Record(rec model.UsageRecord)
}

// Deps are the collaborators an MCPServer calls into.
type Deps struct {
	Tools   Tools
	Keys    Keys
	Limiter Checker
	Rules   *ratelimit.Rules
	Usage   UsageSink
	Logger  *slog.Logger
}

// MCPServer wraps the mcp-go server with the toolnest tools and resources.
// Every tool call is made on behalf of a single API key: the key is
// re-authenticated, rate limited and recorded per call, exactly like an
// HTTP request carrying the key.
type MCPServer struct {
	deps   Deps
	apiKey string
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates an MCPServer acting for apiKey. The returned server
// is ready to serve over stdio or HTTP.
func NewMCPServer(deps Deps, apiKey, version string) *MCPServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		deps:   deps,
		apiKey: apiKey,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"toolnest",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, for clients that launch
// toolnest as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode on addr.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// toolAnnotation marks a tool as side-effect free but backed by an
// external service.
func toolAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:  boolPtr(true),
		OpenWorldHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
