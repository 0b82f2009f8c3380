package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const usageURI = "toolnest://usage"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			usageURI,
			"API Key Usage",
			mcp.WithResourceDescription(
				"Request counts, success rate, latency and recent calls for the "+
					"API key this MCP session runs under.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleUsageResource,
	)
}

// handleUsageResource returns the usage statistics of the session key.
func (s *MCPServer) handleUsageResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	key, err := s.deps.Keys.Authenticate(ctx, s.apiKey)
	if err != nil {
		return nil, fmt.Errorf("authenticate api key: %w", err)
	}

	stats, err := s.deps.Keys.Usage(ctx, key.ID, key.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      usageURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
