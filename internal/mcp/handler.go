package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/service"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required string argument from the tool request.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt extracts an optional integer argument. Absent values are nil
// so provider defaults apply.
func optionalInt(request mcp.CallToolRequest, key string) *int {
	args := request.GetArguments()
	if _, ok := args[key]; !ok {
		return nil
	}
	v := request.GetInt(key, 0)
	return &v
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// --------------------------------------------------------------------------
// Per-call guard
// --------------------------------------------------------------------------

// toolFunc runs one tool for an authenticated key and returns its payload.
type toolFunc func(ctx context.Context, request mcp.CallToolRequest) (interface{}, error)

// guard wraps fn with the per-call key authentication, the fixed-window
// rule and usage recording under "mcp:<tool>".
func (s *MCPServer) guard(tool, rule string, fn toolFunc) server.ToolHandlerFunc {
	endpoint := "mcp:" + tool
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := s.deps.Keys.Authenticate(ctx, s.apiKey)
		if err != nil {
			metrics.AuthFailuresTotal.WithLabelValues("api_key", "mcp").Inc()
			return toolError("Authentication failed: %v", err)
		}

		if s.deps.Limiter != nil && s.deps.Rules != nil {
			r := s.deps.Rules.Get(rule)
			identity := "key:" + strconv.FormatInt(key.ID, 10)
			d, err := s.deps.Limiter.Check(ctx, identity, rule, r)
			switch {
			case err != nil:
				metrics.RateLimitErrorsTotal.Inc()
				s.logger.Error("rate limit check failed, allowing call", "tool", tool, "error", err)
			case !d.Allowed:
				metrics.RateLimitedTotal.WithLabelValues(rule).Inc()
				s.logger.Info("rate limit exceeded", "tool", tool, "key_id", key.ID, "limit", r.String())
				return toolError("Rate limit exceeded (%s). Retry in %d seconds.",
					r.String(), int(math.Ceil(d.RetryAfter.Seconds())))
			}
		}

		start := time.Now()
		out, err := fn(ctx, request)
		status := statusFor(err)
		if s.deps.Usage != nil {
			var upstreamErr error
			if service.KindOf(err) == service.KindUpstream {
				upstreamErr = err
			}
			s.deps.Usage.Record(model.UsageRecord{
				APIKeyID:   key.ID,
				Endpoint:   endpoint,
				Method:     "MCP",
				StatusCode: status,
				Outcome:    service.OutcomeFor(status, upstreamErr),
				LatencyMs:  float64(time.Since(start).Microseconds()) / 1000.0,
				UserAgent:  "mcp",
				CreatedAt:  start.UTC(),
			})
		}

		if err != nil {
			return toolError("%s failed: %v", tool, err)
		}
		return successJSON(out)
	}
}

// statusFor gives a tool outcome the HTTP status the same failure would
// have produced on the REST API.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, provider.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, provider.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	}
	switch service.KindOf(err) {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindStorage:
		return http.StatusServiceUnavailable
	case service.KindUpstream:
		var perr *provider.Error
		if errors.As(err, &perr) && perr.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
