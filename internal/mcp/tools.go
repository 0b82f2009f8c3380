package mcp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toolnest/toolnest/internal/provider"
)

// Tool names as exposed to MCP clients.
const (
	ToolSummarize  = "summarize_text"
	ToolParaphrase = "paraphrase_text"
	ToolImage      = "image_to_text"
)

// registerTools registers the AI tools on the given server. Each shares the
// rate limit rule of its REST counterpart.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	srv.AddTool(
		mcp.NewTool(ToolSummarize,
			mcp.WithDescription(
				"Summarize a text of at least 100 characters as a paragraph, as bullet "+
					"points, or following custom instructions. Optionally extracts 5-7 keywords.",
			),
			mcp.WithToolAnnotation(toolAnnotation()),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("The text to summarize"),
			),
			mcp.WithString("mode",
				mcp.Description("Summary format"),
				mcp.Enum("paragraph", "bullet_points", "custom"),
				mcp.DefaultString("paragraph"),
			),
			mcp.WithNumber("max_length",
				mcp.Description("Maximum summary length in characters for paragraph mode (20-1000)"),
			),
			mcp.WithString("custom_instructions",
				mcp.Description("Instructions for custom mode"),
			),
			mcp.WithBoolean("extract_keywords",
				mcp.Description("Also return key terms from the text"),
			),
		),
		s.guard(ToolSummarize, provider.OpSummarize, s.handleSummarize),
	)

	srv.AddTool(
		mcp.NewTool(ToolParaphrase,
			mcp.WithDescription(
				"Rewrite a text of at least 10 characters in a different style, "+
					"with a chosen amount of change and target length.",
			),
			mcp.WithToolAnnotation(toolAnnotation()),
			mcp.WithString("text",
				mcp.Required(),
				mcp.Description("The text to paraphrase"),
			),
			mcp.WithString("style",
				mcp.Enum("formal", "casual", "simple"),
				mcp.DefaultString("casual"),
			),
			mcp.WithString("intensity",
				mcp.Description("How far the rewrite may depart from the original wording"),
				mcp.Enum("low", "medium", "high"),
				mcp.DefaultString("medium"),
			),
			mcp.WithString("length_option",
				mcp.Enum("same", "shorter", "longer"),
				mcp.DefaultString("same"),
			),
		),
		s.guard(ToolParaphrase, provider.OpParaphrase, s.handleParaphrase),
	)

	srv.AddTool(
		mcp.NewTool(ToolImage,
			mcp.WithDescription(
				"Describe an image or extract the text in it. Provide either image_url "+
					"or image_base64 (JPEG, PNG, GIF or WebP, at most 4 MB).",
			),
			mcp.WithToolAnnotation(toolAnnotation()),
			mcp.WithString("image_url",
				mcp.Description("Absolute http(s) URL of the image"),
			),
			mcp.WithString("image_base64",
				mcp.Description("Base64-encoded image bytes"),
			),
			mcp.WithString("mode",
				mcp.Enum("description", "ocr", "detailed"),
				mcp.DefaultString("description"),
			),
			mcp.WithString("detail_level",
				mcp.Enum("brief", "standard", "comprehensive"),
				mcp.DefaultString("standard"),
			),
		),
		s.guard(ToolImage, provider.OpImage, s.handleImage),
	)
}

func (s *MCPServer) handleSummarize(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	text, err := requireString(request, "text")
	if err != nil {
		return nil, err
	}
	return s.deps.Tools.Summarize(ctx, provider.SummarizeRequest{
		Text:               text,
		Mode:               provider.SummaryMode(optionalString(request, "mode")),
		MaxLength:          optionalInt(request, "max_length"),
		CustomInstructions: optionalString(request, "custom_instructions"),
		ExtractKeywords:    request.GetBool("extract_keywords", false),
	})
}

func (s *MCPServer) handleParaphrase(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	text, err := requireString(request, "text")
	if err != nil {
		return nil, err
	}
	return s.deps.Tools.Paraphrase(ctx, provider.ParaphraseRequest{
		Text:         text,
		Style:        optionalString(request, "style"),
		Intensity:    optionalString(request, "intensity"),
		LengthOption: optionalString(request, "length_option"),
	})
}

func (s *MCPServer) handleImage(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	req := provider.ImageRequest{
		ImageURL:    optionalString(request, "image_url"),
		Mode:        optionalString(request, "mode"),
		DetailLevel: optionalString(request, "detail_level"),
	}
	if encoded := optionalString(request, "image_base64"); encoded != "" {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("image_base64 is not valid base64: %w", err)
		}
		req.ImageData = data
	}
	return s.deps.Tools.AnalyzeImage(ctx, req)
}
