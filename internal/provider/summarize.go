package provider

import (
	"context"
	"encoding/json"
	"strconv"
	"unicode/utf8"

	"github.com/toolnest/toolnest/internal/service"
)

type SummaryMode string

const (
	SummaryParagraph    SummaryMode = "paragraph"
	SummaryBulletPoints SummaryMode = "bullet_points"
	SummaryCustom       SummaryMode = "custom"
)

const (
	minSummarizeText = 100
	minMaxLength     = 20
	maxMaxLength     = 1000
)

// SummarizeRequest is the input of Summarize.
type SummarizeRequest struct {
	Text               string      `json:"text"`
	Mode               SummaryMode `json:"mode,omitempty"`
	MaxLength          *int        `json:"max_length,omitempty"`
	CustomInstructions string      `json:"custom_instructions,omitempty"`
	ExtractKeywords    bool        `json:"extract_keywords"`
}

// Validate applies defaults and checks field constraints.
func (r *SummarizeRequest) Validate() error {
	if utf8.RuneCountInString(r.Text) < minSummarizeText {
		return service.ValidationError("text must be at least %d characters", minSummarizeText)
	}
	if r.Mode == "" {
		r.Mode = SummaryParagraph
	}
	switch r.Mode {
	case SummaryParagraph, SummaryBulletPoints, SummaryCustom:
	default:
		return service.ValidationError("mode must be one of paragraph, bullet_points, custom")
	}
	if r.MaxLength != nil && (*r.MaxLength < minMaxLength || *r.MaxLength > maxMaxLength) {
		return service.ValidationError("max_length must be between %d and %d", minMaxLength, maxMaxLength)
	}
	if r.Mode == SummaryCustom && r.CustomInstructions == "" {
		return service.ValidationError("custom_instructions is required for custom mode")
	}
	return nil
}

// SummarizeResult is the provider's summary.
type SummarizeResult struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords,omitempty"`
}

const summarizeBase = `You are a helpful assistant that summarizes text.

Your task:
1. Summarize the input text according to the specified mode and requirements.
2. Make sure to keep the summary accurate and to the point.
3. Make sure to keep the summary in the same language as the text.`

const bulletPointsFormat = `
Format the summary as bullet points, with each point starting with "• " (bullet point followed by a space).
Each bullet point should:
- Start on a new line
- Capture a single key idea
- Be concise and clear
- Use "• " as the bullet point character

Example format:
• First key point here
• Second key point here
• Third key point here`

func summarizePrompt(r SummarizeRequest) string {
	var mode string
	switch r.Mode {
	case SummaryBulletPoints:
		mode = bulletPointsFormat
	case SummaryCustom:
		mode = "\nFollow these custom formatting instructions:\n" + r.CustomInstructions +
			"\n\nMake sure to:\n- Follow the exact instructions specified.\n"
	default:
		maxLen := "Not specified"
		if r.MaxLength != nil {
			maxLen = strconv.Itoa(*r.MaxLength)
		}
		mode = "\nFormat the summary as a coherent paragraph.\nMaximum length: " + maxLen
	}

	var keywords string
	if r.ExtractKeywords {
		keywords = "\nAdditionally, extract 5-7 key terms or phrases that best represent the main concepts in the text."
	}

	output := "\n**Output Requirements**:\nReturn ONLY valid JSON with the structure:\n{\n    \"summary\": \"Your summary text here...\"\n"
	if r.ExtractKeywords {
		output += ",\n    \"keywords\": [\"term1\", \"term2\", \"term3\"]"
	}
	output += "\n}"

	return summarizeBase + "\n" + mode + "\n" + keywords + "\n" + output
}

// Summarize asks the text model for a summary in the requested mode.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	content, err := s.client.Complete(ctx, OpSummarize, ChatRequest{
		Model: s.textModel,
		Messages: []Message{
			{Role: "system", Content: summarizePrompt(req)},
			{Role: "user", Content: req.Text},
		},
		Temperature:    0.5,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return nil, invalidResponse(OpSummarize, "not a JSON object: %v", err)
	}
	if _, ok := fields["summary"]; !ok {
		return nil, invalidResponse(OpSummarize, "missing 'summary' field")
	}
	if _, ok := fields["keywords"]; req.ExtractKeywords && !ok {
		return nil, invalidResponse(OpSummarize, "missing 'keywords' field")
	}

	var result SummarizeResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, invalidResponse(OpSummarize, "%v", err)
	}
	if !req.ExtractKeywords {
		result.Keywords = nil
	}
	return &result, nil
}
