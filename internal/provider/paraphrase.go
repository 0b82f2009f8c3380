package provider

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/toolnest/toolnest/internal/service"
)

const minParaphraseText = 10

// ParaphraseRequest is the input of Paraphrase.
type ParaphraseRequest struct {
	Text         string `json:"text"`
	Style        string `json:"style,omitempty"`
	Intensity    string `json:"intensity,omitempty"`
	LengthOption string `json:"length_option,omitempty"`
}

var (
	styleGuidelines = map[string]string{
		"formal": `
Style: Formal
Use more sophisticated vocabulary and formal language structures.
Avoid contractions, slang, and casual expressions.
Maintain a professional and academic tone.`,
		"casual": `
Style: Casual
Use everyday language and a conversational tone.
Feel free to use contractions and common expressions.
Make the text sound natural and approachable.`,
		"simple": `
Style: Simple
Use clear, straightforward language.
Simplify complex concepts and vocabulary.
Prioritize readability and ease of understanding.`,
	}

	intensityGuidelines = map[string]string{
		"low": `
Intensity: Low
Make minimal changes to the original text.
Maintain most of the original structure and many original words.
Focus on replacing only some words with synonyms.`,
		"medium": `
Intensity: Medium
Make moderate changes to the original text.
Restructure some sentences while preserving key phrases.
Replace most common words with appropriate alternatives.`,
		"high": `
Intensity: High
Make significant changes to the original text.
Completely restructure sentences and paragraphs.
Use entirely different phrasing while maintaining the core meaning.`,
	}

	lengthGuidelines = map[string]string{
		"same": `
Length: Same
Keep the paraphrased text approximately the same length as the original.`,
		"shorter": `
Length: Shorter
Make the paraphrased text more concise than the original.
Remove unnecessary details while preserving the main points.`,
		"longer": `
Length: Longer
Expand on the ideas in the original text.
Add appropriate elaboration or examples to extend the content.`,
	}
)

// Validate applies defaults and checks field constraints.
func (r *ParaphraseRequest) Validate() error {
	if utf8.RuneCountInString(r.Text) < minParaphraseText {
		return service.ValidationError("text must be at least %d characters", minParaphraseText)
	}
	if r.Style == "" {
		r.Style = "casual"
	}
	if r.Intensity == "" {
		r.Intensity = "medium"
	}
	if r.LengthOption == "" {
		r.LengthOption = "same"
	}
	if _, ok := styleGuidelines[r.Style]; !ok {
		return service.ValidationError("style must be one of formal, casual, simple")
	}
	if _, ok := intensityGuidelines[r.Intensity]; !ok {
		return service.ValidationError("intensity must be one of low, medium, high")
	}
	if _, ok := lengthGuidelines[r.LengthOption]; !ok {
		return service.ValidationError("length_option must be one of same, shorter, longer")
	}
	return nil
}

// ParaphraseResult is the provider's rewrite.
type ParaphraseResult struct {
	ParaphrasedText string `json:"paraphrased_text"`
}

const paraphraseBase = `You are a helpful assistant that paraphrases text.

Your task:
1. Paraphrase the input text according to the specified style, intensity, and length option.
2. Make sure to keep the core meaning of the text accurate.
3. Make sure to keep the paraphrase in the same language as the input text.`

const paraphraseOutput = `
**Output Requirements**:
Return ONLY valid JSON with the structure:
{
    "paraphrased_text": "Your paraphrased text here..."
}`

func paraphrasePrompt(r ParaphraseRequest) string {
	return paraphraseBase + "\n" +
		styleGuidelines[r.Style] + "\n" +
		intensityGuidelines[r.Intensity] + "\n" +
		lengthGuidelines[r.LengthOption] + "\n" +
		paraphraseOutput
}

// Paraphrase rewrites text in the requested style.
func (s *Service) Paraphrase(ctx context.Context, req ParaphraseRequest) (*ParaphraseResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	content, err := s.client.Complete(ctx, OpParaphrase, ChatRequest{
		Model: s.textModel,
		Messages: []Message{
			{Role: "system", Content: paraphrasePrompt(req)},
			{Role: "user", Content: req.Text},
		},
		Temperature:    0.7,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		ParaphrasedText *string `json:"paraphrased_text"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, invalidResponse(OpParaphrase, "not a JSON object: %v", err)
	}
	if result.ParaphrasedText == nil {
		return nil, invalidResponse(OpParaphrase, "missing 'paraphrased_text' field")
	}
	return &ParaphraseResult{ParaphrasedText: *result.ParaphrasedText}, nil
}
