package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/toolnest/toolnest/internal/service"
)

// MaxImageSize is the largest accepted upload.
const MaxImageSize = 4 << 20

// AllowedImageTypes are the upload types the vision model accepts.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var (
	ErrImageTooLarge    = &service.Error{Kind: service.KindValidation, Err: fmt.Errorf("image exceeds the %d MB limit", MaxImageSize>>20)}
	ErrUnsupportedImage = &service.Error{Kind: service.KindValidation, Err: errors.New("unsupported image type")}
)

// ImageRequest is the input of AnalyzeImage. Exactly one of ImageURL and
// ImageData is set.
type ImageRequest struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageData   []byte `json:"-"`
	Mode        string `json:"mode,omitempty"`
	DetailLevel string `json:"detail_level,omitempty"`
}

var (
	imageBasePrompts = map[string]string{
		"description": "Describe what you see in this image.",
		"ocr":         "Extract all text visible in this image.",
		"detailed":    "Analyze this image in detail.",
	}

	detailModifiers = map[string]string{
		"brief":         "Keep it brief and concise.",
		"standard":      "Provide a standard level of detail.",
		"comprehensive": "Provide comprehensive details about everything you can identify.",
	}

	ocrModifiers = map[string]string{
		"brief":         "Extract only the main text, ignoring minor details.",
		"standard":      "Extract all readable text, maintaining basic structure.",
		"comprehensive": "Extract all text with precise layout information, including positions and formatting.",
	}
)

// Validate applies defaults and checks the image source. For uploads it
// returns the detected content type.
func (r *ImageRequest) Validate() (string, error) {
	if r.Mode == "" {
		r.Mode = "description"
	}
	if r.DetailLevel == "" {
		r.DetailLevel = "standard"
	}
	if _, ok := imageBasePrompts[r.Mode]; !ok {
		return "", service.ValidationError("mode must be one of description, ocr, detailed")
	}
	if _, ok := detailModifiers[r.DetailLevel]; !ok {
		return "", service.ValidationError("detail_level must be one of brief, standard, comprehensive")
	}

	hasURL, hasData := r.ImageURL != "", len(r.ImageData) > 0
	if hasURL == hasData {
		return "", service.ValidationError("exactly one of image_url or image_file must be provided")
	}

	if hasURL {
		u, err := url.Parse(r.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", service.ValidationError("image_url must be an absolute http or https URL")
		}
		return "", nil
	}

	if len(r.ImageData) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	mtype := mimetype.Detect(r.ImageData)
	if !mimetype.EqualsAny(mtype.String(), AllowedImageTypes...) {
		return "", fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedImage, mtype.String(), strings.Join(AllowedImageTypes, ", "))
	}
	return mtype.String(), nil
}

// StructuredText is the line split of an OCR result.
type StructuredText struct {
	Lines     []string `json:"lines"`
	LineCount int      `json:"line_count"`
}

// ImageResult is the analysis of one image.
type ImageResult struct {
	Analysis       string          `json:"analysis"`
	StructuredText *StructuredText `json:"structured_text,omitempty"`
}

func imagePrompt(mode, detail string) string {
	if mode == "ocr" {
		return imageBasePrompts[mode] + " " + ocrModifiers[detail]
	}
	return imageBasePrompts[mode] + " " + detailModifiers[detail]
}

// AnalyzeImage describes an image or extracts its text with the vision model.
func (s *Service) AnalyzeImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	contentType, err := req.Validate()
	if err != nil {
		return nil, err
	}

	source := req.ImageURL
	if source == "" {
		source = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.ImageData)
	}

	content, err := s.client.Complete(ctx, OpImage, ChatRequest{
		Model: s.visionModel,
		Messages: []Message{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: imagePrompt(req.Mode, req.DetailLevel)},
				{Type: "image_url", ImageURL: &ImageURL{URL: source}},
			},
		}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	result := &ImageResult{Analysis: content}
	if req.Mode == "ocr" && req.DetailLevel == "comprehensive" {
		lines := strings.Split(strings.TrimSpace(content), "\n")
		result.StructuredText = &StructuredText{Lines: lines, LineCount: len(lines)}
	}
	return result, nil
}
