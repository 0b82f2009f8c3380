package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/toolnest/toolnest/internal/provider"
)

// AITools runs the provider-backed text and image operations.
type AITools interface {
	Summarize(ctx context.Context, req provider.SummarizeRequest) (*provider.SummarizeResult, error)
	Paraphrase(ctx context.Context, req provider.ParaphraseRequest) (*provider.ParaphraseResult, error)
	AnalyzeImage(ctx context.Context, req provider.ImageRequest) (*provider.ImageResult, error)
}

// multipartOverhead is the room left for form fields around an upload.
const multipartOverhead = 1 << 20

// AIToolsHandler exposes the AI tools over HTTP.
type AIToolsHandler struct {
	tools AITools
}

// NewAIToolsHandler creates a new AIToolsHandler.
func NewAIToolsHandler(tools AITools) *AIToolsHandler {
	return &AIToolsHandler{tools: tools}
}

// Summarize condenses text as a paragraph, bullet points or a custom format.
// POST /api/v1/ai-tools/summarize
func (h *AIToolsHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req provider.SummarizeRequest
	if err := readJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := h.tools.Summarize(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Paraphrase rewrites text in a given style, intensity and length.
// POST /api/v1/ai-tools/paraphrase
func (h *AIToolsHandler) Paraphrase(w http.ResponseWriter, r *http.Request) {
	var req provider.ParaphraseRequest
	if err := readJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := h.tools.Paraphrase(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImageToText describes an image or extracts its text. The image comes
// either as image_url in a JSON body or as an image_file multipart upload.
// POST /api/v1/ai-tools/image-to-text
func (h *AIToolsHandler) ImageToText(w http.ResponseWriter, r *http.Request) {
	var req provider.ImageRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, provider.MaxImageSize+multipartOverhead)
		if err := r.ParseMultipartForm(provider.MaxImageSize); err != nil {
			writeBodyError(w, err)
			return
		}
		req.ImageURL = r.FormValue("image_url")
		req.Mode = r.FormValue("mode")
		req.DetailLevel = r.FormValue("detail_level")

		file, _, err := r.FormFile("image_file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, "Invalid image_file: "+err.Error())
			return
		default:
			defer file.Close()
			// One byte past the limit is enough to reject the upload.
			data, err := io.ReadAll(io.LimitReader(file, provider.MaxImageSize+1))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Failed to read image_file: "+err.Error())
				return
			}
			if len(data) == 0 {
				writeError(w, http.StatusBadRequest, "Empty image file received")
				return
			}
			req.ImageData = data
		}
	case "application/json", "":
		if err := readJSON(r, &req); err != nil {
			writeBodyError(w, err)
			return
		}
	default:
		writeError(w, http.StatusUnsupportedMediaType,
			"Content-Type must be application/json or multipart/form-data")
		return
	}

	res, err := h.tools.AnalyzeImage(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
