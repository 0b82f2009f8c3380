package handler

import (
	"encoding/json"
	"net/http"

	"github.com/toolnest/toolnest/internal/openapi"
)

// OpenAPIHandler serves the API description. The document is rendered
// once at construction since the route table is fixed.
type OpenAPIHandler struct {
	body []byte
	err  error
}

// NewOpenAPIHandler renders the document for opts.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	body, err := json.Marshal(openapi.Generate(opts))
	return &OpenAPIHandler{body: body, err: err}
}

// ServeSpec returns the OpenAPI 3.1 document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render OpenAPI document: "+h.err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.body)
}
