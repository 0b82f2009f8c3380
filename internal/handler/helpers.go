package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/provider"
	"github.com/toolnest/toolnest/internal/service"
)

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response using the standard error
// envelope. The optional ctx map provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps a classified error to its HTTP status. Ownership
// failures on key routes answer 404 so other users' key ids are not
// revealed.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, provider.ErrUnsupportedImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	case errors.Is(err, service.ErrUserExists):
		writeError(w, http.StatusBadRequest, "Username or email already registered")
		return
	case errors.Is(err, service.ErrAlreadyRevoked):
		writeError(w, http.StatusConflict, "API key already revoked")
		return
	case errors.Is(err, service.ErrInactiveUser):
		writeError(w, http.StatusForbidden, "Inactive user")
		return
	}

	switch service.KindOf(err) {
	case service.KindAuth:
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, err.Error())
	case service.KindOwnership:
		writeError(w, http.StatusNotFound, "API key not found")
	case service.KindRateLimit:
		writeError(w, http.StatusTooManyRequests, err.Error())
	case service.KindValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	case service.KindStorage:
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable, please retry")
	case service.KindUpstream:
		var perr *provider.Error
		if errors.As(err, &perr) && perr.Timeout {
			writeError(w, http.StatusGatewayTimeout, "Request timed out")
			return
		}
		writeError(w, http.StatusBadGateway, "AI provider error: "+err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
	}
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeBodyError answers a failed readJSON, distinguishing oversized bodies.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return id, nil
}
