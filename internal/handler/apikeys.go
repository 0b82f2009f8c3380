package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/toolnest/toolnest/internal/model"
	"github.com/toolnest/toolnest/internal/server/middleware"
	"github.com/toolnest/toolnest/internal/service"
)

// APIKeyHandler lets a signed-in user manage their own API keys.
type APIKeyHandler struct {
	keys *service.KeyManager
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys *service.KeyManager) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

// createAPIKeyRequest is the expected payload for Create.
type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// createAPIKeyResponse includes the plaintext key (shown once only).
type createAPIKeyResponse struct {
	model.APIKey
	Secret string `json:"api_key"`
}

// Create generates a key for the caller and returns the plaintext exactly
// once.
// POST /api/v1/api-keys
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	userID := middleware.GetIdentity(r.Context()).UserID()
	created, err := h.keys.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		APIKey: created.Key,
		Secret: created.Secret,
	})
}

// List returns the caller's keys. Revoked keys are included only with
// ?include_revoked=true.
// GET /api/v1/api-keys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetIdentity(r.Context()).UserID()
	keys, err := h.keys.List(r.Context(), userID, queryBool(r, "include_revoked"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: keys,
		Meta:     &model.ResponseMeta{Count: len(keys)},
	})
}

// Revoke permanently disables one of the caller's keys.
// DELETE /api/v1/api-keys/{keyID}
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	keyID, err := pathID(r, "keyID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetIdentity(r.Context()).UserID()
	key, err := h.keys.Revoke(r.Context(), keyID, userID)
	if err != nil {
		writeKeyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

// usageResponse stamps the statistics with the time they were read.
type usageResponse struct {
	*model.UsageStats
	GeneratedAt time.Time `json:"generated_at"`
}

// Usage returns aggregated statistics for one of the caller's keys.
// GET /api/v1/api-keys/{keyID}/usage
func (h *APIKeyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	keyID, err := pathID(r, "keyID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetIdentity(r.Context()).UserID()
	stats, err := h.keys.Usage(r.Context(), keyID, userID)
	if err != nil {
		writeKeyError(w, err)
		return
	}
	if stats.RecentUsage == nil {
		stats.RecentUsage = []model.UsageRecord{}
	}
	if stats.UsageByEndpoint == nil {
		stats.UsageByEndpoint = map[string]int64{}
	}
	writeJSON(w, http.StatusOK, usageResponse{UsageStats: stats, GeneratedAt: time.Now().UTC()})
}

// writeKeyError answers lookups of a single key. A missing key and a key
// owned by someone else look the same to the caller.
func writeKeyError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrKeyNotFound) || errors.Is(err, service.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "API key not found")
		return
	}
	writeServiceError(w, err)
}
