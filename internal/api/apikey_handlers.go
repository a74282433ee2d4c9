package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"conveyor/internal/store"
)

func (rt *Router) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := rt.store.ListAPIKeys(requestUser(r).ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list API keys"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": keys})
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

func (rt *Router) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Key name is required", nil)
		return
	}

	key, raw, err := rt.store.CreateAPIKey(user.ID, req.Name)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to create API key"), nil)
		return
	}

	log.Info().Str("username", user.Username).Str("key", req.Name).Msg("API key created")
	// The raw key is shown exactly once; afterwards only hints survive.
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": key,
		"key":     raw,
	})
}

func (rt *Router) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := rt.store.DeleteAPIKey(requestUser(r).ID, keyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "API key not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to delete API key"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
