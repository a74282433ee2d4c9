package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"conveyor/internal/auth"
	"conveyor/internal/store"
)

func (rt *Router) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := rt.store.ListUsers()
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list users"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

func (rt *Router) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Username is required", nil)
		return
	}
	if err := auth.ValidatePasswordComplexity(req.Password); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "weak_password", err.Error(), nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to create user"), nil)
		return
	}
	user, err := rt.store.CreateUser(req.Username, hash, req.IsAdmin)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeErrorResponse(w, http.StatusConflict, "duplicate", "Username already taken", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to create user"), nil)
		return
	}

	log.Info().Str("username", user.Username).Bool("is_admin", user.IsAdmin).Msg("User created")
	writeJSON(w, http.StatusCreated, user)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleResetPassword lets an administrator set another user's password.
// All of that user's sessions are invalidated.
func (rt *Router) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	if err := auth.ValidatePasswordComplexity(req.Password); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "weak_password", err.Error(), nil)
		return
	}
	target, err := rt.store.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "User not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to load user"), nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to reset password"), nil)
		return
	}
	if err := rt.store.UpdateUserPassword(target.ID, hash); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to reset password"), nil)
		return
	}
	rt.sessions.DestroyUser(target.ID)

	log.Info().Str("username", target.Username).Str("by", requestUser(r).Username).Msg("Password reset by administrator")
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}
