package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"conveyor/internal/auth"
	"conveyor/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Username and password are required", nil)
		return
	}

	user, err := rt.store.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Login failed"), nil)
		return
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		log.Warn().Str("username", req.Username).Msg("Failed login attempt")
		writeErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", nil)
		return
	}

	token, err := rt.sessions.Create(user.ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to create session"), nil)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(rt.cfg.SessionTTL.Seconds()),
	})

	log.Info().Str("username", user.Username).Msg("User logged in")
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	rt.sessions.Destroy(sessionToken(r))
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, requestUser(r))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (rt *Router) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	if !auth.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		writeErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "Current password is incorrect", nil)
		return
	}
	if err := auth.ValidatePasswordComplexity(req.NewPassword); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "weak_password", err.Error(), nil)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to update password"), nil)
		return
	}
	if err := rt.store.UpdateUserPassword(user.ID, hash); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to update password"), nil)
		return
	}

	// Other sessions die with the old password; the current one survives.
	current := sessionToken(r)
	rt.sessions.DestroyUser(user.ID)
	if current != "" {
		if token, err := rt.sessions.Create(user.ID); err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(rt.cfg.SessionTTL.Seconds()),
			})
		}
	}

	log.Info().Str("username", user.Username).Msg("Password changed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}
