// Package api exposes the HTTP surface: dashboard session endpoints,
// machine agent endpoints, the live WebSocket feed, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"conveyor/internal/catalog"
	"conveyor/internal/config"
	"conveyor/internal/models"
	"conveyor/internal/store"
	"conveyor/internal/websocket"
)

type ctxKey string

const (
	ctxUser   ctxKey = "api_user"
	ctxAPIKey ctxKey = "api_key"
)

const maxBodyBytes = 1 << 20

// Router wires handlers to their dependencies.
type Router struct {
	mux      *http.ServeMux
	cfg      *config.Config
	store    *store.Store
	catalog  *catalog.Catalog
	hub      *websocket.Hub
	sessions *SessionStore
}

// New builds the router. The hub may be nil in tests that do not exercise
// the WebSocket feed.
func New(cfg *config.Config, st *store.Store, cat *catalog.Catalog, hub *websocket.Hub) *Router {
	rt := &Router{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		store:    st,
		catalog:  cat,
		hub:      hub,
		sessions: NewSessionStore(cfg.SessionTTL),
	}
	rt.routes()
	return rt
}

// Handler returns the router wrapped in CORS and error-handling middleware.
func (rt *Router) Handler() http.Handler {
	return ErrorHandler(rt.cors(rt.mux))
}

// cors answers preflight requests and reflects configured origins.
func (rt *Router) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool)
	allowAll := false
	for _, origin := range strings.Split(rt.cfg.AllowedOrigins, ",") {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			allowAll = true
		} else if origin != "" {
			allowed[strings.ToLower(origin)] = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[strings.ToLower(strings.TrimRight(origin, "/"))]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sessions exposes the session store for the CLI and tests.
func (rt *Router) Sessions() *SessionStore {
	return rt.sessions
}

func (rt *Router) routes() {
	mux := rt.mux

	mux.HandleFunc("GET /api/health", rt.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Dashboard session lifecycle.
	mux.HandleFunc("POST /api/auth/login", rt.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", rt.requireSession(rt.handleLogout))
	mux.HandleFunc("GET /api/auth/me", rt.requireSession(rt.handleMe))
	mux.HandleFunc("POST /api/auth/password", rt.requireSession(rt.handleChangePassword))

	// Admin user management.
	mux.HandleFunc("GET /api/users", rt.requireAdmin(rt.handleListUsers))
	mux.HandleFunc("POST /api/users", rt.requireAdmin(rt.handleCreateUser))
	mux.HandleFunc("POST /api/users/{id}/password", rt.requireAdmin(rt.handleResetPassword))

	// API keys for pairing machines.
	mux.HandleFunc("GET /api/keys", rt.requireSession(rt.handleListAPIKeys))
	mux.HandleFunc("POST /api/keys", rt.requireSession(rt.handleCreateAPIKey))
	mux.HandleFunc("DELETE /api/keys/{id}", rt.requireSession(rt.handleDeleteAPIKey))

	// Machines and their peripheral buses.
	mux.HandleFunc("GET /api/machines", rt.requireSession(rt.handleListMachines))
	mux.HandleFunc("GET /api/machines/{id}", rt.requireSession(rt.handleGetMachine))
	mux.HandleFunc("GET /api/machines/{id}/peripherals", rt.requireSession(rt.handleMachinePeripherals))
	mux.HandleFunc("POST /api/machines/{id}/detach", rt.requireSession(rt.handleDetachMachine))
	mux.HandleFunc("DELETE /api/machines/{id}", rt.requireSession(rt.handleDeleteMachine))
	mux.HandleFunc("GET /api/peripherals", rt.requireSession(rt.handleListPeripherals))
	mux.HandleFunc("GET /api/peripherals/search", rt.requireSession(rt.handleSearchPeripherals))

	// Transport routes.
	mux.HandleFunc("GET /api/routes", rt.requireSession(rt.handleListRoutes))
	mux.HandleFunc("POST /api/routes", rt.requireSession(rt.handleCreateRoute))
	mux.HandleFunc("GET /api/routes/{id}", rt.requireSession(rt.handleGetRoute))
	mux.HandleFunc("PATCH /api/routes/{id}", rt.requireSession(rt.handleUpdateRoute))
	mux.HandleFunc("DELETE /api/routes/{id}", rt.requireSession(rt.handleDeleteRoute))

	// Item name search.
	mux.HandleFunc("GET /api/items/search", rt.requireSession(rt.handleSearchItems))

	// Machine agent surface, authenticated by API key.
	mux.HandleFunc("POST /api/agent/register", rt.requireAPIKey(rt.handleAgentRegister))
	mux.HandleFunc("POST /api/agent/peripherals", rt.requireAPIKey(rt.handleAgentPeripherals))
	mux.HandleFunc("GET /api/agent/poll", rt.requireAPIKey(rt.handleAgentPoll))
	mux.HandleFunc("POST /api/agent/status", rt.requireAPIKey(rt.handleAgentStatus))

	// Live dashboard feed.
	mux.HandleFunc("GET /ws", rt.handleWebSocket)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"catalog": rt.catalog.Len(),
	})
}

func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := rt.sessionUser(r)
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	if rt.hub == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "Live feed is not enabled", nil)
		return
	}
	rt.hub.Serve(w, r, user.ID)
}

// requireSession resolves the dashboard session and stashes the user on the
// request context.
func (rt *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := rt.sessionUser(r)
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxUser, user)))
	}
}

// requireAdmin is requireSession plus an admin check.
func (rt *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return rt.requireSession(func(w http.ResponseWriter, r *http.Request) {
		if !requestUser(r).IsAdmin {
			writeErrorResponse(w, http.StatusForbidden, "forbidden", "Administrator access required", nil)
			return
		}
		next(w, r)
	})
}

// requireAPIKey authenticates a machine agent via the X-API-Key header and
// stashes both the key and its owning user on the context.
func (rt *Router) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if raw == "" {
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "API key required", nil)
			return
		}
		key, user, err := rt.store.VerifyAPIKey(raw)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid API key", nil)
				return
			}
			writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
				sanitizeErrorForClient(err, "Failed to verify API key"), nil)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = context.WithValue(ctx, ctxAPIKey, key)
		next(w, r.WithContext(ctx))
	}
}

func (rt *Router) sessionUser(r *http.Request) (models.User, bool) {
	token := sessionToken(r)
	userID, ok := rt.sessions.Resolve(token)
	if !ok {
		return models.User{}, false
	}
	user, err := rt.store.GetUserByID(userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load session user")
		}
		rt.sessions.Destroy(token)
		return models.User{}, false
	}
	return user, true
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

func requestUser(r *http.Request) models.User {
	user, _ := r.Context().Value(ctxUser).(models.User)
	return user
}

func requestAPIKey(r *http.Request) models.APIKey {
	key, _ := r.Context().Value(ctxAPIKey).(models.APIKey)
	return key
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// pathID parses the {id} path value, writing the error response itself.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid ID in path", nil)
		return 0, false
	}
	return id, true
}

// decodeJSON reads a bounded request body into dst, rejecting trailing junk.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
