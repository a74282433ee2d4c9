package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"conveyor/internal/models"
	"conveyor/internal/store"
	"conveyor/internal/websocket"
)

func (rt *Router) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := rt.store.ListRoutesByUser(requestUser(r).ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list routes"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

type createRouteRequest struct {
	Name     string             `json:"name"`
	SourceID int64              `json:"source_peripheral_id"`
	DestID   int64              `json:"dest_peripheral_id"`
	Filter   *models.ItemFilter `json:"filter"`
}

func (rt *Router) handleCreateRoute(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req createRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Route name is required", nil)
		return
	}
	if req.SourceID < 1 || req.DestID < 1 {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Source and destination peripherals are required", nil)
		return
	}
	if req.SourceID == req.DestID {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Source and destination must differ", nil)
		return
	}
	filter := models.AllItems()
	if req.Filter != nil {
		filter = *req.Filter
	}

	route, err := rt.store.CreateRoute(user.ID, req.Name, req.SourceID, req.DestID, filter)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Peripheral not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to create route"), nil)
		return
	}

	log.Info().Int64("route_id", route.ID).Str("route", route.Name).Str("username", user.Username).Msg("Route created")
	rt.notifyRouteChanged(user.ID, route)
	writeJSON(w, http.StatusCreated, route)
}

func (rt *Router) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r)
	if !ok {
		return
	}
	route, err := rt.store.GetRoute(requestUser(r).ID, routeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Route not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to load route"), nil)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

type updateRouteRequest struct {
	Name    *string            `json:"name"`
	Enabled *bool              `json:"enabled"`
	Filter  *models.ItemFilter `json:"filter"`
}

func (rt *Router) handleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r)
	if !ok {
		return
	}
	user := requestUser(r)

	var req updateRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Route name cannot be empty", nil)
		return
	}

	route, err := rt.store.UpdateRoute(user.ID, routeID, store.RouteUpdate{
		Name:    req.Name,
		Enabled: req.Enabled,
		Filter:  req.Filter,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Route not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to update route"), nil)
		return
	}

	rt.notifyRouteChanged(user.ID, route)
	writeJSON(w, http.StatusOK, route)
}

func (rt *Router) handleDeleteRoute(w http.ResponseWriter, r *http.Request) {
	routeID, ok := pathID(w, r)
	if !ok {
		return
	}
	user := requestUser(r)
	if err := rt.store.DeleteRoute(user.ID, routeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Route not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to delete route"), nil)
		return
	}

	log.Info().Int64("route_id", routeID).Str("username", user.Username).Msg("Route deleted")
	if rt.hub != nil {
		rt.hub.Notify(user.ID, websocket.EventRouteChanged, map[string]any{"route_id": routeID, "deleted": true})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) notifyRouteChanged(userID int64, route models.Route) {
	if rt.hub != nil {
		rt.hub.Notify(userID, websocket.EventRouteChanged, route)
	}
}
