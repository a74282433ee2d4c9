package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"conveyor/internal/store"
)

func (rt *Router) handleListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := rt.store.ListMachines(requestUser(r).ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list machines"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": machines})
}

func (rt *Router) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r)
	if !ok {
		return
	}
	machine, err := rt.store.GetMachine(requestUser(r).ID, machineID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Machine not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to load machine"), nil)
		return
	}
	writeJSON(w, http.StatusOK, machine)
}

func (rt *Router) handleMachinePeripherals(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r)
	if !ok {
		return
	}
	// Ownership check before listing; peripherals are scoped by machine.
	if _, err := rt.store.GetMachine(requestUser(r).ID, machineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Machine not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to load machine"), nil)
		return
	}
	peripherals, err := rt.store.ListPeripheralsByMachine(machineID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list peripherals"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peripherals": peripherals})
}

func (rt *Router) handleDetachMachine(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r)
	if !ok {
		return
	}
	user := requestUser(r)
	if err := rt.store.DetachMachine(user.ID, machineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Machine not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to detach machine"), nil)
		return
	}
	log.Info().Int64("machine_id", machineID).Str("username", user.Username).Msg("Machine detached from API key")
	writeJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

func (rt *Router) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	machineID, ok := pathID(w, r)
	if !ok {
		return
	}
	user := requestUser(r)
	if err := rt.store.DeleteMachine(user.ID, machineID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "not_found", "Machine not found", nil)
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to delete machine"), nil)
		return
	}
	log.Info().Int64("machine_id", machineID).Str("username", user.Username).Msg("Machine deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (rt *Router) handleListPeripherals(w http.ResponseWriter, r *http.Request) {
	peripherals, err := rt.store.ListPeripheralsByUser(requestUser(r).ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to list peripherals"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peripherals": peripherals})
}

// handleSearchPeripherals filters the user's peripherals by a case-insensitive
// substring over name and machine name. Backs the route editor's picker.
func (rt *Router) handleSearchPeripherals(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Query parameter q is required", nil)
		return
	}
	peripherals, err := rt.store.ListPeripheralsByUser(requestUser(r).ID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to search peripherals"), nil)
		return
	}
	matched := peripherals[:0]
	for _, p := range peripherals {
		if strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.MachineName), query) {
			matched = append(matched, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"peripherals": matched})
}
