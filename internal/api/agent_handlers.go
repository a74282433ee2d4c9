package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"conveyor/internal/dispatch"
	"conveyor/internal/metrics"
	"conveyor/internal/models"
	"conveyor/internal/store"
	"conveyor/internal/websocket"
)

type agentRegisterRequest struct {
	Name string `json:"name"`
}

// handleAgentRegister pairs the machine behind the API key with the server.
// Registration is idempotent: re-registering refreshes the name and brings
// the machine online.
func (rt *Router) handleAgentRegister(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	key := requestAPIKey(r)

	var req agentRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Machine name is required", nil)
		return
	}

	wasOnline := false
	if existing, err := rt.store.GetMachineByKey(user.ID, key.ID); err == nil {
		wasOnline = existing.Status == models.MachineOnline
	}

	machine, err := rt.store.RegisterMachine(user.ID, key.ID, req.Name)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to register machine"), nil)
		return
	}
	if !wasOnline {
		metrics.MachinesOnline.Inc()
		if rt.hub != nil {
			rt.hub.Notify(user.ID, websocket.EventMachineStatus, machine)
		}
	}

	log.Info().Int64("machine_id", machine.ID).Str("machine", machine.Name).Msg("Machine registered")
	writeJSON(w, http.StatusOK, map[string]any{
		"machine":       machine,
		"poll_interval": int(rt.cfg.SweepInterval.Seconds()),
	})
}

type agentPeripheralsRequest struct {
	Peripherals []struct {
		Name     string `json:"name"`
		Type     string `json:"type"`
		Location string `json:"location"`
	} `json:"peripherals"`
}

// handleAgentPeripherals replaces the machine's reported peripheral bus.
func (rt *Router) handleAgentPeripherals(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	machine, ok := rt.agentMachine(w, r)
	if !ok {
		return
	}

	var req agentPeripheralsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	report := make([]models.Peripheral, 0, len(req.Peripherals))
	for _, p := range req.Peripherals {
		report = append(report, models.Peripheral{
			Name:     strings.TrimSpace(p.Name),
			Type:     p.Type,
			Location: p.Location,
		})
	}

	if err := rt.store.UpsertPeripherals(machine.ID, report); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to sync peripherals"), nil)
		return
	}

	log.Debug().Int64("machine_id", machine.ID).Int("count", len(report)).Msg("Peripheral inventory synced")
	if rt.hub != nil {
		rt.hub.Notify(user.ID, websocket.EventPeripheralsUpdated, map[string]any{
			"machine_id": machine.ID,
			"count":      len(report),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "synced", "count": len(report)})
}

// handleAgentPoll hands the machine its current transfer directives. The
// response is rebuilt from stored routes on every poll, so a route edit
// takes effect on the next cycle without any push channel to the machine.
func (rt *Router) handleAgentPoll(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	machine, ok := rt.agentMachine(w, r)
	if !ok {
		metrics.PollsTotal.WithLabelValues("unregistered").Inc()
		return
	}

	wasOffline := machine.Status == models.MachineOffline
	if err := rt.store.TouchMachine(machine.ID); err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to record poll"), nil)
		return
	}
	if wasOffline {
		machine.Status = models.MachineOnline
		metrics.MachinesOnline.Inc()
		if rt.hub != nil {
			rt.hub.Notify(user.ID, websocket.EventMachineStatus, machine)
		}
	}

	routes, err := rt.store.ListEnabledRoutesByMachine(machine.ID)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to resolve routes"), nil)
		return
	}
	directives := dispatch.ResolveAll(routes, machine.ID)

	metrics.PollsTotal.WithLabelValues("ok").Inc()
	metrics.DirectivesIssued.Add(float64(len(directives)))
	writeJSON(w, http.StatusOK, map[string]any{
		"machine_id":    machine.ID,
		"server_time":   time.Now().UTC().Format(time.RFC3339),
		"poll_interval": int(rt.cfg.SweepInterval.Seconds()),
		"directives":    directives,
	})
}

type agentStatusRequest struct {
	Details map[string]string `json:"details"`
}

// handleAgentStatus is a lightweight heartbeat for agents between polls.
// The optional details map is logged, not stored.
func (rt *Router) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	machine, ok := rt.agentMachine(w, r)
	if !ok {
		return
	}
	// An empty body is a bare heartbeat.
	var req agentStatusRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}
	if err := rt.store.TouchMachine(machine.ID); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to record status"), nil)
		return
	}
	if len(req.Details) > 0 {
		log.Debug().Int64("machine_id", machine.ID).Interface("details", req.Details).Msg("Machine status report")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// agentMachine resolves the machine bound to the request's API key. A key
// that has never registered gets a 409 telling the agent to register first.
func (rt *Router) agentMachine(w http.ResponseWriter, r *http.Request) (models.Machine, bool) {
	user := requestUser(r)
	key := requestAPIKey(r)

	machine, err := rt.store.GetMachineByKey(user.ID, key.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorResponse(w, http.StatusConflict, "not_registered", "Machine must register before this operation", nil)
			return models.Machine{}, false
		}
		writeErrorResponse(w, http.StatusInternalServerError, "internal_error",
			sanitizeErrorForClient(err, "Failed to load machine"), nil)
		return models.Machine{}, false
	}
	return machine, true
}
