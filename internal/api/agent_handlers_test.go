package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/dispatch"
	"conveyor/internal/models"
)

func (e *testEnv) agentDo(t *testing.T, method, path, apiKey string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", apiKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// createKey provisions an API key through the dashboard API and returns the
// raw key material.
func (e *testEnv) createKey(t *testing.T, token, name string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/keys", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody[struct {
		Key string `json:"key"`
	}](t, resp)
	require.NotEmpty(t, body.Key)
	return body.Key
}

func (e *testEnv) registerMachine(t *testing.T, apiKey, name string) models.Machine {
	t.Helper()
	resp := e.agentDo(t, http.MethodPost, "/api/agent/register", apiKey, map[string]string{"name": name})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Machine models.Machine `json:"machine"`
	}](t, resp)
	return body.Machine
}

func (e *testEnv) syncPeripherals(t *testing.T, apiKey string, names ...string) {
	t.Helper()
	peripherals := make([]map[string]string, 0, len(names))
	for _, name := range names {
		peripherals = append(peripherals, map[string]string{"name": name, "type": "inventory"})
	}
	resp := e.agentDo(t, http.MethodPost, "/api/agent/peripherals", apiKey, map[string]any{
		"peripherals": peripherals,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

type pollResponse struct {
	MachineID  int64                `json:"machine_id"`
	Directives []dispatch.Directive `json:"directives"`
}

func (e *testEnv) poll(t *testing.T, apiKey string) pollResponse {
	t.Helper()
	resp := e.agentDo(t, http.MethodGet, "/api/agent/poll", apiKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decodeBody[pollResponse](t, resp)
}

func TestAgentRejectsBadKey(t *testing.T) {
	env := newTestEnv(t)
	resp := env.agentDo(t, http.MethodGet, "/api/agent/poll", "cc_not_a_real_key", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAgentMustRegisterBeforePolling(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")

	resp := env.agentDo(t, http.MethodGet, "/api/agent/poll", apiKey, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAgentRegistrationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")

	first := env.registerMachine(t, apiKey, "hub")
	second := env.registerMachine(t, apiKey, "hub-renamed")
	assert.Equal(t, first.ID, second.ID, "re-registration must reuse the machine row")
	assert.Equal(t, "hub-renamed", second.Name)
}

func TestPollDeliversDirectives(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")
	machine := env.registerMachine(t, apiKey, "hub")
	env.syncPeripherals(t, apiKey, "minecraft:chest_0", "minecraft:barrel_0")

	resp := env.do(t, http.MethodGet, "/api/peripherals", token, nil)
	peripherals := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)
	require.Len(t, peripherals.Peripherals, 2)

	resp = env.do(t, http.MethodPost, "/api/routes", token, map[string]any{
		"name":                 "ore feed",
		"source_peripheral_id": peripherals.Peripherals[1].ID,
		"dest_peripheral_id":   peripherals.Peripherals[0].ID,
		"filter": map[string]any{
			"kind":  "names",
			"names": []string{"minecraft:iron_ore"},
		},
	})
	route := decodeBody[models.Route](t, resp)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	poll := env.poll(t, apiKey)
	require.Len(t, poll.Directives, 1)
	directive := poll.Directives[0]
	assert.Equal(t, route.ID, directive.RouteID)
	assert.Equal(t, dispatch.ActionTransfer, directive.Action)
	assert.Equal(t, "minecraft:chest_0", directive.Source)
	assert.Equal(t, "minecraft:barrel_0", directive.Dest)
	assert.Equal(t, models.FilterNames, directive.FilterKind)
	assert.True(t, directive.Accepts("minecraft:iron_ore"))
	assert.False(t, directive.Accepts("minecraft:dirt"))
	assert.Equal(t, machine.ID, poll.MachineID)
}

func TestPollSkipsDisabledRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")
	env.registerMachine(t, apiKey, "hub")
	env.syncPeripherals(t, apiKey, "minecraft:chest_0", "minecraft:barrel_0")

	resp := env.do(t, http.MethodGet, "/api/peripherals", token, nil)
	peripherals := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)

	resp = env.do(t, http.MethodPost, "/api/routes", token, map[string]any{
		"name":                 "loop",
		"source_peripheral_id": peripherals.Peripherals[0].ID,
		"dest_peripheral_id":   peripherals.Peripherals[1].ID,
	})
	route := decodeBody[models.Route](t, resp)
	require.Len(t, env.poll(t, apiKey).Directives, 1)

	enabled := false
	resp = env.do(t, http.MethodPatch, "/api/routes/"+itoa(route.ID), token, map[string]any{
		"enabled": enabled,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, env.poll(t, apiKey).Directives, "disabled route must not produce directives")
}

func TestPollSkipsCrossMachineRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	keyA := env.createKey(t, token, "hub-key")
	keyB := env.createKey(t, token, "outpost-key")
	env.registerMachine(t, keyA, "hub")
	env.registerMachine(t, keyB, "outpost")
	env.syncPeripherals(t, keyA, "minecraft:chest_0")
	env.syncPeripherals(t, keyB, "minecraft:barrel_0")

	resp := env.do(t, http.MethodGet, "/api/peripherals", token, nil)
	peripherals := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)
	require.Len(t, peripherals.Peripherals, 2)

	// A route spanning two machines is storable but never resolvable:
	// transfers are peripheral-bus-local.
	resp = env.do(t, http.MethodPost, "/api/routes", token, map[string]any{
		"name":                 "impossible span",
		"source_peripheral_id": peripherals.Peripherals[0].ID,
		"dest_peripheral_id":   peripherals.Peripherals[1].ID,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Empty(t, env.poll(t, keyA).Directives)
	assert.Empty(t, env.poll(t, keyB).Directives)
}

func TestPeripheralSyncPrunesRemovedRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")
	env.registerMachine(t, apiKey, "hub")
	env.syncPeripherals(t, apiKey, "minecraft:chest_0", "minecraft:barrel_0")

	resp := env.do(t, http.MethodGet, "/api/peripherals", token, nil)
	peripherals := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)

	resp = env.do(t, http.MethodPost, "/api/routes", token, map[string]any{
		"name":                 "loop",
		"source_peripheral_id": peripherals.Peripherals[0].ID,
		"dest_peripheral_id":   peripherals.Peripherals[1].ID,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The chest disappears from the bus; the route referencing it cascades
	// away and the next poll carries nothing.
	env.syncPeripherals(t, apiKey, "minecraft:barrel_0")
	assert.Empty(t, env.poll(t, apiKey).Directives)

	resp = env.do(t, http.MethodGet, "/api/routes", token, nil)
	routes := decodeBody[struct {
		Routes []models.Route `json:"routes"`
	}](t, resp)
	assert.Empty(t, routes.Routes)
}

func TestAgentStatusHeartbeat(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")
	env.registerMachine(t, apiKey, "hub")

	resp := env.agentDo(t, http.MethodPost, "/api/agent/status", apiKey, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := env.agentDo(t, http.MethodPost, "/api/agent/status", apiKey, map[string]any{
		"details": map[string]string{"fuel": "low"},
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestSearchPeripherals(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	apiKey := env.createKey(t, token, "turtle")
	env.registerMachine(t, apiKey, "hub")
	env.syncPeripherals(t, apiKey, "minecraft:chest_0", "minecraft:barrel_0")

	resp := env.do(t, http.MethodGet, "/api/peripherals/search?q=chest", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)
	require.Len(t, body.Peripherals, 1)
	assert.Equal(t, "minecraft:chest_0", body.Peripherals[0].Name)

	// Machine name matches too.
	resp = env.do(t, http.MethodGet, "/api/peripherals/search?q=hub", token, nil)
	all := decodeBody[struct {
		Peripherals []models.Peripheral `json:"peripherals"`
	}](t, resp)
	assert.Len(t, all.Peripherals, 2)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
