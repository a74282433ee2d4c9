package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"conveyor/internal/catalog"
	"conveyor/internal/config"
	"conveyor/internal/models"
	"conveyor/internal/store"
)

type testEnv struct {
	router *Router
	server *httptest.Server
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	router := New(cfg, st, catalog.Default(), nil)
	server := httptest.NewServer(router.Handler())
	t.Cleanup(server.Close)

	return &testEnv{router: router, server: server, store: st}
}

// login authenticates as the seeded admin and returns the session token.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	return e.loginAs(t, "admin", "admin")
}

func (e *testEnv) loginAs(t *testing.T, username, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s: status %d", username, resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/health", "", nil)
	body := decodeBody[map[string]any](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if count, _ := body["catalog"].(float64); count < 1 {
		t.Errorf("catalog count = %v, want > 0", body["catalog"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/machines", "/api/routes", "/api/keys", "/api/items/search?q=iron"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s without session: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout: status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminOnlyUserManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"username": "worker",
		"password": "hunter2",
	})
	user := decodeBody[models.User](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: status = %d", resp.StatusCode)
	}
	if user.IsAdmin {
		t.Error("new user should not be admin by default")
	}

	// The non-admin cannot reach user management.
	workerToken := env.loginAs(t, "worker", "hunter2")
	resp = env.do(t, http.MethodGet, "/api/users", workerToken, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin list users: status = %d, want 403", resp.StatusCode)
	}

	// Duplicate usernames conflict.
	resp = env.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"username": "worker",
		"password": "hunter2",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate user: status = %d, want 409", resp.StatusCode)
	}
}

func TestAdminResetPassword(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/users", admin, map[string]any{
		"username": "worker",
		"password": "hunter2",
	})
	user := decodeBody[models.User](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/users/%d/password", user.ID), admin, map[string]string{
		"password": "new-secret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset password: status = %d", resp.StatusCode)
	}
	env.loginAs(t, "worker", "new-secret")

	// Resetting an unknown user is a 404.
	resp = env.do(t, http.MethodPost, "/api/users/9999/password", admin, map[string]string{
		"password": "whatever",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: status = %d, want 404", resp.StatusCode)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := env.do(t, http.MethodPost, "/api/auth/password", token, map[string]string{
		"current_password": "admin",
		"new_password":     "correct-horse",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password: status = %d", resp.StatusCode)
	}

	// Old password no longer works; the new one does.
	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "admin", "password": "admin",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password: status = %d, want 401", resp.StatusCode)
	}
	env.loginAs(t, "admin", "correct-horse")
}

func TestSearchItems(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := env.do(t, http.MethodGet, "/api/items/search?q=iron_b", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Query   string   `json:"query"`
		Results []string `json:"results"`
	}](t, resp)
	if len(body.Results) == 0 {
		t.Fatal("expected results for iron_b")
	}
	if body.Results[0] != "iron_block" {
		t.Errorf("first result = %q, want iron_block (abbreviation match)", body.Results[0])
	}

	resp = env.do(t, http.MethodGet, "/api/items/search", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing query: status = %d, want 400", resp.StatusCode)
	}

	// Explicit limit caps results below the server default.
	resp = env.do(t, http.MethodGet, "/api/items/search?q=iron&limit=1", token, nil)
	limited := decodeBody[struct {
		Results []string `json:"results"`
	}](t, resp)
	if len(limited.Results) != 1 {
		t.Errorf("limit=1 returned %d results", len(limited.Results))
	}
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "trace-me-123" {
		t.Errorf("X-Request-ID = %q, want trace-me-123", got)
	}
}

func TestSessionExpiry(t *testing.T) {
	sessions := NewSessionStore(50 * time.Millisecond)
	token, err := sessions.Create(1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := sessions.Resolve(token); !ok {
		t.Fatal("fresh session should resolve")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := sessions.Resolve(token); ok {
		t.Fatal("expired session should not resolve")
	}
	if sessions.Len() != 0 {
		t.Errorf("expired session not evicted, len = %d", sessions.Len())
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/api/routes/42":              "/api/routes/{id}",
		"/api/machines/7/peripherals": "/api/machines/{id}/peripherals",
		"/api/health":                 "/api/health",
		"/":                           "/",
	}
	for path, want := range cases {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestPanicRecovery(t *testing.T) {
	handler := ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(fmt.Errorf("boom"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var apiErr APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if apiErr.Code != "internal_error" {
		t.Errorf("code = %q", apiErr.Code)
	}
}
