package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projecthub/internal/app"
	"projecthub/internal/config"
	"projecthub/internal/domain"
	"projecthub/internal/logging"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "ph.db")
	cfg.Auth = config.AuthConfig{JWTSecret: testSecret, AllowUserHeader: true, DevLogin: true}
	a, err := app.New(cfg, app.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	handler, err := New(Config{Engine: a.Engine, BasePath: "/v1", Auth: cfg.Auth, Logger: logging.Discard()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		a.Close()
	})
	return &testServer{URL: "http://" + ln.Addr().String() + "/v1", client: &http.Client{}}
}

type call struct {
	method  string
	path    string
	body    any
	user    string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, s.URL+c.path, reader)
	require.NoError(t, err)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set(userHeader, c.user)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, data
}

func decodeInto[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type envelope struct {
	Error apiErrorBody `json:"error"`
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestMissingPrincipalIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodGet, path: "/projects"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", decodeInto[envelope](t, body).Error.Code)

	status, body = s.do(t, call{method: http.MethodGet, path: "/projects", headers: map[string]string{"Authorization": "Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", decodeInto[envelope](t, body).Error.Code)
}

func TestDevLoginTokenAuthenticates(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/auth/dev/login", body: map[string]string{"user_id": "ana"}})
	require.Equal(t, http.StatusOK, status, string(body))
	token := decodeInto[DevLoginResponse](t, body).Token
	require.NotEmpty(t, token)

	bearer := map[string]string{"Authorization": "Bearer " + token}
	status, body = s.do(t, call{method: http.MethodPost, path: "/projects", body: map[string]string{"id": "p1", "title": "Kiosk"}, headers: bearer})
	require.Equal(t, http.StatusCreated, status, string(body))
	p := decodeInto[domain.Project](t, body)
	assert.Equal(t, "ana", p.OwnerID)
	assert.Equal(t, domain.StageIdea, p.Stage)

	status, body = s.do(t, call{method: http.MethodGet, path: "/projects", headers: bearer})
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeInto[[]domain.Project](t, body), 1)
}

func TestWorkflowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/projects", body: map[string]string{"id": "p1", "title": "Kiosk"}, user: "lead"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/members", body: map[string]string{"user_id": "dev", "role": "CONTRIBUTOR"}, user: "lead"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, call{method: http.MethodGet, path: "/projects/p1", user: "stranger"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "permission_denied", decodeInto[envelope](t, body).Error.Code)

	for _, id := range []string{"t1", "t2"} {
		status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/tasks", body: map[string]any{"id": id, "title": "task " + id, "assignee_id": "dev"}, user: "lead"})
		require.Equal(t, http.StatusCreated, status, string(body))
	}

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t2/dependencies", body: map[string]string{"depends_on_id": "t1"}, user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, decodeInto[DependencyResponse](t, body).Added)

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t1/dependencies", body: map[string]string{"depends_on_id": "t2"}, user: "lead"})
	require.Equal(t, http.StatusConflict, status, string(body))
	env := decodeInto[envelope](t, body)
	assert.Equal(t, "circular_dependency", env.Error.Code)
	assert.Equal(t, []any{"t1", "t2", "t1"}, env.Error.Details["path"])

	status, body = s.do(t, call{method: http.MethodDelete, path: "/tasks/t1/dependencies/t2", user: "lead"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "dependency_not_found", decodeInto[envelope](t, body).Error.Code)

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t1/block", body: map[string]string{"reason": "waiting"}, user: "dev"})
	assert.Equal(t, http.StatusForbidden, status, string(body))

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t1/block", body: map[string]string{"reason": "waiting on vendor"}, user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	blocked := decodeInto[domain.Task](t, body)
	assert.Equal(t, domain.TaskBlocked, blocked.Status)
	require.NotNil(t, blocked.Block)
	assert.Equal(t, domain.TaskTodo, blocked.Block.PreviousStatus)

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t1/unblock", user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, domain.TaskTodo, decodeInto[domain.Task](t, body).Status)

	status, body = s.do(t, call{method: http.MethodPatch, path: "/tasks/t1", body: map[string]string{"status": "DONE"}, user: "dev"})
	assert.Equal(t, http.StatusConflict, status, string(body))
	assert.Equal(t, "invalid_transition", decodeInto[envelope](t, body).Error.Code)

	status, body = s.do(t, call{method: http.MethodPost, path: "/tasks/t1/time-entries", body: map[string]any{"date": "2024-03-01", "hours": 0.3}, user: "dev"})
	assert.Equal(t, http.StatusBadRequest, status, string(body))
	env = decodeInto[envelope](t, body)
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, "hours", env.Error.Details["field"])

	status, body = s.do(t, call{method: http.MethodGet, path: "/tasks/missing", user: "lead"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decodeInto[envelope](t, body).Error.Code)

	status, body = s.do(t, call{method: http.MethodGet, path: "/projects/p1/events?type=dependency.added", user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Len(t, decodeInto[[]domain.Event](t, body), 1)
}

func TestStageTransitionsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/projects", body: map[string]string{"id": "p1", "title": "Kiosk"}, user: "lead"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, call{method: http.MethodGet, path: "/projects/p1/transitions", user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	opts := decodeInto[[]map[string]any](t, body)
	require.NotEmpty(t, opts)
	assert.Equal(t, "DRAFT", opts[0]["to"])

	status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/transitions", body: map[string]any{"to": "ACTIVE"}, user: "lead"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_transition", decodeInto[envelope](t, body).Error.Code)

	status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/transitions", body: map[string]any{"to": "DRAFT", "met": []string{"title and description provided"}}, user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, domain.StageDraft, decodeInto[domain.Project](t, body).Stage)
}

func TestPerformActionEndpoint(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, call{method: http.MethodPost, path: "/projects", body: map[string]string{"id": "p1", "title": "Kiosk"}, user: "lead"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/actions", body: map[string]any{
		"action":  "create_task",
		"payload": map[string]any{"id": "t1", "title": "Wire it"},
	}, user: "lead"})
	require.Equal(t, http.StatusOK, status, string(body))
	res := decodeInto[map[string]any](t, body)
	assert.Equal(t, "create_task", res["action"])

	status, body = s.do(t, call{method: http.MethodPost, path: "/projects/p1/actions", body: map[string]any{"action": "fly"}, user: "lead"})
	assert.Equal(t, http.StatusBadRequest, status, string(body))
}
