package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/app"
	"github.com/nfrund/hexarena/internal/config"
)

func newTestServer(t *testing.T, dir string) *Server {
	t.Helper()
	env := map[string]string{"SNAPSHOT_DIR": dir, "BATTLE_COUNTDOWN": "1h", "BATTLE_EPOCH_INTERVAL": "1h"}
	cfg, err := config.FromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	s, err := New(context.Background(), cfg, app.NewModules())
	require.NoError(t, err)
	return s
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func TestServer_RoutesAndRecovery(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, dir)

	rec := serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = serve(s, http.MethodPost, "/api/battles", `{"id":"persisted","assets":["BTC"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, name := range []string{"Alice", "Bob"} {
		rec = serve(s, http.MethodPost, "/api/battles/persisted/join", `{"name":"`+name+`","archetype":"SURVIVOR"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	require.NoError(t, s.Shutdown(context.Background()))

	// A new process over the same snapshot directory picks the lobby up.
	restarted := newTestServer(t, dir)
	t.Cleanup(func() { _ = restarted.Shutdown(context.Background()) })

	rec = serve(restarted, http.MethodGet, "/api/battles/persisted", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Status string `json:"status"`
		Seq    uint64 `json:"seq"`
		State  struct {
			Participants []json.RawMessage `json:"participants"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "LOBBY", snap.Status)
	assert.Len(t, snap.State.Participants, 2)
	assert.Equal(t, uint64(3), snap.Seq)

	rec = serve(restarted, http.MethodGet, "/api/battles/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
