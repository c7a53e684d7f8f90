package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lz-215/Dream-Dictionary/internal/auth"
	"github.com/lz-215/Dream-Dictionary/internal/bootstrap"
	"github.com/lz-215/Dream-Dictionary/internal/config"
	"github.com/lz-215/Dream-Dictionary/internal/gate"
	"github.com/lz-215/Dream-Dictionary/internal/history"
	"github.com/lz-215/Dream-Dictionary/internal/interpret"
	"github.com/lz-215/Dream-Dictionary/internal/session"
)

type panelFixture struct {
	server  *Server
	store   *session.Store
	backend *httptest.Server
}

// newPanelFixture wires a panel over an in-memory store, a trusted-host
// config and a fake interpretation backend.
func newPanelFixture(t *testing.T) *panelFixture {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"dream_summary": "A calm dream.",
			"interpretations": [{"keyword": "water", "interpretation": "Emotions."}]
		}`)
	}))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Host:         "localhost",
		TrustedHosts: []string{"localhost"},
		APIBaseURL:   backend.URL,
	}

	store := session.NewStore(session.NewMemoryBackend())
	orch := auth.NewOrchestrator(cfg, store, auth.NewExchanger(cfg.GetExchangeURL()), nil)
	pipeline := bootstrap.NewPipeline(orch, nil)
	throttle := gate.NewThrottle(cfg, store, nil)
	client := interpret.NewClient(cfg.GetAPIBaseURL())

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	return &panelFixture{
		server: New(Options{
			Config:      cfg,
			Store:       store,
			Pipeline:    pipeline,
			Throttle:    throttle,
			Interpreter: client,
			History:     hist,
			Logout:      orch.Logout,
		}),
		store:   store,
		backend: backend,
	}
}

func (f *panelFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newPanelFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestCallbackSignsIn(t *testing.T) {
	f := newPanelFixture(t)

	w := f.do(t, http.MethodGet, "/auth/callback?providerId=abc&displayName=Bo", "")
	assert.Equal(t, http.StatusFound, w.Code)

	sess, ok := f.store.Load()
	require.True(t, ok, "the callback must persist a session")
	assert.Equal(t, "abc", sess.ProviderID)
	assert.Equal(t, "Bo", sess.Username)
}

func TestCallbackProviderError(t *testing.T) {
	f := newPanelFixture(t)

	w := f.do(t, http.MethodGet, "/auth/callback?error=access_denied", "")
	assert.Equal(t, http.StatusFound, w.Code)

	_, ok := f.store.Load()
	assert.False(t, ok, "a provider error must not create a session")
}

func TestSessionEndpoint(t *testing.T) {
	f := newPanelFixture(t)

	w := f.do(t, http.MethodGet, "/auth/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "authenticated").Bool())

	require.NoError(t, f.store.Save(&session.Session{
		UserID: "u1", Username: "Bo", Token: "tok", ProviderID: "p1",
	}))

	w = f.do(t, http.MethodGet, "/auth/session", "")
	body := w.Body.String()
	assert.True(t, gjson.Get(body, "authenticated").Bool())
	assert.Equal(t, "Bo", gjson.Get(body, "session.username").String())
}

func TestLogout(t *testing.T) {
	f := newPanelFixture(t)
	require.NoError(t, f.store.Save(&session.Session{
		UserID: "u1", Username: "Bo", Token: "tok", ProviderID: "p1",
	}))

	w := f.do(t, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.store.IsAuthenticated())
}

func TestInterpretGated(t *testing.T) {
	f := newPanelFixture(t)

	w := f.do(t, http.MethodPost, "/api/interpret", `{"dream_text": "I swam in a clear lake"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "A calm dream.", gjson.Get(body, "result.dream_summary").String())
	assert.False(t, gjson.Get(body, "showPrompt").Bool())
	assert.Equal(t, int64(1), gjson.Get(body, "usageCount").Int())

	// The interpretation landed in the local history.
	w = f.do(t, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total_items").Int())
}

func TestInterpretPromptsAtLimit(t *testing.T) {
	f := newPanelFixture(t)

	var lastBody string
	for i := 0; i < 15; i++ {
		w := f.do(t, http.MethodPost, "/api/interpret", `{"dream_text": "spiders"}`)
		require.Equal(t, http.StatusOK, w.Code)
		lastBody = w.Body.String()
		if i < 14 {
			assert.False(t, gjson.Get(lastBody, "showPrompt").Bool(), "use %d must not prompt", i+1)
		}
	}
	assert.True(t, gjson.Get(lastBody, "showPrompt").Bool(), "the 15th use must prompt")
}

func TestInterpretRequiresDreamText(t *testing.T) {
	f := newPanelFixture(t)
	w := f.do(t, http.MethodPost, "/api/interpret", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	f := newPanelFixture(t)

	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/api/interpret", `{"dream_text": "the sea again"}`)
	}

	w := f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, int64(3), gjson.Get(body, "total_dreams").Int())
	assert.Equal(t, "water", gjson.Get(body, "common_keywords.0.keyword").String())
}
