package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lz-215/Dream-Dictionary/internal/config"
	apperrors "github.com/lz-215/Dream-Dictionary/internal/errors"
	"github.com/lz-215/Dream-Dictionary/internal/redirect"
	"github.com/lz-215/Dream-Dictionary/internal/session"
)

type recordedEvent struct {
	kind    string
	message string
	count   int
	url     string
	sess    *session.Session
}

// recordingReconciler captures reconcile calls for assertions.
type recordingReconciler struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingReconciler) SessionChanged(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "session", sess: sess})
}

func (r *recordingReconciler) ShowLoginError(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "login-error", message: message})
}

func (r *recordingReconciler) ShowUsagePrompt(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "usage-prompt", count: count})
}

func (r *recordingReconciler) AddressChanged(cleanURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind: "address", url: cleanURL})
}

func (r *recordingReconciler) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.kind)
	}
	return kinds
}

func TestResolveTrustedHostSynthesizes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := session.NewStore(session.NewMemoryBackend())
	rec := &recordingReconciler{}
	orch := NewOrchestrator(&config.Config{Host: "localhost"}, store, NewExchanger(srv.URL), rec)

	rawURL := "http://localhost:8217/auth/callback?providerId=google-123&displayName=Bo&email=bo%40example.com"
	sess, appErr := orch.Resolve(context.Background(), redirect.Identity{
		ProviderID:  "google-123",
		DisplayName: "Bo",
		Email:       "bo@example.com",
	}, rawURL)

	require.Nil(t, appErr)
	require.NotNil(t, sess)
	assert.Equal(t, int32(0), hits.Load(), "trusted host must not contact the exchange endpoint")

	assert.True(t, strings.HasPrefix(sess.UserID, "user_"))
	assert.True(t, strings.HasPrefix(sess.Token, "local_"))
	assert.Equal(t, "Bo", sess.Username)
	assert.Equal(t, "google-123", sess.ProviderID)
	assert.Equal(t, "bo@example.com", sess.Email)
	assert.Contains(t, sess.AvatarURL, "ui-avatars.com")

	assert.True(t, store.IsAuthenticated())
	require.Equal(t, []string{"address", "session"}, rec.kinds())
	assert.Equal(t, "http://localhost:8217/auth/callback", rec.events[0].url)
	assert.Equal(t, sess.Username, rec.events[1].sess.Username)
}

func TestResolveExchangeSuccess(t *testing.T) {
	var gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token":"srv-token-1","username":"bo.served","userId":"u-900"}`)
	}))
	defer srv.Close()

	store := session.NewStore(session.NewMemoryBackend())
	rec := &recordingReconciler{}
	orch := NewOrchestrator(&config.Config{Host: "untrusted.example.net"}, store, NewExchanger(srv.URL), rec)

	sess, appErr := orch.Resolve(context.Background(), redirect.Identity{
		ProviderID:  "google-123",
		DisplayName: "Bo",
	}, "https://untrusted.example.net/?providerId=google-123&displayName=Bo")

	require.Nil(t, appErr)
	require.NotNil(t, sess)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "google-123", gotBody["providerId"])
	assert.Equal(t, "Bo", gotBody["displayName"])

	assert.Equal(t, "srv-token-1", sess.Token)
	assert.Equal(t, "bo.served", sess.Username)
	assert.Equal(t, "u-900", sess.UserID)
	assert.Equal(t, "google-123", sess.ProviderID)

	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, []string{"address", "session"}, rec.kinds())
}

func TestResolveExchangeFailureFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "{not json")
			},
		},
		{
			name: "missing token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"username":"bo.served","userId":"u-900"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			store := session.NewStore(session.NewMemoryBackend())
			rec := &recordingReconciler{}
			orch := NewOrchestrator(&config.Config{Host: "untrusted.example.net"}, store, NewExchanger(srv.URL), rec)

			sess, appErr := orch.Resolve(context.Background(), redirect.Identity{
				ProviderID:  "p1",
				DisplayName: "Li",
			}, "")

			require.Nil(t, appErr)
			require.NotNil(t, sess)
			assert.True(t, strings.HasPrefix(sess.Token, "local_"))
			assert.Equal(t, "Li", sess.Username)
			assert.Equal(t, "p1", sess.ProviderID)
			assert.True(t, store.IsAuthenticated())
			assert.Equal(t, []string{"session"}, rec.kinds())
		})
	}

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		endpoint := srv.URL
		srv.Close()

		store := session.NewStore(session.NewMemoryBackend())
		orch := NewOrchestrator(&config.Config{Host: "untrusted.example.net"}, store, NewExchanger(endpoint), &recordingReconciler{})

		sess, appErr := orch.Resolve(context.Background(), redirect.Identity{ProviderID: "p1"}, "")
		require.Nil(t, appErr)
		require.NotNil(t, sess)
		assert.True(t, strings.HasPrefix(sess.Token, "local_"))
		assert.True(t, store.IsAuthenticated())
	})
}

func TestResolveFallbackDisabledSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	disabled := false
	cfg := &config.Config{Host: "untrusted.example.net", AllowFallbackOnFailure: &disabled}
	store := session.NewStore(session.NewMemoryBackend())
	rec := &recordingReconciler{}
	orch := NewOrchestrator(cfg, store, NewExchanger(srv.URL), rec)

	sess, appErr := orch.Resolve(context.Background(), redirect.Identity{ProviderID: "p1"}, "https://untrusted.example.net/?providerId=p1")

	require.NotNil(t, appErr)
	assert.Nil(t, sess)
	assert.Equal(t, apperrors.CodeExchangeFailure, appErr.Code)
	assert.Equal(t, 502, appErr.HTTPStatusCode)
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, rec.kinds(), "a surfaced failure must not reconcile the UI")
}

func TestResolveMissingIdentity(t *testing.T) {
	store := session.NewStore(session.NewMemoryBackend())
	rec := &recordingReconciler{}
	orch := NewOrchestrator(&config.Config{}, store, nil, rec)

	sess, appErr := orch.Resolve(context.Background(), redirect.Identity{}, "http://localhost/?foo=1")

	require.NotNil(t, appErr)
	assert.Nil(t, sess)
	assert.Equal(t, apperrors.CodeMissingIdentity, appErr.Code)
	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, rec.kinds())
}

func TestSynthesizeUsernameChain(t *testing.T) {
	tests := []struct {
		name string
		id   redirect.Identity
		want string
	}{
		{
			name: "display name wins",
			id:   redirect.Identity{ProviderID: "p", DisplayName: "Bo", Email: "bo@example.com"},
			want: "Bo",
		},
		{
			name: "email when no display name",
			id:   redirect.Identity{ProviderID: "p", Email: "bo@example.com"},
			want: "bo@example.com",
		},
		{
			name: "default label when neither",
			id:   redirect.Identity{ProviderID: "p"},
			want: DefaultUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := Synthesize(tt.id)
			assert.Equal(t, tt.want, sess.Username)
		})
	}
}

func TestSynthesizeAvatar(t *testing.T) {
	withOwn := Synthesize(redirect.Identity{ProviderID: "p", AvatarURL: "https://cdn.example.com/a.png"})
	assert.Equal(t, "https://cdn.example.com/a.png", withOwn.AvatarURL)

	generated := Synthesize(redirect.Identity{ProviderID: "p", DisplayName: "Dream Walker"})
	assert.Equal(t, "https://ui-avatars.com/api/?name=Dream+Walker&background=7c3aed&color=fff", generated.AvatarURL)
}

type failingBackend struct{}

func (failingBackend) Read(string) ([]byte, error) { return nil, session.ErrRecordNotFound }
func (failingBackend) Write(string, []byte) error  { return errors.New("disk full") }
func (failingBackend) Delete(string) error         { return nil }
func (failingBackend) Exists(string) bool          { return false }

func TestResolveSaveFailureLeavesNoPartialState(t *testing.T) {
	store := session.NewStore(failingBackend{})
	rec := &recordingReconciler{}
	orch := NewOrchestrator(&config.Config{Host: "localhost"}, store, nil, rec)

	sess, appErr := orch.Resolve(context.Background(), redirect.Identity{ProviderID: "p"}, "http://localhost/?providerId=p")

	require.NotNil(t, appErr)
	assert.Nil(t, sess)
	assert.Equal(t, 500, appErr.HTTPStatusCode)
	assert.Empty(t, rec.kinds())
}

func TestLogout(t *testing.T) {
	store := session.NewStore(session.NewMemoryBackend())
	rec := &recordingReconciler{}
	orch := NewOrchestrator(&config.Config{Host: "localhost"}, store, nil, rec)

	_, appErr := orch.Resolve(context.Background(), redirect.Identity{ProviderID: "p"}, "")
	require.Nil(t, appErr)
	require.True(t, store.IsAuthenticated())

	require.NoError(t, orch.Logout())
	assert.False(t, store.IsAuthenticated())

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "session", last.kind)
	assert.Nil(t, last.sess)
}
