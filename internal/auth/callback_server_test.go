package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lz-215/Dream-Dictionary/internal/redirect"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestCallbackServerCapturesRedirect(t *testing.T) {
	port := freePort(t)
	srv := NewCallbackServer(port)
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s?providerId=google-1&displayName=Bo", port, CallbackPath))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := srv.WaitForRedirect(2 * time.Second)
	require.NoError(t, err)

	// The captured URL feeds the same cascade browser redirects go through.
	id, ok := redirect.Extract(raw)
	require.True(t, ok)
	assert.Equal(t, "google-1", id.ProviderID)
	assert.Equal(t, "Bo", id.DisplayName)
}

func TestCallbackServerTimeout(t *testing.T) {
	port := freePort(t)
	srv := NewCallbackServer(port)
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())

	_, err := srv.WaitForRedirect(50 * time.Millisecond)
	require.Error(t, err)
}

func TestCallbackServerDoubleStart(t *testing.T) {
	port := freePort(t)
	srv := NewCallbackServer(port)
	require.NoError(t, srv.Start())
	defer srv.Stop(context.Background())

	require.Error(t, srv.Start())
}
