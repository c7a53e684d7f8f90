package loginurl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	authURL, state, err := Build(Provider{
		AuthURL:     "https://login.example.com/authorize",
		ClientID:    "dream-client",
		Scopes:      []string{"profile", "email"},
		RedirectURL: "http://localhost:8216/auth/callback",
	})
	require.NoError(t, err)
	require.NotEmpty(t, state)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "login.example.com", parsed.Host)
	assert.Equal(t, "/authorize", parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "dream-client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8216/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "profile email", q.Get("scope"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestBuildStateIsUnique(t *testing.T) {
	p := Provider{AuthURL: "https://login.example.com/authorize", ClientID: "c"}
	_, first, err := Build(p)
	require.NoError(t, err)
	_, second, err := Build(p)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBuildRequiresConfiguration(t *testing.T) {
	_, _, err := Build(Provider{ClientID: "c"})
	assert.Error(t, err)

	_, _, err = Build(Provider{AuthURL: "https://login.example.com/authorize"})
	assert.Error(t, err)
}
