// Package loginurl composes the provider authorization URL the login flow
// sends the user's browser to.
package loginurl

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Provider describes the external login provider endpoint.
type Provider struct {
	// AuthURL is the provider's authorization endpoint.
	AuthURL string
	// ClientID identifies this client to the provider.
	ClientID string
	// Scopes lists the requested OAuth scopes.
	Scopes []string
	// RedirectURL is where the provider sends the browser afterwards,
	// typically the loopback callback server.
	RedirectURL string
}

// Build returns the authorization URL and the state token embedded in it.
// The caller is expected to compare the state on the way back; the redirect
// extractor itself does not, matching the page script it reproduces.
func Build(p Provider) (string, string, error) {
	if p.AuthURL == "" {
		return "", "", fmt.Errorf("login provider auth-url is not configured")
	}
	if p.ClientID == "" {
		return "", "", fmt.Errorf("login provider client-id is not configured")
	}

	conf := &oauth2.Config{
		ClientID:    p.ClientID,
		RedirectURL: p.RedirectURL,
		Scopes:      p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: p.AuthURL,
		},
	}

	state := uuid.NewString()
	return conf.AuthCodeURL(state), state, nil
}
