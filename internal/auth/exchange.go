package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lz-215/Dream-Dictionary/internal/metrics"
	"github.com/lz-215/Dream-Dictionary/internal/redirect"
	"github.com/lz-215/Dream-Dictionary/internal/session"
)

// exchangeTimeout bounds a single identity exchange round trip.
const exchangeTimeout = 15 * time.Second

// Exchanger submits extracted identities to the remote exchange endpoint and
// builds sessions from its responses.
type Exchanger struct {
	endpoint   string
	httpClient *http.Client
}

// NewExchanger creates a new Exchanger for the given endpoint.
func NewExchanger(endpoint string) *Exchanger {
	return &Exchanger{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: exchangeTimeout},
	}
}

// exchangeRequest is the JSON body posted to the exchange endpoint.
type exchangeRequest struct {
	ProviderID  string `json:"providerId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Exchange performs a single identity exchange. It returns an error on any
// transport failure, non-success status, unparsable body, or a body without a
// token; the caller decides whether that degrades to local synthesis.
func (e *Exchanger) Exchange(ctx context.Context, id redirect.Identity) (*session.Session, error) {
	payload, err := json.Marshal(exchangeRequest{
		ProviderID:  id.ProviderID,
		DisplayName: id.DisplayName,
		Email:       id.Email,
		AvatarURL:   id.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		metrics.RecordExchangeFailure("transport")
		return nil, fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordExchangeFailure("body")
		return nil, fmt.Errorf("failed to read exchange response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordExchangeFailure("status")
		return nil, fmt.Errorf("exchange failed: %d %s. Response: %s", resp.StatusCode, resp.Status, string(body))
	}

	if !gjson.ValidBytes(body) {
		metrics.RecordExchangeFailure("body")
		return nil, fmt.Errorf("failed to parse exchange response: %s", string(body))
	}

	// The hosted backend has shipped more than one response shape; read the
	// fields tolerantly instead of binding a strict struct.
	root := gjson.ParseBytes(body)
	token := root.Get("token").String()
	if token == "" {
		metrics.RecordExchangeFailure("token")
		return nil, fmt.Errorf("exchange failed: token not found in response")
	}

	sess := &session.Session{
		UserID:     root.Get("userId").String(),
		Username:   root.Get("username").String(),
		Token:      token,
		ProviderID: id.ProviderID,
		AvatarURL:  root.Get("avatarUrl").String(),
		Email:      id.Email,
	}
	if sess.UserID == "" {
		sess.UserID = "user_" + uuid.NewString()
	}
	if sess.Username == "" {
		sess.Username = fallbackUsername(id)
	}
	if sess.AvatarURL == "" {
		sess.AvatarURL = pickAvatar(id.AvatarURL, sess.Username)
	}
	return sess, nil
}
