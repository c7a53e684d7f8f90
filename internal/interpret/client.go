// Package interpret calls the hosted dream-interpretation backend. It is the
// gated action the usage throttle fronts: the bootstrap engine decides who may
// call it and how often, this package only speaks the wire protocol.
package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lz-215/Dream-Dictionary/internal/metrics"
)

// requestTimeout bounds a single interpretation round trip.
const requestTimeout = 30 * time.Second

// AnonymousUserID labels interpretations requested without a session.
const AnonymousUserID = "anonymous"

// Interpretation is one matched dream symbol and its reading.
type Interpretation struct {
	Keyword        string `json:"keyword"`
	Interpretation string `json:"interpretation"`
}

// Result is the parsed backend response for one dream.
type Result struct {
	Summary         string           `json:"dream_summary,omitempty"`
	Interpretations []Interpretation `json:"interpretations"`
	Perspective     string           `json:"psychological_perspective,omitempty"`
	ModelUsed       string           `json:"model_used,omitempty"`
	ProcessingTime  string           `json:"processing_time,omitempty"`
}

// Client talks to the interpretation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// interpretRequest is the JSON body posted to the backend.
type interpretRequest struct {
	DreamText string `json:"dream_text"`
	UserID    string `json:"user_id"`
	UseML     bool   `json:"use_ml"`
}

// Interpret submits one dream for interpretation. userID attributes the
// request in the backend's history; pass AnonymousUserID when no session is
// present. The backend has shipped more than one response shape, so fields
// are read tolerantly; an "error" field or a non-success status is returned
// as an error with the server's message.
func (c *Client) Interpret(ctx context.Context, dreamText, userID string, useML bool) (*Result, error) {
	if dreamText == "" {
		return nil, fmt.Errorf("dream text must not be empty")
	}
	if userID == "" {
		userID = AnonymousUserID
	}

	payload, err := json.Marshal(interpretRequest{
		DreamText: dreamText,
		UserID:    userID,
		UseML:     useML,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode interpret request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/interpret", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create interpret request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordInterpretRequest("error")
		return nil, fmt.Errorf("interpret request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordInterpretRequest("error")
		return nil, fmt.Errorf("failed to read interpret response: %w", err)
	}

	if !gjson.ValidBytes(body) {
		metrics.RecordInterpretRequest("error")
		return nil, fmt.Errorf("interpret failed: %d %s. Response: %s", resp.StatusCode, resp.Status, string(body))
	}
	root := gjson.ParseBytes(body)

	if msg := root.Get("error").String(); msg != "" {
		metrics.RecordInterpretRequest("error")
		return nil, fmt.Errorf("interpret failed: %s", msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordInterpretRequest("error")
		return nil, fmt.Errorf("interpret failed: %d %s", resp.StatusCode, resp.Status)
	}

	result := parseResult(root)
	metrics.RecordInterpretRequest("ok")
	return result, nil
}

// parseResult reads the backend fields tolerantly. The hosted deployment
// calls the summary field "summary" while the full backend calls it
// "dream_summary"; both are accepted.
func parseResult(root gjson.Result) *Result {
	result := &Result{
		Summary:        root.Get("dream_summary").String(),
		Perspective:    root.Get("psychological_perspective").String(),
		ModelUsed:      root.Get("model_used").String(),
		ProcessingTime: root.Get("processing_time").String(),
	}
	if result.Summary == "" {
		result.Summary = root.Get("summary").String()
	}
	for _, item := range root.Get("interpretations").Array() {
		keyword := item.Get("keyword").String()
		reading := item.Get("interpretation").String()
		if keyword == "" && reading == "" {
			continue
		}
		result.Interpretations = append(result.Interpretations, Interpretation{
			Keyword:        keyword,
			Interpretation: reading,
		})
	}
	return result
}
