// Package dialogue is the HTTP client for the kitchen service's
// voice-interaction endpoint. One call per turn: the request carries the
// transcript and current conversation state, the response body is the
// synthesized audio, and everything else rides in X- headers.
package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.Dialogue = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPTimeout sets the per-turn deadline. Without it an unresponsive
// service would stall the turn forever, so the default is 30s.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient swaps the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// Client talks to the kitchen service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a dialogue client for the service at baseURL
// (e.g. "http://localhost:8000").
func NewClient(baseURL string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// voiceInput is the request body.
type voiceInput struct {
	RecipeID     string `json:"recipe_id"`
	Transcript   string `json:"transcript"`
	CurrentState string `json:"current_state"`
}

// Send performs one turn round-trip. Malformed optional metadata is
// dropped (and logged), never surfaced as a turn failure; only transport
// and status errors make the turn fail.
func (c *Client) Send(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	body, err := json.Marshal(voiceInput{
		RecipeID:     req.RecipeID,
		Transcript:   req.Transcript,
		CurrentState: req.State.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("dialogue: marshal turn: %w", err)
	}

	endpoint := fmt.Sprintf("%s/recipes/%s/voice-interaction", c.baseURL, url.PathEscape(req.RecipeID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dialogue: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug("POST %s (state=%s, %d bytes)", endpoint, req.State, len(body))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dialogue: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dialogue: service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dialogue: read audio: %w", err)
	}

	result := c.parseHeaders(resp.Header, req)
	result.Audio = audio
	c.log.Debug("turn ok: next=%s audio=%dB timer=%v subs=%d",
		result.NextState, len(result.Audio), result.Timer != nil, len(result.Substitutions))
	return result, nil
}
