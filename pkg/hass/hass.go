// Package hass is a minimal Home Assistant REST client covering what the
// poller needs: reading entity states and checking that the configured
// token works.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/homewatt/homewatt/pkg/common"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/levenlabs/go-lflag"
)

// ErrNotConfigured is returned by Configured's client when no base URL was
// provided.
var ErrNotConfigured = errors.New("home assistant url not configured")

// Client talks to a Home Assistant instance over its REST API.
type Client struct {
	client  *http.Client
	baseURL string
	token   string
}

// New returns a client for the given Home Assistant base URL and long-lived
// access token.
func New(baseURL, token string) *Client {
	return &Client{
		client:  common.HTTPClient(30 * time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Configured sets up the Home Assistant client based on flags. When running
// as a supervised addon the supervisor token and internal URL are picked up
// from the environment so no flags are needed.
func Configured() *Client {
	haURL := lflag.String("ha-url", "", "Home Assistant base URL (defaults to the supervisor proxy when SUPERVISOR_TOKEN is set)")
	haToken := lflag.String("ha-token", "", "Home Assistant long-lived access token (defaults to SUPERVISOR_TOKEN)")

	c := &Client{}

	lflag.Do(func() {
		base := *haURL
		token := *haToken
		if token == "" {
			token = os.Getenv("SUPERVISOR_TOKEN")
		}
		if base == "" && os.Getenv("SUPERVISOR_TOKEN") != "" {
			base = "http://supervisor/core"
		}
		c.client = common.HTTPClient(30 * time.Second)
		c.baseURL = strings.TrimRight(base, "/")
		c.token = token
	})

	return c
}

type stateResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// FetchState reads an entity's current state and parses it as a float.
// Entities that are missing, "unavailable", "unknown", or non-numeric
// return (nil, nil): a value-absent reading, not an error. Only transport
// and auth failures are errors.
func (c *Client) FetchState(ctx context.Context, entityID string) (*float64, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/states/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build state request for %s: %w", entityID, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state for %s: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Entity doesn't exist (yet); treat like an unavailable sensor.
		log.Ctx(ctx).DebugContext(ctx, "entity not found", slog.String("entityID", entityID))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d fetching state for %s: %s", resp.StatusCode, entityID, strings.TrimSpace(string(body)))
	}

	var state stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode state for %s: %w", entityID, err)
	}

	switch state.State {
	case "", "unavailable", "unknown", "none":
		return nil, nil
	}
	v, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		// Non-numeric states (e.g. "on") can't feed a watt series.
		log.Ctx(ctx).DebugContext(ctx, "non-numeric entity state",
			slog.String("entityID", entityID), slog.String("state", state.State))
		return nil, nil
	}
	return &v, nil
}

// ValidateAuth checks that the API is reachable and the token is accepted.
func (c *Client) ValidateAuth(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/", nil)
	if err != nil {
		return fmt.Errorf("failed to build api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach home assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("home assistant rejected token: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from home assistant", resp.StatusCode)
	}
	return nil
}
