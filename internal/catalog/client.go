// Package catalog provides a client for the track catalog API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the catalog has no track for an ID.
var ErrNotFound = errors.New("track not found")

const (
	userAgent      = "tala/1.0 (https://github.com/talaplayer/tala)"
	requestTimeout = 10 * time.Second
	eventTimeout   = 5 * time.Second

	// Details requests are rate limited client-side; retries and
	// prefetches must not hammer the catalog.
	requestsPerSecond = 5
	requestBurst      = 10
)

// Client is a catalog API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a new catalog client for the given base URL
// (e.g. "https://api.example.com").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
	}
}

// Song is the catalog's slim track representation.
type Song struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Album     string  `json:"album"`
	ImageURL  string  `json:"image"`
	StreamURL string  `json:"streamUrl"`
	Duration  float64 `json:"duration"` // seconds
}

// GetDetails fetches track details by ID. forceRefresh asks the catalog to
// bypass its cache and mint a fresh stream URL.
func (c *Client) GetDetails(ctx context.Context, trackID string, forceRefresh bool) (*Song, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/api/songs/%s", c.baseURL, trackID)
	if forceRefresh {
		reqURL += "?refresh=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var song Song
	if err := json.NewDecoder(resp.Body).Decode(&song); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &song, nil
}

type eventPayload struct {
	EventID string `json:"eventId"`
	ID      string `json:"id"`
	Type    string `json:"type"`
}

// LogEvent records playback telemetry (play, like, click). Fire-and-forget:
// it returns immediately and failures are only logged.
func (c *Client) LogEvent(trackID, kind string) {
	payload := eventPayload{
		EventID: uuid.NewString(),
		ID:      trackID,
		Type:    kind,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()

		body, err := json.Marshal(payload)
		if err != nil {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			zlog.Debug().Err(err).Str("track", trackID).Str("kind", kind).Msg("catalog: event not recorded")
			return
		}
		resp.Body.Close()
	}()
}
