// Package catalog provides a client for the Track Catalog Service HTTP API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/autodj/internal/domain/track"
)

// ErrNoRecommendation is returned when the service has no track to offer.
var ErrNoRecommendation = errors.New("catalog has no recommendation")

// Client is a Track Catalog Service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid catalog base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// ListTracks retrieves the track list. Trashed tracks are included only when
// includeDeleted is set.
func (c *Client) ListTracks(ctx context.Context, includeDeleted bool) ([]track.Track, error) {
	params := url.Values{}
	params.Set("include_deleted", strconv.FormatBool(includeDeleted))

	body, err := c.get(ctx, "/tracks", params)
	if err != nil {
		return nil, err
	}

	var response []trackResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse track list")
	}

	tracks := make([]track.Track, 0, len(response))
	for _, r := range response {
		tracks = append(tracks, r.toTrack())
	}

	zlog.Debug().Msgf("catalog: listed tracks: count=%d include_deleted=%v", len(tracks), includeDeleted)
	return tracks, nil
}

// StreamURL returns the URI serving the raw audio bytes of a track.
func (c *Client) StreamURL(trackID int64) string {
	return fmt.Sprintf("%s/tracks/%d/stream", c.baseURL, trackID)
}

// Next asks the recommendation endpoint for the track to play after currentID.
// currentID is nil for the seed request. History is sent comma-joined.
func (c *Client) Next(ctx context.Context, currentID *int64, targetEnergy float64, history []int64) (track.Track, error) {
	params := url.Values{}
	if currentID != nil {
		params.Set("current_id", strconv.FormatInt(*currentID, 10))
	}
	params.Set("target_energy", strconv.FormatFloat(targetEnergy, 'f', -1, 64))
	params.Set("history", JoinIDs(history))

	body, err := c.get(ctx, "/set/next", params)
	if err != nil {
		return track.Track{}, err
	}

	var response trackResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return track.Track{}, errors.Wrap(err, "failed to parse recommendation")
	}
	if response.ID == 0 {
		return track.Track{}, errors.New("recommendation has no track id")
	}

	t := response.toTrack()
	zlog.Debug().Msgf("catalog: recommendation received: track=%s history_len=%d", t, len(history))
	return t, nil
}

// get performs a GET request and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode == http.StatusNotFound && path == "/set/next" {
		return nil, errors.Wrap(ErrNoRecommendation, apiErrorDetail(body))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("catalog API error %d: %s", resp.StatusCode, apiErrorDetail(body))
	}

	return body, nil
}

// JoinIDs renders ids the way the recommendation endpoint expects them.
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
