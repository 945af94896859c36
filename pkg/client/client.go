package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dougsko/smyd/pkg/device"
	"github.com/dougsko/smyd/pkg/playlist"
	"github.com/dougsko/smyd/pkg/protocol"
	"github.com/dougsko/smyd/pkg/storage"
)

// APIClient talks to a running smyd daemon over its HTTP API.
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for the daemon at baseURL, e.g.
// "http://localhost:8080".
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr protocol.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// Status returns the daemon status document.
func (c *APIClient) Status() (*protocol.Status, error) {
	var st protocol.Status
	if err := c.do(http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Connect asks the daemon to open its instrument link.
func (c *APIClient) Connect() (*device.Identity, error) {
	var id device.Identity
	if err := c.do(http.MethodPost, "/api/connect", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// Disconnect closes the instrument link.
func (c *APIClient) Disconnect() error {
	return c.do(http.MethodPost, "/api/disconnect", nil, nil)
}

// SetFrequency sets the output frequency in Hz.
func (c *APIClient) SetFrequency(hz int64) error {
	return c.do(http.MethodPost, "/api/frequency", protocol.FrequencyRequest{FrequencyHz: hz}, nil)
}

// SetLevel sets the output level in dBm.
func (c *APIClient) SetLevel(dbm float64) error {
	return c.do(http.MethodPost, "/api/level", protocol.LevelRequest{LevelDbm: dbm}, nil)
}

// SetOutput turns the RF output on or off.
func (c *APIClient) SetOutput(enabled bool) error {
	return c.do(http.MethodPost, "/api/output", protocol.OutputRequest{Enabled: enabled}, nil)
}

// SetModulation selects FM (with deviation) or AM.
func (c *APIClient) SetModulation(mode string, deviationHz int) error {
	return c.do(http.MethodPost, "/api/modulation",
		protocol.ModulationRequest{Mode: mode, DeviationHz: deviationHz}, nil)
}

// Reset restores the instrument to factory defaults.
func (c *APIClient) Reset() error {
	return c.do(http.MethodPost, "/api/reset", nil, nil)
}

// Snapshot polls the instrument for its current front-panel state.
func (c *APIClient) Snapshot() (*device.State, error) {
	var resp protocol.StateResponse
	if err := c.do(http.MethodGet, "/api/state", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.State, nil
}

// GetPlaylist fetches the daemon's live playlist.
func (c *APIClient) GetPlaylist() (playlist.Playlist, error) {
	var pl playlist.Playlist
	if err := c.do(http.MethodGet, "/api/playlist", nil, &pl); err != nil {
		return nil, err
	}
	return pl, nil
}

// SetPlaylist replaces the daemon's live playlist.
func (c *APIClient) SetPlaylist(pl playlist.Playlist) error {
	return c.do(http.MethodPut, "/api/playlist", pl, nil)
}

// GenerateSweep asks the daemon to expand a sweep spec and merge it into the
// live playlist; the merged playlist comes back.
func (c *APIClient) GenerateSweep(spec playlist.SweepSpec) (playlist.Playlist, error) {
	var resp protocol.SweepResponse
	if err := c.do(http.MethodPost, "/api/sweep", protocol.SweepRequest{Spec: spec}, &resp); err != nil {
		return nil, err
	}
	return resp.Playlist, nil
}

// StartHopping starts a hopping session. dwellMs of 0 uses the daemon's
// configured default.
func (c *APIClient) StartHopping(pl playlist.Playlist, dwellMs int) error {
	return c.do(http.MethodPost, "/api/hop/start",
		protocol.HopStartRequest{Playlist: pl, DwellMs: dwellMs}, nil)
}

// StopHopping stops the active hopping session.
func (c *APIClient) StopHopping() error {
	return c.do(http.MethodPost, "/api/hop/stop", nil, nil)
}

// Events returns up to limit persisted session events, newest first.
// eventType filters by type when non-empty.
func (c *APIClient) Events(limit int, eventType string) ([]storage.Event, error) {
	var events []storage.Event
	path := fmt.Sprintf("/api/events?limit=%d", limit)
	if eventType != "" {
		path += "&type=" + url.QueryEscape(eventType)
	}
	if err := c.do(http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
