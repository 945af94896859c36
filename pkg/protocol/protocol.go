package protocol

import (
	"time"

	"github.com/dougsko/smyd/pkg/device"
	"github.com/dougsko/smyd/pkg/hopper"
	"github.com/dougsko/smyd/pkg/playlist"
)

// Status is the daemon status document served at /api/status.
type Status struct {
	Connected bool             `json:"connected"`
	Identity  *device.Identity `json:"identity,omitempty"`
	Mode      string           `json:"mode"`
	OutputOn  bool             `json:"output_on"`
	Hopping   hopper.Status    `json:"hopping"`
	StartTime time.Time        `json:"start_time"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
}

// FrequencyRequest sets the output frequency.
type FrequencyRequest struct {
	FrequencyHz int64 `json:"frequency_hz"`
}

// LevelRequest sets the output level.
type LevelRequest struct {
	LevelDbm float64 `json:"level_dbm"`
}

// OutputRequest turns the RF output on or off.
type OutputRequest struct {
	Enabled bool `json:"enabled"`
}

// ModulationRequest selects the modulation mode. DeviationHz is required for
// FM and ignored for AM.
type ModulationRequest struct {
	Mode        string `json:"mode"` // "fm" or "am"
	DeviationHz int    `json:"deviation_hz,omitempty"`
}

// HopStartRequest starts a hopping session over the given playlist.
type HopStartRequest struct {
	Playlist playlist.Playlist `json:"playlist"`
	DwellMs  int               `json:"dwell_ms,omitempty"`
}

// SweepRequest generates a playlist from a sweep specification.
type SweepRequest struct {
	Spec playlist.SweepSpec `json:"spec"`
}

// SweepResponse carries the generated playlist back to the caller.
type SweepResponse struct {
	Playlist playlist.Playlist `json:"playlist"`
	Count    int               `json:"count"`
}

// StateResponse wraps a device state snapshot.
type StateResponse struct {
	State device.State `json:"state"`
}

// ErrorResponse is the uniform error body for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a successful command with no payload.
type OKResponse struct {
	Status string `json:"status"`
}

// OK is the canonical success acknowledgement.
func OK() OKResponse {
	return OKResponse{Status: "ok"}
}
