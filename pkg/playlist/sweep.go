package playlist

import (
	"fmt"
	"math"
)

// SweepSpec describes a generated frequency sweep. Direction is inferred from
// the sign of StopMHz-StartMHz; StepMHz is always positive.
type SweepSpec struct {
	StartMHz float64 `json:"start_mhz"`
	StopMHz  float64 `json:"stop_mhz"`
	StepMHz  float64 `json:"step_mhz"`

	BaseLevelDbm float64 `json:"base_level_dbm"`

	// Optional level alternation: every ToggleEveryN points the level flips
	// between base and alternate.
	AlternateEnabled bool    `json:"alternate_enabled"`
	AltLevelDbm      float64 `json:"alt_level_dbm"`
	ToggleEveryN     int     `json:"toggle_every_n"`

	Bandwidth Bandwidth `json:"bandwidth"`

	// Replace controls whether Apply overwrites the existing playlist or
	// appends to it.
	Replace bool `json:"replace"`

	// PingPong appends the reversed interior points, so the sweep runs back
	// toward the start without repeating either endpoint.
	PingPong bool `json:"ping_pong"`
}

// Validate reports spec errors before any entries are generated.
func (s SweepSpec) Validate() error {
	if s.StepMHz <= 0 {
		return fmt.Errorf("sweep step must be > 0, got %g", s.StepMHz)
	}
	if s.StartMHz <= 0 || s.StopMHz <= 0 {
		return fmt.Errorf("sweep frequencies must be positive (start %g, stop %g)", s.StartMHz, s.StopMHz)
	}
	if s.AlternateEnabled && s.ToggleEveryN < 1 {
		return fmt.Errorf("toggle every N must be >= 1, got %d", s.ToggleEveryN)
	}
	return nil
}

// Generate produces the sweep playlist for the spec. The boundary value is
// always included: stepping uses a tolerance of step/10 to absorb float
// rounding at the stop end.
func Generate(spec SweepSpec) (Playlist, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	bw := spec.Bandwidth.Normalize()
	ascending := spec.StopMHz >= spec.StartMHz
	eps := spec.StepMHz / 10.0
	toggle := spec.ToggleEveryN
	if toggle < 1 {
		toggle = 1
	}

	var forward Playlist
	current := spec.StartMHz
	for idx := 0; ; idx++ {
		if ascending {
			if current > spec.StopMHz+eps {
				break
			}
		} else {
			if current < spec.StopMHz-eps {
				break
			}
		}

		level := spec.BaseLevelDbm
		if spec.AlternateEnabled && (idx/toggle)%2 == 1 {
			level = spec.AltLevelDbm
		}

		freq := math.Round(current*1e6) / 1e6
		forward = append(forward, Entry{
			Name:         fmt.Sprintf("Sweep %g MHz @ %.2f dBm", freq, level),
			FrequencyMHz: freq,
			LevelDbm:     level,
			Bandwidth:    bw,
		})

		if ascending {
			current += spec.StepMHz
		} else {
			current -= spec.StepMHz
		}
	}

	if len(forward) == 0 {
		return nil, fmt.Errorf("sweep produced no entries (start %g, stop %g, step %g)",
			spec.StartMHz, spec.StopMHz, spec.StepMHz)
	}

	entries := forward.Clone()
	if spec.PingPong && len(forward) > 2 {
		for i := len(forward) - 2; i >= 1; i-- {
			entries = append(entries, forward[i])
		}
	}

	return entries, nil
}

// Apply merges a generated sweep into an existing playlist according to the
// spec's Replace flag and returns the result.
func Apply(spec SweepSpec, existing Playlist) (Playlist, error) {
	generated, err := Generate(spec)
	if err != nil {
		return nil, err
	}
	if spec.Replace {
		return generated, nil
	}
	return append(existing.Clone(), generated...), nil
}
