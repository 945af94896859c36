package playlist

import (
	"fmt"
	"math"
)

// Bandwidth is a named FM bandwidth profile. Each profile maps to the FM
// deviation the generator needs for a channel of that width.
type Bandwidth string

const (
	Bandwidth6k25 Bandwidth = "6.25 kHz"
	Bandwidth12k5 Bandwidth = "12.5 kHz"
	Bandwidth25k  Bandwidth = "25 kHz"

	// DefaultBandwidth is used whenever an entry carries an unknown profile
	// name (old playlist files, hand-edited JSON).
	DefaultBandwidth = Bandwidth12k5
)

var deviations = map[Bandwidth]int{
	Bandwidth6k25: 3125,
	Bandwidth12k5: 6250,
	Bandwidth25k:  12500,
}

// Bandwidths returns the fixed profile table in display order.
func Bandwidths() []Bandwidth {
	return []Bandwidth{Bandwidth6k25, Bandwidth12k5, Bandwidth25k}
}

// Normalize maps unknown profile names to the default instead of rejecting
// them, so stale playlists keep loading.
func (b Bandwidth) Normalize() Bandwidth {
	if _, ok := deviations[b]; ok {
		return b
	}
	return DefaultBandwidth
}

// DeviationHz returns the FM deviation for this profile in Hz.
func (b Bandwidth) DeviationHz() int {
	return deviations[b.Normalize()]
}

// Entry is one operating point: frequency, level and bandwidth profile.
// Entries are plain values; the hopper works on a frozen copy of the list.
type Entry struct {
	Name         string    `json:"name"`
	FrequencyMHz float64   `json:"frequency"`
	LevelDbm     float64   `json:"level"`
	Bandwidth    Bandwidth `json:"bandwidth"`
}

// FrequencyHz returns the entry frequency as integer Hz, which is what the
// generator's RF command takes.
func (e Entry) FrequencyHz() int64 {
	return int64(math.Round(e.FrequencyMHz * 1e6))
}

// Validate checks the entry invariants.
func (e Entry) Validate() error {
	if e.FrequencyMHz <= 0 {
		return fmt.Errorf("entry %q: frequency must be positive, got %g MHz", e.Name, e.FrequencyMHz)
	}
	return nil
}

// Playlist is an ordered list of entries. Order is hop order.
type Playlist []Entry

// Clone returns an independent copy. Hopping sessions freeze their own copy
// so edits to the live playlist never race with a running session.
func (p Playlist) Clone() Playlist {
	if p == nil {
		return nil
	}
	out := make(Playlist, len(p))
	copy(out, p)
	return out
}

// Validate checks every entry and normalizes bandwidth profiles in place.
func (p Playlist) Validate() error {
	for i := range p {
		if err := p[i].Validate(); err != nil {
			return fmt.Errorf("playlist entry %d: %w", i, err)
		}
		p[i].Bandwidth = p[i].Bandwidth.Normalize()
	}
	return nil
}
