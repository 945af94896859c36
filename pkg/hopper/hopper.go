package hopper

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/smyd/pkg/bus"
	"github.com/dougsko/smyd/pkg/device"
	"github.com/dougsko/smyd/pkg/logging"
	"github.com/dougsko/smyd/pkg/playlist"
)

// Device is the controller surface the scheduler drives. Every call may
// return a command rejection (the session continues degraded) or a transport
// fault (the session terminates).
type Device interface {
	SetFrequency(hz int64) error
	SetLevel(dbm float64) error
	SetModulationFM(deviationHz int) error
	SetModulationAM() error
	EnableOutput() error
}

// AutoModulation selects AM inside a frequency band (airband voice) and FM
// everywhere else. Disabled means FM for every entry.
type AutoModulation struct {
	Enabled   bool
	AMFromMHz float64
	AMToMHz   float64
}

// EventType classifies scheduler events on the bus.
type EventType string

const (
	EventStarted EventType = "started"
	EventHop     EventType = "hop"
	EventWarning EventType = "warning"
	EventError   EventType = "error"
	EventStopped EventType = "stopped"
)

// Event is published on bus.TopicHop for every scheduler action.
type Event struct {
	Type  EventType       `json:"type"`
	Index int             `json:"index"`
	Entry *playlist.Entry `json:"entry,omitempty"`
	Err   string          `json:"error,omitempty"`
	At    time.Time       `json:"at"`
}

// Status is the observable session state.
type Status struct {
	Running   bool   `json:"running"`
	Index     int    `json:"index"`
	Entry     string `json:"entry,omitempty"`
	Entries   int    `json:"entries"`
	DwellMs   int64  `json:"dwell_ms"`
	Cycles    int64  `json:"cycles"`
	LastError string `json:"last_error,omitempty"`
}

// Scheduler walks a frozen playlist snapshot on a dwell cadence, one worker
// per session. Stop is cooperative and takes effect at the next cycle
// boundary, so cancellation latency is bounded by one dwell.
type Scheduler struct {
	dev     Device
	bus     bus.MessageBus
	autoMod AutoModulation

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	snapshot playlist.Playlist
	index    int
	dwell    time.Duration
	cycles   int64
	lastErr  error
}

// New creates a scheduler. The bus may be nil when nothing observes events.
func New(dev Device, b bus.MessageBus, autoMod AutoModulation) *Scheduler {
	return &Scheduler{dev: dev, bus: b, autoMod: autoMod}
}

// Start freezes a copy of the playlist and launches the hopping worker. It
// fails before any device I/O if a session is already running, the playlist
// is empty, or the dwell is not positive.
func (s *Scheduler) Start(pl playlist.Playlist, dwell time.Duration) error {
	if len(pl) == 0 {
		return fmt.Errorf("cannot start hopping on an empty playlist")
	}
	if dwell <= 0 {
		return fmt.Errorf("dwell must be positive, got %s", dwell)
	}
	if err := pl.Validate(); err != nil {
		return fmt.Errorf("invalid playlist: %w", err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("hopping session already running")
	}
	snap := pl.Clone()
	s.running = true
	s.snapshot = snap
	s.index = 0
	s.dwell = dwell
	s.cycles = 0
	s.lastErr = nil
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	logging.Infof("hopper", "Session started: %d entries, dwell %s", len(snap), dwell)
	s.publish(Event{Type: EventStarted, Index: 0, At: time.Now()})

	go s.run(snap, dwell, stopCh, doneCh)
	return nil
}

// Stop signals the worker and waits for it to finish its current cycle. A
// stop can therefore block for up to one dwell. Stopping an idle scheduler
// is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
}

// Running reports whether a session is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the current session state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running: s.running,
		Index:   s.index,
		Entries: len(s.snapshot),
		DwellMs: s.dwell.Milliseconds(),
		Cycles:  s.cycles,
	}
	if s.running && s.index < len(s.snapshot) {
		st.Entry = s.snapshot[s.index].Name
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// cycleState carries the per-session memory the loop needs: the previous
// entry's modulation so unchanged bandwidths send no traffic, and whether
// output enable has already been attempted.
type cycleState struct {
	haveMode      bool
	lastAM        bool
	lastBandwidth playlist.Bandwidth
	outputTried   bool
}

func (s *Scheduler) run(snap playlist.Playlist, dwell time.Duration, stopCh, doneCh chan struct{}) {
	var state cycleState
	idx := 0

	finish := func(err error) {
		s.mu.Lock()
		s.running = false
		s.snapshot = nil
		s.lastErr = err
		s.mu.Unlock()
		if err != nil {
			logging.Errorf("hopper", "Session terminated: %v", err)
			s.publish(Event{Type: EventError, Index: idx, Err: err.Error(), At: time.Now()})
		} else {
			logging.Infof("hopper", "Session stopped")
		}
		s.publish(Event{Type: EventStopped, Index: idx, At: time.Now()})
		close(doneCh)
	}

	for {
		entry := snap[idx]
		s.mu.Lock()
		s.index = idx
		s.mu.Unlock()

		logging.Debugf("hopper", "Cycle %d: %s (%.6f MHz, %g dBm, %s)",
			idx, entry.Name, entry.FrequencyMHz, entry.LevelDbm, entry.Bandwidth)
		s.publish(Event{Type: EventHop, Index: idx, Entry: &entry, At: time.Now()})

		if err := s.applyEntry(entry, &state, idx); err != nil {
			finish(err)
			return
		}

		s.mu.Lock()
		s.cycles++
		s.mu.Unlock()

		// The dwell itself is never interrupted; stop takes effect at the
		// cycle boundary.
		time.Sleep(dwell)

		select {
		case <-stopCh:
			finish(nil)
			return
		default:
		}

		idx = (idx + 1) % len(snap)
	}
}

// applyEntry pushes one playlist entry to the instrument. Command rejections
// degrade the cycle and are reported as warnings; any other error is fatal to
// the session.
func (s *Scheduler) applyEntry(entry playlist.Entry, state *cycleState, idx int) error {
	if err := s.dev.SetFrequency(entry.FrequencyHz()); err != nil {
		if !device.IsRejected(err) {
			return fmt.Errorf("set frequency: %w", err)
		}
		s.warn(idx, &entry, fmt.Errorf("set frequency: %w", err))
	}

	if err := s.dev.SetLevel(entry.LevelDbm); err != nil {
		if !device.IsRejected(err) {
			return fmt.Errorf("set level: %w", err)
		}
		s.warn(idx, &entry, fmt.Errorf("set level: %w", err))
	}

	if err := s.applyModulation(entry, state, idx); err != nil {
		return err
	}

	// Output enable runs at most once per session. A rejection is recorded
	// and never retried so one bad command cannot stall every cycle.
	if !state.outputTried {
		state.outputTried = true
		if err := s.dev.EnableOutput(); err != nil {
			if !device.IsRejected(err) {
				return fmt.Errorf("enable output: %w", err)
			}
			logging.Warnf("hopper", "Output enable rejected; continuing without retry: %v", err)
			s.warn(idx, &entry, fmt.Errorf("enable output: %w", err))
		}
	}

	return nil
}

// applyModulation selects AM or FM for the entry and sends modulation traffic
// only when the mode or bandwidth actually changed since the previous cycle.
func (s *Scheduler) applyModulation(entry playlist.Entry, state *cycleState, idx int) error {
	wantAM := s.autoMod.Enabled &&
		entry.FrequencyMHz >= s.autoMod.AMFromMHz &&
		entry.FrequencyMHz <= s.autoMod.AMToMHz

	bw := entry.Bandwidth.Normalize()
	if state.haveMode && wantAM == state.lastAM && (wantAM || bw == state.lastBandwidth) {
		return nil
	}

	var err error
	if wantAM {
		err = s.dev.SetModulationAM()
	} else {
		err = s.dev.SetModulationFM(bw.DeviationHz())
	}
	if err != nil {
		if !device.IsRejected(err) {
			return fmt.Errorf("set modulation: %w", err)
		}
		s.warn(idx, &entry, fmt.Errorf("set modulation: %w", err))
		return nil
	}

	state.haveMode = true
	state.lastAM = wantAM
	state.lastBandwidth = bw
	return nil
}

func (s *Scheduler) warn(idx int, entry *playlist.Entry, err error) {
	logging.Warnf("hopper", "Cycle %d degraded: %v", idx, err)
	s.publish(Event{Type: EventWarning, Index: idx, Entry: entry, Err: err.Error(), At: time.Now()})
}

func (s *Scheduler) publish(ev Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.TopicHop, ev)
}
