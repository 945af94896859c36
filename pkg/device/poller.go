package device

import (
	"strings"
	"sync"
	"time"

	"github.com/dougsko/smyd/pkg/transport"
)

// State is a best-effort snapshot of the instrument's front-panel values,
// kept as the raw response strings for display. Fields that did not answer
// read "N/A".
type State struct {
	RF       string    `json:"rf"`
	Level    string    `json:"level"`
	FM       string    `json:"fm"`
	AF       string    `json:"af"`
	PolledAt time.Time `json:"polled_at"`
}

func unknownState() State {
	return State{RF: "N/A", Level: "N/A", FM: "N/A", AF: "N/A", PolledAt: time.Now()}
}

// Poller reads device state snapshots for observers. Each field has its own
// short timeout so one stalled query does not block the rest, and concurrent
// snapshot requests coalesce into a single in-flight read.
type Poller struct {
	ctrl         *Controller
	fieldTimeout time.Duration

	mu       sync.Mutex
	inflight chan struct{}
	last     State
}

// NewPoller creates a poller over an existing controller. fieldTimeout
// bounds each individual field query.
func NewPoller(ctrl *Controller, fieldTimeout time.Duration) *Poller {
	if fieldTimeout <= 0 {
		fieldTimeout = time.Second
	}
	return &Poller{
		ctrl:         ctrl,
		fieldTimeout: fieldTimeout,
		last:         unknownState(),
	}
}

// Snapshot returns the current device state. If another snapshot is already
// being read, the caller waits for that result instead of issuing a second
// round of queries.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	if p.inflight != nil {
		ch := p.inflight
		p.mu.Unlock()
		<-ch
		p.mu.Lock()
		st := p.last
		p.mu.Unlock()
		return st
	}
	ch := make(chan struct{})
	p.inflight = ch
	p.mu.Unlock()

	st := p.read()

	p.mu.Lock()
	p.last = st
	p.inflight = nil
	p.mu.Unlock()
	close(ch)

	return st
}

// Last returns the most recent snapshot without touching the instrument.
func (p *Poller) Last() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) read() State {
	st := unknownState()

	c := p.ctrl
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return st
	}

	if v := p.queryFirst(c.tr, []string{"RF?", "FREQ?", "SOUR:FREQ?"}); v != "" {
		st.RF = v
	}
	if v := p.queryFirst(c.tr, []string{"LEVEL?", "POW?", "SOUR:POW?"}); v != "" {
		st.Level = v
	}
	if v := p.queryFirst(c.tr, []string{"FM?", "FM:STAT?"}); v != "" {
		st.FM = v
	}
	if v := p.queryFirst(c.tr, []string{"AF?", "FM:INT?"}); v != "" {
		st.AF = v
	}
	st.PolledAt = time.Now()
	return st
}

// queryFirst returns the first non-empty response among the query spellings,
// or "" when none answered within the per-field timeout.
func (p *Poller) queryFirst(tr transport.Transport, queries []string) string {
	for _, q := range queries {
		resp, err := tr.QueryLine(q, p.fieldTimeout)
		if err != nil {
			continue
		}
		if resp = strings.TrimSpace(resp); resp != "" {
			return resp
		}
	}
	return ""
}
