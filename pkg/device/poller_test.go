package device

import (
	"sync"
	"testing"
	"time"
)

func TestPollerSnapshot(t *testing.T) {
	tr := newFakeTransport()
	tr.defaults["RF?"] = "RF  144.000000E+6"
	tr.defaults["LEVEL?"] = "LEVEL -20.0"
	tr.defaults["FM?"] = "FM 3125"
	tr.defaults["AF?"] = "AF 1000"
	c := newTestController(tr)
	connect(t, c, tr)

	p := NewPoller(c, 50*time.Millisecond)
	st := p.Snapshot()

	if st.RF != "RF  144.000000E+6" {
		t.Errorf("RF wrong: %q", st.RF)
	}
	if st.Level != "LEVEL -20.0" {
		t.Errorf("Level wrong: %q", st.Level)
	}
	if st.FM != "FM 3125" || st.AF != "AF 1000" {
		t.Errorf("Modulation fields wrong: %+v", st)
	}
	if st.PolledAt.IsZero() {
		t.Error("PolledAt not set")
	}

	if last := p.Last(); last.RF != st.RF {
		t.Errorf("Last must return the cached snapshot, got %+v", last)
	}
}

func TestPollerDisconnected(t *testing.T) {
	tr := newFakeTransport()
	c := newTestController(tr)

	p := NewPoller(c, 50*time.Millisecond)
	st := p.Snapshot()

	if st.RF != "N/A" || st.Level != "N/A" || st.FM != "N/A" || st.AF != "N/A" {
		t.Errorf("Disconnected snapshot must read N/A, got %+v", st)
	}
	if len(tr.queriedCommands()) != 0 {
		t.Errorf("Disconnected poll must not touch the wire, got %v", tr.queriedCommands())
	}
}

func TestPollerSilentField(t *testing.T) {
	tr := newFakeTransport()
	// Only the frequency answers; everything else stays silent.
	tr.defaults["RF?"] = "RF  144.000000E+6"
	c := newTestController(tr)
	connect(t, c, tr)

	p := NewPoller(c, 20*time.Millisecond)
	st := p.Snapshot()

	if st.RF != "RF  144.000000E+6" {
		t.Errorf("RF wrong: %q", st.RF)
	}
	if st.Level != "N/A" || st.FM != "N/A" || st.AF != "N/A" {
		t.Errorf("Silent fields must read N/A, got %+v", st)
	}
}

func TestPollerQueryFallback(t *testing.T) {
	tr := newFakeTransport()
	// Vendor spelling silent, SCPI alias answers.
	tr.defaults["FREQ?"] = "433920000"
	c := newTestController(tr)
	connect(t, c, tr)

	p := NewPoller(c, 20*time.Millisecond)
	st := p.Snapshot()

	if st.RF != "433920000" {
		t.Errorf("Expected fallback query result, got %q", st.RF)
	}
}

func TestPollerCoalescesConcurrentSnapshots(t *testing.T) {
	tr := newFakeTransport()
	tr.defaults["RF?"] = "RF  144.000000E+6"
	tr.defaults["LEVEL?"] = "LEVEL -20.0"
	tr.defaults["FM?"] = "FM 3125"
	tr.defaults["AF?"] = "AF 1000"
	tr.delay = 30 * time.Millisecond
	c := newTestController(tr)
	connect(t, c, tr)
	tr.mu.Lock()
	tr.queries = nil
	tr.mu.Unlock()

	p := NewPoller(c, 100*time.Millisecond)

	var wg sync.WaitGroup
	results := make([]State, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = p.Snapshot()
	}()
	// Let the first snapshot claim the in-flight slot before the rest arrive.
	time.Sleep(10 * time.Millisecond)
	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Snapshot()
		}(i)
	}
	wg.Wait()

	queries := tr.queriedCommands()
	if len(queries) != 4 {
		t.Errorf("Expected one coalesced read round (4 queries), got %d: %v", len(queries), queries)
	}
	for i, st := range results {
		if st.RF != "RF  144.000000E+6" {
			t.Errorf("Snapshot %d missing coalesced result: %+v", i, st)
		}
	}
}
