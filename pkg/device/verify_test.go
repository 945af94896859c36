package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"testing"

	"github.com/dougsko/smyd/pkg/transport"
)

// reply is one scripted answer for a query command.
type reply struct {
	resp string
	err  error
}

// fakeTransport is a scripted instrument link. Writes are recorded, queries
// are answered from per-command reply queues with map defaults as fallback,
// and anything unscripted times out like a silent instrument would.
type fakeTransport struct {
	mu       sync.Mutex
	open     bool
	writes   []string
	queries  []string
	writeErr map[string]error
	replies  map[string][]reply
	defaults map[string]string
	delay    time.Duration
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		writeErr: map[string]error{},
		replies:  map[string][]reply{},
		defaults: map[string]string{
			"*IDN?": "ROHDE&SCHWARZ,SMY02,102045,V1.62",
			"*ESR?": "0",
		},
	}
}

func timeoutErr() error {
	return &transport.Error{Op: "query", Err: transport.ErrTimeout}
}

func (f *fakeTransport) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeTransport) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[line]; err != nil {
		return err
	}
	f.writes = append(f.writes, line)
	return nil
}

func (f *fakeTransport) QueryLine(cmd string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, cmd)
	var r reply
	var scripted bool
	if q := f.replies[cmd]; len(q) > 0 {
		r = q[0]
		f.replies[cmd] = q[1:]
		scripted = true
	} else if def, ok := f.defaults[cmd]; ok {
		r = reply{resp: def}
		scripted = true
	}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if !scripted {
		return "", timeoutErr()
	}
	return r.resp, r.err
}

// queueESR scripts the next *ESR? answers in order.
func (f *fakeTransport) queueESR(replies ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies["*ESR?"] = append(f.replies["*ESR?"], replies...)
}

func (f *fakeTransport) writtenLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeTransport) queriedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

// fastProfile strips the settle delays so verification tests run quickly
// while keeping the rest of the profile intact.
func fastProfile(p *Profile) *Profile {
	p.Settle = 0
	p.SequenceSettle = 0
	p.VerifySettle = 0
	p.ClearSettle = 0
	return p
}

func TestVerifierFastPath(t *testing.T) {
	tr := newFakeTransport()
	v := NewVerifier(tr, fastProfile(smy02Profile()), 100*time.Millisecond, false)

	if err := v.Exec(OpSetFrequency, []string{"RF 144000000"}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	writes := tr.writtenLines()
	if len(writes) != 1 || writes[0] != "RF 144000000" {
		t.Errorf("Expected single write-only command, got %v", writes)
	}
	if len(tr.queriedCommands()) != 0 {
		t.Errorf("Fast path must not touch the status register, queried %v", tr.queriedCommands())
	}
}

func TestVerifierConfirmed(t *testing.T) {
	tr := newFakeTransport()
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, false)

	if err := v.Exec(OpSetLevel, []string{"LEVEL -20"}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	writes := tr.writtenLines()
	if !containsLine(writes, "*CLS") || !containsLine(writes, "LEVEL -20") {
		t.Errorf("Expected *CLS then command, got %v", writes)
	}
	if !containsLine(tr.queriedCommands(), "*ESR?") {
		t.Errorf("Expected status readback, queried %v", tr.queriedCommands())
	}
}

func TestVerifierBenignCode(t *testing.T) {
	tr := newFakeTransport()
	tr.queueESR(reply{resp: "ESR 32"})
	v := NewVerifier(tr, fastProfile(smy02Profile()), 100*time.Millisecond, false)

	if err := v.Exec(OpEnableOutput, []string{"OUTP ON"}); err != nil {
		t.Fatalf("Benign status code must not fail the operation: %v", err)
	}
	writes := tr.writtenLines()
	if len(writes) != 2 {
		t.Errorf("Benign code must not trigger a retry, got writes %v", writes)
	}
}

func TestVerifierCandidateFallback(t *testing.T) {
	tr := newFakeTransport()
	tr.queueESR(reply{resp: "113"}, reply{resp: "0"})
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, false)

	if err := v.Exec(OpSetLevel, []string{"POW -10", "LEVEL -10"}); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	writes := tr.writtenLines()
	if !containsLine(writes, "POW -10") || !containsLine(writes, "LEVEL -10") {
		t.Errorf("Expected fallback to second candidate, got %v", writes)
	}
}

func TestVerifierRejected(t *testing.T) {
	tr := newFakeTransport()
	tr.queueESR(reply{resp: "113"}, reply{resp: "113"})
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, false)

	err := v.Exec(OpSetLevel, []string{"POW -10", "LEVEL -10"})
	if err == nil {
		t.Fatal("Expected rejection after exhausting candidates")
	}
	if !IsRejected(err) {
		t.Fatalf("Expected RejectedError, got %T: %v", err, err)
	}
	var re *RejectedError
	if errors.As(err, &re) && re.Code != 113 {
		t.Errorf("Expected last status code 113, got %d", re.Code)
	}
}

func TestVerifierInconclusiveOptimistic(t *testing.T) {
	tr := newFakeTransport()
	tr.queueESR(reply{err: timeoutErr()})
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, false)

	if err := v.Exec(OpSetLevel, []string{"POW -10", "LEVEL -10"}); err != nil {
		t.Fatalf("Inconclusive readback must default to success: %v", err)
	}
	if containsLine(tr.writtenLines(), "LEVEL -10") {
		t.Errorf("Optimistic policy must stop after the first candidate, got %v", tr.writtenLines())
	}
}

func TestVerifierInconclusiveStrict(t *testing.T) {
	tr := newFakeTransport()
	tr.queueESR(reply{err: timeoutErr()}, reply{err: timeoutErr()})
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, true)

	err := v.Exec(OpSetLevel, []string{"POW -10", "LEVEL -10"})
	if !IsRejected(err) {
		t.Fatalf("Strict policy must reject when every readback times out, got %v", err)
	}
	var re *RejectedError
	if errors.As(err, &re) && re.Code != -1 {
		t.Errorf("Expected code -1 when no readback succeeded, got %d", re.Code)
	}
	if !containsLine(tr.writtenLines(), "LEVEL -10") {
		t.Errorf("Strict policy must still try the next candidate, got %v", tr.writtenLines())
	}
}

func TestVerifierWriteFault(t *testing.T) {
	tr := newFakeTransport()
	wantErr := &transport.Error{Op: "write", Err: fmt.Errorf("broken pipe")}
	tr.writeErr["POW -10"] = wantErr
	v := NewVerifier(tr, fastProfile(genericProfile()), 100*time.Millisecond, false)

	err := v.Exec(OpSetLevel, []string{"POW -10", "LEVEL -10"})
	if err == nil || IsRejected(err) {
		t.Fatalf("Transport fault must abort immediately, got %v", err)
	}
	if containsLine(tr.writtenLines(), "LEVEL -10") {
		t.Errorf("Transport fault must not fall through to the next candidate")
	}
}

func TestReadStatusParsesPrefixedResponse(t *testing.T) {
	tr := newFakeTransport()
	v := NewVerifier(tr, fastProfile(smy02Profile()), 100*time.Millisecond, false)

	t.Run("Prefixed", func(t *testing.T) {
		tr.queueESR(reply{resp: "ESR  53"})
		code, err := v.ReadStatus()
		if err != nil || code != 53 {
			t.Errorf("Expected 53, got %d (%v)", code, err)
		}
	})

	t.Run("Bare", func(t *testing.T) {
		tr.queueESR(reply{resp: "0"})
		code, err := v.ReadStatus()
		if err != nil || code != 0 {
			t.Errorf("Expected 0, got %d (%v)", code, err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		tr.queueESR(reply{resp: "???"})
		if _, err := v.ReadStatus(); err == nil {
			t.Error("Expected parse error for garbage response")
		}
	})
}

func TestExecSequenceWritesAllLines(t *testing.T) {
	tr := newFakeTransport()
	v := NewVerifier(tr, fastProfile(smy02Profile()), 100*time.Millisecond, false)

	seq := []string{"FM:INT 1.000E+3", "AF 1000", "FM:ON"}
	if err := v.ExecSequence(seq); err != nil {
		t.Fatalf("ExecSequence failed: %v", err)
	}

	writes := tr.writtenLines()
	if len(writes) != len(seq) {
		t.Fatalf("Expected %d writes, got %v", len(seq), writes)
	}
	for i, cmd := range seq {
		if writes[i] != cmd {
			t.Errorf("Write %d: expected %q, got %q", i, cmd, writes[i])
		}
	}
	if len(tr.queriedCommands()) != 0 {
		t.Errorf("Blind sequence must not query, got %v", tr.queriedCommands())
	}
}
