package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/smyd/pkg/logging"
	"github.com/dougsko/smyd/pkg/transport"
)

// Outcome classifies one verification attempt.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeRejected
	OutcomeInconclusive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeInconclusive:
		return "inconclusive"
	default:
		return "unknown"
	}
}

// RejectedError reports that every candidate command for an operation came
// back with a non-benign status. Code holds the last status read, or -1 when
// no readback succeeded at all.
type RejectedError struct {
	Op   Op
	Code int
}

func (e *RejectedError) Error() string {
	if e.Code >= 0 {
		return fmt.Sprintf("%s rejected by instrument (ESR %d, all candidates exhausted)", e.Op, e.Code)
	}
	return fmt.Sprintf("%s rejected by instrument (all candidates exhausted)", e.Op)
}

// IsRejected reports whether err is a command rejection rather than a link
// fault. Callers in a hopping loop continue on rejections and abort on
// anything else.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Verifier turns unreliable textual commands into confirmed state changes.
// For each logical operation it walks an ordered candidate list, using the
// event-status register as the acceptance signal, with the quirk profile
// deciding which operations skip verification entirely.
type Verifier struct {
	tr            transport.Transport
	profile       *Profile
	statusTimeout time.Duration

	// strict controls the inconclusive policy: when false (the default), a
	// timed-out *ESR? readback is treated as optimistic success so one
	// unresponsive query never stalls a hopping run. When true it counts as
	// a rejection of the candidate.
	strict bool
}

// NewVerifier creates a verifier bound to a transport and quirk profile.
// statusTimeout bounds each *ESR? readback; it is deliberately much shorter
// than the general command timeout.
func NewVerifier(tr transport.Transport, profile *Profile, statusTimeout time.Duration, strict bool) *Verifier {
	if statusTimeout <= 0 {
		statusTimeout = 500 * time.Millisecond
	}
	return &Verifier{
		tr:            tr,
		profile:       profile,
		statusTimeout: statusTimeout,
		strict:        strict,
	}
}

// Exec runs one logical operation. On the fast path the single candidate is
// written and confirmed unconditionally after a settle delay. Otherwise
// candidates are tried in order until one is accepted; a transport fault
// aborts immediately, exhaustion returns a RejectedError.
func (v *Verifier) Exec(op Op, candidates []string) error {
	if len(candidates) == 0 {
		return fmt.Errorf("no command candidates for %s", op)
	}

	if v.profile.FastPath[op] {
		logging.Debugf("device", "%s fast path: %s", op, candidates[0])
		if err := v.tr.WriteLine(candidates[0]); err != nil {
			return err
		}
		time.Sleep(v.profile.Settle)
		return nil
	}

	lastCode := -1
	for _, cmd := range candidates {
		if err := v.ClearStatus(); err != nil {
			return err
		}

		logging.Debugf("device", "%s trying: %s", op, cmd)
		if err := v.tr.WriteLine(cmd); err != nil {
			return err
		}
		time.Sleep(v.profile.VerifySettle)

		code, err := v.ReadStatus()
		switch {
		case err == nil && code == 0:
			return nil

		case err == nil && v.profile.IsBenign(code):
			logging.Warnf("device", "%s returned ESR %d on %s; treating as non-fatal", op, code, v.profile.Class)
			return nil

		case err == nil:
			logging.Debugf("device", "%s: %q returned ESR %d, trying next candidate", op, cmd, code)
			lastCode = code

		case errors.Is(err, transport.ErrTimeout):
			if v.strict {
				logging.Debugf("device", "%s: *ESR? timed out after %q (strict), trying next candidate", op, cmd)
				continue
			}
			logging.Debugf("device", "%s: *ESR? inconclusive after %q, assuming success", op, cmd)
			return nil

		default:
			return err
		}
	}

	return &RejectedError{Op: op, Code: lastCode}
}

// ExecSequence writes a fixed command sequence blind, with the profile's
// inter-line settle delay. Used for initialization and mode switches whose
// individual lines have no meaningful readback.
func (v *Verifier) ExecSequence(cmds []string) error {
	for _, cmd := range cmds {
		logging.Debugf("device", "sequence: %s", cmd)
		if err := v.tr.WriteLine(cmd); err != nil {
			return err
		}
		time.Sleep(v.profile.SequenceSettle)
	}
	return nil
}

// ClearStatus resets the instrument's event-status register.
func (v *Verifier) ClearStatus() error {
	if err := v.tr.WriteLine("*CLS"); err != nil {
		return err
	}
	time.Sleep(v.profile.ClearSettle)
	return nil
}

// ReadStatus queries *ESR? with the dedicated short timeout and returns the
// register value. The SMY02 prefixes responses with the query name, so only
// the last whitespace-separated field is parsed.
func (v *Verifier) ReadStatus() (int, error) {
	resp, err := v.tr.QueryLine("*ESR?", v.statusTimeout)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(resp)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty *ESR? response")
	}
	code, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("unparseable *ESR? response %q: %w", resp, err)
	}
	return code, nil
}
