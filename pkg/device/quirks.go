package device

import (
	"fmt"
	"time"
)

// Op names a logical instrument operation. The quirk table keys candidate
// command lists and fast-path eligibility by Op.
type Op string

const (
	OpSetFrequency Op = "set_frequency"
	OpSetLevel     Op = "set_level"
	OpEnableOutput Op = "enable_output"
	OpFMDeviation  Op = "fm_deviation"
)

// Quirk-table classes.
const (
	ClassSMY02   = "smy02"
	ClassGeneric = "generic"
)

// Commands declares the command vocabulary for one identity class. Candidate
// lists are ordered: the verifier tries them until one is accepted.
// Sequences are written as-is, one line after another, without verification.
type Commands struct {
	SetFrequency func(hz int64) []string
	SetLevel     func(dbm float64) []string
	EnableOutput []string
	FMDeviation  func(deviationHz int) []string

	// DisableOutput is written blind; the shutdown path must not stall on a
	// status query.
	DisableOutput []string

	// FMInit is the one-time tone-source setup. FMEnable is written after
	// the first deviation has been applied (empty when FMInit already turns
	// modulation on). FMReenter switches back from AM. AMEnter switches to
	// AM.
	FMInit    []string
	FMEnable  []string
	FMReenter []string
	AMEnter   []string
}

// Profile is the quirk table entry for one identity class: command
// candidates, which operations may skip verification, the benign
// event-status codes, and the settle timing the firmware needs.
type Profile struct {
	Class       string
	BenignCodes []int

	// FastPath marks operations whose single known-good command is written
	// without status verification. On SMY02 hardware, hammering *ESR? after
	// every step of a hopping run destabilizes the front panel, so the
	// write-only path is the stable one.
	FastPath map[Op]bool

	// Settle is the wait after a fast-path write, SequenceSettle the wait
	// between lines of a blind sequence, VerifySettle the wait between a
	// verified write and its *ESR? readback, ClearSettle the wait after
	// *CLS.
	Settle         time.Duration
	SequenceSettle time.Duration
	VerifySettle   time.Duration
	ClearSettle    time.Duration

	Commands Commands
}

// IsBenign reports whether a nonzero status code is a documented non-fatal
// false positive for this class.
func (p *Profile) IsBenign(code int) bool {
	for _, c := range p.BenignCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ProfileFor selects the quirk profile for an identity. benignOverride, when
// non-nil, replaces the class's built-in benign code set (firmware revisions
// vary and the set must stay configurable).
func ProfileFor(id Identity, benignOverride []int) *Profile {
	var p *Profile
	switch id.Class() {
	case ClassSMY02:
		p = smy02Profile()
	default:
		p = genericProfile()
	}
	if benignOverride != nil {
		p.BenignCodes = benignOverride
	}
	return p
}

// smy02Profile covers the SMY02 family. The vendor command set is strict:
// unsupported SCPI aliases generate front-panel command errors, so candidate
// lists hold the single vendor command and most operations run write-only.
// ESR 32 and 53 show up on some firmware revisions even when the RF path did
// what it was told.
func smy02Profile() *Profile {
	return &Profile{
		Class:       ClassSMY02,
		BenignCodes: []int{32, 53},
		FastPath: map[Op]bool{
			OpSetFrequency: true,
			OpSetLevel:     true,
			OpFMDeviation:  true,
		},
		Settle:         50 * time.Millisecond,
		SequenceSettle: 60 * time.Millisecond,
		VerifySettle:   200 * time.Millisecond,
		ClearSettle:    100 * time.Millisecond,
		Commands: Commands{
			SetFrequency: func(hz int64) []string {
				return []string{fmt.Sprintf("RF %d", hz)}
			},
			SetLevel: func(dbm float64) []string {
				return []string{fmt.Sprintf("LEVEL %g", dbm)}
			},
			EnableOutput: []string{"OUTP ON"},
			FMDeviation: func(deviationHz int) []string {
				return []string{fmt.Sprintf("FM %d", deviationHz)}
			},
			DisableOutput: []string{"OUTP OFF", "LEVEL:OFF"},
			FMInit:        []string{"FM:INT 1.000E+3", "AF 1000", "FM:ON"},
			FMEnable:      nil, // FM:ON is part of FMInit
			FMReenter:     []string{"AM:OFF", "FM:ON"},
			AMEnter:       []string{"FM:OFF", "AM:ON"},
		},
	}
}

// genericProfile covers unrecognized identities: longer candidate lists with
// SCPI-style aliases, full verification, no benign codes, and conservative
// settle times.
func genericProfile() *Profile {
	return &Profile{
		Class:          ClassGeneric,
		BenignCodes:    nil,
		FastPath:       map[Op]bool{},
		Settle:         200 * time.Millisecond,
		SequenceSettle: 150 * time.Millisecond,
		VerifySettle:   200 * time.Millisecond,
		ClearSettle:    100 * time.Millisecond,
		Commands: Commands{
			SetFrequency: func(hz int64) []string {
				return []string{
					fmt.Sprintf("RF %d", hz),
					fmt.Sprintf("FREQ %d", hz),
					fmt.Sprintf("SOUR:FREQ %d", hz),
				}
			},
			SetLevel: func(dbm float64) []string {
				return []string{
					fmt.Sprintf("LEVEL %g", dbm),
					fmt.Sprintf("POW %g", dbm),
					fmt.Sprintf("SOUR:POW %g", dbm),
				}
			},
			EnableOutput: []string{"OUTP ON", "OUTP:STAT ON", "OUTPON", "LEVEL:ON", "RF:ON"},
			FMDeviation: func(deviationHz int) []string {
				return []string{
					fmt.Sprintf("FM %d", deviationHz),
					fmt.Sprintf("FM:DEV %d", deviationHz),
					fmt.Sprintf("FM:DEV %.3E", float64(deviationHz)),
					fmt.Sprintf("FM:DEVIATION %d", deviationHz),
					fmt.Sprintf("FM:INT:DEV %d", deviationHz),
				}
			},
			DisableOutput: []string{"OUTP OFF", "LEVEL:OFF"},
			FMInit:        []string{"FM:INT 1.000E+3", "AF 1000"},
			FMEnable:      []string{"FM:ON"},
			FMReenter:     []string{"AM:OFF", "FM:ON"},
			AMEnter:       []string{"FM:OFF", "AM:ON", "AM ON", "AM:STAT ON"},
		},
	}
}
