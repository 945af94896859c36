package device

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/smyd/pkg/logging"
	"github.com/dougsko/smyd/pkg/transport"
)

// ModulationMode is the controller's view of the instrument's modulation
// state. Exactly one mode is current at any time.
type ModulationMode int

const (
	ModulationUninitialized ModulationMode = iota
	ModulationFM
	ModulationAM
)

func (m ModulationMode) String() string {
	switch m {
	case ModulationFM:
		return "FM"
	case ModulationAM:
		return "AM"
	default:
		return "uninitialized"
	}
}

// Options configures a Controller.
type Options struct {
	// CommandTimeout bounds *IDN? and value queries.
	CommandTimeout time.Duration

	// StatusTimeout bounds *ESR? readbacks (kept short on purpose).
	StatusTimeout time.Duration

	// StrictVerify treats a timed-out status readback as a rejection
	// instead of optimistic success.
	StrictVerify bool

	// BenignCodes overrides the identity class's built-in benign status
	// code set when non-nil.
	BenignCodes []int
}

func (o Options) withDefaults() Options {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.StatusTimeout <= 0 {
		o.StatusTimeout = 500 * time.Millisecond
	}
	return o
}

// Controller drives one signal generator through a Transport. It owns the
// device identity, the quirk profile, the verification engine, and the
// modulation state machine. All public methods serialize on one mutex, so a
// hopping worker and a poller can share a controller without interleaving
// multi-command sequences on the wire.
type Controller struct {
	mu   sync.Mutex
	tr   transport.Transport
	opts Options

	identity Identity
	profile  *Profile
	verifier *Verifier

	connected     bool
	mode          ModulationMode
	fmInitialized bool
	lastDeviation int
	outputOn      bool
}

// NewController creates a controller over the given transport. Nothing is
// opened until Connect.
func NewController(tr transport.Transport, opts Options) *Controller {
	return &Controller{
		tr:   tr,
		opts: opts.withDefaults(),
	}
}

// Connect opens the link, identifies the instrument and selects its quirk
// profile. The identity is immutable for the life of the connection.
func (c *Controller) Connect() (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.tr.Open(); err != nil {
		return Identity{}, err
	}

	idn, err := c.tr.QueryLine("*IDN?", c.opts.CommandTimeout)
	if err != nil {
		c.tr.Close()
		return Identity{}, fmt.Errorf("identify instrument: %w", err)
	}

	c.identity = ParseIdentity(idn)
	c.profile = ProfileFor(c.identity, c.opts.BenignCodes)
	c.verifier = NewVerifier(c.tr, c.profile, c.opts.StatusTimeout, c.opts.StrictVerify)
	c.connected = true
	c.mode = ModulationUninitialized
	c.fmInitialized = false
	c.lastDeviation = 0
	c.outputOn = false

	logging.Infof("device", "Connected: %s (%s class, benign codes %v)",
		c.identity.Raw, c.profile.Class, c.profile.BenignCodes)
	return c.identity, nil
}

// Disconnect closes the link and forgets all per-connection state, so the
// next connection re-runs modulation initialization.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	err := c.tr.Close()
	c.connected = false
	c.mode = ModulationUninitialized
	c.fmInitialized = false
	c.outputOn = false
	logging.Infof("device", "Disconnected")
	return err
}

// Connected reports whether the link is up.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Identity returns the identity parsed at connect time.
func (c *Controller) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Mode returns the current modulation mode.
func (c *Controller) Mode() ModulationMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// OutputOn reports the last commanded RF output state.
func (c *Controller) OutputOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputOn
}

// SetFrequency sets the output frequency in Hz.
func (c *Controller) SetFrequency(hz int64) error {
	if hz <= 0 {
		return fmt.Errorf("frequency must be positive, got %d Hz", hz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if err := c.verifier.Exec(OpSetFrequency, c.profile.Commands.SetFrequency(hz)); err != nil {
		return err
	}
	logging.Debugf("device", "Frequency set to %d Hz", hz)
	return nil
}

// SetLevel sets the output level in dBm.
func (c *Controller) SetLevel(dbm float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if err := c.verifier.Exec(OpSetLevel, c.profile.Commands.SetLevel(dbm)); err != nil {
		return err
	}
	logging.Debugf("device", "Level set to %g dBm", dbm)
	return nil
}

// EnableOutput turns the RF output on, verified against the status register
// because some firmware silently ignores the enable command.
func (c *Controller) EnableOutput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if err := c.verifier.Exec(OpEnableOutput, c.profile.Commands.EnableOutput); err != nil {
		return err
	}
	c.outputOn = true
	logging.Infof("device", "RF output enabled")
	return nil
}

// DisableOutput turns the RF output off. The disable path is written blind:
// shutdown must never stall waiting on a status query.
func (c *Controller) DisableOutput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if err := c.verifier.ClearStatus(); err != nil {
		return err
	}
	if err := c.verifier.ExecSequence(c.profile.Commands.DisableOutput); err != nil {
		return err
	}
	c.outputOn = false
	logging.Infof("device", "RF output disabled")
	return nil
}

// SetModulationFM puts the instrument in FM mode with the given deviation.
// The expensive tone-source initialization runs at most once per connection;
// repeated calls send only a deviation update, and an unchanged deviation
// sends nothing at all.
func (c *Controller) SetModulationFM(deviationHz int) error {
	if deviationHz <= 0 {
		return fmt.Errorf("FM deviation must be positive, got %d Hz", deviationHz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	switch {
	case !c.fmInitialized:
		if err := c.verifier.ExecSequence(c.profile.Commands.FMInit); err != nil {
			return err
		}
		c.fmInitialized = true

	case c.mode == ModulationAM:
		if err := c.verifier.ExecSequence(c.profile.Commands.FMReenter); err != nil {
			return err
		}

	case c.mode == ModulationFM && deviationHz == c.lastDeviation:
		// Already in FM at this deviation; no traffic.
		return nil
	}

	if err := c.verifier.Exec(OpFMDeviation, c.profile.Commands.FMDeviation(deviationHz)); err != nil {
		return err
	}
	if len(c.profile.Commands.FMEnable) > 0 && c.mode != ModulationFM {
		if err := c.verifier.ExecSequence(c.profile.Commands.FMEnable); err != nil {
			return err
		}
	}

	c.mode = ModulationFM
	c.lastDeviation = deviationHz
	logging.Infof("device", "FM modulation active, deviation %d Hz", deviationHz)
	return nil
}

// SetModulationAM puts the instrument in AM mode. Already-AM is a no-op at
// the protocol level.
func (c *Controller) SetModulationAM() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if c.mode == ModulationAM {
		return nil
	}

	if err := c.verifier.ExecSequence(c.profile.Commands.AMEnter); err != nil {
		return err
	}
	c.mode = ModulationAM
	logging.Infof("device", "AM modulation active")
	return nil
}

// Reset restores factory defaults. Modulation state is forgotten because
// *RST wipes the tone-source setup.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}

	if err := c.tr.WriteLine("*RST"); err != nil {
		return err
	}
	c.mode = ModulationUninitialized
	c.fmInitialized = false
	c.lastDeviation = 0
	c.outputOn = false
	logging.Infof("device", "Instrument reset to defaults")
	return nil
}

// GetFrequency queries the current frequency in Hz, falling back through the
// known query spellings.
func (c *Controller) GetFrequency() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return 0, err
	}
	return c.queryNumber([]string{"RF?", "FREQ?", "SOUR:FREQ?"})
}

// GetLevel queries the current level in dBm.
func (c *Controller) GetLevel() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return 0, err
	}
	return c.queryNumber([]string{"LEVEL?", "POW?", "SOUR:POW?"})
}

func (c *Controller) checkConnected() error {
	if !c.connected {
		return fmt.Errorf("instrument not connected")
	}
	return nil
}

// queryNumber returns the first parseable numeric token from the first query
// that answers. Vendor responses look like "RF  144.000000E+6".
func (c *Controller) queryNumber(queries []string) (float64, error) {
	for _, q := range queries {
		resp, err := c.tr.QueryLine(q, c.opts.CommandTimeout)
		if err != nil {
			if transport.IsFatal(err) {
				return 0, err
			}
			continue
		}
		for _, tok := range strings.Fields(resp) {
			if val, err := strconv.ParseFloat(tok, 64); err == nil {
				return val, nil
			}
		}
	}
	return 0, fmt.Errorf("no response to known queries %v", queries)
}
