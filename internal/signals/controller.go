// Package signals runs the turn signal and hazard lights: button presses
// select a state and Tick blinks the relays for it.
package signals

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var ErrUnsupported = errors.New("signals: gpio unsupported on this platform")

type State int

const (
	Off State = iota
	Left
	Right
	Hazard
)

func (s State) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	case Hazard:
		return "hazard"
	default:
		return "off"
	}
}

type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
	ButtonHazard
	ButtonSMS
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonHazard:
		return "hazard"
	case ButtonSMS:
		return "sms"
	default:
		return "unknown"
	}
}

// Relay is one switched output.
type Relay interface {
	Set(on bool) error
	Get() bool
}

// Indicator texts shown while a relay phase is on.
const (
	IndicatorLeft   = "     <-----"
	IndicatorRight  = "      ----->"
	IndicatorHazard = "     <--   -->"
)

type Config struct {
	BlinkPeriod    time.Duration
	Debounce       time.Duration
	SMSCooldown    time.Duration
	EmergencyPulse time.Duration
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clk = c
		}
	}
}

type Controller struct {
	cfg Config
	clk clock.Clock
	log *zap.SugaredLogger

	left, right, emergency Relay

	mu sync.Mutex

	state      State
	lastPress  time.Time
	everPress  bool
	lastSMS    time.Time
	everSMS    bool
	smsPending bool
	pulse      bool

	lastBlink time.Time
	everBlink bool
	indicator string
}

// NewController drives left, right and emergency. emergency may be nil.
func NewController(cfg Config, left, right, emergency Relay, logger *zap.SugaredLogger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.BlinkPeriod <= 0 {
		cfg.BlinkPeriod = 400 * time.Millisecond
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.SMSCooldown <= 0 {
		cfg.SMSCooldown = 5 * time.Second
	}
	if cfg.EmergencyPulse <= 0 {
		cfg.EmergencyPulse = 200 * time.Millisecond
	}
	c := &Controller{
		cfg:       cfg,
		clk:       clock.New(),
		log:       logger.Named("signals"),
		left:      left,
		right:     right,
		emergency: emergency,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Press handles a button edge. It is safe to call from GPIO event
// goroutines. A press within the debounce window of the last accepted press
// is ignored, whichever button it came from.
func (c *Controller) Press(b Button) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if c.everPress && now.Before(c.lastPress.Add(c.cfg.Debounce)) {
		return
	}
	c.lastPress = now
	c.everPress = true

	prev := c.state
	switch b {
	case ButtonLeft:
		if c.state == Off || c.state == Left {
			c.state = Left
		} else {
			c.state = Off
		}
	case ButtonRight:
		if c.state == Off || c.state == Right {
			c.state = Right
		} else {
			c.state = Off
		}
	case ButtonHazard:
		c.state = Hazard
		c.pulse = true
	case ButtonSMS:
		c.state = Hazard
		if !c.everSMS || now.After(c.lastSMS.Add(c.cfg.SMSCooldown)) {
			c.lastSMS = now
			c.everSMS = true
			c.smsPending = true
			c.pulse = true
		}
	}
	if c.state != prev {
		c.log.Infow("signal state", "button", b.String(), "from", prev.String(), "to", c.state.String())
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TakeSMSRequest reports whether an SMS was requested since the last call
// and clears the request.
func (c *Controller) TakeSMSRequest() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.smsPending
	c.smsPending = false
	return p
}

// Indicator is the arrow text for the current relay phase, "" when dark.
func (c *Controller) Indicator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indicator
}

// Tick advances the lights. It fires a pending emergency pulse, forces both
// relays off in the Off state and otherwise toggles the active relays once
// per blink period. changed is true when the relay phase flipped, so the
// caller can redraw Indicator.
func (c *Controller) Tick() (indicator string, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pulse {
		c.pulse = false
		c.firePulseLocked()
	}

	if c.state == Off {
		c.set(c.left, false)
		c.set(c.right, false)
		c.indicator = ""
		return "", false
	}

	now := c.clk.Now()
	if c.everBlink && now.Before(c.lastBlink.Add(c.cfg.BlinkPeriod)) {
		return c.indicator, false
	}
	c.lastBlink = now
	c.everBlink = true

	switch c.state {
	case Left:
		c.indicator = c.toggle(c.left, IndicatorLeft)
	case Right:
		c.indicator = c.toggle(c.right, IndicatorRight)
	case Hazard:
		on := !c.left.Get()
		c.set(c.left, on)
		c.set(c.right, on)
		c.indicator = ""
		if on {
			c.indicator = IndicatorHazard
		}
	}
	return c.indicator, true
}

func (c *Controller) toggle(r Relay, text string) string {
	on := !r.Get()
	c.set(r, on)
	if on {
		return text
	}
	return ""
}

func (c *Controller) firePulseLocked() {
	if c.emergency == nil {
		return
	}
	c.set(c.emergency, true)
	c.clk.AfterFunc(c.cfg.EmergencyPulse, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.set(c.emergency, false)
	})
}

func (c *Controller) set(r Relay, on bool) {
	if r == nil || r.Get() == on {
		return
	}
	if err := r.Set(on); err != nil {
		c.log.Warnw("relay set failed", "on", on, "error", err)
	}
}

// AllOff switches every output off. Used at boot and shutdown.
func (c *Controller) AllOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Off
	c.indicator = ""
	c.set(c.left, false)
	c.set(c.right, false)
	c.set(c.emergency, false)
}
