package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"a9g-tracker/internal/gps"
	"a9g-tracker/internal/nmea"
)

var (
	ErrNoFix       = errors.New("report: no gps fix")
	ErrSMSDisabled = errors.New("report: sms disabled")
)

// Link is the part of the modem the reporter uses.
type Link interface {
	HTTPGet(ctx context.Context, url string) (string, error)
	SendSMS(ctx context.Context, dest, text string) error
	IsConnected(ctx context.Context) bool
}

type Config struct {
	ID              string
	Phone           string
	SMSEnable       bool
	TraccarURL      string
	TraccarInterval time.Duration
	CoordFormat     nmea.CoordFormat
}

type Option func(*Reporter)

func WithClock(c clock.Clock) Option {
	return func(r *Reporter) {
		if c != nil {
			r.clk = c
		}
	}
}

// Reporter sends Traccar position reports and location SMS through a Link.
type Reporter struct {
	cfg  Config
	link Link
	clk  clock.Clock
	log  *zap.SugaredLogger

	mu      sync.Mutex
	next    time.Time
	sent    int
	lastErr error
}

func NewReporter(cfg Config, link Link, logger *zap.SugaredLogger, opts ...Option) *Reporter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TraccarInterval <= 0 {
		cfg.TraccarInterval = 10 * time.Second
	}
	r := &Reporter{cfg: cfg, link: link, clk: clock.New(), log: logger.Named("report")}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Due reports whether a Traccar report may be attempted now.
func (r *Reporter) Due() bool {
	if r.cfg.TraccarURL == "" || r.link == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.clk.Now().Before(r.next)
}

// MaybeTraccar sends a report when one is due, the snapshot holds a fix and
// the modem reports a data connection. The next report is scheduled only
// after an attempt.
func (r *Reporter) MaybeTraccar(ctx context.Context, snap gps.Snapshot) (bool, error) {
	if r.cfg.TraccarURL == "" || r.link == nil {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	if now.Before(r.next) {
		return false, nil
	}
	if !snap.Fixed() || !r.link.IsConnected(ctx) {
		return false, nil
	}
	r.next = now.Add(r.cfg.TraccarInterval)

	u := TraccarURL(r.cfg.TraccarURL, r.cfg.ID, snap)
	if _, err := r.link.HTTPGet(ctx, u); err != nil {
		r.lastErr = err
		r.log.Warnw("traccar report failed", "error", err)
		return false, fmt.Errorf("report: traccar: %w", err)
	}
	r.sent++
	r.lastErr = nil
	r.log.Debugw("traccar report sent", "lat", snap.LatDeg, "lon", snap.LonDeg)
	return true, nil
}

// SendLocationSMS texts the configured phone when the snapshot holds a fix.
func (r *Reporter) SendLocationSMS(ctx context.Context, snap gps.Snapshot) error {
	if !r.cfg.SMSEnable || r.cfg.Phone == "" || r.link == nil {
		return ErrSMSDisabled
	}
	if !snap.Fixed() {
		r.log.Infow("sms requested without fix")
		return ErrNoFix
	}
	text := SMSText(r.cfg.ID, snap, r.cfg.CoordFormat)
	if err := r.link.SendSMS(ctx, r.cfg.Phone, text); err != nil {
		r.log.Warnw("location sms failed", "error", err)
		return fmt.Errorf("report: sms: %w", err)
	}
	r.log.Infow("location sms sent", "phone", r.cfg.Phone)
	return nil
}

// Stats returns the number of Traccar reports sent and the last error.
func (r *Reporter) Stats() (sent int, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent, r.lastErr
}
