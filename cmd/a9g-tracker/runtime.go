package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"a9g-tracker/internal/config"
	"a9g-tracker/internal/display"
	"a9g-tracker/internal/gps"
	"a9g-tracker/internal/logging"
	"a9g-tracker/internal/modem"
	"a9g-tracker/internal/nmea"
	"a9g-tracker/internal/report"
	"a9g-tracker/internal/signals"
	"a9g-tracker/internal/store"
	"a9g-tracker/internal/udp"
	"a9g-tracker/internal/web"
)

const (
	loopPeriod      = 50 * time.Millisecond
	linkCheckPeriod = 10 * time.Second
	mqttEvery       = time.Second
	publishTimeout  = time.Second
	readerJoinWait  = 2 * time.Second
)

// publisher feeds one sink from its own goroutine. The loop only offers
// snapshots; a sink that is still busy keeps just the newest one.
type publisher struct {
	name  string
	pub   report.Publisher
	every time.Duration
	last  time.Time
	queue chan gps.Snapshot
}

func newPublisher(name string, pub report.Publisher, every time.Duration) *publisher {
	return &publisher{name: name, pub: pub, every: every, queue: make(chan gps.Snapshot, 1)}
}

func (p *publisher) offer(snap gps.Snapshot) {
	select {
	case <-p.queue:
	default:
	}
	select {
	case p.queue <- snap:
	default:
	}
}

func (p *publisher) run(ctx context.Context, log *zap.SugaredLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.queue:
			p.send(ctx, log, snap)
		}
	}
}

func (p *publisher) send(ctx context.Context, log *zap.SugaredLogger, snap gps.Snapshot) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.pub.Publish(pctx, snap); err != nil {
		log.Debugw("publish failed", "sink", p.name, "error", err)
	}
}

// closeAndWait closes a port and then waits for its reader to exit, so
// nothing downstream of the reader is written after its own close.
func closeAndWait(closeFn func() error, done <-chan struct{}, wait time.Duration, log *zap.SugaredLogger) error {
	err := closeFn()
	select {
	case <-done:
	case <-time.After(wait):
		log.Warnw("reader did not stop after close", "waited", wait)
	}
	return err
}

// job is outbound modem work. Jobs run one at a time off the control loop so
// a slow SMS or HTTP exchange does not stall the lights.
type job struct {
	name string
	fn   func(ctx context.Context) error
}

type runtime struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	clk    clock.Clock
	status *web.Status
	logs   *web.LogBuffer

	gpsSvc   *gps.Service
	modem    *modem.Modem
	link     report.Link
	signals  *signals.Controller
	screen   *display.Screen
	reporter *report.Reporter
	track    *store.Store
	pubs     []*publisher

	jobs          chan job
	connected     atomic.Bool
	traccarQueued atomic.Bool

	lastDraw      time.Time
	lastStore     time.Time
	lastLinkCheck time.Time
	lastSignal    signals.State

	closers []func() error
}

func newRuntime(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, logs *web.LogBuffer) (*runtime, error) {
	r := &runtime{
		cfg:  cfg,
		log:  logger,
		clk:  clock.New(),
		logs: logs,
		jobs: make(chan job, 4),
	}

	if cfg.Display.Enable {
		oled, err := display.Open(cfg.Display.Bus, cfg.Display.Width, cfg.Display.Height)
		if err != nil {
			logger.Warnw("display unavailable", "error", err)
		} else {
			r.closers = append(r.closers, oled.Close)
			r.screen = display.NewScreen(oled, cfg.Display.Width, cfg.Display.Height, logger)
			if err := r.screen.Boot(ctx); err != nil {
				if ctx.Err() != nil {
					r.Close()
					return nil, ctx.Err()
				}
				logger.Warnw("boot animation failed", "error", err)
			}
		}
	}

	if cfg.Signals.Enable {
		if err := r.initSignals(); err != nil {
			logger.Warnw("signals unavailable", "error", err)
		}
	}

	format, err := nmea.ParseCoordFormat(cfg.GPS.CoordFormat)
	if err != nil {
		r.Close()
		return nil, err
	}
	gcfg := gps.Config{
		Enable:           cfg.GPS.Enable,
		Source:           cfg.GPS.Source,
		Device:           cfg.GPS.Device,
		Baud:             cfg.GPS.Baud,
		GPSDAddr:         cfg.GPS.GPSDAddr,
		LocalOffsetHours: cfg.GPS.LocalOffsetHours,
		CoordFormat:      format,
		StaleAfter:       cfg.GPS.StaleAfter,
	}
	if cfg.GPS.SentenceLog != "" {
		w := logging.RotatingWriter(cfg.GPS.SentenceLog, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
		gcfg.SentenceLog = w
		r.closers = append(r.closers, w.Close)
	}
	r.gpsSvc = gps.New(gcfg, logger)
	r.closers = append(r.closers, func() error { r.gpsSvc.Close(); return nil })

	r.status = web.NewStatus(r.gpsSvc)
	r.status.SetTrackerID(cfg.Tracker.ID)
	r.status.SetSignals(web.SignalsStatus{Enabled: r.signals != nil, State: signals.Off.String()})

	if cfg.GPS.Enable && cfg.GPS.Source != "modem" {
		if err := r.gpsSvc.Start(ctx); err != nil {
			logger.Warnw("gps start failed", "source", cfg.GPS.Source, "error", err)
		}
	}

	if cfg.Modem.Enable {
		if err := r.initModem(ctx); err != nil {
			if ctx.Err() != nil {
				r.Close()
				return nil, ctx.Err()
			}
			logger.Errorw("modem bring-up failed", "error", err)
		}
	}

	r.reporter = report.NewReporter(report.Config{
		ID:              cfg.Tracker.ID,
		Phone:           cfg.Tracker.Phone,
		SMSEnable:       cfg.Tracker.SMSEnable,
		TraccarURL:      cfg.Tracker.TraccarURL,
		TraccarInterval: cfg.Tracker.TraccarInterval,
		CoordFormat:     format,
	}, r.link, logger)

	if cfg.Store.Enable {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("store: %w", err)
		}
		r.track = st
		r.closers = append(r.closers, st.Close)
	}

	if cfg.MQTT.Enable {
		p, err := report.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, logger)
		if err != nil {
			logger.Warnw("mqtt unavailable", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			r.pubs = append(r.pubs, newPublisher("mqtt", p, mqttEvery))
			r.closers = append(r.closers, func() error { p.Close(); return nil })
		}
	}

	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.pubs = append(r.pubs, newPublisher("udp", b, cfg.UDP.Interval))
		r.closers = append(r.closers, b.Close)
	}

	return r, nil
}

func (r *runtime) initSignals() error {
	s := r.cfg.Signals
	var ctl atomic.Pointer[signals.Controller]
	board, err := signals.OpenBoard(signals.Lines{
		Chip:           s.Chip,
		LeftRelay:      s.LeftRelay,
		RightRelay:     s.RightRelay,
		EmergencyLight: s.EmergencyLight,
		LeftButton:     s.LeftButton,
		RightButton:    s.RightButton,
		HazardButton:   s.HazardButton,
		SMSButton:      s.SMSButton,
	}, func(b signals.Button) {
		if c := ctl.Load(); c != nil {
			c.Press(b)
		}
	})
	if err != nil {
		return err
	}
	r.closers = append(r.closers, board.Close)

	c := signals.NewController(signals.Config{
		BlinkPeriod:    s.BlinkPeriod,
		Debounce:       s.Debounce,
		SMSCooldown:    s.SMSCooldown,
		EmergencyPulse: s.EmergencyPulse,
	}, board.Left, board.Right, board.Emergency, r.log)
	c.AllOff()
	ctl.Store(c)
	r.signals = c
	return nil
}

func (r *runtime) initModem(ctx context.Context) error {
	c := r.cfg.Modem
	var exclude []string
	if r.cfg.GPS.Source == "serial" {
		if dev := r.gpsSvc.Snapshot().Device; dev != "" {
			exclude = append(exclude, dev)
		}
	}
	r.status.SetModem(web.ModemStatus{Enabled: true, Device: c.Device})

	port, dev, err := modem.Open(c.Device, c.Baud, exclude...)
	if err != nil {
		return err
	}
	readerDone := make(chan struct{})
	r.closers = append(r.closers, func() error {
		return closeAndWait(port.Close, readerDone, readerJoinWait, r.log)
	})

	opts := modem.Options{CommandTimeout: c.CommandTimeout, ResetTimeout: c.ResetTimeout}
	modemGPS := r.cfg.GPS.Enable && r.cfg.GPS.Source == "modem"
	if modemGPS {
		opts.NMEASink = r.gpsSvc
	}
	m := modem.New(port, r.log, opts)
	go func() {
		defer close(readerDone)
		if err := m.Run(ctx); err != nil && ctx.Err() == nil {
			r.log.Errorw("modem reader stopped", "device", dev, "error", err)
		}
	}()
	r.modem = m
	r.link = m
	r.status.SetModem(web.ModemStatus{Enabled: true, Device: dev})
	r.log.Infow("modem opened", "device", dev, "baud", c.Baud)

	progress := func(elapsed time.Duration) {
		if r.screen != nil {
			_ = r.screen.ShowText(fmt.Sprintf("reset a9g: %d", int(elapsed.Seconds())))
		}
	}
	if err := m.WaitReady(ctx, c.BootTimeout, progress); err != nil {
		return err
	}
	r.status.SetModem(web.ModemStatus{Enabled: true, Device: dev, Ready: true})

	if modemGPS {
		if err := m.GPSEnable(ctx); err != nil {
			r.log.Warnw("gnss enable failed", "error", err)
		}
		if err := m.GPSReadInterval(ctx, c.GPSReadInterval); err != nil {
			r.log.Warnw("gnss read interval failed", "error", err)
		}
	}
	if err := m.ConnInit(ctx, c.APN); err != nil {
		r.log.Warnw("network attach incomplete", "apn", c.APN, "error", err)
	}
	return nil
}

func (r *runtime) trackSource() web.TrackSource {
	if r.track == nil {
		return nil
	}
	return r.track
}

// Run drives the control loop until ctx ends.
func (r *runtime) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if r.cfg.Web.Enable {
		h := web.Handler(r.status, r.trackSource(), r.logs, r.log)
		go func() {
			if err := web.Serve(ctx, r.cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
				errCh <- err
			}
		}()
		r.log.Infow("web listening", "addr", r.cfg.Web.Listen)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.runJobs(ctx)
	}()
	for _, p := range r.pubs {
		wg.Add(1)
		go func(p *publisher) {
			defer wg.Done()
			p.run(ctx, r.log)
		}(p)
	}
	defer wg.Wait()

	t := r.clk.Ticker(loopPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return fmt.Errorf("web: %w", err)
		case <-t.C:
			r.step(ctx)
		}
	}
}

// step is one pass of the control loop.
func (r *runtime) step(ctx context.Context) {
	now := r.clk.Now()
	snap := r.gpsSvc.Snapshot()

	lightsOff := r.signals == nil || r.signals.State() == signals.Off
	if r.screen != nil && lightsOff && now.Sub(r.lastDraw) >= r.cfg.Display.Refresh {
		r.lastDraw = now
		if err := r.screen.ShowStatus(snap, r.connected.Load()); err != nil {
			r.log.Debugw("status draw failed", "error", err)
		}
	}

	if r.signals != nil {
		text, changed := r.signals.Tick()
		if changed && r.screen != nil {
			if err := r.screen.ShowText(text); err != nil {
				r.log.Debugw("indicator draw failed", "error", err)
			}
		}
		state := r.signals.State()
		if changed || state != r.lastSignal {
			r.lastSignal = state
			r.status.SetSignals(web.SignalsStatus{Enabled: true, State: state.String(), Indicator: text})
		}
		if r.signals.TakeSMSRequest() {
			r.enqueue(job{name: "sms", fn: func(ctx context.Context) error {
				err := r.reporter.SendLocationSMS(ctx, snap)
				if err == nil {
					r.status.MarkSMS()
				}
				return err
			}})
		}
	}

	if r.link != nil && now.Sub(r.lastLinkCheck) >= linkCheckPeriod {
		r.lastLinkCheck = now
		r.enqueue(job{name: "link", fn: func(ctx context.Context) error {
			c := r.link.IsConnected(ctx)
			r.connected.Store(c)
			r.status.SetModemConnected(c)
			return nil
		}})
	}

	if snap.Fixed() && r.connected.Load() && r.reporter.Due() && r.traccarQueued.CompareAndSwap(false, true) {
		queued := r.enqueue(job{name: "traccar", fn: func(ctx context.Context) error {
			defer r.traccarQueued.Store(false)
			sent, err := r.reporter.MaybeTraccar(ctx, snap)
			if sent {
				r.status.MarkTraccar()
			}
			return err
		}})
		if !queued {
			r.traccarQueued.Store(false)
		}
	}

	if r.track != nil && snap.Fixed() && now.Sub(r.lastStore) >= r.cfg.Store.Interval {
		r.lastStore = now
		if p, err := store.PointFromSnapshot(snap, now); err == nil {
			if _, err := r.track.Record(ctx, p); err != nil {
				r.log.Warnw("track record failed", "error", err)
			}
		}
	}

	if snap.Valid {
		for _, p := range r.pubs {
			if now.Sub(p.last) < p.every {
				continue
			}
			p.last = now
			p.offer(snap)
		}
	}

	r.status.MarkTick(now)
}

func (r *runtime) enqueue(j job) bool {
	select {
	case r.jobs <- j:
		return true
	default:
		r.log.Warnw("outbound queue full, dropping", "job", j.name)
		return false
	}
}

func (r *runtime) runJobs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-r.jobs:
			r.runJob(ctx, j)
		}
	}
}

func (r *runtime) runJob(ctx context.Context, j job) {
	err := j.fn(ctx)
	switch {
	case err == nil:
		if j.name != "link" {
			r.status.SetReportError(nil)
		}
	case errors.Is(err, report.ErrNoFix), errors.Is(err, report.ErrSMSDisabled):
		r.log.Infow("outbound skipped", "job", j.name, "reason", err)
	default:
		r.status.SetReportError(err)
		r.log.Warnw("outbound failed", "job", j.name, "error", err)
	}
}

// Close switches the lights off and releases devices in reverse order.
func (r *runtime) Close() error {
	if r.signals != nil {
		r.signals.AllOff()
	}
	if r.screen != nil {
		_ = r.screen.Halt()
	}
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, r.closers[i]())
	}
	r.closers = nil
	return errs
}
