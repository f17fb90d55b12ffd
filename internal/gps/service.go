package gps

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"a9g-tracker/internal/nmea"
	"a9g-tracker/internal/serialport"
)

// Config controls the fix service.
//
// Source "modem" opens nothing: bytes arrive through Write (the modem client
// forwards its UART stream) or Attach. "serial" opens Device directly and
// "gpsd" reads raw NMEA from a gpsd daemon.
type Config struct {
	Enable bool

	Source   string
	Device   string
	Baud     int
	GPSDAddr string

	LocalOffsetHours int
	CoordFormat      nmea.CoordFormat
	StaleAfter       time.Duration

	// SentenceLog receives every accepted NMEA character when non-nil.
	SentenceLog io.Writer
}

type Satellite struct {
	ID        int  `json:"id"`
	Elevation *int `json:"elevation,omitempty"`
	Azimuth   *int `json:"azimuth,omitempty"`
	SNR       *int `json:"snr,omitempty"`
	Used      bool `json:"used"`
}

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Valid    bool `json:"valid"`
	HaveFix  bool `json:"have_fix"`
	FixStale bool `json:"fix_stale"`

	Source   string `json:"source,omitempty"`
	Device   string `json:"device,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`

	LatDeg  float64 `json:"lat_deg"`
	LonDeg  float64 `json:"lon_deg"`
	LatText string  `json:"lat_text,omitempty"`
	LonText string  `json:"lon_text,omitempty"`

	AltM       float64 `json:"alt_m"`
	GeoidM     float64 `json:"geoid_m"`
	SpeedKPH   float64 `json:"speed_kph"`
	SpeedKnots float64 `json:"speed_knots"`
	CourseDeg  float64 `json:"course_deg"`
	Compass    string  `json:"compass,omitempty"`

	FixType    int     `json:"fix_type"`
	FixStatus  int     `json:"fix_status"`
	SatsInUse  int     `json:"sats_in_use"`
	SatsInView int     `json:"sats_in_view"`
	HDOP       float64 `json:"hdop"`
	PDOP       float64 `json:"pdop"`
	VDOP       float64 `json:"vdop"`

	Time      string  `json:"time,omitempty"`
	Date      string  `json:"date,omitempty"`
	FixAgeSec float64 `json:"fix_age_sec,omitempty"`

	Satellites   []Satellite `json:"satellites,omitempty"`
	Stats        nmea.Stats  `json:"stats"`
	LastSentence string      `json:"last_sentence,omitempty"`
	LastError    string      `json:"last_error,omitempty"`

	// Fix is the full decoded model for consumers that format it themselves.
	Fix nmea.Fix `json:"-"`

	fixTime time.Time
}

// Fixed reports a 2D or better fix that is not stale.
func (s Snapshot) Fixed() bool {
	return s.FixType >= int(nmea.Fix2D) && s.HaveFix && !s.FixStale
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clk = c
		}
	}
}

type Service struct {
	cfg Config
	log *zap.SugaredLogger
	clk clock.Clock

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer

	// feedMu serializes parser access; the parser is single-owner.
	feedMu sync.Mutex
	parser *nmea.Parser

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func New(cfg Config, logger *zap.SugaredLogger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "modem"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Second
	}
	s := &Service{cfg: cfg, log: logger.Named("gps"), clk: clock.New(), subs: map[int]chan Snapshot{}}
	for _, o := range opts {
		o(s)
	}
	popts := []nmea.Option{nmea.WithLocalOffset(cfg.LocalOffsetHours), nmea.WithClock(s.clk)}
	if cfg.SentenceLog != nil {
		popts = append(popts, nmea.WithLog(cfg.SentenceLog))
	}
	s.parser = nmea.NewParser(popts...)
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: cfg.Source, Device: cfg.Device})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch s.cfg.Source {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "serial":
		return s.startSerialLocked(ctx)
	default:
		s.log.Infow("gps enabled, waiting for modem stream", "local_offset", s.cfg.LocalOffsetHours)
		return nil
	}
}

func (s *Service) startSerialLocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = serialport.Guess()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no serial port found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	f, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.log.Infow("gps enabled", "device", device, "baud", baud)
	s.update(func(cur *Snapshot) { cur.Device = device })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()
		if err := s.readLoop(childCtx, f); err != nil {
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
		}
	}()
	return nil
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.update(func(cur *Snapshot) {
		cur.GPSDAddr = addr
		cur.Device = "gpsd"
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Infow("gps enabled", "source", "gpsd", "addr", addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			if childCtx.Err() != nil {
				return
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-s.clk.After(min(backoff, maxBackoff)):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = 250 * time.Millisecond

			s.mu.Lock()
			s.closer = conn
			s.mu.Unlock()

			if err := gpsdWatch(conn); err != nil {
				s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
			} else if err := s.readLoop(childCtx, conn); err != nil && childCtx.Err() == nil {
				s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			}
			_ = conn.Close()
		}
	}()
	return nil
}

// Attach feeds r into the parser until r fails or ctx ends. The caller owns
// r; Close waits for the reader goroutine, so r must return once ctx is done
// or r is closed.
func (s *Service) Attach(ctx context.Context, r io.Reader) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.readLoop(ctx, r); err != nil && ctx.Err() == nil {
			s.setError(fmt.Sprintf("gps stream stopped: %v", err))
		}
	}()
}

func (s *Service) readLoop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Write lets the service sit behind an io.Writer such as the modem's NMEA
// sink. It never fails.
func (s *Service) Write(p []byte) (int, error) {
	s.Feed(p)
	return len(p), nil
}

// Feed pushes raw receiver bytes through the parser and publishes a snapshot
// when at least one sentence applied.
func (s *Service) Feed(b []byte) nmea.SentenceType {
	s.feedMu.Lock()
	t := s.parser.Feed(b)
	var snap Snapshot
	if t != nmea.SentenceNone {
		snap = s.buildSnapshot()
		s.last.Store(snap)
	}
	s.feedMu.Unlock()

	if t != nmea.SentenceNone {
		s.fanOut(snap)
	}
	return t
}

// buildSnapshot must be called with feedMu held.
func (s *Service) buildSnapshot() Snapshot {
	fx := s.parser.Fix()
	prev := s.Snapshot()

	snap := Snapshot{
		Enabled:  prev.Enabled,
		Valid:    fx.Valid,
		Source:   prev.Source,
		Device:   prev.Device,
		GPSDAddr: prev.GPSDAddr,

		LatDeg:  fx.Latitude.Signed(),
		LonDeg:  fx.Longitude.Signed(),
		LatText: fx.LatitudeString(s.cfg.CoordFormat),
		LonText: fx.LongitudeString(s.cfg.CoordFormat),

		AltM:       fx.Altitude,
		GeoidM:     fx.GeoidHeight,
		SpeedKPH:   fx.Speed.KPH,
		SpeedKnots: fx.Speed.Knots,
		CourseDeg:  fx.Course,
		Compass:    fx.CompassDirection(),

		FixType:    int(fx.FixType),
		FixStatus:  fx.FixStatus,
		SatsInUse:  fx.SatellitesInUse,
		SatsInView: fx.SatellitesInView,
		HDOP:       fx.HDOP,
		PDOP:       fx.PDOP,
		VDOP:       fx.VDOP,

		Time: fmt.Sprintf("%02d:%02d:%02d", fx.Time.Hours, fx.Time.Minutes, int(fx.Time.Seconds)),
		Date: fx.DateString(nmea.DateDMY, ""),

		Satellites:   satellites(fx),
		Stats:        s.parser.Stats(),
		LastSentence: s.parser.LastSentence(),
		LastError:    prev.LastError,

		Fix:     fx,
		fixTime: fx.FixTime(),
	}
	snap.HaveFix = !snap.fixTime.IsZero()
	return snap
}

func satellites(fx nmea.Fix) []Satellite {
	if len(fx.Satellites) == 0 {
		return nil
	}
	used := make(map[int]bool, len(fx.SatellitesUsed))
	for _, id := range fx.SatellitesUsed {
		used[id] = true
	}
	out := make([]Satellite, 0, len(fx.Satellites))
	for id, info := range fx.Satellites {
		out = append(out, Satellite{ID: id, Elevation: info.Elevation, Azimuth: info.Azimuth, SNR: info.SNR, Used: used[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fanOut hands snap to subscribers. The caller has already stored it.
func (s *Service) fanOut(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	snap = s.withAge(snap)
	for _, ch := range s.subs {
		// Keep only the newest snapshot for slow consumers.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe returns a channel that receives every published snapshot. Slow
// receivers only see the most recent one. The returned func unsubscribes and
// closes the channel.
func (s *Service) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

// Snapshot returns the latest published state with the fix age evaluated
// against the service clock.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return s.withAge(v.(Snapshot))
}

func (s *Service) withAge(snap Snapshot) Snapshot {
	if snap.fixTime.IsZero() {
		return snap
	}
	age := s.clk.Since(snap.fixTime)
	snap.FixAgeSec = age.Seconds()
	snap.FixStale = age > s.cfg.StaleAfter
	return snap
}

// Fixed reports whether the latest fix is 2D or better and not stale.
func (s *Service) Fixed() bool {
	return s.Snapshot().Fixed()
}

// Stats returns the parser counters.
func (s *Service) Stats() nmea.Stats {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	return s.parser.Stats()
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	s.log.Warnw("gps error", "error", msg)
	// Transient source errors do not flip validity.
	s.update(func(cur *Snapshot) { cur.LastError = msg })
}

// update edits the stored snapshot in place of a full rebuild. It takes
// feedMu so it cannot interleave with Feed.
func (s *Service) update(fn func(*Snapshot)) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	cur, _ := s.last.Load().(Snapshot)
	fn(&cur)
	s.last.Store(cur)
}
