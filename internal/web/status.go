package web

import (
	"sync/atomic"
	"time"

	"a9g-tracker/internal/gps"
)

// GPSSource is the fix service as the web layer sees it.
type GPSSource interface {
	Snapshot() gps.Snapshot
	Subscribe() (<-chan gps.Snapshot, func())
}

// Status collects the tracker state the control loop reports.
type Status struct {
	startUnixNano int64
	lastTickNano  int64
	traccarSent   uint64
	smsSent       uint64

	gps GPSSource

	trackerID  atomic.Value // string
	signal     atomic.Value // SignalsStatus
	modem      atomic.Value // ModemStatus
	lastRptErr atomic.Value // string
}

func NewStatus(src GPSSource) *Status {
	s := &Status{gps: src}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.trackerID.Store("")
	s.signal.Store(SignalsStatus{State: "off"})
	s.modem.Store(ModemStatus{})
	s.lastRptErr.Store("")
	return s
}

type SignalsStatus struct {
	Enabled   bool   `json:"enabled"`
	State     string `json:"state"`
	Indicator string `json:"indicator,omitempty"`
}

type ModemStatus struct {
	Enabled   bool   `json:"enabled"`
	Device    string `json:"device,omitempty"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

type ReportsStatus struct {
	TraccarSent uint64 `json:"traccar_sent"`
	SMSSent     uint64 `json:"sms_sent"`
	LastError   string `json:"last_error,omitempty"`
}

func (s *Status) SetTrackerID(id string) { s.trackerID.Store(id) }

func (s *Status) SetSignals(st SignalsStatus) { s.signal.Store(st) }

func (s *Status) SetModem(st ModemStatus) { s.modem.Store(st) }

// SetModemConnected updates only the connectivity flag.
func (s *Status) SetModemConnected(c bool) {
	m := s.modem.Load().(ModemStatus)
	m.Connected = c
	s.modem.Store(m)
}

func (s *Status) MarkTraccar() { atomic.AddUint64(&s.traccarSent, 1) }

func (s *Status) MarkSMS() { atomic.AddUint64(&s.smsSent, 1) }

// SetReportError records the last outbound report failure; nil clears it.
func (s *Status) SetReportError(err error) {
	if err == nil {
		s.lastRptErr.Store("")
		return
	}
	s.lastRptErr.Store(err.Error())
}

func (s *Status) MarkTick(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
}

type StatusSnapshot struct {
	Service     string        `json:"service"`
	TrackerID   string        `json:"tracker_id"`
	NowUTC      string        `json:"now_utc"`
	UptimeSec   int64         `json:"uptime_sec"`
	LastTickUTC string        `json:"last_tick_utc,omitempty"`
	GPS         gps.Snapshot  `json:"gps"`
	Signals     SignalsStatus `json:"signals"`
	Modem       ModemStatus   `json:"modem"`
	Reports     ReportsStatus `json:"reports"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "a9g-tracker",
		TrackerID: s.trackerID.Load().(string),
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Signals:   s.signal.Load().(SignalsStatus),
		Modem:     s.modem.Load().(ModemStatus),
		Reports: ReportsStatus{
			TraccarSent: atomic.LoadUint64(&s.traccarSent),
			SMSSent:     atomic.LoadUint64(&s.smsSent),
			LastError:   s.lastRptErr.Load().(string),
		},
	}
	if s.gps != nil {
		snap.GPS = s.gps.Snapshot()
	}
	if lastTick := atomic.LoadInt64(&s.lastTickNano); lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
