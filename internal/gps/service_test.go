package gps

import (
	"bufio"
	"context"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"

	"a9g-tracker/internal/nmea"
)

func nmeaLine(payload string) string {
	return "$" + payload + "*" + gonmea.Checksum(payload) + "\r\n"
}

var fixLines = []string{
	nmeaLine("GPGGA,123519,3730.000,N,12215.000,W,1,07,0.9,545.4,M,46.9,M,,"),
	nmeaLine("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"),
	nmeaLine("GPGSV,1,1,03,04,40,083,46,05,17,308,41,30,07,344,"),
	nmeaLine("GPRMC,123519,A,3730.000,N,12215.000,W,010.0,084.4,230394,003.1,W"),
}

func newTestService(t *testing.T, cfg Config) (*Service, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := New(cfg, nil, WithClock(mock))
	t.Cleanup(s.Close)
	return s, mock
}

func TestFeed_PublishesSnapshot(t *testing.T) {
	s, _ := newTestService(t, Config{Enable: true, CoordFormat: nmea.FormatDD})
	if s.Snapshot().Valid || s.Fixed() {
		t.Fatalf("fresh service should not be valid")
	}

	for _, l := range fixLines {
		if _, err := io.WriteString(s, l); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	snap := s.Snapshot()
	if !snap.Valid || !snap.HaveFix || snap.FixStale || !s.Fixed() {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.Source != "modem" || !snap.Enabled {
		t.Fatalf("source=%q enabled=%v", snap.Source, snap.Enabled)
	}
	if snap.LatDeg != 37.5 || snap.LonDeg != -122.25 {
		t.Fatalf("lat/lon=%v/%v", snap.LatDeg, snap.LonDeg)
	}
	if snap.LatText != "37.5° N" || snap.LonText != "122.25° W" {
		t.Fatalf("text=%q %q", snap.LatText, snap.LonText)
	}
	if snap.SpeedKnots != 10 || math.Abs(snap.SpeedKPH-18.52) > 1e-9 || snap.Compass != "E" {
		t.Fatalf("speed=%v/%v compass=%q", snap.SpeedKnots, snap.SpeedKPH, snap.Compass)
	}
	if snap.FixType != 3 || snap.FixStatus != 1 || snap.SatsInUse != 7 || snap.SatsInView != 3 {
		t.Fatalf("fix=%d/%d sats=%d/%d", snap.FixType, snap.FixStatus, snap.SatsInUse, snap.SatsInView)
	}
	if snap.Time != "12:35:19" || snap.Date != "23/03/94" || snap.LastSentence != "GPRMC" {
		t.Fatalf("time=%q date=%q last=%q", snap.Time, snap.Date, snap.LastSentence)
	}
	if len(snap.Satellites) != 3 || snap.Satellites[0].ID != 4 || !snap.Satellites[0].Used || snap.Satellites[2].Used {
		t.Fatalf("satellites=%+v", snap.Satellites)
	}
	if snap.Satellites[2].SNR != nil {
		t.Fatalf("empty SNR should be nil")
	}
	if snap.Stats.ParsedSentences != 4 || snap.Stats.CRCFails != 0 {
		t.Fatalf("stats=%+v", snap.Stats)
	}
}

func TestFeed_CorruptionDoesNotPublish(t *testing.T) {
	s, _ := newTestService(t, Config{Enable: true})
	ch, cancel := s.Subscribe()
	defer cancel()

	bad := strings.Replace(fixLines[3], "*", "X*", 1)
	if got := s.Feed([]byte(bad)); got != nmea.SentenceNone {
		t.Fatalf("got %v", got)
	}
	select {
	case snap := <-ch:
		t.Fatalf("unexpected publish: %+v", snap)
	default:
	}
	if st := s.Stats(); st.CRCFails != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestFeed_KeepsConcurrentSourceError(t *testing.T) {
	s, _ := newTestService(t, Config{Enable: true})
	const msg = "gps read stopped: EOF"

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Feed([]byte(fixLines[3]))
		}()
		go func() {
			defer wg.Done()
			s.setError(msg)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if !snap.Valid || snap.LastError != msg {
		t.Fatalf("valid=%v last_error=%q", snap.Valid, snap.LastError)
	}
}

func TestSnapshot_GoesStale(t *testing.T) {
	s, mock := newTestService(t, Config{Enable: true, StaleAfter: 5 * time.Second})
	for _, l := range fixLines {
		s.Feed([]byte(l))
	}
	if !s.Fixed() {
		t.Fatalf("expected fixed")
	}

	mock.Add(6 * time.Second)
	snap := s.Snapshot()
	if !snap.FixStale || s.Fixed() {
		t.Fatalf("expected stale fix: %+v", snap)
	}
	if math.Abs(snap.FixAgeSec-6) > 1e-9 {
		t.Fatalf("age=%v", snap.FixAgeSec)
	}

	// A fresh fix clears staleness.
	s.Feed([]byte(fixLines[3]))
	if !s.Fixed() {
		t.Fatalf("expected fixed after new RMC")
	}
}

func TestSubscribe_KeepsNewest(t *testing.T) {
	s, _ := newTestService(t, Config{Enable: true})
	ch, cancel := s.Subscribe()

	s.Feed([]byte(fixLines[0]))
	s.Feed([]byte(fixLines[3]))

	snap := <-ch
	if snap.LastSentence != "GPRMC" {
		t.Fatalf("got %q want newest snapshot", snap.LastSentence)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	s.Feed([]byte(fixLines[3]))
}

func TestAttach_ReadsStreamUntilEOF(t *testing.T) {
	s := New(Config{Enable: true}, nil)
	pr, pw := io.Pipe()
	s.Attach(context.Background(), pr)

	for _, l := range fixLines {
		if _, err := pw.Write([]byte(l)); err != nil {
			t.Fatalf("pipe write: %v", err)
		}
	}
	_ = pw.Close()
	s.Close()

	snap := s.Snapshot()
	if !snap.Valid || snap.LastSentence != "GPRMC" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if !strings.Contains(snap.LastError, "EOF") {
		t.Fatalf("last_error=%q", snap.LastError)
	}
}

func TestStart_DisabledIsNoop(t *testing.T) {
	s := New(Config{Enable: false, Source: "serial"}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Close()
}

func TestStart_SerialOpenFailureRecorded(t *testing.T) {
	s := New(Config{Enable: true, Source: "serial", Device: "/nonexistent/tty", Baud: 9600}, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected open error")
	}
	if snap := s.Snapshot(); !strings.Contains(snap.LastError, "/nonexistent/tty") {
		t.Fatalf("last_error=%q", snap.LastError)
	}
	s.Close()
}

func TestStart_GPSDRawNMEA(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	watch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		watch <- line
		_, _ = io.WriteString(conn, `{"class":"VERSION","release":"3.25"}`+"\n")
		for _, l := range fixLines {
			_, _ = io.WriteString(conn, l)
		}
		// Hold the connection until the client goes away.
		_, _ = io.Copy(io.Discard, conn)
	}()

	s := New(Config{Enable: true, Source: "gpsd", GPSDAddr: ln.Addr().String()}, nil)
	ch, cancel := s.Subscribe()
	defer cancel()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Close()

	select {
	case line := <-watch:
		if !strings.Contains(line, `"nmea":true`) {
			t.Fatalf("watch=%q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("gpsd watch not sent")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Valid {
				if snap.Device != "gpsd" || snap.GPSDAddr != ln.Addr().String() {
					t.Fatalf("snapshot=%+v", snap)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no valid snapshot from gpsd stream: %+v", s.Snapshot())
		}
	}
}
