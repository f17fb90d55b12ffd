package display

import (
	"bytes"
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"a9g-tracker/internal/gps"
	"a9g-tracker/internal/nmea"
)

type fakePanel struct {
	mu     sync.Mutex
	frames [][]byte
	halted bool
	err    error
}

func (p *fakePanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	img := src.(*image1bit.VerticalLSB)
	p.frames = append(p.frames, append([]byte(nil), img.Pix...))
	return nil
}

func (p *fakePanel) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
	return nil
}

func (p *fakePanel) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[len(p.frames)-1]
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestStatusLines(t *testing.T) {
	snap := gps.Snapshot{
		SatsInUse:  7,
		SatsInView: 12,
		FixType:    3,
		LatDeg:     37.5,
		LonDeg:     -122.25,
		SpeedKPH:   12.34,
		CourseDeg:  123.4,
		Time:       "14:35:19",
		Fix: nmea.Fix{
			Latitude:  nmea.Coordinate{Degrees: 37, Minutes: 30, Hemisphere: "N"},
			Longitude: nmea.Coordinate{Degrees: 122, Minutes: 15, Hemisphere: "W"},
		},
	}
	got := texts(StatusLines(snap, true))
	want := []string{"C 7/12 Fix:3", "37.5000N 122.2500W", "Vel: 12.3 km/h", "Rumbo:123.4", "14:35:19"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("lines=%q", got)
	}

	lines := StatusLines(gps.Snapshot{LatDeg: -33.9, LonDeg: 18.4}, false)
	if lines[0].Text != "d 0/0 Fix:0" || lines[1].Text != "33.9000S 18.4000E" || lines[4].Text != "00:00:00" {
		t.Fatalf("lines=%q", texts(lines))
	}
	if lines[4].X != 62 || lines[4].Y != 50 {
		t.Fatalf("clock at %d,%d", lines[4].X, lines[4].Y)
	}
}

func TestRender_DrawsInsideRows(t *testing.T) {
	blank := Render(128, 64, nil)
	for _, b := range blank.Pix {
		if b != 0 {
			t.Fatalf("blank frame has ink")
		}
	}

	img := Render(128, 64, []Line{{X: 62, Y: 50, Text: "12:00:00"}})
	ink := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			if img.BitAt(x, y) == image1bit.On {
				ink++
				if x < 62 || y < 50 {
					t.Fatalf("pixel at %d,%d outside the text box", x, y)
				}
			}
		}
	}
	if ink == 0 {
		t.Fatalf("no pixels drawn")
	}
}

func TestScreen_ShowTextAndStatus(t *testing.T) {
	p := &fakePanel{}
	s := NewScreen(p, 128, 64, nil)

	if err := s.ShowText("reset a9g: 3"); err != nil {
		t.Fatalf("ShowText: %v", err)
	}
	want := Render(128, 64, []Line{{X: 0, Y: 20, Text: "reset a9g: 3"}})
	if !bytes.Equal(p.last(), want.Pix) {
		t.Fatalf("ShowText frame differs from Render")
	}

	snap := gps.Snapshot{Time: "01:02:03"}
	if err := s.ShowStatus(snap, true); err != nil {
		t.Fatalf("ShowStatus: %v", err)
	}
	if !bytes.Equal(p.last(), Render(128, 64, StatusLines(snap, true)).Pix) {
		t.Fatalf("status frame differs from Render")
	}

	if err := s.Halt(); err != nil || !p.halted {
		t.Fatalf("Halt: %v halted=%v", err, p.halted)
	}
}

func TestScreen_DrawError(t *testing.T) {
	p := &fakePanel{err: errors.New("i2c nack")}
	s := NewScreen(p, 128, 64, nil)
	if err := s.Clear(); err == nil || !strings.Contains(err.Error(), "i2c nack") {
		t.Fatalf("err=%v", err)
	}
}

func TestScreen_Boot(t *testing.T) {
	p := &fakePanel{}
	s := NewScreen(p, 128, 64, nil, WithFrameDelay(time.Millisecond))
	if err := s.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if len(p.frames) != 2*len(bootPhases)+1 {
		t.Fatalf("frames=%d", len(p.frames))
	}
	first := Render(128, 64, []Line{{X: 0, Y: 20, Text: "  | Booting..."}})
	if !bytes.Equal(p.frames[0], first.Pix) {
		t.Fatalf("first frame differs")
	}
	final := Render(128, 64, []Line{{X: 0, Y: 20, Text: "  [Booting...]"}})
	if !bytes.Equal(p.last(), final.Pix) {
		t.Fatalf("final frame differs")
	}
}

func TestScreen_BootCancelled(t *testing.T) {
	p := &fakePanel{}
	s := NewScreen(p, 128, 64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Boot(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if len(p.frames) != 1 {
		t.Fatalf("frames=%d", len(p.frames))
	}
}
