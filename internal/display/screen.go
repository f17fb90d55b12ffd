package display

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"a9g-tracker/internal/gps"
)

// Panel is the subset of *ssd1306.Dev the screen needs.
type Panel interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

type Option func(*Screen)

func WithClock(c clock.Clock) Option {
	return func(s *Screen) {
		if c != nil {
			s.clk = c
		}
	}
}

// WithFrameDelay sets the boot animation frame time.
func WithFrameDelay(d time.Duration) Option {
	return func(s *Screen) {
		if d > 0 {
			s.frame = d
		}
	}
}

// Screen serializes drawing on a Panel.
type Screen struct {
	panel  Panel
	bounds image.Rectangle
	clk    clock.Clock
	frame  time.Duration
	log    *zap.SugaredLogger

	mu sync.Mutex
}

func NewScreen(p Panel, width, height int, logger *zap.SugaredLogger, opts ...Option) *Screen {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Screen{
		panel:  p,
		bounds: image.Rect(0, 0, width, height),
		clk:    clock.New(),
		frame:  500 * time.Millisecond,
		log:    logger.Named("display"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Screen) Show(lines []Line) error {
	img := Render(s.bounds.Dx(), s.bounds.Dy(), lines)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.panel.Draw(s.bounds, img, image.Point{}); err != nil {
		return fmt.Errorf("display: draw: %w", err)
	}
	return nil
}

func (s *Screen) ShowStatus(snap gps.Snapshot, connected bool) error {
	return s.Show(StatusLines(snap, connected))
}

// ShowText replaces the screen with a single line of text.
func (s *Screen) ShowText(text string) error {
	return s.Show([]Line{{X: 0, Y: textY, Text: text}})
}

func (s *Screen) Clear() error { return s.Show(nil) }

var bootPhases = []string{"|", "/", "-", "|", "/", "-"}

// Boot plays the spinner twice and leaves "[Booting...]" on screen.
func (s *Screen) Boot(ctx context.Context) error {
	for round := 0; round < 2; round++ {
		for _, p := range bootPhases {
			if err := s.ShowText(fmt.Sprintf("  %s Booting...", p)); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clk.After(s.frame):
			}
		}
	}
	return s.ShowText("  [Booting...]")
}

// Halt blanks the panel.
func (s *Screen) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panel.Halt()
}
