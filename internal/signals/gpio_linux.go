//go:build linux

package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

const consumer = "a9g-tracker"

// Board owns the relay outputs and button inputs on one gpiochip.
type Board struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line

	Left, Right, Emergency Relay
}

// OpenBoard requests the relay lines as outputs driven low and the buttons as
// pulled-up inputs. press is called from the gpiocdev event goroutine on every
// falling edge.
func OpenBoard(l Lines, press func(Button)) (*Board, error) {
	chip, err := openChip(l.Chip)
	if err != nil {
		return nil, err
	}
	b := &Board{chip: chip}

	relays := []struct {
		name string
		pin  int
		dst  *Relay
	}{
		{"left_relay", l.LeftRelay, &b.Left},
		{"right_relay", l.RightRelay, &b.Right},
		{"emergency_light", l.EmergencyLight, &b.Emergency},
	}
	for _, r := range relays {
		offset := lineOffset(chip, r.pin)
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("signals: request %s line %d: %w", r.name, r.pin, err)
		}
		b.lines = append(b.lines, line)
		*r.dst = &gpioRelay{line: line}
	}

	for btn, pin := range l.buttons() {
		btn := btn
		offset := lineOffset(chip, pin)
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithConsumer(consumer),
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
				if press != nil {
					press(btn)
				}
			}),
		)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("signals: request %s button line %d: %w", btn, pin, err)
		}
		b.lines = append(b.lines, line)
	}
	return b, nil
}

// Close drives the relays low and releases every line.
func (b *Board) Close() error {
	if b == nil {
		return nil
	}
	var errs error
	for _, r := range []Relay{b.Left, b.Right, b.Emergency} {
		if r != nil {
			errs = multierr.Append(errs, r.Set(false))
		}
	}
	for _, line := range b.lines {
		errs = multierr.Append(errs, line.Close())
	}
	b.lines = nil
	if b.chip != nil {
		errs = multierr.Append(errs, b.chip.Close())
		b.chip = nil
	}
	return errs
}

func openChip(name string) (*gpiocdev.Chip, error) {
	if name != "" {
		chip, err := gpiocdev.NewChip(name)
		if err != nil {
			return nil, fmt.Errorf("signals: open %s: %w", name, err)
		}
		return chip, nil
	}

	candidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			candidates = append(candidates, filepath.Join("/dev", e.Name()))
		}
	}
	for _, path := range candidates {
		chip, err := gpiocdev.NewChip(path)
		if err == nil {
			return chip, nil
		}
	}
	return nil, fmt.Errorf("signals: no gpiochip found")
}

// lineOffset resolves a pin by its "GPIO<n>" line name, falling back to
// treating the number as a raw offset.
func lineOffset(chip *gpiocdev.Chip, pin int) int {
	if offset, err := chip.FindLine(fmt.Sprintf("GPIO%d", pin)); err == nil {
		return offset
	}
	return pin
}

type gpioRelay struct {
	line *gpiocdev.Line

	mu sync.Mutex
	on bool
}

func (r *gpioRelay) Set(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return err
	}
	r.on = on
	return nil
}

func (r *gpioRelay) Get() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
