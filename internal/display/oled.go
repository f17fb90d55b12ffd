package display

import (
	"fmt"
	"image"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/host/v3"
)

// OLED is an SSD1306 on an I²C bus.
type OLED struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// Open initializes periph and the panel at the default address. An empty bus
// name selects the first bus.
func Open(bus string, width, height int) (*OLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("display: periph init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("display: open i2c bus %q: %w", bus, err)
	}
	opts := ssd1306.DefaultOpts
	if width > 0 {
		opts.W = width
	}
	if height > 0 {
		opts.H = height
	}
	dev, err := ssd1306.NewI2C(b, &opts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("display: ssd1306: %w", err)
	}
	return &OLED{bus: b, dev: dev}, nil
}

func (o *OLED) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	return o.dev.Draw(r, src, sp)
}

func (o *OLED) Halt() error { return o.dev.Halt() }

func (o *OLED) Close() error {
	_ = o.dev.Halt()
	return o.bus.Close()
}
