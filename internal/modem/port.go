package modem

import (
	"fmt"
	"strings"

	"go.bug.st/serial"

	"a9g-tracker/internal/serialport"
)

// Open opens the modem UART at baud, 8N1. An empty device is auto-detected,
// skipping any ports in exclude (typically a dedicated GNSS receiver).
func Open(device string, baud int, exclude ...string) (serial.Port, string, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		device = serialport.Guess(exclude...)
		if device == "" {
			return nil, "", fmt.Errorf("modem: auto-detect failed: no serial port found")
		}
	}
	if baud <= 0 {
		baud = 115200
	}
	p, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, device, fmt.Errorf("modem: open %s: %w", device, err)
	}
	return p, device, nil
}
