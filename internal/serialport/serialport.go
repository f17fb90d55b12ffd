// Package serialport enumerates serial devices for the modem and the GNSS
// receiver.
package serialport

import (
	"os"
	"path/filepath"
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

type Port struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// List returns the serial ports known to the OS, with USB details when the
// platform exposes them.
func List() ([]Port, error) {
	detailed, err := enumerator.GetDetailedPortsList()
	if err == nil && len(detailed) > 0 {
		out := make([]Port, 0, len(detailed))
		for _, p := range detailed {
			out = append(out, Port{
				Name:         p.Name,
				IsUSB:        p.IsUSB,
				VID:          p.VID,
				PID:          p.PID,
				SerialNumber: p.SerialNumber,
				Product:      p.Product,
			})
		}
		return out, nil
	}

	names, err2 := serial.GetPortsList()
	if err2 != nil {
		if err != nil {
			return nil, err
		}
		return nil, err2
	}
	sort.Strings(names)
	out := make([]Port, 0, len(names))
	for _, n := range names {
		out = append(out, Port{Name: n})
	}
	return out, nil
}

// fallback are the usual device nodes for USB adapters and the Pi UART.
var fallback = []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyS0", "/dev/ttyAMA0"}

// Guess picks a likely serial device, skipping any names in exclude. It
// returns "" when nothing is found.
func Guess(exclude ...string) string {
	byID, _ := filepath.Glob("/dev/serial/by-id/*")
	ports, _ := List()
	return choose(byID, ports, func(name string) bool {
		_, err := os.Stat(name)
		return err == nil
	}, exclude)
}

// choose prefers stable by-id symlinks, then USB adapters, then any other
// enumerated port, then the first fallback node that exists.
func choose(byID []string, ports []Port, exists func(string) bool, exclude []string) string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	pick := func(names []string) string {
		for _, n := range names {
			if !skip[n] {
				return n
			}
		}
		return ""
	}

	if n := pick(byID); n != "" {
		return n
	}

	var usb, other []string
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p.Name)
		} else {
			other = append(other, p.Name)
		}
	}
	if n := pick(append(usb, other...)); n != "" {
		return n
	}

	for _, c := range fallback {
		if !skip[c] && exists(c) {
			return c
		}
	}
	return ""
}
