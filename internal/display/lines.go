// Package display draws the tracker status on a 128x64 SSD1306 OLED.
package display

import (
	"fmt"
	"math"

	"a9g-tracker/internal/gps"
)

// Line is one text row. X and Y are the top-left corner in pixels.
type Line struct {
	X, Y int
	Text string
}

const textY = 20

// StatusLines lays out the idle status page: connectivity and satellites,
// position, speed, course and the local time.
func StatusLines(snap gps.Snapshot, connected bool) []Line {
	link := "d"
	if connected {
		link = "C"
	}
	clock := snap.Time
	if clock == "" {
		clock = "00:00:00"
	}
	return []Line{
		{0, 0, fmt.Sprintf("%s %d/%d Fix:%d", link, snap.SatsInUse, snap.SatsInView, snap.FixType)},
		{0, 10, fmt.Sprintf("%.4f%s %.4f%s",
			math.Abs(snap.LatDeg), hemisphere(snap.Fix.Latitude.Hemisphere, snap.LatDeg, "N", "S"),
			math.Abs(snap.LonDeg), hemisphere(snap.Fix.Longitude.Hemisphere, snap.LonDeg, "E", "W"))},
		{0, 20, fmt.Sprintf("Vel: %.1f km/h", snap.SpeedKPH)},
		{0, 30, fmt.Sprintf("Rumbo:%.1f", snap.CourseDeg)},
		{62, 50, clock},
	}
}

func hemisphere(decoded string, v float64, pos, neg string) string {
	if decoded != "" {
		return decoded
	}
	if v < 0 {
		return neg
	}
	return pos
}
