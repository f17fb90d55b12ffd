package nmea

import (
	"fmt"
	"strconv"
	"strings"
)

// CoordFormat selects how coordinates are rendered for people.
type CoordFormat int

const (
	// FormatDDM is degrees and decimal minutes, the wire representation.
	FormatDDM CoordFormat = iota
	// FormatDD is decimal degrees.
	FormatDD
	// FormatDMS is degrees, minutes and seconds.
	FormatDMS
)

// ParseCoordFormat accepts "dd", "dms" or "ddm" (case-insensitive).
func ParseCoordFormat(s string) (CoordFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ddm", "":
		return FormatDDM, nil
	case "dd":
		return FormatDD, nil
	case "dms":
		return FormatDMS, nil
	default:
		return FormatDDM, fmt.Errorf("nmea: unknown coordinate format %q (expected dd|dms|ddm)", s)
	}
}

func (f CoordFormat) String() string {
	switch f {
	case FormatDD:
		return "dd"
	case FormatDMS:
		return "dms"
	default:
		return "ddm"
	}
}

// Format renders c as e.g. "37.5° N", "37° 30' 0\" N" or "37° 30.0' N".
func (c Coordinate) Format(f CoordFormat) string {
	switch f {
	case FormatDD:
		return formatFloat(c.Decimal()) + "° " + c.Hemisphere
	case FormatDMS:
		d, m, s := c.DMS()
		return fmt.Sprintf("%d° %d' %d\" %s", d, m, s, c.Hemisphere)
	default:
		return fmt.Sprintf("%d° %s' %s", c.Degrees, formatFloat(c.Minutes), c.Hemisphere)
	}
}

// formatFloat prints the shortest representation of v, always keeping one
// decimal place so whole values read as "30.0".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func (f Fix) LatitudeString(cf CoordFormat) string  { return f.Latitude.Format(cf) }
func (f Fix) LongitudeString(cf CoordFormat) string { return f.Longitude.Format(cf) }

// SpeedString renders the speed with its unit, e.g. "12.5 km/h" or "1.0 knot".
func (f Fix) SpeedString(u Unit) string {
	switch u {
	case MPH:
		return formatFloat(f.Speed.MPH) + " mph"
	case Knots:
		if f.Speed.Knots == 1 {
			return formatFloat(f.Speed.Knots) + " knot"
		}
		return formatFloat(f.Speed.Knots) + " knots"
	default:
		return formatFloat(f.Speed.KPH) + " km/h"
	}
}

// ParseUnit accepts "kph"/"kmh", "mph" or "knot"/"knots". Anything else is
// km/h.
func ParseUnit(s string) Unit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mph":
		return MPH
	case "knot", "knots", "kt", "kn":
		return Knots
	default:
		return KPH
	}
}

// DateFormat selects how Fix.DateString renders the date.
type DateFormat int

const (
	DateMDY DateFormat = iota
	DateDMY
	DateLong
)

var months = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// DateString renders the receiver date. century is prefixed to the two-digit
// year in the long format ("April 23rd, 2094" for century "20").
func (f Fix) DateString(df DateFormat, century string) string {
	d := f.Date
	switch df {
	case DateLong:
		if d.Month < 1 || d.Month > 12 {
			return ""
		}
		return fmt.Sprintf("%s %d%s, %s%02d", months[d.Month-1], d.Day, ordinalSuffix(d.Day), century, d.Year)
	case DateDMY:
		return fmt.Sprintf("%02d/%02d/%02d", d.Day, d.Month, d.Year)
	default:
		return fmt.Sprintf("%02d/%02d/%02d", d.Month, d.Day, d.Year)
	}
}

func ordinalSuffix(day int) string {
	switch day {
	case 1, 21, 31:
		return "st"
	case 2, 22:
		return "nd"
	case 3, 23:
		return "rd"
	default:
		return "th"
	}
}
