package nmea

import (
	"math"
	"sort"
	"time"
)

// FixType is the GSA fix mode.
type FixType int

const (
	FixNone FixType = 1
	Fix2D   FixType = 2
	Fix3D   FixType = 3
)

func (t FixType) String() string {
	switch t {
	case FixNone:
		return "none"
	case Fix2D:
		return "2d"
	case Fix3D:
		return "3d"
	default:
		return "unknown"
	}
}

// Coordinate is a latitude or longitude as reported on the wire: whole
// degrees, decimal minutes and a hemisphere letter. Degrees are never signed.
type Coordinate struct {
	Degrees    int     `json:"degrees"`
	Minutes    float64 `json:"minutes"`
	Hemisphere string  `json:"hemisphere"`
}

// Decimal returns degrees + minutes/60 without applying the hemisphere sign.
func (c Coordinate) Decimal() float64 {
	return float64(c.Degrees) + c.Minutes/60
}

// Signed returns Decimal negated for the southern and western hemispheres.
func (c Coordinate) Signed() float64 {
	d := c.Decimal()
	if c.Hemisphere == "S" || c.Hemisphere == "W" {
		return -d
	}
	return d
}

// DMS splits the coordinate into degrees, whole minutes and rounded seconds.
func (c Coordinate) DMS() (deg, min, sec int) {
	whole, frac := math.Modf(c.Minutes)
	return c.Degrees, int(whole), int(math.Round(frac * 60))
}

// Timestamp is the time of day, already shifted by the parser's local offset.
type Timestamp struct {
	Hours   int     `json:"hours"`
	Minutes int     `json:"minutes"`
	Seconds float64 `json:"seconds"`
}

// Date is the UTC date as sent by the receiver. The local offset is not
// applied, so the date does not roll over when the shifted time crosses
// midnight.
type Date struct {
	Day   int `json:"day"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// Speed holds the same ground speed in the three supported units.
type Speed struct {
	Knots float64 `json:"knots"`
	MPH   float64 `json:"mph"`
	KPH   float64 `json:"kph"`
}

const (
	knotsToMPH = 1.151
	knotsToKPH = 1.852
)

func speedFromKnots(k float64) Speed {
	return Speed{Knots: k, MPH: k * knotsToMPH, KPH: k * knotsToKPH}
}

// SatelliteInfo is one GSV record. Nil fields were not reported.
type SatelliteInfo struct {
	Elevation *int `json:"elevation,omitempty"`
	Azimuth   *int `json:"azimuth,omitempty"`
	SNR       *int `json:"snr,omitempty"`
}

// Fix is the aggregated state built from every applied sentence.
type Fix struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`

	Time Timestamp `json:"time"`
	Date Date      `json:"date"`

	Speed       Speed   `json:"speed"`
	Course      float64 `json:"course"`
	Altitude    float64 `json:"altitude"`
	GeoidHeight float64 `json:"geoid_height"`

	SatellitesInView int                   `json:"satellites_in_view"`
	SatellitesInUse  int                   `json:"satellites_in_use"`
	SatellitesUsed   []int                 `json:"satellites_used"`
	Satellites       map[int]SatelliteInfo `json:"satellites"`
	TotalSVSentences int                   `json:"total_sv_sentences"`
	LastSVSentence   int                   `json:"last_sv_sentence"`

	HDOP float64 `json:"hdop"`
	PDOP float64 `json:"pdop"`
	VDOP float64 `json:"vdop"`

	// Valid is the RMC/GLL status flag. FixStatus is the GGA fix quality and
	// FixType is the GSA mode; receivers may disagree between them.
	Valid     bool    `json:"valid"`
	FixStatus int     `json:"fix_status"`
	FixType   FixType `json:"fix_type"`

	fixTime time.Time
}

var (
	zeroLatitude  = Coordinate{Hemisphere: "N"}
	zeroLongitude = Coordinate{Hemisphere: "W"}
)

func newFix() Fix {
	return Fix{
		Latitude:   zeroLatitude,
		Longitude:  zeroLongitude,
		Satellites: map[int]SatelliteInfo{},
		FixType:    FixNone,
	}
}

func (f Fix) clone() Fix {
	out := f
	if f.SatellitesUsed != nil {
		out.SatellitesUsed = append([]int(nil), f.SatellitesUsed...)
	}
	out.Satellites = make(map[int]SatelliteInfo, len(f.Satellites))
	for id, s := range f.Satellites {
		out.Satellites[id] = s
	}
	return out
}

// FixTime is when a sentence last implied a usable fix. Zero means never.
func (f Fix) FixTime() time.Time { return f.fixTime }

// TimeSinceFix returns now minus the last fix time. ok is false when no fix
// has ever been recorded.
func (f Fix) TimeSinceFix(now time.Time) (time.Duration, bool) {
	if f.fixTime.IsZero() {
		return 0, false
	}
	return now.Sub(f.fixTime), true
}

var directions = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// CompassDirection maps the course onto a 16-point rose. North covers
// [348.75, 360) and [0, 11.25).
func (f Fix) CompassDirection() string {
	return compassDirection(f.Course)
}

func compassDirection(course float64) string {
	course = math.Mod(course, 360)
	if course < 0 {
		course += 360
	}
	var offset float64
	if course >= 348.75 {
		offset = 360 - course
	} else {
		offset = course + 11.25
	}
	i := int(math.Floor(offset / 22.5))
	if i < 0 || i >= len(directions) {
		i = 0
	}
	return directions[i]
}

// SatelliteDataUpdated reports whether the last GSV sentence received closed
// its group. It does not prove the group arrived without gaps.
func (f Fix) SatelliteDataUpdated() bool {
	return f.TotalSVSentences > 0 && f.TotalSVSentences == f.LastSVSentence
}

func (f *Fix) ClearSatelliteDataUpdated() {
	f.LastSVSentence = 0
}

// SatellitesVisible returns the IDs in the satellite catalogue in ascending
// order.
func (f Fix) SatellitesVisible() []int {
	ids := make([]int, 0, len(f.Satellites))
	for id := range f.Satellites {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Unit selects a speed unit.
type Unit int

const (
	KPH Unit = iota
	MPH
	Knots
)

func (f Fix) SpeedIn(u Unit) float64 {
	switch u {
	case MPH:
		return f.Speed.MPH
	case Knots:
		return f.Speed.Knots
	default:
		return f.Speed.KPH
	}
}
