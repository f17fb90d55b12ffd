package nmea

import (
	"strconv"
)

// Every decoder parses all of its fields into locals first and only writes to
// the fix once nothing else can fail, so a rejected sentence never leaves a
// partial update behind.

// RMC: Recommended Minimum Specific GNSS Data
//
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func decodeRMC(f fields, fx *Fix, env decodeEnv) bool {
	ts, ok := parseTimeField(f.get(1), env.localOffset)
	if !ok {
		return false
	}
	date, ok := parseDateField(f.get(9))
	if !ok {
		return false
	}

	if f.get(2) != "A" {
		fx.Time = ts
		fx.Date = date
		fx.invalidatePosition()
		fx.Speed = Speed{}
		fx.Course = 0
		return true
	}

	lat, lon, ok := parseLatLon(f, 3)
	if !ok {
		return false
	}
	knots, err := strconv.ParseFloat(f.get(7), 64)
	if err != nil {
		return false
	}
	course, ok := parseOptionalFloat(f.get(8))
	if !ok {
		return false
	}

	fx.Time = ts
	fx.Date = date
	fx.Latitude = lat
	fx.Longitude = lon
	fx.Speed = speedFromKnots(knots)
	fx.Course = course
	fx.Valid = true
	fx.fixTime = env.now
	return true
}

// GLL: Geographic Position - Latitude/Longitude
//
//	1: latitude
//	2: N/S
//	3: longitude
//	4: E/W
//	5: time (hhmmss.sss)
//	6: status (A=active, V=void)
func decodeGLL(f fields, fx *Fix, env decodeEnv) bool {
	ts, ok := parseTimeField(f.get(5), env.localOffset)
	if !ok {
		return false
	}

	if f.get(6) != "A" {
		fx.Time = ts
		fx.invalidatePosition()
		return true
	}

	lat, lon, ok := parseLatLon(f, 1)
	if !ok {
		return false
	}

	fx.Time = ts
	fx.Latitude = lat
	fx.Longitude = lon
	fx.Valid = true
	fx.fixTime = env.now
	return true
}

// VTG: Course Over Ground and Ground Speed
//
//	1: course (deg true)
//	5: speed (knots)
func decodeVTG(f fields, fx *Fix, _ decodeEnv) bool {
	course, ok := parseOptionalFloat(f.get(1))
	if !ok {
		return false
	}
	knots, ok := parseOptionalFloat(f.get(5))
	if !ok {
		return false
	}
	fx.Speed = speedFromKnots(knots)
	fx.Course = course
	return true
}

// GGA: Global Positioning System Fix Data
//
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 11: geoid separation (meters)
func decodeGGA(f fields, fx *Fix, env decodeEnv) bool {
	ts := Timestamp{}
	if s := f.get(1); s != "" {
		var ok bool
		if ts, ok = parseTime(s, env.localOffset); !ok {
			return false
		}
	}
	inUse, err := strconv.Atoi(f.get(7))
	if err != nil {
		return false
	}
	fixStat, err := strconv.Atoi(f.get(6))
	if err != nil {
		return false
	}
	hdop, err := strconv.ParseFloat(f.get(8), 64)
	if err != nil {
		hdop = 0
	}

	var lat, lon Coordinate
	var alt, geoid float64
	if fixStat != 0 {
		var ok bool
		if lat, lon, ok = parseLatLon(f, 2); !ok {
			return false
		}
		a, errA := strconv.ParseFloat(f.get(9), 64)
		g, errG := strconv.ParseFloat(f.get(11), 64)
		if errA == nil && errG == nil {
			alt, geoid = a, g
		}
	}

	if fixStat != 0 {
		fx.Latitude = lat
		fx.Longitude = lon
		fx.Altitude = alt
		fx.GeoidHeight = geoid
		fx.fixTime = env.now
	}
	fx.Time = ts
	fx.SatellitesInUse = inUse
	fx.HDOP = hdop
	fx.FixStatus = fixStat
	return true
}

// GSA: GNSS DOP and Active Satellites
//
//	1: selection mode (M/A)
//	2: fix type (1=none, 2=2D, 3=3D)
//	3-14: satellite IDs used in the solution
//	15: PDOP
//	16: HDOP
//	17: VDOP
func decodeGSA(f fields, fx *Fix, env decodeEnv) bool {
	fixType, err := strconv.Atoi(f.get(2))
	if err != nil {
		return false
	}

	var used []int
	for i := 0; i < 12; i++ {
		s := f.get(3 + i)
		if s == "" {
			break
		}
		id, err := strconv.Atoi(s)
		if err != nil {
			return false
		}
		used = append(used, id)
	}

	pdop, err := strconv.ParseFloat(f.get(15), 64)
	if err != nil {
		return false
	}
	hdop, err := strconv.ParseFloat(f.get(16), 64)
	if err != nil {
		return false
	}
	vdop, err := strconv.ParseFloat(f.get(17), 64)
	if err != nil {
		return false
	}

	fx.FixType = FixType(fixType)
	if fx.FixType > FixNone {
		fx.fixTime = env.now
	}
	fx.SatellitesUsed = used
	fx.PDOP = pdop
	fx.HDOP = hdop
	fx.VDOP = vdop
	return true
}

// satsPerGSV is the protocol maximum of satellite records per GSV sentence.
const satsPerGSV = 4

// GSV: GNSS Satellites in View
//
//	1: total number of GSV sentences in this group
//	2: sentence number (1-based)
//	3: satellites in view
//	4+4k: satellite ID
//	5+4k: elevation (deg)
//	6+4k: azimuth (deg)
//	7+4k: SNR (dB-Hz)
func decodeGSV(f fields, fx *Fix, _ decodeEnv) bool {
	total, err := strconv.Atoi(f.get(1))
	if err != nil {
		return false
	}
	index, err := strconv.Atoi(f.get(2))
	if err != nil {
		return false
	}
	inView, err := strconv.Atoi(f.get(3))
	if err != nil {
		return false
	}

	slots := satsPerGSV
	if total == index {
		slots = inView - (total-1)*satsPerGSV
	}
	slots = max(0, min(slots, satsPerGSV))

	sats := make(map[int]SatelliteInfo, slots)
	for k := 0; k < slots; k++ {
		base := 4 + k*4
		s := f.get(base)
		if s == "" {
			break
		}
		id, err := strconv.Atoi(s)
		if err != nil {
			return false
		}
		sats[id] = SatelliteInfo{
			Elevation: optionalInt(f.get(base + 1)),
			Azimuth:   optionalInt(f.get(base + 2)),
			SNR:       optionalInt(f.get(base + 3)),
		}
	}

	fx.TotalSVSentences = total
	fx.LastSVSentence = index
	fx.SatellitesInView = inView
	if index == 1 || fx.Satellites == nil {
		fx.Satellites = sats
		return true
	}
	// Continuations merge into the group started by sentence 1. If a
	// continuation was dropped, IDs from the previous cycle are kept.
	for id, s := range sats {
		fx.Satellites[id] = s
	}
	return true
}

func (fx *Fix) invalidatePosition() {
	fx.Latitude = zeroLatitude
	fx.Longitude = zeroLongitude
	fx.Valid = false
}

// parseLatLon reads latitude and longitude from four consecutive fields
// starting at i.
func parseLatLon(f fields, i int) (lat, lon Coordinate, ok bool) {
	lat, ok = parseCoordinate(f.get(i), f.get(i+1), 2, "N", "S")
	if !ok {
		return Coordinate{}, Coordinate{}, false
	}
	lon, ok = parseCoordinate(f.get(i+2), f.get(i+3), 3, "E", "W")
	if !ok {
		return Coordinate{}, Coordinate{}, false
	}
	return lat, lon, true
}

// parseCoordinate splits "ddmm.mmmm" (degDigits=2) or "dddmm.mmmm"
// (degDigits=3) into degrees and minutes.
func parseCoordinate(v, hemi string, degDigits int, pos, neg string) (Coordinate, bool) {
	if len(v) <= degDigits {
		return Coordinate{}, false
	}
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil || deg < 0 {
		return Coordinate{}, false
	}
	mins, err := strconv.ParseFloat(v[degDigits:], 64)
	if err != nil || mins < 0 || mins >= 60 {
		return Coordinate{}, false
	}
	if hemi != pos && hemi != neg {
		return Coordinate{}, false
	}
	return Coordinate{Degrees: deg, Minutes: mins, Hemisphere: hemi}, true
}

// parseTimeField treats an empty field as midnight.
func parseTimeField(s string, offset int) (Timestamp, bool) {
	if s == "" {
		return Timestamp{}, true
	}
	return parseTime(s, offset)
}

// parseTime parses hhmmss(.sss) and shifts the hour by offset modulo 24.
func parseTime(s string, offset int) (Timestamp, bool) {
	if len(s) < 5 {
		return Timestamp{}, false
	}
	h, err := strconv.Atoi(s[0:2])
	if err != nil {
		return Timestamp{}, false
	}
	m, err := strconv.Atoi(s[2:4])
	if err != nil {
		return Timestamp{}, false
	}
	sec, err := strconv.ParseFloat(s[4:], 64)
	if err != nil {
		return Timestamp{}, false
	}
	h = ((h+offset)%24 + 24) % 24
	return Timestamp{Hours: h, Minutes: m, Seconds: sec}, true
}

// parseDateField parses ddmmyy; an empty field yields the zero date.
func parseDateField(s string) (Date, bool) {
	if s == "" {
		return Date{}, true
	}
	if len(s) < 6 {
		return Date{}, false
	}
	d, err := strconv.Atoi(s[0:2])
	if err != nil {
		return Date{}, false
	}
	m, err := strconv.Atoi(s[2:4])
	if err != nil {
		return Date{}, false
	}
	y, err := strconv.Atoi(s[4:6])
	if err != nil {
		return Date{}, false
	}
	return Date{Day: d, Month: m, Year: y}, true
}

func parseOptionalFloat(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func optionalInt(s string) *int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
