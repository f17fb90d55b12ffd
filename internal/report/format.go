// Package report sends positions out of the tracker: Traccar over the modem's
// HTTP stack, SMS to the owner's phone and MQTT for local consumers.
package report

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"a9g-tracker/internal/gps"
	"a9g-tracker/internal/nmea"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TraccarURL builds an OsmAnd protocol query: signed decimal degrees, speed
// in knots and course in degrees.
func TraccarURL(base, id string, snap gps.Snapshot) string {
	return fmt.Sprintf("%s/?id=%s&lat=%s&lon=%s&speed=%s&course=%s",
		strings.TrimRight(base, "/"), url.QueryEscape(id),
		num(snap.LatDeg), num(snap.LonDeg), num(snap.SpeedKnots), num(snap.CourseDeg))
}

// MapsURL links a Google Maps search for the position.
func MapsURL(snap gps.Snapshot) string {
	lat, latH := unsigned(snap.LatDeg, snap.Fix.Latitude.Hemisphere, "N", "S")
	lon, lonH := unsigned(snap.LonDeg, snap.Fix.Longitude.Hemisphere, "E", "W")
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s%s+%s%s", num(lat), latH, num(lon), lonH)
}

// SMSText is the location message: vehicle id, formatted position and a
// maps link.
func SMSText(id string, snap gps.Snapshot, format nmea.CoordFormat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vehiculo: %s\n", id)
	fmt.Fprintf(&b, "Posicion: %s %s\n", snap.Fix.LatitudeString(format), snap.Fix.LongitudeString(format))
	b.WriteString(MapsURL(snap))
	return b.String()
}

func unsigned(v float64, hemi, pos, neg string) (float64, string) {
	if hemi == "" {
		hemi = pos
		if v < 0 {
			hemi = neg
		}
	}
	return math.Abs(v), hemi
}
