package nmea

import (
	"math"
	"reflect"
	"testing"
)

func mustApply(t *testing.T, p *Parser, payload string, want SentenceType) {
	t.Helper()
	if got := feedString(p, nmeaLine(payload)); got != want {
		t.Fatalf("%s: got %v want %v", payload, got, want)
	}
}

func mustReject(t *testing.T, p *Parser, payload string) {
	t.Helper()
	before := p.Stats()
	if got := feedString(p, nmeaLine(payload)); got != SentenceNone {
		t.Fatalf("%s: got %v want none", payload, got)
	}
	after := p.Stats()
	if after.CleanSentences != before.CleanSentences+1 {
		t.Fatalf("%s: rejected sentence should still be clean: %+v", payload, after)
	}
	if after.ParsedSentences != before.ParsedSentences {
		t.Fatalf("%s: rejected sentence counted as parsed", payload)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func intp(v int) *int { return &v }

func TestDecodeRMC_ValidFix(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", SentenceRMC)

	fx := p.Fix()
	if fx.Latitude != (Coordinate{Degrees: 48, Minutes: 7.038, Hemisphere: "N"}) {
		t.Fatalf("lat=%+v", fx.Latitude)
	}
	if fx.Longitude != (Coordinate{Degrees: 11, Minutes: 31, Hemisphere: "E"}) {
		t.Fatalf("lon=%+v", fx.Longitude)
	}
	if fx.Time != (Timestamp{Hours: 12, Minutes: 35, Seconds: 19}) {
		t.Fatalf("time=%+v", fx.Time)
	}
	if fx.Date != (Date{Day: 23, Month: 3, Year: 94}) {
		t.Fatalf("date=%+v", fx.Date)
	}
	if !near(fx.Speed.Knots, 22.4) || !near(fx.Speed.MPH, 22.4*1.151) || !near(fx.Speed.KPH, 22.4*1.852) {
		t.Fatalf("speed=%+v", fx.Speed)
	}
	if !near(fx.Course, 84.4) || !fx.Valid {
		t.Fatalf("course=%v valid=%v", fx.Course, fx.Valid)
	}
}

func TestDecodeRMC_EmptyCourseDefaultsToZero(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,0.0,,230394,,", SentenceRMC)
	if fx := p.Fix(); fx.Course != 0 || !fx.Valid {
		t.Fatalf("course=%v valid=%v", fx.Course, fx.Valid)
	}
}

func TestDecodeRMC_EmptySpeedRejected(t *testing.T) {
	p := NewParser()
	mustReject(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,,084.4,230394,,")
}

func TestDecodeRMC_VoidResetsPosition(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", SentenceRMC)
	mustApply(t, p, "GPRMC,123520,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", SentenceRMC)

	fx := p.Fix()
	if fx.Latitude != (Coordinate{Hemisphere: "N"}) || fx.Longitude != (Coordinate{Hemisphere: "W"}) {
		t.Fatalf("position not reset: %+v %+v", fx.Latitude, fx.Longitude)
	}
	if fx.Speed != (Speed{}) || fx.Course != 0 || fx.Valid {
		t.Fatalf("speed=%+v course=%v valid=%v", fx.Speed, fx.Course, fx.Valid)
	}
	if fx.Time.Seconds != 20 {
		t.Fatalf("void sentence should still update time: %+v", fx.Time)
	}
}

func TestDecodeRMC_BadHemisphereLeavesFixUntouched(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", SentenceRMC)
	before := p.Fix()

	// Time and date precede the bad field; none of it may be applied.
	mustReject(t, p, "GPRMC,235959,A,3730.000,N,12215.000,X,010.0,180.0,010125,,")
	mustReject(t, p, "GPRMC,235959,A,3730.000,E,12215.000,W,010.0,180.0,010125,,")

	if after := p.Fix(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed decode changed the fix:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestDecodeRMC_MalformedFieldsRejected(t *testing.T) {
	for _, payload := range []string{
		"GPRMC,12x519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,23x394,,",
		"GPRMC,123519,A,48,N,01131.000,E,022.4,084.4,230394,,",
		"GPRMC,123519,A,4875.000,N,01131.000,E,022.4,084.4,230394,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,fast,084.4,230394,,",
		"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,north,230394,,",
	} {
		p := NewParser()
		mustReject(t, p, payload)
		if p.Fix().Valid {
			t.Fatalf("%s: fix marked valid", payload)
		}
	}
}

func TestDecodeRMC_EmptyTimeAndDate(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,", SentenceRMC)
	mustApply(t, p, "GPRMC,,V,,,,,,,,,", SentenceRMC)
	fx := p.Fix()
	if fx.Time != (Timestamp{}) || fx.Date != (Date{}) {
		t.Fatalf("time=%+v date=%+v", fx.Time, fx.Date)
	}
}

func TestDecode_LocalOffsetWrapsWithoutDateRollover(t *testing.T) {
	p := NewParser(WithLocalOffset(2))
	mustApply(t, p, "GPRMC,231500.00,A,4807.038,N,01131.000,E,0.0,0.0,311224,,", SentenceRMC)
	fx := p.Fix()
	if fx.Time.Hours != 1 || fx.Time.Minutes != 15 {
		t.Fatalf("time=%+v", fx.Time)
	}
	if fx.Date != (Date{Day: 31, Month: 12, Year: 24}) {
		t.Fatalf("date must be left as reported: %+v", fx.Date)
	}

	p.SetLocalOffset(-5)
	mustApply(t, p, "GPGGA,021500,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", SentenceGGA)
	if h := p.Fix().Time.Hours; h != 21 {
		t.Fatalf("hours=%d want 21", h)
	}
}

func TestDecodeGLL(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGLL,4916.45,N,12311.12,W,225444,A", SentenceGLL)
	fx := p.Fix()
	if fx.Latitude != (Coordinate{Degrees: 49, Minutes: 16.45, Hemisphere: "N"}) {
		t.Fatalf("lat=%+v", fx.Latitude)
	}
	if fx.Longitude != (Coordinate{Degrees: 123, Minutes: 11.12, Hemisphere: "W"}) {
		t.Fatalf("lon=%+v", fx.Longitude)
	}
	if fx.Time != (Timestamp{Hours: 22, Minutes: 54, Seconds: 44}) || !fx.Valid {
		t.Fatalf("time=%+v valid=%v", fx.Time, fx.Valid)
	}

	mustApply(t, p, "GPGLL,,,,,225445,V", SentenceGLL)
	fx = p.Fix()
	if fx.Valid || fx.Latitude != zeroLatitude || fx.Longitude != zeroLongitude {
		t.Fatalf("void GLL did not reset: %+v", fx)
	}
}

func TestDecodeVTG(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPVTG,054.7,T,034.4,M,005.5,N,010.2,K", SentenceVTG)
	fx := p.Fix()
	if !near(fx.Course, 54.7) || !near(fx.Speed.Knots, 5.5) || !near(fx.Speed.KPH, 5.5*1.852) {
		t.Fatalf("course=%v speed=%+v", fx.Course, fx.Speed)
	}

	mustApply(t, p, "GPVTG,,T,,M,,N,,K", SentenceVTG)
	if fx := p.Fix(); fx.Course != 0 || fx.Speed != (Speed{}) {
		t.Fatalf("empty VTG should zero course/speed: %+v", fx)
	}
	mustReject(t, p, "GPVTG,abc,T,,M,,N,,K")
}

func TestDecodeGGA(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", SentenceGGA)
	fx := p.Fix()
	if fx.SatellitesInUse != 8 || !near(fx.HDOP, 0.9) || fx.FixStatus != 1 {
		t.Fatalf("in_use=%d hdop=%v status=%d", fx.SatellitesInUse, fx.HDOP, fx.FixStatus)
	}
	if !near(fx.Altitude, 545.4) || !near(fx.GeoidHeight, 46.9) {
		t.Fatalf("alt=%v geoid=%v", fx.Altitude, fx.GeoidHeight)
	}
	if fx.Latitude.Degrees != 48 || fx.Longitude.Degrees != 11 {
		t.Fatalf("position not set: %+v %+v", fx.Latitude, fx.Longitude)
	}
	if fx.Valid {
		t.Fatalf("GGA must not set the RMC/GLL status flag")
	}
	if fx.FixTime().IsZero() {
		t.Fatalf("GGA with fix quality should stamp fix time")
	}
}

func TestDecodeGGA_NoFixKeepsPosition(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", SentenceGGA)
	mustApply(t, p, "GPGGA,123520,,,,,0,00,,,M,,M,,", SentenceGGA)
	fx := p.Fix()
	if fx.Latitude.Degrees != 48 || !near(fx.Altitude, 545.4) {
		t.Fatalf("no-fix GGA touched position: %+v alt=%v", fx.Latitude, fx.Altitude)
	}
	if fx.FixStatus != 0 || fx.SatellitesInUse != 0 || fx.HDOP != 0 || fx.Time.Seconds != 20 {
		t.Fatalf("status=%d in_use=%d hdop=%v time=%+v", fx.FixStatus, fx.SatellitesInUse, fx.HDOP, fx.Time)
	}
}

func TestDecodeGGA_BadAltitudeFallsBackToZero(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,,M,46.9,M,,", SentenceGGA)
	if fx := p.Fix(); fx.Altitude != 0 || fx.GeoidHeight != 0 {
		t.Fatalf("alt=%v geoid=%v", fx.Altitude, fx.GeoidHeight)
	}
}

func TestDecodeGGA_RequiredFields(t *testing.T) {
	p := NewParser()
	mustReject(t, p, "GPGGA,123519,4807.038,N,01131.000,E,,08,0.9,545.4,M,46.9,M,,")
	mustReject(t, p, "GPGGA,123519,4807.038,N,01131.000,E,1,,0.9,545.4,M,46.9,M,,")
	mustReject(t, p, "GPGGA,123519,4807.038,Q,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
}

func TestDecodeGSA(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1", SentenceGSA)
	fx := p.Fix()
	if fx.FixType != Fix3D {
		t.Fatalf("fix type=%v", fx.FixType)
	}
	// The ID list stops at the first empty slot.
	if !reflect.DeepEqual(fx.SatellitesUsed, []int{4, 5}) {
		t.Fatalf("used=%v", fx.SatellitesUsed)
	}
	if !near(fx.PDOP, 2.5) || !near(fx.HDOP, 1.3) || !near(fx.VDOP, 2.1) {
		t.Fatalf("dop=%v/%v/%v", fx.PDOP, fx.HDOP, fx.VDOP)
	}
	if fx.FixTime().IsZero() {
		t.Fatalf("3D GSA should stamp fix time")
	}
}

func TestDecodeGSA_TwelveSatellites(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GNGSA,A,2,01,02,03,04,05,06,07,08,09,10,11,12,1.0,0.8,0.6", SentenceGSA)
	fx := p.Fix()
	if len(fx.SatellitesUsed) != 12 || fx.SatellitesUsed[11] != 12 || fx.FixType != Fix2D {
		t.Fatalf("used=%v type=%v", fx.SatellitesUsed, fx.FixType)
	}
}

func TestDecodeGSA_NoFixDoesNotStamp(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGSA,A,1,,,,,,,,,,,,,99.9,99.9,99.9", SentenceGSA)
	fx := p.Fix()
	if !fx.FixTime().IsZero() || fx.FixType != FixNone || len(fx.SatellitesUsed) != 0 {
		t.Fatalf("fix=%+v", fx)
	}
}

func TestDecodeGSA_Rejects(t *testing.T) {
	p := NewParser()
	mustReject(t, p, "GPGSA,A,,04,05,,,,,,,,,,,2.5,1.3,2.1")
	mustReject(t, p, "GPGSA,A,3,04,x5,,,,,,,,,,,2.5,1.3,2.1")
	mustReject(t, p, "GPGSA,A,3,04,05,,,,,,,,,,,,1.3,2.1")
}

var gsvGroup = []string{
	"GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00",
	"GPGSV,3,2,11,14,25,170,00,16,57,208,39,18,67,296,40,19,40,246,00",
	"GPGSV,3,3,11,22,42,067,42,24,14,311,43,27,05,244,00",
}

func TestDecodeGSV_GroupBuildsCatalogue(t *testing.T) {
	p := NewParser()
	for i, s := range gsvGroup {
		mustApply(t, p, s, SentenceGSV)
		if done := p.Fix().SatelliteDataUpdated(); done != (i == len(gsvGroup)-1) {
			t.Fatalf("after sentence %d updated=%v", i+1, done)
		}
	}
	fx := p.Fix()
	if fx.SatellitesInView != 11 || len(fx.Satellites) != 11 {
		t.Fatalf("in_view=%d catalogue=%d", fx.SatellitesInView, len(fx.Satellites))
	}
	want := []int{3, 4, 6, 13, 14, 16, 18, 19, 22, 24, 27}
	if got := fx.SatellitesVisible(); !reflect.DeepEqual(got, want) {
		t.Fatalf("visible=%v", got)
	}
	if s := fx.Satellites[24]; !reflect.DeepEqual(s, SatelliteInfo{Elevation: intp(14), Azimuth: intp(311), SNR: intp(43)}) {
		t.Fatalf("sat 24=%+v", s)
	}

	p.ClearSatelliteDataUpdated()
	if p.Fix().SatelliteDataUpdated() {
		t.Fatalf("clear did not reset the group marker")
	}
}

func TestDecodeGSV_FirstSentenceReplaces(t *testing.T) {
	p := NewParser()
	for _, s := range gsvGroup {
		mustApply(t, p, s, SentenceGSV)
	}
	mustApply(t, p, "GPGSV,1,1,02,01,40,083,46,02,17,308,41", SentenceGSV)
	if got := p.Fix().SatellitesVisible(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("visible=%v", got)
	}
}

func TestDecodeGSV_DroppedFirstSentenceMergesStaleIDs(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGSV,2,1,06,01,40,083,46,02,17,308,41,03,07,344,39,04,22,228,45", SentenceGSV)
	mustApply(t, p, "GPGSV,2,2,06,05,40,083,46,06,17,308,41", SentenceGSV)
	// Next cycle's first sentence is lost; the continuation merges.
	mustApply(t, p, "GPGSV,2,2,06,11,40,083,46,12,17,308,41", SentenceGSV)

	want := []int{1, 2, 3, 4, 5, 6, 11, 12}
	if got := p.Fix().SatellitesVisible(); !reflect.DeepEqual(got, want) {
		t.Fatalf("visible=%v want %v", got, want)
	}
}

func TestDecodeGSV_OptionalValues(t *testing.T) {
	p := NewParser()
	mustApply(t, p, "GPGSV,1,1,02,07,,,,08,45,x,", SentenceGSV)
	fx := p.Fix()
	if s := fx.Satellites[7]; s.Elevation != nil || s.Azimuth != nil || s.SNR != nil {
		t.Fatalf("sat 7=%+v", s)
	}
	if s := fx.Satellites[8]; s.Elevation == nil || *s.Elevation != 45 || s.Azimuth != nil || s.SNR != nil {
		t.Fatalf("sat 8=%+v", s)
	}
}

func TestDecodeGSV_SlotCountClamped(t *testing.T) {
	p := NewParser()
	// A single sentence that claims 9 satellites still carries at most 4.
	mustApply(t, p, "GPGSV,1,1,09,01,40,083,46,02,17,308,41,03,07,344,39,04,22,228,45", SentenceGSV)
	if n := len(p.Fix().Satellites); n != 4 {
		t.Fatalf("catalogue=%d want 4", n)
	}

	// The final sentence only reads as many slots as the count implies.
	mustApply(t, p, "GPGSV,2,2,05,09,40,083,46,10,17,308,41", SentenceGSV)
	fx := p.Fix()
	if _, ok := fx.Satellites[10]; ok {
		t.Fatalf("read past the slot limit: %v", fx.SatellitesVisible())
	}
	if _, ok := fx.Satellites[9]; !ok {
		t.Fatalf("missing sat 9: %v", fx.SatellitesVisible())
	}
}

func TestDecodeGSV_BadIDRejectedWithoutChanges(t *testing.T) {
	p := NewParser()
	for _, s := range gsvGroup {
		mustApply(t, p, s, SentenceGSV)
	}
	before := p.Fix()
	mustReject(t, p, "GPGSV,1,1,02,01,40,083,46,zz,17,308,41")
	if after := p.Fix(); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed GSV modified the fix")
	}
}
