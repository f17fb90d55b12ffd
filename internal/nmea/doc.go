// Package nmea decodes NMEA-0183 GNSS sentences one character at a time.
//
// A Parser accepts bytes as they arrive from a receiver, verifies each
// sentence's XOR checksum and applies RMC, GGA, VTG, GSA, GSV and GLL
// sentences (any talker ID) to an aggregated Fix. Noise, truncated sentences
// and checksum failures are dropped without touching the fix; the parser
// resynchronizes on the next '$'.
//
//	p := nmea.NewParser(nmea.WithLocalOffset(2))
//	for _, c := range chunk {
//		if t := p.Advance(c); t == nmea.SentenceRMC {
//			fix := p.Fix()
//			...
//		}
//	}
package nmea
