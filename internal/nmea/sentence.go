package nmea

import "time"

// SentenceType identifies an NMEA message family independent of its talker ID.
type SentenceType uint8

const (
	SentenceNone SentenceType = iota
	SentenceRMC
	SentenceGGA
	SentenceVTG
	SentenceGSA
	SentenceGSV
	SentenceGLL

	sentenceCount
)

var sentenceNames = [sentenceCount]string{
	SentenceNone: "",
	SentenceRMC:  "RMC",
	SentenceGGA:  "GGA",
	SentenceVTG:  "VTG",
	SentenceGSA:  "GSA",
	SentenceGSV:  "GSV",
	SentenceGLL:  "GLL",
}

func (t SentenceType) String() string {
	if t >= sentenceCount {
		return ""
	}
	return sentenceNames[t]
}

// decodeEnv carries per-parser settings into the shared decoders.
type decodeEnv struct {
	now         time.Time
	localOffset int
}

// decoder applies one checksum-verified sentence to the fix model. It must
// not mutate fx unless it returns true.
type decoder func(f fields, fx *Fix, env decodeEnv) bool

// decoders is shared by every Parser and never modified after init.
var decoders = [sentenceCount]decoder{
	SentenceRMC: decodeRMC,
	SentenceGGA: decodeGGA,
	SentenceVTG: decodeVTG,
	SentenceGSA: decodeGSA,
	SentenceGSV: decodeGSV,
	SentenceGLL: decodeGLL,
}

// Talker IDs seen on single and multi-constellation receivers.
// GN is the combined solution; the A9G emits GP and GN.
var talkers = [...][2]byte{
	{'G', 'P'}, // GPS
	{'G', 'L'}, // GLONASS
	{'G', 'A'}, // Galileo
	{'G', 'B'}, // BeiDou
	{'B', 'D'}, // BeiDou (older firmware)
	{'G', 'N'}, // combined
}

// identify maps a raw sentence identifier such as "GNRMC" to its family.
// Unknown talkers and families map to SentenceNone.
func identify(id []byte) SentenceType {
	if len(id) != 5 {
		return SentenceNone
	}
	known := false
	for _, t := range talkers {
		if id[0] == t[0] && id[1] == t[1] {
			known = true
			break
		}
	}
	if !known {
		return SentenceNone
	}
	switch string(id[2:]) {
	case "RMC":
		return SentenceRMC
	case "GGA":
		return SentenceGGA
	case "VTG":
		return SentenceVTG
	case "GSA":
		return SentenceGSA
	case "GSV":
		return SentenceGSV
	case "GLL":
		return SentenceGLL
	default:
		return SentenceNone
	}
}
