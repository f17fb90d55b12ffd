package nmea

import (
	"io"
	"time"

	"github.com/benbjohnson/clock"
)

// SentenceLimit is the number of characters accepted after '$' before an
// unterminated sentence is abandoned.
const SentenceLimit = 90

// Stats are diagnostic counters. They never influence parsing.
type Stats struct {
	CleanSentences  uint64 `json:"clean_sentences"`
	ParsedSentences uint64 `json:"parsed_sentences"`
	CRCFails        uint64 `json:"crc_fails"`
}

// Parser is an incremental NMEA-0183 parser fed one character at a time.
//
// All sentence state lives in fixed-size buffers bounded by SentenceLimit, so
// a Parser never grows regardless of input. A Parser is not safe for
// concurrent use; callers that read the fix from other goroutines must
// serialize access themselves.
type Parser struct {
	clk         clock.Clock
	localOffset int
	sink        io.Writer
	one         [1]byte

	active    bool
	crcRegion bool
	crc       byte
	count     int

	// Field bytes are stored back to back without separators; starts[i] is
	// the offset of field i in buf.
	buf    [SentenceLimit + 1]byte
	n      int
	starts [SentenceLimit + 2]int
	nf     int

	fix   Fix
	stats Stats
	last  string
}

type Option func(*Parser)

// WithLocalOffset shifts decoded UTC hours by h, wrapping modulo 24.
func WithLocalOffset(h int) Option {
	return func(p *Parser) { p.localOffset = h }
}

// WithClock replaces the clock used to stamp fix times.
func WithClock(c clock.Clock) Option {
	return func(p *Parser) {
		if c != nil {
			p.clk = c
		}
	}
}

// WithLog copies every accepted character to w. The parser never closes w.
func WithLog(w io.Writer) Option {
	return func(p *Parser) { p.sink = w }
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{clk: clock.New(), fix: newFix()}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Parser) LocalOffset() int { return p.localOffset }

func (p *Parser) SetLocalOffset(h int) { p.localOffset = h }

// SetLog replaces the sentence sink; nil disables it.
func (p *Parser) SetLog(w io.Writer) { p.sink = w }

func (p *Parser) Stats() Stats { return p.stats }

// LastSentence returns the raw identifier (e.g. "GNRMC") of the last sentence
// that was applied.
func (p *Parser) LastSentence() string { return p.last }

// Fix returns a deep copy of the current fix.
func (p *Parser) Fix() Fix { return p.fix.clone() }

// ClearSatelliteDataUpdated forgets the last GSV sentence index so
// SatelliteDataUpdated stays false until the next group completes.
func (p *Parser) ClearSatelliteDataUpdated() { p.fix.ClearSatelliteDataUpdated() }

// TimeSinceFix reports how long ago a sentence implied a usable fix. ok is
// false if that never happened.
func (p *Parser) TimeSinceFix() (d time.Duration, ok bool) {
	return p.fix.TimeSinceFix(p.clk.Now())
}

// Feed advances the parser over b in order and returns the last sentence type
// applied within it.
func (p *Parser) Feed(b []byte) SentenceType {
	got := SentenceNone
	for _, c := range b {
		if t := p.Advance(c); t != SentenceNone {
			got = t
		}
	}
	return got
}

// Advance consumes one character. It returns the family of the sentence that
// this character completed and successfully applied, or SentenceNone.
func (p *Parser) Advance(c byte) SentenceType {
	if c < 10 || c > 126 {
		return SentenceNone
	}
	if p.sink != nil {
		p.one[0] = c
		_, _ = p.sink.Write(p.one[:])
	}

	if c == '$' {
		p.begin()
		return SentenceNone
	}
	if !p.active {
		return SentenceNone
	}

	p.count++
	applied := SentenceNone
	switch c {
	case '*':
		p.crcRegion = false
		p.nextField()
	case ',':
		if p.crcRegion {
			p.crc ^= c
		}
		p.nextField()
	default:
		p.buf[p.n] = c
		p.n++
		if p.crcRegion {
			p.crc ^= c
		} else if p.fieldLen(p.nf-1) == 2 {
			applied = p.finish()
		}
	}

	if p.active && p.count > SentenceLimit {
		p.active = false
	}
	return applied
}

func (p *Parser) begin() {
	p.active = true
	p.crcRegion = true
	p.crc = 0
	p.count = 0
	p.n = 0
	p.starts[0] = 0
	p.nf = 1
}

func (p *Parser) nextField() {
	p.starts[p.nf] = p.n
	p.nf++
}

func (p *Parser) fieldLen(i int) int {
	end := p.n
	if i+1 < p.nf {
		end = p.starts[i+1]
	}
	return end - p.starts[i]
}

func (p *Parser) field(i int) []byte {
	if i < 0 || i >= p.nf {
		return nil
	}
	end := p.n
	if i+1 < p.nf {
		end = p.starts[i+1]
	}
	return p.buf[p.starts[i]:end]
}

// finish validates the two-digit checksum that was just completed and
// dispatches the sentence when it matches.
func (p *Parser) finish() SentenceType {
	p.active = false

	ck := p.field(p.nf - 1)
	want, ok := unhex(ck[0], ck[1])
	if !ok || want != p.crc {
		p.stats.CRCFails++
		return SentenceNone
	}
	p.stats.CleanSentences++

	id := p.field(0)
	t := identify(id)
	if t == SentenceNone {
		return SentenceNone
	}
	// The checksum field is not part of the payload.
	f := fields{p: p, n: p.nf - 1}
	env := decodeEnv{now: p.clk.Now(), localOffset: p.localOffset}
	if !decoders[t](f, &p.fix, env) {
		return SentenceNone
	}
	p.stats.ParsedSentences++
	p.last = string(id)
	return t
}

func unhex(hi, lo byte) (byte, bool) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// fields is a read-only view of the payload fields of the sentence being
// dispatched. Index 0 is the sentence identifier. Indices past the end read
// as empty.
type fields struct {
	p *Parser
	n int
}

func (f fields) get(i int) string {
	if i < 0 || i >= f.n {
		return ""
	}
	return string(f.p.field(i))
}
