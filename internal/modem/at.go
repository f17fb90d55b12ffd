package modem

import (
	"bytes"
	"strings"
)

const (
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1A"

	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// A9G unsolicited GNSS output enabled by AT+GPSRD.
	UrcGPSRead = "+GPSRD:"
)

var urcPrefixes = []string{
	"+CMTI:", "+CDSI:", "+CREG:", "+CGREG:", "+CIEV:", "+CTZV:", "+CPIN:",
	"RING", "READY", UrcGPSRead, "$",
}

// ResponseType classifies a line received from the modem.
type ResponseType int

const (
	// TypeFinal ends a command: OK, ERROR, +CME/+CMS errors and call results.
	TypeFinal ResponseType = iota
	// TypeURC is unsolicited output, including NMEA sentences.
	TypeURC
	// TypeData is intermediate command output.
	TypeData
	// TypePrompt is the "> " SMS body prompt.
	TypePrompt
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypePrompt:
		return "prompt"
	default:
		return "data"
	}
}

func Classify(line string) ResponseType {
	if line == Prompt || line == ">" {
		return TypePrompt
	}
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}
	if strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError) {
		return TypeFinal
	}
	for _, p := range urcPrefixes {
		if strings.HasPrefix(line, p) {
			return TypeURC
		}
	}
	return TypeData
}

func isError(line string) bool {
	return line == ERROR || strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError)
}

// isNMEA reports GNSS output the command waiters never need to see.
func isNMEA(line string) bool {
	return strings.HasPrefix(line, "$") || strings.HasPrefix(line, UrcGPSRead)
}

// MaxLineLength bounds an unterminated line. Longer runs without CR/LF are
// UART noise and are discarded so the reader resynchronizes.
const MaxLineLength = 1024

// Splitter is a bufio.SplitFunc for modem output. It yields CR/LF terminated
// lines without terminators, skips blank lines and returns the SMS prompt
// "> " as its own token even though no line ending follows it. Unterminated
// runs of MaxLineLength bytes or more are dropped.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	rest := data[start:]
	if len(rest) == 0 {
		return start, nil, nil
	}
	if bytes.HasPrefix(rest, []byte(Prompt)) {
		return start + len(Prompt), []byte(Prompt), nil
	}
	if i := bytes.IndexAny(rest, CRLF); i >= 0 {
		return start + i + 1, rest[:i], nil
	}
	if atEOF {
		return len(data), rest, nil
	}
	if len(rest) >= MaxLineLength {
		return len(data), nil, nil
	}
	return start, nil, nil
}
