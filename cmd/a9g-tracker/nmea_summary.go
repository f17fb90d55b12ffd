package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"a9g-tracker/internal/nmea"
)

type sentenceSummary struct {
	Bytes  int
	Counts map[string]int
	Stats  nmea.Stats
	Fix    nmea.Fix
	HasFix bool
}

// summarizeSentenceLog replays a raw NMEA capture through a fresh parser.
func summarizeSentenceLog(r io.Reader) (sentenceSummary, error) {
	s := sentenceSummary{Counts: map[string]int{}}
	p := nmea.NewParser()
	br := bufio.NewReader(r)
	for {
		c, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s, err
		}
		s.Bytes++
		if t := p.Advance(c); t != nmea.SentenceNone {
			s.Counts[t.String()]++
		}
	}
	s.Stats = p.Stats()
	s.Fix = p.Fix()
	_, s.HasFix = p.TimeSinceFix()
	return s, nil
}

func printSentenceSummary(path string, w io.Writer) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := summarizeSentenceLog(f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "clean_sentences: %d\n", s.Stats.CleanSentences)
	fmt.Fprintf(w, "parsed_sentences: %d\n", s.Stats.ParsedSentences)
	fmt.Fprintf(w, "crc_fails: %d\n", s.Stats.CRCFails)

	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "sentence_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.Counts[k])
	}

	if !s.HasFix {
		fmt.Fprintf(w, "last_fix: none\n")
		return nil
	}
	fmt.Fprintf(w, "last_fix: %s %s\n", s.Fix.LatitudeString(nmea.FormatDD), s.Fix.LongitudeString(nmea.FormatDD))
	return nil
}
