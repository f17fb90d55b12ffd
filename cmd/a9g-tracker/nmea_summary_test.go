package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSummarizeSentenceLog(t *testing.T) {
	var capture bytes.Buffer
	capture.Write(nmeaLine("GPGGA,123519,3730.000,N,12215.000,W,1,07,0.9,545.4,M,46.9,M,,"))
	capture.Write(nmeaLine("GPRMC,123519,A,3730.000,N,12215.000,W,010.0,084.4,230394,003.1,W"))
	capture.WriteString("$GPRMC,123519,A,3730.000,N,12215.000,W,010.0,084.4,230394,003.1,W*00\r\n")
	capture.WriteString("+CSQ: 15,99\r\nOK\r\n")
	capture.Write(nmeaLine("GNRMC,123520,A,3730.000,N,12215.000,W,010.0,084.4,230394,003.1,W"))

	s, err := summarizeSentenceLog(&capture)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Counts["RMC"] != 2 || s.Counts["GGA"] != 1 {
		t.Fatalf("counts=%v", s.Counts)
	}
	if s.Stats.CRCFails != 1 {
		t.Fatalf("crc_fails=%d want 1", s.Stats.CRCFails)
	}
	if !s.HasFix || s.Fix.Latitude.Hemisphere != "N" || s.Fix.Longitude.Hemisphere != "W" {
		t.Fatalf("fix=%+v has=%v", s.Fix, s.HasFix)
	}
}

func TestSummarizeSentenceLog_Empty(t *testing.T) {
	s, err := summarizeSentenceLog(strings.NewReader(""))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Bytes != 0 || len(s.Counts) != 0 || s.HasFix {
		t.Fatalf("summary=%+v", s)
	}
}

func TestPrintSentenceSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nmea.log")
	if err := os.WriteFile(path, nmeaLine("GPRMC,123519,A,3730.000,N,12215.000,W,010.0,084.4,230394,003.1,W"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var out bytes.Buffer
	if err := printSentenceSummary(path, &out); err != nil {
		t.Fatalf("print: %v", err)
	}
	for _, want := range []string{"parsed_sentences: 1", "  RMC: 1", "last_fix: 37.5° N 122.25° W"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := printSentenceSummary("  ", &out); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if err := printSentenceSummary(filepath.Join(t.TempDir(), "missing"), &out); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
