package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gnss-nmea/internal/replay"
)

func TestSummarizeCapture(t *testing.T) {
	recs := []replay.Record{
		{At: 0},
		{At: 0, Line: "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"},
		{At: 500 * time.Millisecond, Line: "$GNRMC,,V,,,,,,,,,,N"},
		{At: 2 * time.Second, Line: "$GPTXT,01,01,02,ANTENNA OK"},
		{At: 5 * time.Second},
		{At: 6 * time.Second, Line: "garbage"},
		{At: 9 * time.Second, Line: "$GPZDA,201530.00,04,07,2002,00,00*60"},
	}

	s := summarizeCapture(recs)
	if s.Segments != 2 || s.Lines != 5 {
		t.Fatalf("segments=%d lines=%d", s.Segments, s.Lines)
	}
	if s.Decoded != 3 || s.Unsupported != 1 || s.Invalid != 1 {
		t.Fatalf("decoded=%d unsupported=%d invalid=%d", s.Decoded, s.Unsupported, s.Invalid)
	}
	if s.MaxDuration != 4*time.Second {
		t.Fatalf("max_duration=%s want 4s", s.MaxDuration)
	}
	// 12:35:19 (GGA) to 20:15:30 (ZDA); the void RMC has no time.
	if want := 7*time.Hour + 40*time.Minute + 11*time.Second; s.ReceiverSpan != want {
		t.Fatalf("receiver_span=%s want %s", s.ReceiverSpan, want)
	}
	if s.TypeCounts["GGA"] != 1 || s.TypeCounts["RMC"] != 1 || s.TypeCounts["TXT (unsupported)"] != 1 {
		t.Fatalf("type_counts=%v", s.TypeCounts)
	}
	if s.Talkers["GP"] != 3 || s.Talkers["GN"] != 1 {
		t.Fatalf("talkers=%v", s.Talkers)
	}
}

func TestSummarizeCapture_NoStartMarker(t *testing.T) {
	s := summarizeCapture([]replay.Record{{At: 10, Line: "$GPGLL,4916.45,N,12311.12,W,225444,A"}})
	if s.Segments != 1 || s.Decoded != 1 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestSummarizeCapture_ReceiverSpanAcrossMidnight(t *testing.T) {
	s := summarizeCapture([]replay.Record{
		{At: 0, Line: "$GPGLL,4916.45,N,12311.12,W,235959.50,A"},
		{At: time.Second, Line: "$GPGLL,4916.45,N,12311.12,W,000000.50,A"},
	})
	if s.ReceiverSpan != time.Second {
		t.Fatalf("receiver_span=%s want 1s", s.ReceiverSpan)
	}
}

func TestPrintCaptureSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.log")
	content := "START\n0,$GPGLL,4916.45,N,12311.12,W,225444,A\n1000000000,$GPGLL,4916.46,N,12311.12,W,225445,A\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	if err := printCaptureSummary(path, &out); err != nil {
		t.Fatalf("printCaptureSummary() error: %v", err)
	}
	for _, want := range []string{"lines: 2\n", "decoded: 2\n", "max_duration: 1s\n", "receiver_span: 1s\n", "  GLL: 2\n", "  GP: 2\n"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	if err := printCaptureSummary(" ", &out); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
