package main

import (
	"bytes"
	"strings"
	"testing"

	"gnss-nmea/internal/nmea"
)

func TestRunDecode(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48",
		"$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K",
		"$GPTXT,01,01,02,ANTENNA OK",
	}, "\r\n"))

	var out, errOut bytes.Buffer
	decoded, invalid, err := runDecode(in, &out, &errOut, nmea.Options{})
	if err != nil {
		t.Fatalf("runDecode() error: %v", err)
	}
	if decoded != 2 || invalid != 2 {
		t.Fatalf("decoded=%d invalid=%d want 2/2", decoded, invalid)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout lines=%q", lines)
	}
	if !strings.HasPrefix(lines[0], "GGA time=12:35:19.000 lat=48.117300 lon=11.516667") {
		t.Fatalf("line[0]=%q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "VTG ") {
		t.Fatalf("line[1]=%q", lines[1])
	}

	e := errOut.String()
	if !strings.Contains(e, "checksum") || !strings.Contains(e, "unsupported") {
		t.Fatalf("stderr=%q", e)
	}
	if strings.Count(e, "invalid line=") != 2 {
		t.Fatalf("stderr=%q", e)
	}
}

func TestRunDecode_RequireChecksum(t *testing.T) {
	in := strings.NewReader("$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K\n$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48\n")
	var out, errOut bytes.Buffer
	decoded, invalid, err := runDecode(in, &out, &errOut, nmea.Options{RequireChecksum: true})
	if err != nil {
		t.Fatalf("runDecode() error: %v", err)
	}
	if decoded != 1 || invalid != 1 {
		t.Fatalf("decoded=%d invalid=%d want 1/1", decoded, invalid)
	}
}
