package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gnss-nmea/internal/nmea"
	"gnss-nmea/internal/replay"
)

type captureSummary struct {
	Segments    int
	Lines       int
	Decoded     int
	Unsupported int
	Invalid     int
	MaxDuration time.Duration
	// ReceiverSpan is the receiver clock time between the first and last
	// time-stamped sentence, across midnight if needed.
	ReceiverSpan time.Duration
	TypeCounts   map[string]int
	Talkers      map[string]int
}

func summarizeCapture(records []replay.Record) captureSummary {
	s := captureSummary{TypeCounts: map[string]int{}, Talkers: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	dec := nmea.NewDecoder(nmea.Options{})
	origin := time.Duration(0)
	hasLines := false
	var first, last *nmea.Clock
	segments := 0

	for _, r := range records {
		if r.Line == "" {
			segments++
			origin = r.At
			continue
		}
		hasLines = true

		s.Lines++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		sent, err := dec.Parse(r.Line)
		if err != nil {
			s.Invalid++
			continue
		}
		if talker := sent.Talker(); talker != "" {
			s.Talkers[talker]++
		}
		rec, err := nmea.DecodeSentence(sent)
		switch {
		case errors.Is(err, nmea.ErrUnsupported):
			s.Unsupported++
			s.TypeCounts[sent.Type()+" (unsupported)"]++
		case err != nil:
			s.Invalid++
		default:
			s.Decoded++
			s.TypeCounts[rec.Type()]++
			if c := recordClock(rec); c != nil {
				if first == nil {
					first = c
				}
				last = c
			}
		}
	}
	if first != nil {
		span := last.Duration() - first.Duration()
		if span < 0 {
			span += 24 * time.Hour
		}
		s.ReceiverSpan = span
	}
	if segments == 0 && hasLines {
		segments = 1
	}
	s.Segments = segments
	return s
}

func recordClock(rec nmea.Record) *nmea.Clock {
	switch r := rec.(type) {
	case *nmea.GGA:
		return r.Time
	case *nmea.RMC:
		return r.Time
	case *nmea.GLL:
		return r.Time
	case *nmea.ZDA:
		return r.Time
	}
	return nil
}

func printCaptureSummary(path string, w io.Writer) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeCapture(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "lines: %d\n", s.Lines)
	fmt.Fprintf(w, "decoded: %d\n", s.Decoded)
	fmt.Fprintf(w, "unsupported: %d\n", s.Unsupported)
	fmt.Fprintf(w, "invalid: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "receiver_span: %s\n", s.ReceiverSpan)
	printCounts(w, "type_counts", s.TypeCounts)
	printCounts(w, "talkers", s.Talkers)
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}
