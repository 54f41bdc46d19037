package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LineBuffer keeps the most recent raw lines from the receiver, decodable
// or not, for troubleshooting wiring and talker output.
type LineBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []LineEntry
	dropped uint64
}

type LineEntry struct {
	ReceivedUTC string `json:"received_utc"`
	Line        string `json:"line"`
}

func NewLineBuffer(maxLines int) *LineBuffer {
	if maxLines <= 0 {
		maxLines = 500
	}
	return &LineBuffer{max: maxLines}
}

func (b *LineBuffer) Add(nowUTC time.Time, line string) {
	line = strings.TrimSpace(line)
	if b == nil || line == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, LineEntry{ReceivedUTC: nowUTC.UTC().Format(time.RFC3339Nano), Line: line})
	if len(b.lines) > b.max {
		over := len(b.lines) - b.max
		b.lines = append(b.lines[:0], b.lines[over:]...)
		b.dropped += uint64(over)
	}
}

// Snapshot returns up to tail of the newest lines, oldest first.
func (b *LineBuffer) Snapshot(tail int) (lines []LineEntry, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tail <= 0 {
		tail = 100
	}
	if tail > len(b.lines) {
		tail = len(b.lines)
	}
	lines = append([]LineEntry(nil), b.lines[len(b.lines)-tail:]...)
	return lines, b.dropped
}

type LinesResponse struct {
	NowUTC  string      `json:"now_utc"`
	Dropped uint64      `json:"dropped"`
	Lines   []LineEntry `json:"lines"`
}

func (b *LineBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		tail := 100
		if s := strings.TrimSpace(r.URL.Query().Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			tail = v
		}

		lines, dropped := b.Snapshot(tail)

		if strings.EqualFold(r.URL.Query().Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			for _, l := range lines {
				_, _ = fmt.Fprintln(w, l.Line)
			}
			return
		}

		resp := LinesResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		}
		bts, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(bts)
		_, _ = w.Write([]byte("\n"))
	})
}
