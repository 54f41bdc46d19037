// Package pps watches a GPIO line wired to a receiver's pulse-per-second
// output.
package pps

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Config selects the GPIO line. Line is a line name ("GPIO18") or, with
// Chip set, a numeric offset on that chip.
type Config struct {
	Chip string
	Line string
}

// edge is one rising edge: wall-clock receipt time and the kernel's
// monotonic event timestamp.
type edge struct {
	at   time.Time
	mono time.Duration
}

type openEdgesFunc func(chip, line string, onEdge func(edge)) (io.Closer, error)

var openEdgesFn openEdgesFunc = openEdges

type Watcher struct {
	cfg Config

	mu       sync.Mutex
	closer   io.Closer
	pulses   uint64
	last     edge
	interval time.Duration
	lastErr  string
}

type Snapshot struct {
	Enabled      bool    `json:"enabled"`
	Line         string  `json:"line,omitempty"`
	Pulses       uint64  `json:"pulses"`
	LastPulseUTC string  `json:"last_pulse_utc,omitempty"`
	IntervalMs   float64 `json:"interval_ms,omitempty"`
	Locked       bool    `json:"locked"`
	LastError    string  `json:"last_error,omitempty"`
}

func New(cfg Config) *Watcher {
	cfg.Chip = strings.TrimSpace(cfg.Chip)
	cfg.Line = strings.TrimSpace(cfg.Line)
	return &Watcher{cfg: cfg}
}

// Start requests the line for rising-edge events. Events are delivered on
// the gpiocdev watcher goroutine until ctx ends or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return fmt.Errorf("pps watcher is nil")
	}
	if w.cfg.Line == "" {
		return fmt.Errorf("pps: gpio line is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer != nil {
		return nil
	}

	c, err := openEdgesFn(w.cfg.Chip, w.cfg.Line, w.onEdge)
	if err != nil {
		w.lastErr = err.Error()
		return err
	}
	w.closer = c
	log.Printf("pps enabled line=%s chip=%s", w.cfg.Line, w.cfg.Chip)

	context.AfterFunc(ctx, func() { _ = w.Close() })
	return nil
}

func (w *Watcher) onEdge(e edge) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pulses > 0 {
		w.interval = e.mono - w.last.mono
	}
	w.pulses++
	w.last = e
}

func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	c := w.closer
	w.closer = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Snapshot reports pulse statistics. Locked means the last pulse is recent
// and arrived about one second after the one before it.
func (w *Watcher) Snapshot(nowUTC time.Time) Snapshot {
	if w == nil {
		return Snapshot{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	out := Snapshot{
		Enabled:   true,
		Line:      w.cfg.Line,
		Pulses:    w.pulses,
		LastError: w.lastErr,
	}
	if w.pulses == 0 {
		return out
	}
	out.LastPulseUTC = w.last.at.UTC().Format(time.RFC3339Nano)
	if w.interval > 0 {
		out.IntervalMs = float64(w.interval) / float64(time.Millisecond)
	}
	fresh := nowUTC.Sub(w.last.at) < 2*time.Second
	steady := w.interval > 900*time.Millisecond && w.interval < 1100*time.Millisecond
	out.Locked = fresh && steady
	return out
}
