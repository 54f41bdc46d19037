package web

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gnss-nmea/internal/gps"
	"gnss-nmea/internal/pps"
)

const serviceName = "gnss-nmea"

// Status collects the snapshots served by /api/status. Sources are
// registered once at startup and polled on each request.
type Status struct {
	startUnixNano int64

	mu    sync.RWMutex
	gps   func() gps.Snapshot
	pps   func(nowUTC time.Time) pps.Snapshot
	sinks map[string]func() any
	hub   *Hub
}

func NewStatus() *Status {
	s := &Status{sinks: map[string]func() any{}}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

func (s *Status) SetGPS(fn func() gps.Snapshot) {
	s.mu.Lock()
	s.gps = fn
	s.mu.Unlock()
}

func (s *Status) SetPPS(fn func(nowUTC time.Time) pps.Snapshot) {
	s.mu.Lock()
	s.pps = fn
	s.mu.Unlock()
}

// SetSink registers a named output (udp, mqtt, record) whose stats are
// included in the snapshot.
func (s *Status) SetSink(name string, fn func() any) {
	if name == "" || fn == nil {
		return
	}
	s.mu.Lock()
	s.sinks[name] = fn
	s.mu.Unlock()
}

func (s *Status) setHub(h *Hub) {
	s.mu.Lock()
	s.hub = h
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	SinkNames []string       `json:"sinks,omitempty"`
	GPS       *gps.Snapshot  `json:"gps,omitempty"`
	PPS       *pps.Snapshot  `json:"pps,omitempty"`
	Sinks     map[string]any `json:"sink_stats,omitempty"`
	Stream    *StreamStats   `json:"stream,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	s.mu.RLock()
	gpsFn, ppsFn, hub := s.gps, s.pps, s.hub
	sinks := make(map[string]func() any, len(s.sinks))
	for k, v := range s.sinks {
		sinks[k] = v
	}
	s.mu.RUnlock()

	snap := StatusSnapshot{
		Service:   serviceName,
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if gpsFn != nil {
		g := gpsFn()
		snap.GPS = &g
	}
	if ppsFn != nil {
		p := ppsFn(nowUTC)
		snap.PPS = &p
	}
	if len(sinks) > 0 {
		snap.Sinks = make(map[string]any, len(sinks))
		for name, fn := range sinks {
			snap.SinkNames = append(snap.SinkNames, name)
			snap.Sinks[name] = fn()
		}
		sort.Strings(snap.SinkNames)
	}
	if hub != nil {
		st := hub.Stats()
		snap.Stream = &st
	}
	return snap
}
