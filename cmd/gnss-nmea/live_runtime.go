package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gnss-nmea/internal/config"
	"gnss-nmea/internal/gps"
	"gnss-nmea/internal/pps"
	"gnss-nmea/internal/publish"
	"gnss-nmea/internal/replay"
	"gnss-nmea/internal/udp"
	"gnss-nmea/internal/web"
)

const recordFlushInterval = time.Second

type liveRuntime struct {
	cfg    config.Config
	status *web.Status
	hub    *web.Hub
	lines  *web.LineBuffer

	gpsSvc  *gps.Service
	rec     *recordSink
	udpOut  *udpSink
	mqttPub *publish.Publisher
	ppsW    *pps.Watcher

	wg sync.WaitGroup
}

func gpsConfig(c config.Config, stdin io.Reader) gps.Config {
	src := c.GPS.Source
	var r io.Reader
	if src == "stdin" {
		src = "reader"
		r = stdin
	}
	return gps.Config{
		Source:          src,
		Device:          c.GPS.Device,
		Baud:            c.GPS.Baud,
		GPSDAddr:        c.GPS.GPSDAddr,
		TCPAddr:         c.GPS.TCPAddr,
		Command:         c.GPS.Exec.Command,
		Args:            c.GPS.Exec.Args,
		CommandRestart:  c.GPS.Exec.Restart,
		ReplayPath:      c.GPS.Replay.Path,
		ReplaySpeed:     c.GPS.Replay.Speed,
		ReplayLoop:      c.GPS.Replay.Loop,
		Reader:          r,
		RequireChecksum: c.NMEA.RequireChecksum,
	}
}

// filtered drops messages whose type is not listed. An empty list passes
// everything.
func filtered(types []string, fn func(gps.Message)) func(gps.Message) {
	if len(types) == 0 {
		return fn
	}
	allow := make(map[string]bool, len(types))
	for _, t := range types {
		allow[t] = true
	}
	return func(m gps.Message) {
		if allow[m.Type] {
			fn(m)
		}
	}
}

func newRuntime(ctx context.Context, cfg config.Config, stdin io.Reader) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	r := &liveRuntime{
		cfg:    c,
		status: web.NewStatus(),
		hub:    web.NewHub(),
		lines:  web.NewLineBuffer(500),
	}
	r.gpsSvc = gps.New(gpsConfig(c, stdin))
	r.status.SetGPS(r.gpsSvc.Snapshot)
	r.gpsSvc.TapLines(r.lines.Add)
	r.gpsSvc.Subscribe(r.hub.Publish)

	if c.Record.Enable {
		rec, err := newRecordSink(c.Record.Path, c.Record.Append)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("record init failed: %w", err)
		}
		r.rec = rec
		r.gpsSvc.TapLines(rec.write)
		r.status.SetSink("record", func() any { return rec.Stats() })
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			rec.flushLoop(ctx)
		}()
		log.Printf("record enabled path=%s append=%t", c.Record.Path, c.Record.Append)
	}

	if c.UDP.Enable {
		b, err := udp.NewBroadcaster(c.UDP.Dest)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("udp init failed: %w", err)
		}
		r.udpOut = &udpSink{b: b}
		r.gpsSvc.Subscribe(filtered(c.UDP.Types, r.udpOut.send))
		r.status.SetSink("udp", func() any { return r.udpOut.Stats() })
		log.Printf("udp enabled dest=%s types=%s", c.UDP.Dest, strings.Join(c.UDP.Types, ","))
	}

	if c.MQTT.Enable {
		p, err := publish.New(publish.Config{
			Broker:      c.MQTT.Broker,
			ClientID:    c.MQTT.ClientID,
			TopicPrefix: c.MQTT.TopicPrefix,
			QoS:         byte(c.MQTT.QoS),
			Retain:      c.MQTT.Retain,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("mqtt init failed: %w", err)
		}
		r.mqttPub = p
		r.gpsSvc.Subscribe(filtered(c.MQTT.Types, p.Enqueue))
		r.status.SetSink("mqtt", func() any { return p.Stats() })
	}

	// PPS is optional hardware; keep running without it.
	if c.PPS.Enable {
		w := pps.New(pps.Config{Chip: c.PPS.Chip, Line: c.PPS.Line})
		if err := w.Start(ctx); err != nil {
			log.Printf("pps init failed: %v", err)
		} else {
			r.ppsW = w
		}
		r.status.SetPPS(w.Snapshot)
	}

	if err := r.gpsSvc.Start(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("gps init failed: %w", err)
	}

	if c.Web.Enable {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			log.Printf("web enabled listen=%s", c.Web.Listen)
			if err := web.Serve(ctx, c.Web.Listen, r.status, r.hub, r.lines); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}
	return r, nil
}

// Close stops the source first so sinks see no writes while shutting down.
func (r *liveRuntime) Close() {
	if r == nil {
		return
	}
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
	}
	if r.mqttPub != nil {
		_ = r.mqttPub.Close()
		r.mqttPub = nil
	}
	if r.udpOut != nil {
		_ = r.udpOut.b.Close()
	}
	if r.rec != nil {
		if err := r.rec.Close(); err != nil {
			log.Printf("record close failed: %v", err)
		}
	}
	if r.ppsW != nil {
		_ = r.ppsW.Close()
		r.ppsW = nil
	}
}

// wait blocks until background goroutines started by newRuntime exit.
// They stop when the context passed to newRuntime ends.
func (r *liveRuntime) wait() {
	r.wg.Wait()
}

type sinkStats struct {
	Sent      uint64 `json:"sent"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

type udpSink struct {
	b *udp.Broadcaster

	sent    atomic.Uint64
	errs    atomic.Uint64
	lastErr atomic.Value // string
}

func (s *udpSink) send(m gps.Message) {
	if err := s.b.SendJSON(m); err != nil {
		s.errs.Add(1)
		s.lastErr.Store(err.Error())
		return
	}
	s.sent.Add(1)
}

func (s *udpSink) Stats() sinkStats {
	msg, _ := s.lastErr.Load().(string)
	return sinkStats{Sent: s.sent.Load(), Errors: s.errs.Load(), LastError: msg}
}

// recordSink writes every raw line to a capture file.
type recordSink struct {
	mu      sync.Mutex
	w       *replay.Writer
	sent    uint64
	errs    uint64
	lastErr string
}

func newRecordSink(path string, appendMode bool) (*recordSink, error) {
	w, err := replay.CreateWriter(path, appendMode)
	if err != nil {
		return nil, err
	}
	return &recordSink{w: w}, nil
}

func (s *recordSink) write(nowUTC time.Time, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.WriteLine(nowUTC, line); err != nil {
		s.errs++
		s.lastErr = err.Error()
		return
	}
	s.sent++
}

func (s *recordSink) flushLoop(ctx context.Context) {
	t := time.NewTicker(recordFlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			if err := s.w.Flush(); err != nil {
				s.errs++
				s.lastErr = err.Error()
			}
			s.mu.Unlock()
		}
	}
}

func (s *recordSink) Stats() sinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sinkStats{Sent: s.sent, Errors: s.errs, LastError: s.lastErr}
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
