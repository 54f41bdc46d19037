package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gnss-nmea/internal/nmea"
	"gnss-nmea/internal/replay"
)

// Config controls where NMEA lines come from.
//
// Source is one of "serial" (default), "gpsd", "tcp", "exec", "replay" or
// "reader".
// Device may be empty to auto-detect a USB receiver. Reader is only used
// by the "reader" source (stdin in the CLI).
type Config struct {
	Source string

	Device string
	Baud   int

	// GPSDAddr is host:port for gpsd; raw NMEA is requested from it.
	GPSDAddr string

	// TCPAddr is host:port of a newline-delimited NMEA feed.
	TCPAddr string

	// Command and Args start a program whose stdout carries NMEA lines.
	// CommandRestart restarts it with backoff after it exits.
	Command        string
	Args           []string
	CommandRestart bool

	ReplayPath  string
	ReplaySpeed float64
	ReplayLoop  bool

	Reader io.Reader

	RequireChecksum bool
}

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Valid    bool `json:"valid"`
	FixStale bool `json:"fix_stale"`

	Source   string           `json:"source,omitempty"`
	GPSDAddr string           `json:"gpsd_addr,omitempty"`
	TCPAddr  string           `json:"tcp_addr,omitempty"`
	TCP      *TCPSnapshot     `json:"tcp,omitempty"`
	Exec     *CommandSnapshot `json:"exec,omitempty"`
	Device   string           `json:"device,omitempty"`
	Baud     int              `json:"baud,omitempty"`

	LatDeg         float64  `json:"lat_deg,omitempty"`
	LonDeg         float64  `json:"lon_deg,omitempty"`
	AltitudeM      *float64 `json:"altitude_m,omitempty"`
	AltFeet        *int     `json:"alt_feet,omitempty"`
	GeoidSepM      *float64 `json:"geoid_sep_m,omitempty"`
	GroundKt       *float64 `json:"ground_kt,omitempty"`
	GroundKmh      *float64 `json:"ground_kmh,omitempty"`
	TrackDeg       *float64 `json:"track_deg,omitempty"`
	MagVarDeg      *float64 `json:"mag_var_deg,omitempty"`
	FixQuality     *int     `json:"fix_quality,omitempty"`
	FixQualityName string   `json:"fix_quality_name,omitempty"`
	FixMode        *int     `json:"fix_mode,omitempty"`
	FixModeName    string   `json:"fix_mode_name,omitempty"`
	Satellites     *int     `json:"satellites,omitempty"`
	SatellitesUsed []int    `json:"satellites_used,omitempty"`
	HDOP           *float64 `json:"hdop,omitempty"`
	PDOP           *float64 `json:"pdop,omitempty"`
	VDOP           *float64 `json:"vdop,omitempty"`
	FixAgeSec      float64  `json:"fix_age_sec,omitempty"`

	TimeUTC     string `json:"time_utc,omitempty"`
	DateUTC     string `json:"date_utc,omitempty"`
	DateTimeUTC string `json:"datetime_utc,omitempty"`

	Sky []SkySatellite `json:"sky,omitempty"`

	Lines       uint64            `json:"lines"`
	Oversized   uint64            `json:"oversized,omitempty"`
	Decoded     uint64            `json:"decoded"`
	Unsupported uint64            `json:"unsupported"`
	Malformed   uint64            `json:"malformed"`
	ByType      map[string]uint64 `json:"by_type,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Message is one decoded sentence as delivered to subscribers.
type Message struct {
	Received time.Time   `json:"received"`
	Talker   string      `json:"talker,omitempty"`
	Type     string      `json:"type"`
	Raw      string      `json:"raw"`
	Record   nmea.Record `json:"record"`
}

type Service struct {
	cfg     Config
	source  string
	dec     *nmea.Decoder
	tracker *Tracker

	cancel context.CancelFunc
	wg     sync.WaitGroup

	lines     atomic.Uint64
	oversized atomic.Uint64
	lastErr   atomic.Value // string
	device    atomic.Value // string

	mu     sync.Mutex
	closer io.Closer
	cmd    *commandRunner
	tcp    *TCPSource

	subMu     sync.RWMutex
	subs      []func(Message)
	lineTaps  []func(nowUTC time.Time, line string)
	doneOnce  sync.Once
	sourceEnd chan struct{}
}

func New(cfg Config) *Service {
	src := strings.ToLower(strings.TrimSpace(cfg.Source))
	if src == "" {
		src = "serial"
	}
	cfg.GPSDAddr = strings.TrimSpace(cfg.GPSDAddr)
	if src == "gpsd" && cfg.GPSDAddr == "" {
		cfg.GPSDAddr = gpsdDefaultAddr
	}
	s := &Service{
		cfg:       cfg,
		source:    src,
		dec:       nmea.NewDecoder(nmea.Options{RequireChecksum: cfg.RequireChecksum}),
		tracker:   NewTracker(),
		sourceEnd: make(chan struct{}),
	}
	s.lastErr.Store("")
	s.device.Store(strings.TrimSpace(cfg.Device))
	return s
}

// Subscribe registers fn for every decoded message. Callbacks run on the
// reader goroutine and should not block.
func (s *Service) Subscribe(fn func(Message)) {
	if s == nil || fn == nil {
		return
	}
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

// TapLines registers fn for every non-empty raw line, decodable or not.
func (s *Service) TapLines(fn func(nowUTC time.Time, line string)) {
	if s == nil || fn == nil {
		return
	}
	s.subMu.Lock()
	s.lineTaps = append(s.lineTaps, fn)
	s.subMu.Unlock()
}

// Done is closed when the source stops on its own (EOF, end of replay).
func (s *Service) Done() <-chan struct{} {
	return s.sourceEnd
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	var err error
	switch s.source {
	case "serial":
		err = s.startSerialLocked(childCtx)
	case "gpsd":
		err = s.startGPSDLocked(childCtx)
	case "tcp":
		err = s.startTCPLocked(childCtx)
	case "exec":
		err = s.startExecLocked(childCtx)
	case "replay":
		err = s.startReplayLocked(childCtx)
	case "reader":
		err = s.startReaderLocked(childCtx)
	default:
		err = fmt.Errorf("gps: unknown source %q", s.source)
	}
	if err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	return nil
}

func (s *Service) startSerialLocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setError("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	port, err := openSerial(device, baud)
	if err != nil {
		s.setError(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	s.closer = port
	s.device.Store(device)

	log.Printf("gps enabled source=serial device=%s baud=%d", device, baud)
	s.runReader(ctx, port, "gps read stopped")
	return nil
}

func (s *Service) startReaderLocked(ctx context.Context) error {
	if s.cfg.Reader == nil {
		return fmt.Errorf("gps: reader source requires a reader")
	}
	if c, ok := s.cfg.Reader.(io.Closer); ok {
		s.closer = c
	}
	log.Printf("gps enabled source=reader")
	s.runReader(ctx, s.cfg.Reader, "gps input ended")
	return nil
}

// maxLineBytes bounds one line from a stream source. Sentences are at most
// 82 bytes; longer runs are binary output or noise and are discarded.
const maxLineBytes = 1024

// runReader reads newline-delimited sentences from r until EOF or ctx ends.
func (s *Service) runReader(ctx context.Context, r io.Reader, stopMsg string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.markDone()
		if c, ok := r.(io.Closer); ok {
			defer func() { _ = c.Close() }()
		}

		br := bufio.NewReaderSize(r, 4096)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, oversized, err := readBoundedLine(br, maxLineBytes)
			if oversized {
				s.oversized.Add(1)
			} else if len(line) > 0 {
				s.HandleLine(time.Now().UTC(), string(line))
			}
			if err != nil {
				s.setError(fmt.Sprintf("%s: %v", stopMsg, err))
				return
			}
		}
	}()
}

// readBoundedLine returns the next line without its terminator. A line
// longer than max is consumed and reported as oversized without being
// buffered.
func readBoundedLine(br *bufio.Reader, max int) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		frag, isPrefix, err := br.ReadLine()
		if !oversized {
			if len(line)+len(frag) > max {
				oversized, line = true, nil
			} else {
				line = append(line, frag...)
			}
		}
		if err != nil || !isPrefix {
			return line, oversized, err
		}
	}
}

func (s *Service) startTCPLocked(ctx context.Context) error {
	src, err := NewTCPSource(TCPConfig{Addr: s.cfg.TCPAddr})
	if err != nil {
		return err
	}
	if err := src.Start(ctx, func(line string) error {
		s.HandleLine(time.Now().UTC(), line)
		return nil
	}); err != nil {
		return err
	}
	s.closer = src
	s.tcp = src
	log.Printf("gps enabled source=tcp addr=%s", s.cfg.TCPAddr)
	return nil
}

func (s *Service) startExecLocked(ctx context.Context) error {
	runner, err := newCommandRunner(CommandConfig{
		Command: s.cfg.Command,
		Args:    s.cfg.Args,
		Restart: s.cfg.CommandRestart,
	}, func(line string) {
		s.HandleLine(time.Now().UTC(), line)
	})
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	s.closer = runner
	s.cmd = runner
	s.device.Store(runner.Snapshot().Command)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-ctx.Done():
		case <-runner.Done():
			if snap := runner.Snapshot(); snap.LastError != "" {
				s.setError("gps command stopped: " + snap.LastError)
			}
			s.markDone()
		}
	}()
	log.Printf("gps enabled source=exec command=%s restart=%t", s.cfg.Command, s.cfg.CommandRestart)
	return nil
}

func (s *Service) startReplayLocked(ctx context.Context) error {
	f, err := os.Open(s.cfg.ReplayPath)
	if err != nil {
		return fmt.Errorf("open replay: %w", err)
	}
	recs, err := replay.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read replay: %w", err)
	}
	speed := s.cfg.ReplaySpeed
	if speed <= 0 {
		speed = 1
	}

	log.Printf("gps enabled source=replay path=%s records=%d speed=%.2f loop=%t", s.cfg.ReplayPath, len(recs), speed, s.cfg.ReplayLoop)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.markDone()
		err := replay.Play(ctx, recs, speed, s.cfg.ReplayLoop, nil, func(line string) error {
			s.HandleLine(time.Now().UTC(), line)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			s.setError(fmt.Sprintf("replay stopped: %v", err))
		}
	}()
	return nil
}

// HandleLine decodes one raw line, updates the tracker and notifies
// subscribers. It is exported so callers can feed lines from their own
// transport.
func (s *Service) HandleLine(nowUTC time.Time, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	s.lines.Add(1)

	s.subMu.RLock()
	taps := s.lineTaps
	subs := s.subs
	s.subMu.RUnlock()
	for _, fn := range taps {
		fn(nowUTC, line)
	}

	sent, err := s.dec.Parse(line)
	if err != nil {
		s.tracker.NoteError(err)
		return
	}
	rec, err := nmea.DecodeSentence(sent)
	if err != nil {
		s.tracker.NoteError(err)
		return
	}
	s.tracker.Apply(nowUTC, sent.Talker(), rec)

	msg := Message{Received: nowUTC, Talker: sent.Talker(), Type: rec.Type(), Raw: sent.Raw, Record: rec}
	for _, fn := range subs {
		fn(msg)
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := s.tracker.Snapshot(time.Now().UTC())
	out.Source = s.source
	out.Device, _ = s.device.Load().(string)
	out.Baud = s.cfg.Baud
	if s.source == "gpsd" {
		out.GPSDAddr = s.cfg.GPSDAddr
	}
	s.mu.Lock()
	tcp, cmd := s.tcp, s.cmd
	s.mu.Unlock()
	if s.source == "tcp" {
		out.TCPAddr = s.cfg.TCPAddr
	}
	if tcp != nil {
		snap := tcp.Snapshot()
		out.TCP = &snap
	}
	if cmd != nil {
		snap := cmd.Snapshot()
		out.Exec = &snap
	}
	out.Lines = s.lines.Load()
	out.Oversized = s.oversized.Load()
	if msg, _ := s.lastErr.Load().(string); msg != "" {
		// Transport errors take precedence over the last bad sentence.
		out.LastError = msg
	}
	return out
}

func (s *Service) setError(msg string) {
	s.lastErr.Store(msg)
}

func (s *Service) markDone() {
	s.doneOnce.Do(func() { close(s.sourceEnd) })
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
