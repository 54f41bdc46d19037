package gps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPConfig configures a reconnecting NMEA-over-TCP feed, as served by
// ser2net, marine multiplexers or `gpspipe -r` behind a socket.
type TCPConfig struct {
	Addr string

	DialTimeout time.Duration
	// RetryMin and RetryMax bound the exponential reconnect delay.
	RetryMin time.Duration
	RetryMax time.Duration

	// MaxLineBytes drops longer lines; sentences are at most 82 bytes.
	MaxLineBytes int

	// OnConnect runs after each successful dial, before reading.
	OnConnect func(conn net.Conn) error
}

type TCPSource struct {
	cfg TCPConfig

	started atomic.Bool
	closed  atomic.Bool

	mu         sync.RWMutex
	state      string
	lastErr    string
	lastLine   time.Time
	lines      uint64
	oversized  uint64
	reconnects uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type TCPSnapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	Lines       uint64 `json:"lines"`
	Oversized   uint64 `json:"oversized,omitempty"`
	Reconnects  uint64 `json:"reconnects"`
	LastLineUTC string `json:"last_line_utc,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func NewTCPSource(cfg TCPConfig) (*TCPSource, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp source addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return nil, fmt.Errorf("tcp source addr %q: %w", cfg.Addr, err)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 250 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 10 * time.Second
	}
	if cfg.RetryMax < cfg.RetryMin {
		cfg.RetryMax = cfg.RetryMin
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 1024
	}
	return &TCPSource{cfg: cfg, state: "stopped", done: make(chan struct{})}, nil
}

// Start connects in the background and calls onLine with every trimmed,
// non-empty line until ctx ends or Close is called.
func (c *TCPSource) Start(ctx context.Context, onLine func(line string) error) error {
	switch {
	case c.closed.Load():
		return fmt.Errorf("tcp source is closed")
	case onLine == nil:
		return fmt.Errorf("tcp source onLine is nil")
	case c.started.Swap(true):
		return fmt.Errorf("tcp source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")
	go c.run(runCtx, onLine)
	return nil
}

func (c *TCPSource) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.started.Load() {
		<-c.done
	}
	return nil
}

func (c *TCPSource) Snapshot() TCPSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := TCPSnapshot{
		Addr:       c.cfg.Addr,
		State:      c.state,
		Lines:      c.lines,
		Oversized:  c.oversized,
		Reconnects: c.reconnects,
		LastError:  c.lastErr,
	}
	if !c.lastLine.IsZero() {
		out.LastLineUTC = c.lastLine.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *TCPSource) run(ctx context.Context, onLine func(string) error) {
	defer close(c.done)
	defer c.setState("stopped", "")

	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout, KeepAlive: 15 * time.Second}
	delay := c.cfg.RetryMin
	for attempt := 0; ctx.Err() == nil; attempt++ {
		if attempt > 0 {
			c.mu.Lock()
			c.reconnects++
			c.mu.Unlock()
		}
		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err == nil && c.cfg.OnConnect != nil {
			if herr := c.cfg.OnConnect(conn); herr != nil {
				_ = conn.Close()
				conn, err = nil, fmt.Errorf("on connect: %w", herr)
			}
		}
		if err == nil {
			c.setState("connected", "")
			if c.consume(ctx, conn, onLine) {
				// A session that delivered lines resets the backoff.
				delay = c.cfg.RetryMin
			}
		} else if ctx.Err() == nil {
			c.setState("error", err.Error())
		}

		if !sleepCtx(ctx, delay) {
			return
		}
		delay *= 2
		if delay > c.cfg.RetryMax {
			delay = c.cfg.RetryMax
		}
	}
}

// consume reads one connection to its end and reports whether any line
// was accepted.
func (c *TCPSource) consume(ctx context.Context, conn net.Conn, onLine func(string) error) bool {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	accepted := false
	br := bufio.NewReaderSize(conn, 4096)
	for {
		raw, err := br.ReadBytes('\n')
		switch line := bytes.TrimSpace(raw); {
		case len(raw) > c.cfg.MaxLineBytes:
			c.mu.Lock()
			c.oversized++
			c.lastErr = fmt.Sprintf("line too large (%d bytes)", len(raw))
			c.mu.Unlock()
		case len(line) == 0:
		default:
			if herr := onLine(string(line)); herr != nil {
				c.setState("connected", "handler: "+herr.Error())
				break
			}
			accepted = true
			c.mu.Lock()
			c.lines++
			c.lastLine = time.Now()
			c.mu.Unlock()
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			c.setState("disconnected", "")
		} else {
			c.setState("disconnected", err.Error())
		}
		return accepted
	}
}

// setState records a state change. An empty errMsg clears the last error
// only on states that imply a healthy link.
func (c *TCPSource) setState(state string, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	switch {
	case errMsg != "":
		c.lastErr = errMsg
	case state == "connected", state == "connecting", state == "stopped":
		c.lastErr = ""
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
