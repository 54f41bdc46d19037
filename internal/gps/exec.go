package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CommandConfig runs a program whose stdout is NMEA, for example
// `gpspipe -r` or a vendor tool that talks to a receiver.
type CommandConfig struct {
	Command string
	Args    []string
	Env     map[string]string

	Restart bool

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	StderrTailLines int
}

type commandRunner struct {
	cfg    CommandConfig
	onLine func(line string)

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	pid      int
	state    string
	lastErr  string
	restarts uint64

	stderr *tailBuffer

	cancel context.CancelFunc
	done   chan struct{}
}

type CommandSnapshot struct {
	Command   string   `json:"command"`
	Running   bool     `json:"running"`
	PID       int      `json:"pid,omitempty"`
	State     string   `json:"state"`
	Restarts  uint64   `json:"restarts"`
	LastError string   `json:"last_error,omitempty"`
	Stderr    []string `json:"stderr_tail,omitempty"`
}

func newCommandRunner(cfg CommandConfig, onLine func(line string)) (*commandRunner, error) {
	cfg.Command = strings.TrimSpace(cfg.Command)
	if cfg.Command == "" {
		return nil, fmt.Errorf("gps command is required")
	}
	if onLine == nil {
		return nil, fmt.Errorf("gps command onLine is nil")
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.StderrTailLines <= 0 {
		cfg.StderrTailLines = 20
	}
	return &commandRunner{
		cfg:    cfg,
		onLine: onLine,
		state:  "stopped",
		stderr: newTailBuffer(cfg.StderrTailLines),
		done:   make(chan struct{}),
	}, nil
}

func (r *commandRunner) Start(ctx context.Context) error {
	if r.closed.Load() {
		return fmt.Errorf("gps command is closed")
	}
	if r.started.Swap(true) {
		return fmt.Errorf("gps command already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.setState("starting", "")
	go r.runLoop(runCtx)
	return nil
}

// Done is closed when the runner stops: on Close, or when the command
// exits and Restart is off.
func (r *commandRunner) Done() <-chan struct{} {
	return r.done
}

func (r *commandRunner) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.started.Load() {
		<-r.done
	}
	return nil
}

func (r *commandRunner) Snapshot() CommandSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return CommandSnapshot{
		Command:   strings.TrimSpace(r.cfg.Command + " " + strings.Join(r.cfg.Args, " ")),
		Running:   r.pid != 0 && r.state == "running",
		PID:       r.pid,
		State:     r.state,
		Restarts:  r.restarts,
		LastError: r.lastErr,
		Stderr:    r.stderr.snapshot(),
	}
}

func (r *commandRunner) runLoop(ctx context.Context) {
	defer close(r.done)

	backoff := r.cfg.BackoffInitial
	for {
		exitErr := r.runOnce(ctx)
		if ctx.Err() != nil {
			r.setState("stopped", "")
			return
		}
		if exitErr != nil {
			r.setState("exited", exitErr.Error())
		} else {
			r.setState("exited", "")
		}
		if !r.cfg.Restart {
			return
		}

		if !sleepCtx(ctx, backoff) {
			r.setState("stopped", "")
			return
		}
		backoff *= 2
		if backoff > r.cfg.BackoffMax {
			backoff = r.cfg.BackoffMax
		}
		r.mu.Lock()
		r.restarts++
		r.mu.Unlock()
		r.setState("restarting", "")
	}
}

func (r *commandRunner) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	if len(r.cfg.Env) > 0 {
		cmd.Env = cmd.Environ()
		for k, v := range r.cfg.Env {
			if k = strings.TrimSpace(k); k != "" {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	r.mu.Lock()
	r.pid = cmd.Process.Pid
	r.state = "running"
	r.lastErr = ""
	r.mu.Unlock()

	// A killed shell can leave children holding the pipes open.
	stop := context.AfterFunc(ctx, func() {
		_ = stdout.Close()
		_ = stderr.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, r.onLine)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, r.stderr.add)
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	r.mu.Lock()
	r.pid = 0
	r.mu.Unlock()

	if waitErr == nil || errors.Is(waitErr, context.Canceled) {
		return nil
	}
	return waitErr
}

func (r *commandRunner) setState(state string, lastErr string) {
	r.mu.Lock()
	r.state = state
	if strings.TrimSpace(lastErr) != "" {
		r.lastErr = lastErr
	}
	r.mu.Unlock()
}

func scanLines(rd io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
}

// tailBuffer keeps the last max lines.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max, lines: make([]string, 0, max)}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) < t.max {
		t.lines = append(t.lines, line)
		return
	}
	copy(t.lines, t.lines[1:])
	t.lines[len(t.lines)-1] = line
}

func (t *tailBuffer) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}
