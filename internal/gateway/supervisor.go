package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// Status is the supervisor's view of the gateway process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// stableAfter is how long a run must last before the backoff resets.
const stableAfter = time.Minute

const (
	defaultRestartDelay    = 2 * time.Second
	defaultMaxRestartDelay = time.Minute
	defaultGracefulTimeout = 5 * time.Second
)

// ErrNoBinary is returned by Start when no executable is configured.
var ErrNoBinary = errors.New("gateway: binary is required")

// Config describes the gateway process.
type Config struct {
	Binary string
	Args   []string

	// Env is appended to the node's environment.
	Env []string

	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestarts bounds consecutive restarts without a stable run. Zero
	// means unlimited.
	MaxRestarts int

	GracefulTimeout time.Duration
}

// ConfigFrom converts the gateway section of the node configuration.
func ConfigFrom(cfg config.GatewayConfig) Config {
	return Config{
		Binary:          cfg.Binary,
		Args:            cfg.Args,
		RestartDelay:    time.Duration(cfg.RestartDelay) * time.Second,
		MaxRestartDelay: time.Duration(cfg.MaxRestartDelay) * time.Second,
		MaxRestarts:     cfg.MaxRestarts,
		GracefulTimeout: time.Duration(cfg.GracefulTimeout) * time.Second,
	}
}

// Logger is the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time summary for the operator API.
type Stats struct {
	Status    Status `json:"status"`
	PID       int    `json:"pid,omitempty"`
	Restarts  int    `json:"restarts"`
	UptimeSec int64  `json:"uptime_seconds,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor runs the gateway process and restarts it when it exits.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	status    Status
	pid       int
	started   time.Time
	restarts  int
	lastError error
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a Supervisor. Zero durations take defaults.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = max(defaultMaxRestartDelay, cfg.RestartDelay)
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the gateway. A process that cannot be started at all is
// reported here; later exits are handled by the restart loop.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.cfg.Binary == "" {
		return ErrNoBinary
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("gateway: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.launch(runCtx)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.status = StatusFailed
		s.lastError = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(runCtx, cmd)
	return nil
}

// Stop terminates the gateway and waits for the restart loop to finish.
func (s *Supervisor) Stop() {
	s.mu.RLock()
	cancel, done := s.cancel, s.done
	s.mu.RUnlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Stats returns the current process summary.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Status:   s.status,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning {
		st.PID = s.pid
		st.UptimeSec = int64(time.Since(s.started).Seconds())
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// launch starts one gateway process in its own process group. Cancelling
// ctx sends SIGTERM to the group; the process is killed if it is still
// running GracefulTimeout later.
func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = s.cfg.GracefulTimeout
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stdout = &lineWriter{logger: s.logger, stream: "stdout"}
	cmd.Stderr = &lineWriter{logger: s.logger, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting gateway %s: %w", s.cfg.Binary, err)
	}

	s.mu.Lock()
	s.status = StatusRunning
	s.pid = cmd.Process.Pid
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("gateway started", "binary", s.cfg.Binary, "pid", cmd.Process.Pid)
	return cmd, nil
}

// supervise waits for the current process and restarts it until ctx ends
// or the restart budget is exhausted. cmd is nil after a failed launch.
func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd) {
	defer close(s.done)

	delay := s.cfg.RestartDelay
	consecutive := 0

	for {
		var (
			err    error
			uptime time.Duration
		)
		if cmd != nil {
			err = cmd.Wait()
			s.mu.RLock()
			uptime = time.Since(s.started)
			s.mu.RUnlock()
		} else {
			err = errors.New("launch failed")
		}

		if ctx.Err() != nil {
			s.setStatus(StatusStopped, nil)
			s.logger.Info("gateway stopped")
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		if uptime >= stableAfter {
			delay = s.cfg.RestartDelay
			consecutive = 0
		}
		consecutive++

		if s.cfg.MaxRestarts > 0 && consecutive > s.cfg.MaxRestarts {
			s.setStatus(StatusFailed, err)
			s.logger.Error("gateway exceeded restart limit",
				"restarts", consecutive-1,
				"error", err,
			)
			return
		}

		s.mu.Lock()
		s.status = StatusBackoff
		s.lastError = err
		s.restarts++
		s.mu.Unlock()
		s.logger.Warn("gateway exited, restarting",
			"error", err,
			"uptime", uptime.Round(time.Millisecond),
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusStopped, nil)
			s.logger.Info("gateway stopped")
			return
		case <-timer.C:
		}
		delay = nextDelay(delay, s.cfg.MaxRestartDelay)

		cmd, err = s.launch(ctx)
		if err != nil {
			s.logger.Error("gateway restart failed", "error", err)
			cmd = nil
		}
	}
}

func (s *Supervisor) setStatus(status Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if err != nil {
		s.lastError = err
	}
}

// nextDelay doubles d, capped at limit.
func nextDelay(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}

// lineWriter logs process output one line at a time.
type lineWriter struct {
	logger Logger
	stream string

	mu  sync.Mutex
	buf []byte
}

// maxLine bounds a line held without a newline.
const maxLine = 4096

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Debug("gateway output", "stream", w.stream, "line", string(line))
}
