package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record(msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record(msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record(msg, args) }

func (l *recordingLogger) record(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg != "gateway output" {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "line" {
			l.lines = append(l.lines, args[i+1].(string))
		}
	}
}

func (l *recordingLogger) output() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func shell(script string) Config {
	return Config{
		Binary:          "/bin/sh",
		Args:            []string{"-c", script},
		RestartDelay:    10 * time.Millisecond,
		MaxRestartDelay: 40 * time.Millisecond,
		GracefulTimeout: 200 * time.Millisecond,
	}
}

// ─── Configuration ─────────────────────────────────────────────────

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Binary: "/usr/bin/ble-gateway"})

	if s.cfg.RestartDelay != defaultRestartDelay {
		t.Errorf("RestartDelay = %v, want %v", s.cfg.RestartDelay, defaultRestartDelay)
	}
	if s.cfg.MaxRestartDelay != defaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v, want %v", s.cfg.MaxRestartDelay, defaultMaxRestartDelay)
	}
	if s.cfg.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("GracefulTimeout = %v, want %v", s.cfg.GracefulTimeout, defaultGracefulTimeout)
	}
	if got := s.Stats(); got.Status != StatusStopped || got.PID != 0 || got.Restarts != 0 {
		t.Errorf("initial Stats() = %+v", got)
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.GatewayConfig{
		Managed:         true,
		Binary:          "/opt/gateway/bin/blegw",
		Args:            []string{"--hci", "hci0"},
		RestartDelay:    3,
		MaxRestartDelay: 90,
		MaxRestarts:     7,
		GracefulTimeout: 4,
	})

	if cfg.Binary != "/opt/gateway/bin/blegw" || len(cfg.Args) != 2 {
		t.Errorf("ConfigFrom() binary/args = %q %v", cfg.Binary, cfg.Args)
	}
	if cfg.RestartDelay != 3*time.Second || cfg.MaxRestartDelay != 90*time.Second {
		t.Errorf("ConfigFrom() delays = %v / %v", cfg.RestartDelay, cfg.MaxRestartDelay)
	}
	if cfg.MaxRestarts != 7 || cfg.GracefulTimeout != 4*time.Second {
		t.Errorf("ConfigFrom() = %+v", cfg)
	}
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		d, limit, want time.Duration
	}{
		{time.Second, time.Minute, 2 * time.Second},
		{20 * time.Second, time.Minute, 40 * time.Second},
		{40 * time.Second, time.Minute, time.Minute},
		{time.Minute, time.Minute, time.Minute},
	}

	for _, tt := range tests {
		if got := nextDelay(tt.d, tt.limit); got != tt.want {
			t.Errorf("nextDelay(%v, %v) = %v, want %v", tt.d, tt.limit, got, tt.want)
		}
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestStart_NoBinary(t *testing.T) {
	s := New(Config{})
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoBinary) {
		t.Fatalf("Start() error = %v, want ErrNoBinary", err)
	}
}

func TestStart_MissingExecutable(t *testing.T) {
	s := New(Config{Binary: "/nonexistent/ble-gateway"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail for a missing executable")
	}
	if got := s.Stats(); got.Status != StatusFailed || got.LastError == "" {
		t.Errorf("Stats() = %+v, want failed with error", got)
	}
	s.Stop() // no-op
}

func TestStartStop(t *testing.T) {
	s := New(shell("exec sleep 30"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	st := s.Stats()
	if st.Status != StatusRunning || st.PID == 0 {
		t.Fatalf("Stats() = %+v, want running with pid", st)
	}

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %v", elapsed)
	}
	if got := s.Stats(); got.Status != StatusStopped || got.Restarts != 0 {
		t.Errorf("Stats() after Stop = %+v, want stopped without restarts", got)
	}
}

func TestStop_EscalatesWhenTermIgnored(t *testing.T) {
	s := New(shell("trap '' TERM; exec sleep 30"))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	start := time.Now()
	s.Stop()
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Stop() took %v, want kill after graceful timeout", elapsed)
	}
	if got := s.Stats(); got.Status != StatusStopped {
		t.Errorf("Status = %q, want stopped", got.Status)
	}
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(shell("exec sleep 30"))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cancel()
	waitFor(t, "stopped status", func() bool { return s.Stats().Status == StatusStopped })
	s.Stop()
}

func TestRestartsUntilLimit(t *testing.T) {
	cfg := shell("exit 3")
	cfg.MaxRestarts = 2
	s := New(cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitFor(t, "failed status", func() bool { return s.Stats().Status == StatusFailed })

	st := s.Stats()
	if st.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", st.Restarts)
	}
	if !strings.Contains(st.LastError, "exit status 3") {
		t.Errorf("LastError = %q, want exit status 3", st.LastError)
	}
}

func TestOutputIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	s := New(shell("echo gateway ready; echo scan failed >&2; exec sleep 30"))
	s.SetLogger(logger)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitFor(t, "two output lines", func() bool { return len(logger.output()) >= 2 })
	got := strings.Join(logger.output(), "|")
	if !strings.Contains(got, "gateway ready") || !strings.Contains(got, "scan failed") {
		t.Errorf("logged output = %q", got)
	}
}

// ─── Output ────────────────────────────────────────────────────────

func TestLineWriter(t *testing.T) {
	logger := &recordingLogger{}
	w := &lineWriter{logger: logger, stream: "stdout"}

	chunks := []string{"conn", "ected AA:BB\r\n", "\n", "data 1\ndata 2\npart"}
	for _, c := range chunks {
		n, err := w.Write([]byte(c))
		if err != nil || n != len(c) {
			t.Fatalf("Write(%q) = %d, %v", c, n, err)
		}
	}

	want := []string{"connected AA:BB", "data 1", "data 2"}
	got := logger.output()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if string(w.buf) != "part" {
		t.Errorf("pending = %q, want %q", w.buf, "part")
	}
}

func TestLineWriter_LongLineFlushed(t *testing.T) {
	logger := &recordingLogger{}
	w := &lineWriter{logger: logger, stream: "stderr"}

	w.Write([]byte(strings.Repeat("x", maxLine+1)))
	if got := logger.output(); len(got) != 1 || len(got[0]) != maxLine+1 {
		t.Errorf("long line not flushed: %d lines", len(got))
	}
	if len(w.buf) != 0 {
		t.Errorf("pending = %d bytes, want 0", len(w.buf))
	}
}
