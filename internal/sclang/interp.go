package sclang

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

// Interp is the persistent sclang subprocess. It loads the analyzer
// synthdefs, forwards telemetry, and answers code-execution requests sent to
// its OSC port.
type Interp struct {
	cfg config.Config
	log *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	initFile string
	waitCh   chan error
}

func NewInterp(cfg config.Config, log *zap.Logger) *Interp {
	return &Interp{cfg: cfg, log: log}
}

// Start launches sclang with the bootstrap script and waits out the startup
// grace period so the class library has time to compile. An interpreter that
// exits during the grace period is reported as a startup failure.
func (i *Interp) Start() error {
	i.Stop()

	path, err := Find()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "screpl-init-*.scd")
	if err != nil {
		return fmt.Errorf("write init script: %w", err)
	}
	if _, err := f.WriteString(Bootstrap(i.cfg)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write init script: %w", err)
	}
	f.Close()

	// Discard output: sclang chatter can exceed the pipe buffer and a full
	// pipe would wedge the interpreter.
	cmd := exec.Command(path, "-u", strconv.Itoa(i.cfg.SclangPort), f.Name())
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("start sclang: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case <-waitCh:
		os.Remove(f.Name())
		return fmt.Errorf("sclang exited during startup (code %d)", cmd.ProcessState.ExitCode())
	case <-time.After(i.cfg.StartupGrace):
	}

	i.mu.Lock()
	i.cmd = cmd
	i.initFile = f.Name()
	i.waitCh = waitCh
	i.mu.Unlock()

	i.log.Info("sclang started", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Running reports whether the interpreter process is alive.
func (i *Interp) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cmd == nil {
		return false
	}
	select {
	case err := <-i.waitCh:
		// Process died behind our back. Keep the channel satisfied for Stop.
		i.waitCh <- err
		return false
	default:
		return true
	}
}

// Stop terminates the interpreter: SIGTERM, then SIGKILL if it lingers past
// the stop timeout. Safe to call when not running.
func (i *Interp) Stop() {
	i.mu.Lock()
	cmd, initFile, waitCh := i.cmd, i.initFile, i.waitCh
	i.cmd, i.initFile, i.waitCh = nil, "", nil
	i.mu.Unlock()

	if cmd == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(i.cfg.StopTimeout):
		_ = cmd.Process.Kill()
		select {
		case <-waitCh:
		case <-time.After(i.cfg.KillTimeout):
			i.log.Warn("sclang did not exit after kill", zap.Int("pid", cmd.Process.Pid))
		}
	}

	if initFile != "" {
		_ = os.Remove(initFile)
	}
}
