// Package session owns one connection to a SuperCollider pair: the scsynth
// synthesis server and a persistent sclang interpreter. It wires the
// transport's dispatch table to the telemetry store, the request correlator,
// and the notification log, and exposes the operations the CLI drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
	"github.com/viktorkelemen/sc-repl-mcp/internal/correlate"
	"github.com/viktorkelemen/sc-repl-mcp/internal/logbuf"
	"github.com/viktorkelemen/sc-repl-mcp/internal/match"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/refstore"
	"github.com/viktorkelemen/sc-repl-mcp/internal/schedule"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sclang"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sweep"
	"github.com/viktorkelemen/sc-repl-mcp/internal/telemetry"
	"github.com/viktorkelemen/sc-repl-mcp/internal/transport"
)

var (
	// ErrNotConnected reports operations attempted before Connect.
	ErrNotConnected = errors.New("not connected: call Connect first")
	// ErrServerNotResponding reports a scsynth that never answered the
	// status probe.
	ErrServerNotResponding = errors.New("scsynth not responding: make sure the SuperCollider server is running")
	// ErrInterpUnavailable reports operations that need the persistent
	// interpreter while the session runs degraded without one.
	ErrInterpUnavailable = errors.New("sclang interpreter not running")
)

// Session is one client connection. All methods are safe for concurrent use.
type Session struct {
	cfg config.Config
	log *zap.Logger
	id  string

	tel     *telemetry.Store
	logs    *logbuf.Buffer
	reqs    *correlate.Engine
	sched   *schedule.Scheduler
	refs    *refstore.Store
	matcher *match.Engine
	sweeper *sweep.Runner
	interp  *sclang.Interp

	mu        sync.Mutex
	conn      *transport.Conn
	connected bool
	degraded  bool // connected but without a working interpreter

	statusMu sync.Mutex
	statusCh chan model.ServerStatus

	recMu      sync.Mutex
	recording  bool
	recPath    string
	recSession int64
}

// New builds a session and opens its reference database. Close releases it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Session, error) {
	refs, err := refstore.Open(ctx, cfg.RefDBPath)
	if err != nil {
		return nil, fmt.Errorf("open reference store: %w", err)
	}

	id := uuid.NewString()
	log = log.With(zap.String("session", id))

	tel := telemetry.New(cfg, log)
	s := &Session{
		cfg:      cfg,
		log:      log,
		id:       id,
		tel:      tel,
		logs:     logbuf.New(cfg.LogCapacity),
		reqs:     correlate.NewEngine(time.Now()),
		sched:    schedule.New(),
		refs:     refs,
		matcher:  match.NewEngine(tel, refs, log),
		interp:   sclang.NewInterp(cfg, log),
		statusCh: make(chan model.ServerStatus, 1),
	}
	s.sweeper = sweep.NewRunner(player{s}, tel, cfg.SweepGuard, log)
	return s, nil
}

// ID returns the session's stream identifier, stamped on every log line.
func (s *Session) ID() string { return s.id }

// Connect binds the reply socket, verifies scsynth answers a status probe,
// enables node notifications, and starts the persistent interpreter. It is
// idempotent: a live connection is probed and reused rather than rebuilt.
// An interpreter that fails to start leaves the session connected but
// degraded (no code execution or analyzer synthdefs).
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		if status, err := s.Status(ctx); err == nil && status.Running {
			return nil
		}
		// Dead connection; tear it down and rebind.
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.connected = false
		s.mu.Unlock()
	}

	conn, err := transport.Dial(ctx, s.cfg, s.dispatchTable(), s.log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	status, err := s.Status(ctx)
	if err != nil || !status.Running {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrServerNotResponding
	}

	// Ask scsynth for node lifecycle notifications (/n_go, /n_end).
	conn.Send("/notify", int32(1))
	s.logs.Append(model.LogInfo, fmt.Sprintf("Connected to scsynth on port %d", s.cfg.ScsynthPort))

	degraded := false
	if err := s.interp.Start(); err != nil {
		// Still usable for raw synth control; analyzer and eval won't work.
		degraded = true
		s.log.Warn("sclang failed to start, continuing degraded", zap.Error(err))
		s.logs.Append(model.LogFail, fmt.Sprintf("sclang failed to start: %v", err))
	}

	s.mu.Lock()
	s.connected = true
	s.degraded = degraded
	s.mu.Unlock()
	return nil
}

// Degraded reports whether the session is connected without an interpreter.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Session) scheduler() *schedule.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched
}

func (s *Session) transport() (*transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// Status queries scsynth and waits for its /status.reply. A server that does
// not answer within the status timeout is reported as not running rather
// than as an error; the two are indistinguishable over UDP.
func (s *Session) Status(ctx context.Context) (model.ServerStatus, error) {
	conn, err := s.transport()
	if err != nil {
		return model.ServerStatus{}, err
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	// Drain a reply left over from an earlier timed-out probe.
	select {
	case <-s.statusCh:
	default:
	}

	if !conn.Send("/status") {
		return model.ServerStatus{}, fmt.Errorf("send status query: transport failed")
	}

	timer := time.NewTimer(s.cfg.StatusTimeout)
	defer timer.Stop()
	select {
	case status := <-s.statusCh:
		return status, nil
	case <-timer.C:
		return model.ServerStatus{Running: false}, nil
	case <-ctx.Done():
		return model.ServerStatus{}, ctx.Err()
	}
}

// Disconnect stops recording, the scheduler, the interpreter, and the
// transport, in that order. Safe to call on a session that never connected.
func (s *Session) Disconnect() {
	if s.IsRecording() {
		if _, err := s.StopRecording(); err != nil {
			s.logs.Append(model.LogFail, fmt.Sprintf(
				"Failed to stop recording during disconnect: %v. Recording file may be incomplete.", err))
		}
	}

	s.scheduler().Stop()
	s.interp.Stop()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.degraded = false
	// A stopped scheduler refuses new work; swap in a fresh one so a later
	// Connect on this session schedules releases again.
	s.sched = schedule.New()
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.tel.ClearAnalyzerNode(0)
}

// Close disconnects and releases the reference database.
func (s *Session) Close() error {
	s.Disconnect()
	return s.refs.Close()
}

// player adapts the session for parameter sweeps: every sweep tone sustains
// for its full duration and is released by envelope.
type player struct{ s *Session }

func (p player) PlaySynth(ctx context.Context, synthdef string, params model.Params, dur time.Duration) error {
	_, err := p.s.PlaySynth(ctx, synthdef, params, dur, true)
	return err
}
