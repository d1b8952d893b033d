package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/match"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sweep"
)

// PlaySine plays the built-in default synthdef as a sine-like test tone and
// schedules its envelope release after dur. Returns the node id.
func (s *Session) PlaySine(ctx context.Context, freq, amp float64, dur time.Duration) (int64, error) {
	if freq <= 0 {
		return 0, fmt.Errorf("frequency must be positive, got %g", freq)
	}
	if amp <= 0 || amp > 1 {
		return 0, fmt.Errorf("amplitude must be in (0, 1], got %g", amp)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", dur)
	}
	return s.PlaySynth(ctx, "default", model.Params{
		"freq": model.Float(freq),
		"amp":  model.Float(amp),
	}, dur, true)
}

// PlaySynth creates a synth from any loaded synthdef at the head of the
// default group. With dur > 0 the node is released after dur: by envelope
// (gate=0) when sustain is set, by hard free otherwise. With dur == 0 the
// node plays until freed explicitly.
func (s *Session) PlaySynth(ctx context.Context, synthdef string, params model.Params, dur time.Duration, sustain bool) (int64, error) {
	conn, err := s.transport()
	if err != nil {
		return 0, err
	}
	if synthdef == "" {
		return 0, fmt.Errorf("synthdef name is required")
	}
	if dur < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %s", dur)
	}

	nodeID := s.reqs.NextNodeID()
	args := []interface{}{synthdef, int32(nodeID), int32(0), int32(0)}

	// Deterministic parameter order keeps the wire format reproducible.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, params[k].OSCArg())
	}

	if !conn.Send("/s_new", args...) {
		return 0, fmt.Errorf("send s_new: transport failed")
	}
	s.log.Debug("synth started",
		zap.String("synthdef", synthdef),
		zap.Int64("node", nodeID),
		zap.Duration("dur", dur))

	if dur > 0 {
		s.scheduler().After(dur, func() {
			if sustain {
				conn.Send("/n_set", int32(nodeID), "gate", int32(0))
			} else {
				conn.Send("/n_free", int32(nodeID))
			}
		})
	}
	return nodeID, nil
}

// SetParam updates control parameters on a running node.
func (s *Session) SetParam(ctx context.Context, nodeID int64, params model.Params) error {
	conn, err := s.transport()
	if err != nil {
		return err
	}
	if nodeID <= 0 {
		return fmt.Errorf("node id must be positive, got %d", nodeID)
	}
	if len(params) == 0 {
		return fmt.Errorf("no parameters to set")
	}

	args := []interface{}{int32(nodeID)}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, params[k].OSCArg())
	}
	if !conn.Send("/n_set", args...) {
		return fmt.Errorf("send n_set: transport failed")
	}
	return nil
}

// FreeAll frees every node in the default group, the analyzer included.
func (s *Session) FreeAll(ctx context.Context) error {
	conn, err := s.transport()
	if err != nil {
		return err
	}
	if !conn.Send("/g_freeAll", int32(0)) {
		return fmt.Errorf("send g_freeAll: transport failed")
	}
	s.tel.ClearAnalyzerNode(0)
	return nil
}

// StartAnalyzer creates the analyzer synth at the tail of the default group
// so it hears everything, registers it, and clears stale telemetry so old
// sound cannot leak into new measurements. A running analyzer is reused.
func (s *Session) StartAnalyzer(ctx context.Context) (int64, error) {
	conn, err := s.transport()
	if err != nil {
		return 0, err
	}
	if id := s.tel.AnalyzerNode(); id != 0 {
		return id, nil
	}
	if s.Degraded() {
		return 0, fmt.Errorf("%w: analyzer synthdefs are loaded by sclang", ErrInterpUnavailable)
	}

	nodeID := s.reqs.NextNodeID()
	if !conn.Send("/s_new",
		"mcp_analyzer", int32(nodeID), int32(1), int32(0),
		"bus", int32(0),
		"replyRate", int32(s.cfg.AnalyzerRate)) {
		return 0, fmt.Errorf("send s_new: transport failed")
	}

	s.tel.SetAnalyzerNode(nodeID)
	s.tel.Reset()
	s.log.Info("analyzer started", zap.Int64("node", nodeID))
	return nodeID, nil
}

// StopAnalyzer frees the analyzer synth. Stopping an analyzer that is not
// running is not an error.
func (s *Session) StopAnalyzer(ctx context.Context) error {
	conn, err := s.transport()
	if err != nil {
		return err
	}
	id := s.tel.AnalyzerNode()
	if id == 0 {
		return nil
	}
	if !conn.Send("/n_free", int32(id)) {
		return fmt.Errorf("send n_free: transport failed")
	}
	s.tel.ClearAnalyzerNode(id)
	return nil
}

// AnalyzerRunning reports whether an analyzer node is registered.
func (s *Session) AnalyzerRunning() bool {
	return s.tel.AnalyzerNode() != 0
}

// Sweep plays a synthdef across a range of parameter values and measures
// the chosen metric at each step.
func (s *Session) Sweep(ctx context.Context, req sweep.Request) ([]sweep.Point, error) {
	if _, err := s.transport(); err != nil {
		return nil, err
	}
	return s.sweeper.Run(ctx, req)
}

// CaptureReference snapshots the current analysis under name.
func (s *Session) CaptureReference(ctx context.Context, name, description string) (bool, error) {
	return s.matcher.Capture(ctx, name, description)
}

// CompareReference scores the current sound against a stored reference.
func (s *Session) CompareReference(ctx context.Context, name string) (match.Comparison, error) {
	return s.matcher.Compare(ctx, name)
}

// ListReferences returns stored references, oldest capture first.
func (s *Session) ListReferences(ctx context.Context) ([]model.Reference, error) {
	return s.matcher.List(ctx)
}

// DeleteReference removes a stored reference.
func (s *Session) DeleteReference(ctx context.Context, name string) error {
	return s.matcher.Delete(ctx, name)
}
