package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/correlate"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sclang"
)

// Eval runs code in the persistent interpreter and returns its output. The
// class library is already compiled there, so this is far cheaper than a
// fresh sclang per request. Code travels by temp file because OSC datagrams
// cap out around 8KB. A zero timeout uses the default; anything above the
// maximum is capped.
func (s *Session) Eval(ctx context.Context, code string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("no code provided")
	}
	conn, err := s.transport()
	if err != nil {
		return "", err
	}
	if !s.interp.Running() {
		return "", ErrInterpUnavailable
	}

	if timeout <= 0 {
		timeout = s.cfg.EvalTimeout
	}
	if timeout > s.cfg.MaxEvalTimeout {
		timeout = s.cfg.MaxEvalTimeout
	}

	f, err := os.CreateTemp("", "screpl-code-*.scd")
	if err != nil {
		return "", fmt.Errorf("write code file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return "", fmt.Errorf("write code file: %w", err)
	}
	f.Close()

	id, ch := s.reqs.Issue()
	if !conn.SendInterp("/mcp/eval", int32(id), f.Name()) {
		s.reqs.Cancel(id)
		return "", fmt.Errorf("send code to sclang: transport failed")
	}

	res, err := s.reqs.Await(id, ch, timeout)
	if err != nil {
		if errors.Is(err, correlate.ErrTimeout) {
			return "", fmt.Errorf("sclang execution timed out after %s", timeout)
		}
		return "", err
	}
	if !res.OK {
		return res.Output, fmt.Errorf("sclang error: %s", firstLine(res.Output))
	}
	s.log.Debug("eval complete", zap.Int64("request", id), zap.Int("output_len", len(res.Output)))
	return res.Output, nil
}

// EvalReady reports whether Eval can succeed right now: connected transport
// plus a live interpreter.
func (s *Session) EvalReady() bool {
	if _, err := s.transport(); err != nil {
		return false
	}
	return s.interp.Running()
}

// ValidateSyntax checks code against the real SuperCollider parser without
// executing it. Runs a one-shot sclang, so it works even when the session
// is degraded.
func (s *Session) ValidateSyntax(ctx context.Context, code string) (bool, []sclang.SyntaxError, error) {
	return sclang.ValidateSyntax(ctx, s.cfg, code)
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
