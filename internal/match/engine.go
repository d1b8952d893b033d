package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/refstore"
	"github.com/viktorkelemen/sc-repl-mcp/internal/telemetry"
)

// Engine captures reference snapshots from live telemetry and compares the
// current sound against stored ones.
type Engine struct {
	telemetry *telemetry.Store
	refs      *refstore.Store
	log       *zap.Logger
	now       func() time.Time
}

func NewEngine(t *telemetry.Store, refs *refstore.Store, log *zap.Logger) *Engine {
	return &Engine{telemetry: t, refs: refs, log: log, now: time.Now}
}

// Capture snapshots the latest analysis (and spectrum, when one is
// available) under name. It fails when the analyzer is not running or the
// analysis data is stale or missing. The returned flag reports whether an
// existing reference was overwritten.
func (e *Engine) Capture(ctx context.Context, name, description string) (bool, error) {
	if name == "" {
		return false, errors.New("reference name is required")
	}
	if e.telemetry.AnalyzerNode() == 0 {
		return false, telemetry.ErrAnalyzerNotRunning
	}
	analysis, err := e.telemetry.LatestAnalysis()
	if err != nil {
		return false, fmt.Errorf("capture %q: %w", name, err)
	}

	ref := model.Reference{
		Name:        name,
		Description: description,
		CapturedAt:  e.now(),
		Analysis:    analysis,
	}
	if spectrum, err := e.telemetry.LatestSpectrum(); err == nil {
		ref.Spectrum = &spectrum
	}

	updated, err := e.refs.Put(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("store reference %q: %w", name, err)
	}
	e.log.Info("reference captured",
		zap.String("name", name),
		zap.Bool("updated", updated),
		zap.Float64("freq", analysis.Freq))
	return updated, nil
}

// Compare scores the current sound against the named stored reference.
func (e *Engine) Compare(ctx context.Context, name string) (Comparison, error) {
	ref, err := e.refs.Get(ctx, name)
	if err != nil {
		return Comparison{}, err
	}
	if e.telemetry.AnalyzerNode() == 0 {
		return Comparison{}, telemetry.ErrAnalyzerNotRunning
	}
	current, err := e.telemetry.LatestAnalysis()
	if err != nil {
		return Comparison{}, fmt.Errorf("compare to %q: %w", name, err)
	}
	return Compare(current, ref), nil
}

func (e *Engine) List(ctx context.Context) ([]model.Reference, error) {
	return e.refs.List(ctx)
}

func (e *Engine) Delete(ctx context.Context, name string) error {
	return e.refs.Delete(ctx, name)
}
