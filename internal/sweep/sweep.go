// Package sweep plays a synthdef repeatedly across a range of parameter
// values and measures how a chosen metric responds.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/telemetry"
)

const (
	DefaultDur    = 300 * time.Millisecond
	DefaultSettle = 150 * time.Millisecond
)

// Player triggers a short synth playback. Implemented by the session.
type Player interface {
	PlaySynth(ctx context.Context, synthdef string, params model.Params, dur time.Duration) error
}

// Request describes one parameter sweep.
type Request struct {
	Synthdef   string
	Param      string
	Values     []float64
	Metric     model.Metric
	BaseParams model.Params
	Dur        time.Duration
	Settle     time.Duration
}

// Point is one measured sweep step. Metric is nil when the measurement
// failed, with Err naming the cause.
type Point struct {
	Value  float64  `json:"value"`
	Metric *float64 `json:"metric"`
	Err    string   `json:"error,omitempty"`
}

// Runner executes sweeps against live telemetry. The clock and sleep hooks
// are injectable for tests.
type Runner struct {
	player    Player
	telemetry *telemetry.Store
	log       *zap.Logger
	guard     time.Duration
	now       func() time.Time
	sleep     func(time.Duration)
}

func NewRunner(p Player, t *telemetry.Store, guard time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		player:    p,
		telemetry: t,
		log:       log,
		guard:     guard,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Run plays every value in req and measures the requested metric after the
// settle delay. A failed step records an error on its point and the sweep
// moves on; only invalid requests abort the whole run.
func (r *Runner) Run(ctx context.Context, req Request) ([]Point, error) {
	if req.Dur == 0 {
		req.Dur = DefaultDur
	}
	if req.Settle == 0 {
		req.Settle = DefaultSettle
	}
	if len(req.Values) == 0 {
		return nil, errors.New("no values provided to test")
	}
	if _, err := model.ParseMetric(string(req.Metric)); err != nil {
		return nil, err
	}
	if req.Settle >= req.Dur {
		return nil, fmt.Errorf("settle time (%v) must be less than dur (%v)", req.Settle, req.Dur)
	}
	if r.telemetry.AnalyzerNode() == 0 {
		return nil, telemetry.ErrAnalyzerNotRunning
	}

	points := make([]Point, 0, len(req.Values))
	for _, value := range req.Values {
		if err := ctx.Err(); err != nil {
			return points, err
		}

		params := req.BaseParams.Clone()
		params[req.Param] = model.Float(value)

		// Any analysis frame older than this cannot belong to the tone
		// we are about to trigger.
		watermark := r.now()

		if err := r.player.PlaySynth(ctx, req.Synthdef, params, req.Dur); err != nil {
			points = append(points, Point{Value: value, Err: fmt.Sprintf("synth failed: %v", err)})
			continue
		}

		r.sleep(req.Settle)

		data, ok := r.telemetry.PeekAnalysis()
		switch {
		case !ok:
			points = append(points, Point{Value: value, Err: "no analysis data"})
		case data.Timestamp.Before(watermark):
			points = append(points, Point{Value: value, Err: "no fresh data received"})
		default:
			measured := extract(req.Metric, data)
			points = append(points, Point{Value: value, Metric: &measured})
		}

		// Let the tone finish before the next trigger so tails do not
		// bleed into the following measurement.
		if remaining := req.Dur - req.Settle; remaining > 0 {
			r.sleep(remaining + r.guard)
		}
	}

	r.log.Info("sweep complete",
		zap.String("synthdef", req.Synthdef),
		zap.String("param", req.Param),
		zap.Int("points", len(points)))
	return points, nil
}

func extract(metric model.Metric, data model.Analysis) float64 {
	switch metric {
	case model.MetricPitch:
		return data.Freq
	case model.MetricCentroid:
		return data.Centroid
	case model.MetricLoudness:
		return data.Loudness
	case model.MetricFlatness:
		return data.Flatness
	case model.MetricRMS:
		return math.Sqrt((data.RMSL*data.RMSL + data.RMSR*data.RMSR) / 2)
	default:
		return 0
	}
}
