package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/telemetry"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakePlayer feeds a telemetry frame per trigger, simulating the analyzer
// hearing the synth. A nil frame simulates a synth that produces no data.
type fakePlayer struct {
	tel    *telemetry.Store
	frames map[float64][]interface{}
	failOn map[float64]bool
	played []float64
}

func (p *fakePlayer) PlaySynth(_ context.Context, _ string, params model.Params, _ time.Duration) error {
	var value float64
	for k, v := range params {
		if k == "freq" || k == "cutoff" {
			fmt.Sscanf(v.String(), "%g", &value)
		}
	}
	p.played = append(p.played, value)
	if p.failOn[value] {
		return errors.New("synthdef not found")
	}
	if frame, ok := p.frames[value]; ok {
		p.tel.HandleAnalysis(frame)
	}
	return nil
}

func frame(freq, rmsL, rmsR float64) []interface{} {
	return []interface{}{
		int32(2000001), int32(1001),
		float32(freq), float32(0.95),
		float32(880.0), float32(0.1), float32(4000.0),
		float32(0.5), float32(0.5), float32(rmsL), float32(rmsR),
		float32(10.0),
	}
}

func newTestRunner(t *testing.T) (*Runner, *fakePlayer, *telemetry.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tel := telemetry.NewWithClock(config.DefaultConfig(), zap.NewNop(), clock.Now)
	player := &fakePlayer{tel: tel, frames: map[float64][]interface{}{}, failOn: map[float64]bool{}}
	r := NewRunner(player, tel, 100*time.Millisecond, zap.NewNop())
	r.now = clock.Now
	r.sleep = clock.Advance
	return r, player, tel, clock
}

func TestRunMeasuresPitch(t *testing.T) {
	r, player, tel, _ := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	player.frames[440] = frame(440, 0.3, 0.3)
	player.frames[880] = frame(880, 0.3, 0.3)

	points, err := r.Run(context.Background(), Request{
		Synthdef: "default",
		Param:    "freq",
		Values:   []float64{440, 880},
		Metric:   model.MetricPitch,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	for i, want := range []float64{440, 880} {
		if points[i].Metric == nil || *points[i].Metric != want {
			t.Fatalf("point %d = %+v, want metric %v", i, points[i], want)
		}
	}
}

func TestRunRMSQuadraticMean(t *testing.T) {
	r, player, tel, _ := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	player.frames[1] = frame(440, 0.3, 0.3)
	player.frames[2] = frame(440, 0.3, 0.4)

	points, err := r.Run(context.Background(), Request{
		Synthdef: "default",
		Param:    "cutoff",
		Values:   []float64{1, 2},
		Metric:   model.MetricRMS,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := *points[0].Metric; math.Abs(got-0.3) > 1e-5 {
		t.Fatalf("equal channels rms = %v, want 0.3", got)
	}
	want := math.Sqrt((0.3*0.3 + 0.4*0.4) / 2)
	if got := *points[1].Metric; math.Abs(got-want) > 1e-4 {
		t.Fatalf("mixed channels rms = %v, want %v", got, want)
	}
}

func TestRunContinuesPastFailedStep(t *testing.T) {
	r, player, tel, _ := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	player.frames[440] = frame(440, 0.3, 0.3)
	player.failOn[880] = true

	points, err := r.Run(context.Background(), Request{
		Synthdef: "default",
		Param:    "freq",
		Values:   []float64{880, 440},
		Metric:   model.MetricPitch,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if points[0].Metric != nil || points[0].Err == "" {
		t.Fatalf("failed step = %+v, want nil metric with error", points[0])
	}
	if points[1].Metric == nil || *points[1].Metric != 440 {
		t.Fatalf("good step after failure = %+v", points[1])
	}
}

func TestRunRejectsPreTriggerData(t *testing.T) {
	r, _, tel, clock := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	// Frame arrives before the sweep starts; nothing new during the step.
	tel.HandleAnalysis(frame(330, 0.3, 0.3))
	clock.Advance(10 * time.Millisecond)

	points, err := r.Run(context.Background(), Request{
		Synthdef: "default",
		Param:    "freq",
		Values:   []float64{440},
		Metric:   model.MetricPitch,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if points[0].Metric != nil || points[0].Err != "no fresh data received" {
		t.Fatalf("point = %+v, want stale rejection", points[0])
	}
}

func TestRunNoDataAtAll(t *testing.T) {
	r, _, tel, _ := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	points, err := r.Run(context.Background(), Request{
		Synthdef: "default",
		Param:    "freq",
		Values:   []float64{440},
		Metric:   model.MetricPitch,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if points[0].Err != "no analysis data" {
		t.Fatalf("point = %+v", points[0])
	}
}

func TestRunValidation(t *testing.T) {
	r, _, _, _ := newTestRunner(t)

	if _, err := r.Run(context.Background(), Request{Metric: model.MetricPitch}); err == nil {
		t.Fatal("expected error for empty values")
	}
	if _, err := r.Run(context.Background(), Request{
		Values: []float64{1}, Metric: "sparkle",
	}); err == nil {
		t.Fatal("expected error for unknown metric")
	}
	if _, err := r.Run(context.Background(), Request{
		Values: []float64{1}, Metric: model.MetricPitch,
		Dur: 200 * time.Millisecond, Settle: 300 * time.Millisecond,
	}); err == nil {
		t.Fatal("expected error for settle >= dur")
	}
	if _, err := r.Run(context.Background(), Request{
		Values: []float64{1}, Metric: model.MetricPitch,
	}); !errors.Is(err, telemetry.ErrAnalyzerNotRunning) {
		t.Fatalf("expected ErrAnalyzerNotRunning, got %v", err)
	}
}

func TestRunDoesNotMutateBaseParams(t *testing.T) {
	r, player, tel, _ := newTestRunner(t)
	tel.SetAnalyzerNode(2000001)
	player.frames[440] = frame(440, 0.3, 0.3)

	base := model.Params{"amp": model.Float(0.5)}
	if _, err := r.Run(context.Background(), Request{
		Synthdef:   "default",
		Param:      "freq",
		Values:     []float64{440},
		Metric:     model.MetricPitch,
		BaseParams: base,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, leaked := base["freq"]; leaked {
		t.Fatal("sweep value leaked into caller's base params")
	}
}
