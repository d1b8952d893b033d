// Package telemetry caches the four analysis streams pushed by scsynth:
// full analysis frames, lightweight meter frames, discrete onset events,
// and spectrum snapshots. Each stream has its own lock; readers apply a
// wall-clock staleness check so callers can tell "stopped responding" apart
// from "never started".
package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/transport"
)

// ErrNoData reports that a stream has never produced a snapshot.
var ErrNoData = errors.New("no telemetry received")

// ErrAnalyzerNotRunning reports reads that require the full analyzer synth.
var ErrAnalyzerNotRunning = errors.New("analyzer not running")

// StaleError reports a snapshot older than the staleness threshold —
// telemetry was flowing once but has stopped.
type StaleError struct {
	Stream string
	Age    time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s data is stale (%.1fs old)", e.Stream, e.Age.Seconds())
}

type Store struct {
	staleAfter time.Duration
	historyCap int
	onsetCap   int
	clock      func() time.Time
	log        *zap.Logger

	analysisMu sync.Mutex
	latest     *model.Analysis
	history    []model.Analysis

	analyzerMu   sync.Mutex
	analyzerNode int64 // 0 = no analyzer registered

	onsetMu sync.Mutex
	onsets  []model.OnsetEvent

	spectrumMu sync.Mutex
	spectrum   *model.Spectrum
}

func New(cfg config.Config, log *zap.Logger) *Store {
	return NewWithClock(cfg, log, time.Now)
}

func NewWithClock(cfg config.Config, log *zap.Logger, clock func() time.Time) *Store {
	return &Store{
		staleAfter: cfg.StaleAfter,
		historyCap: cfg.AnalysisHistory,
		onsetCap:   cfg.OnsetCapacity,
		clock:      clock,
		log:        log,
	}
}

// SetAnalyzerNode registers the node id of the running analyzer synth.
func (s *Store) SetAnalyzerNode(id int64) {
	s.analyzerMu.Lock()
	s.analyzerNode = id
	s.analyzerMu.Unlock()
}

// ClearAnalyzerNode forgets the analyzer registration if it matches id, or
// unconditionally when id is 0.
func (s *Store) ClearAnalyzerNode(id int64) {
	s.analyzerMu.Lock()
	if id == 0 || s.analyzerNode == id {
		s.analyzerNode = 0
	}
	s.analyzerMu.Unlock()
}

// AnalyzerNode returns the registered analyzer node id, 0 when none.
func (s *Store) AnalyzerNode() int64 {
	s.analyzerMu.Lock()
	defer s.analyzerMu.Unlock()
	return s.analyzerNode
}

// Reset drops all cached telemetry. Called when the analyzer restarts so
// old sound does not leak into new measurements.
func (s *Store) Reset() {
	s.analysisMu.Lock()
	s.latest = nil
	s.history = nil
	s.analysisMu.Unlock()

	s.onsetMu.Lock()
	s.onsets = nil
	s.onsetMu.Unlock()

	s.spectrumMu.Lock()
	s.spectrum = nil
	s.spectrumMu.Unlock()
}

// HandleAnalysis parses a /mcp/analysis frame:
//
//	[nodeID, replyID, freq, confidence, centroid, flatness, rolloff,
//	 peakL, peakR, rmsL, rmsR, loudness?]
//
// The loudness field was added later; older senders omit it and it
// defaults to 0. Malformed frames are dropped, never propagated.
func (s *Store) HandleAnalysis(args []interface{}) {
	if len(args) < 11 {
		s.log.Debug("analysis frame too short", zap.Int("fields", len(args)))
		return
	}
	fields, ok := floats(args[2:11])
	if !ok {
		s.log.Debug("analysis frame not numeric")
		return
	}
	data := model.Analysis{
		Timestamp:  s.clock(),
		Freq:       fields[0],
		Confidence: fields[1],
		Centroid:   fields[2],
		Flatness:   fields[3],
		Rolloff:    fields[4],
		PeakL:      fields[5],
		PeakR:      fields[6],
		RMSL:       fields[7],
		RMSR:       fields[8],
	}
	if len(args) >= 12 {
		if loudness, ok := transport.ToFloat64(args[11]); ok {
			data.Loudness = loudness
		}
	}
	s.storeAnalysis(data)
}

// HandleMeter parses a /mcp/meter frame: [nodeID, replyID, peakL, peakR,
// rmsL, rmsR]. Meter frames carry no pitch or timbre, so they must never
// clobber data from a running full analyzer; they only fill in while no
// analyzer node is registered.
func (s *Store) HandleMeter(args []interface{}) {
	if s.AnalyzerNode() != 0 {
		return
	}
	if len(args) < 6 {
		s.log.Debug("meter frame too short", zap.Int("fields", len(args)))
		return
	}
	fields, ok := floats(args[2:6])
	if !ok {
		s.log.Debug("meter frame not numeric")
		return
	}
	s.storeAnalysis(model.Analysis{
		Timestamp: s.clock(),
		PeakL:     fields[0],
		PeakR:     fields[1],
		RMSL:      fields[2],
		RMSR:      fields[3],
	})
}

// HandleOnset parses a /mcp/onset event: [nodeID, replyID, freq, amplitude].
func (s *Store) HandleOnset(args []interface{}) {
	if len(args) < 4 {
		s.log.Debug("onset frame too short", zap.Int("fields", len(args)))
		return
	}
	freq, okF := transport.ToFloat64(args[2])
	amp, okA := transport.ToFloat64(args[3])
	if !okF || !okA {
		s.log.Debug("onset frame not numeric")
		return
	}
	s.onsetMu.Lock()
	s.onsets = append(s.onsets, model.OnsetEvent{
		Timestamp: s.clock(),
		Freq:      freq,
		Amplitude: amp,
	})
	if len(s.onsets) > s.onsetCap {
		overflow := len(s.onsets) - s.onsetCap
		s.onsets = s.onsets[:copy(s.onsets, s.onsets[overflow:])]
	}
	s.onsetMu.Unlock()
}

// HandleSpectrum parses a /mcp/spectrum frame: [nodeID, replyID, band0 ..
// band13]. The arity is exact; anything else is rejected.
func (s *Store) HandleSpectrum(args []interface{}) {
	if len(args) != model.SpectrumBands+2 {
		s.log.Debug("spectrum frame wrong arity", zap.Int("fields", len(args)))
		return
	}
	bands, ok := floats(args[2:])
	if !ok {
		s.log.Debug("spectrum frame not numeric")
		return
	}
	data := model.Spectrum{Timestamp: s.clock()}
	copy(data.Bands[:], bands)
	s.spectrumMu.Lock()
	s.spectrum = &data
	s.spectrumMu.Unlock()
}

func (s *Store) storeAnalysis(data model.Analysis) {
	s.analysisMu.Lock()
	s.latest = &data
	s.history = append(s.history, data)
	if len(s.history) > s.historyCap {
		overflow := len(s.history) - s.historyCap
		s.history = s.history[:copy(s.history, s.history[overflow:])]
	}
	s.analysisMu.Unlock()
}

// LatestAnalysis returns the freshest analysis snapshot, or ErrNoData /
// StaleError when nothing trustworthy is available.
func (s *Store) LatestAnalysis() (model.Analysis, error) {
	s.analysisMu.Lock()
	latest := s.latest
	s.analysisMu.Unlock()
	if latest == nil {
		return model.Analysis{}, ErrNoData
	}
	if age := s.clock().Sub(latest.Timestamp); age > s.staleAfter {
		return model.Analysis{}, &StaleError{Stream: "analysis", Age: age}
	}
	return *latest, nil
}

// PeekAnalysis returns the latest snapshot without the staleness check, for
// callers doing their own watermark comparison.
func (s *Store) PeekAnalysis() (model.Analysis, bool) {
	s.analysisMu.Lock()
	defer s.analysisMu.Unlock()
	if s.latest == nil {
		return model.Analysis{}, false
	}
	return *s.latest, true
}

// History returns up to n most recent analysis snapshots, oldest first.
func (s *Store) History(n int) []model.Analysis {
	s.analysisMu.Lock()
	defer s.analysisMu.Unlock()
	start := 0
	if n > 0 && len(s.history) > n {
		start = len(s.history) - n
	}
	out := make([]model.Analysis, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// Onsets returns events newer than since (zero time = all), oldest first.
// With clear set, returned events are drained from the queue so polling
// callers never see duplicates.
func (s *Store) Onsets(since time.Time, clear bool) []model.OnsetEvent {
	s.onsetMu.Lock()
	defer s.onsetMu.Unlock()

	var out []model.OnsetEvent
	var kept []model.OnsetEvent
	for _, e := range s.onsets {
		if since.IsZero() || e.Timestamp.After(since) {
			out = append(out, e)
		} else if clear {
			kept = append(kept, e)
		}
	}
	if clear {
		s.onsets = kept
	}
	return out
}

// LatestSpectrum returns the current spectrum snapshot with the same
// no-data/stale distinction as LatestAnalysis.
func (s *Store) LatestSpectrum() (model.Spectrum, error) {
	s.spectrumMu.Lock()
	spectrum := s.spectrum
	s.spectrumMu.Unlock()
	if spectrum == nil {
		return model.Spectrum{}, ErrNoData
	}
	if age := s.clock().Sub(spectrum.Timestamp); age > s.staleAfter {
		return model.Spectrum{}, &StaleError{Stream: "spectrum", Age: age}
	}
	return *spectrum, nil
}

func floats(args []interface{}) ([]float64, bool) {
	out := make([]float64, len(args))
	for i, arg := range args {
		f, ok := transport.ToFloat64(arg)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
