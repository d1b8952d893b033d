package session

import (
	"fmt"
	"math"
	"time"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/telemetry"
)

// silenceFloor is the RMS level below which a channel counts as silent.
const silenceFloor = 0.001

// spectrumDBFloor clamps band levels; anything quieter reads as -60dB.
const spectrumDBFloor = -60.0

// AnalysisReport is the latest analyzer snapshot in presentation form.
type AnalysisReport struct {
	Pitch struct {
		Freq       float64 `json:"freq"`
		Note       string  `json:"note"`
		Cents      float64 `json:"cents"`
		Confidence float64 `json:"confidence"`
	} `json:"pitch"`
	Timbre struct {
		Centroid float64 `json:"centroid"`
		Flatness float64 `json:"flatness"`
		Rolloff  float64 `json:"rolloff"`
	} `json:"timbre"`
	Amplitude struct {
		PeakL float64 `json:"peak_l"`
		PeakR float64 `json:"peak_r"`
		RMSL  float64 `json:"rms_l"`
		RMSR  float64 `json:"rms_r"`
		DBL   float64 `json:"db_l"`
		DBR   float64 `json:"db_r"`
	} `json:"amplitude"`
	Loudness struct {
		Sones float64 `json:"sones"`
	} `json:"loudness"`
	IsSilent   bool `json:"is_silent"`
	IsClipping bool `json:"is_clipping"`
}

// BuildAnalysisReport converts a raw snapshot into the report form.
func BuildAnalysisReport(a model.Analysis) AnalysisReport {
	var r AnalysisReport
	note, octave, cents := model.FreqToNote(a.Freq)
	r.Pitch.Freq = a.Freq
	r.Pitch.Note = fmt.Sprintf("%s%d", note, octave)
	r.Pitch.Cents = cents
	r.Pitch.Confidence = a.Confidence
	r.Timbre.Centroid = a.Centroid
	r.Timbre.Flatness = a.Flatness
	r.Timbre.Rolloff = a.Rolloff
	r.Amplitude.PeakL = a.PeakL
	r.Amplitude.PeakR = a.PeakR
	r.Amplitude.RMSL = a.RMSL
	r.Amplitude.RMSR = a.RMSR
	// Floored so silence stays JSON-encodable instead of -Inf.
	r.Amplitude.DBL = math.Max(model.AmpToDB(a.RMSL), spectrumDBFloor)
	r.Amplitude.DBR = math.Max(model.AmpToDB(a.RMSR), spectrumDBFloor)
	r.Loudness.Sones = a.Loudness
	r.IsSilent = a.RMSL < silenceFloor && a.RMSR < silenceFloor
	r.IsClipping = a.PeakL > 1.0 || a.PeakR > 1.0
	return r
}

// Analysis returns the latest analyzer snapshot. It fails when the analyzer
// is not running, has never reported, or has gone stale.
func (s *Session) Analysis() (AnalysisReport, error) {
	if s.tel.AnalyzerNode() == 0 {
		return AnalysisReport{}, telemetry.ErrAnalyzerNotRunning
	}
	data, err := s.tel.LatestAnalysis()
	if err != nil {
		return AnalysisReport{}, err
	}
	return BuildAnalysisReport(data), nil
}

// AnalysisHistory returns up to n recent snapshots, oldest first.
func (s *Session) AnalysisHistory(n int) []model.Analysis {
	return s.tel.History(n)
}

// SpectrumBand is one labeled band of the spectrum report.
type SpectrumBand struct {
	Freq  float64 `json:"freq"`
	Power float64 `json:"power"`
	DB    float64 `json:"db"`
}

// SpectrumReport is the 14-band spectrum in presentation form.
type SpectrumReport struct {
	Bands []SpectrumBand `json:"bands"`
}

// BuildSpectrumReport labels each band with its center frequency and a
// dB level floored at -60.
func BuildSpectrumReport(sp model.Spectrum) SpectrumReport {
	report := SpectrumReport{Bands: make([]SpectrumBand, model.SpectrumBands)}
	for i, power := range sp.Bands {
		db := spectrumDBFloor
		if power > 0 {
			db = math.Max(model.AmpToDB(power), spectrumDBFloor)
		}
		report.Bands[i] = SpectrumBand{
			Freq:  config.SpectrumBandFrequencies[i],
			Power: power,
			DB:    db,
		}
	}
	return report
}

// Spectrum returns the latest spectrum snapshot, with the same analyzer and
// staleness requirements as Analysis.
func (s *Session) Spectrum() (SpectrumReport, error) {
	if s.tel.AnalyzerNode() == 0 {
		return SpectrumReport{}, telemetry.ErrAnalyzerNotRunning
	}
	data, err := s.tel.LatestSpectrum()
	if err != nil {
		return SpectrumReport{}, err
	}
	return BuildSpectrumReport(data), nil
}

// Onsets returns onset events newer than since, oldest first. With clear
// set the returned events are dropped from the buffer.
func (s *Session) Onsets(since time.Time, clear bool) []model.OnsetEvent {
	return s.tel.Onsets(since, clear)
}

// Logs returns up to limit notification log entries, optionally filtered by
// category, oldest first.
func (s *Session) Logs(limit int, category model.LogCategory) []model.LogEntry {
	return s.logs.Recent(limit, category)
}

// ClearLogs empties the notification log.
func (s *Session) ClearLogs() {
	s.logs.Clear()
}
