package model

import "time"

// LogCategory tags entries captured from scsynth notifications.
type LogCategory string

const (
	LogFail LogCategory = "fail"
	LogDone LogCategory = "done"
	LogNode LogCategory = "node"
	LogInfo LogCategory = "info"
)

type LogEntry struct {
	Timestamp time.Time
	Category  LogCategory
	Message   string
}

// ServerStatus mirrors the fields of a /status.reply message.
type ServerStatus struct {
	Running      bool
	NumUGens     int64
	NumSynths    int64
	NumGroups    int64
	NumSynthDefs int64
	AvgCPU       float64
	PeakCPU      float64
	SampleRate   float64
}

// Analysis is one snapshot from the full analyzer synth.
type Analysis struct {
	Timestamp time.Time

	Freq       float64 // detected pitch in Hz, 0 when silent
	Confidence float64 // pitch confidence 0-1

	Centroid float64 // spectral centroid in Hz
	Flatness float64 // 0 = tonal, 1 = noise
	Rolloff  float64 // 90% energy rolloff frequency

	PeakL float64
	PeakR float64
	RMSL  float64
	RMSR  float64

	Loudness float64 // perceptual loudness in sones
}

type OnsetEvent struct {
	Timestamp time.Time
	Freq      float64
	Amplitude float64
}

// SpectrumBands is the fixed band count of the spectrum analyzer.
const SpectrumBands = 14

type Spectrum struct {
	Timestamp time.Time
	Bands     [SpectrumBands]float64
}

// Reference is a named telemetry snapshot used as a comparison target.
// Immutable once captured; re-capturing the same name replaces it.
type Reference struct {
	Name        string
	Description string
	CapturedAt  time.Time
	Analysis    Analysis
	Spectrum    *Spectrum
}
