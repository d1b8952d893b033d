// Package match scores how closely the currently playing sound matches a
// captured reference snapshot across pitch, brightness, loudness, and
// spectral character.
package match

import (
	"math"
	"time"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

// Penalty applied per unit of difference in each component score.
const (
	pitchPenaltyPerSemitone    = 10
	brightnessPenaltyPerOctave = 50
	loudnessPenaltyPerSone     = 5
	flatnessPenalty            = 200 // flatness spans 0..1
)

// Component weights before renormalization.
const (
	pitchWeight      = 0.3
	brightnessWeight = 0.3
	loudnessWeight   = 0.2
	flatnessWeight   = 0.2
)

// mismatchOctaves stands in for the octave distance when exactly one of the
// two sounds has a zero centroid.
const mismatchOctaves = 10.0

type ReferenceInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

type PitchComparison struct {
	CurrentFreq   float64 `json:"current_freq"`
	ReferenceFreq float64 `json:"reference_freq"`
	DiffSemitones float64 `json:"diff_semitones"`
	Score         float64 `json:"score"`
	Valid         bool    `json:"valid"`
}

type BrightnessComparison struct {
	CurrentCentroid   float64 `json:"current_centroid"`
	ReferenceCentroid float64 `json:"reference_centroid"`
	Ratio             float64 `json:"ratio,omitempty"`
	DiffOctaves       float64 `json:"diff_octaves"`
	Score             float64 `json:"score"`
	Valid             bool    `json:"valid"`
}

type LoudnessComparison struct {
	CurrentSones   float64 `json:"current_sones"`
	ReferenceSones float64 `json:"reference_sones"`
	DiffSones      float64 `json:"diff_sones"`
	Score          float64 `json:"score"`
}

type CharacterComparison struct {
	CurrentFlatness   float64 `json:"current_flatness"`
	ReferenceFlatness float64 `json:"reference_flatness"`
	Diff              float64 `json:"diff"`
	Score             float64 `json:"score"`
}

type AmplitudeComparison struct {
	CurrentDB   float64 `json:"current_db"`
	ReferenceDB float64 `json:"reference_db"`
	DiffDB      float64 `json:"diff_db"`
}

// Comparison is the full scoring breakdown of current sound vs a reference.
type Comparison struct {
	Reference  ReferenceInfo        `json:"reference"`
	Pitch      PitchComparison      `json:"pitch"`
	Brightness BrightnessComparison `json:"brightness"`
	Loudness   LoudnessComparison   `json:"loudness"`
	Character  CharacterComparison  `json:"character"`
	Amplitude  AmplitudeComparison  `json:"amplitude"`
	Overall    float64              `json:"overall_score"`
}

// Compare scores current against ref. Pitch and brightness are skipped (score
// 0, excluded from the weighted overall) when exactly one side is silent;
// when both sides are silent the component counts as a perfect match.
func Compare(current model.Analysis, ref model.Reference) Comparison {
	refA := ref.Analysis

	c := Comparison{
		Reference: ReferenceInfo{
			Name:        ref.Name,
			Description: ref.Description,
			CapturedAt:  ref.CapturedAt,
		},
	}

	c.Pitch = comparePitch(current.Freq, refA.Freq)
	c.Brightness = compareBrightness(current.Centroid, refA.Centroid)

	loudnessDiff := current.Loudness - refA.Loudness
	c.Loudness = LoudnessComparison{
		CurrentSones:   current.Loudness,
		ReferenceSones: refA.Loudness,
		DiffSones:      loudnessDiff,
		Score:          clampScore(100 - math.Abs(loudnessDiff)*loudnessPenaltyPerSone),
	}

	flatnessDiff := current.Flatness - refA.Flatness
	c.Character = CharacterComparison{
		CurrentFlatness:   current.Flatness,
		ReferenceFlatness: refA.Flatness,
		Diff:              flatnessDiff,
		Score:             clampScore(100 - math.Abs(flatnessDiff)*flatnessPenalty),
	}

	c.Amplitude = compareAmplitude(current.RMSL, refA.RMSL)

	totalWeight := loudnessWeight + flatnessWeight
	weighted := c.Loudness.Score*loudnessWeight + c.Character.Score*flatnessWeight
	if c.Pitch.Valid {
		totalWeight += pitchWeight
		weighted += c.Pitch.Score * pitchWeight
	}
	if c.Brightness.Valid {
		totalWeight += brightnessWeight
		weighted += c.Brightness.Score * brightnessWeight
	}
	c.Overall = weighted / totalWeight

	return c
}

func comparePitch(cur, ref float64) PitchComparison {
	p := PitchComparison{CurrentFreq: cur, ReferenceFreq: ref}
	if cur > 0 && ref > 0 {
		p.DiffSemitones = 12 * math.Log2(cur/ref)
		p.Valid = true
		p.Score = clampScore(100 - math.Abs(p.DiffSemitones)*pitchPenaltyPerSemitone)
	}
	return p
}

func compareBrightness(cur, ref float64) BrightnessComparison {
	b := BrightnessComparison{CurrentCentroid: cur, ReferenceCentroid: ref}
	switch {
	case cur > 0 && ref > 0:
		b.Ratio = cur / ref
		b.DiffOctaves = math.Abs(math.Log2(b.Ratio))
		b.Valid = true
		b.Score = clampScore(100 - b.DiffOctaves*brightnessPenaltyPerOctave)
	case cur == 0 && ref == 0:
		// Both silent or registerless counts as a match.
		b.Ratio = 1
		b.Valid = true
		b.Score = 100
	default:
		// One side has no centroid; leave Ratio zero, it has no meaning
		// here and infinities are not JSON-encodable.
		b.DiffOctaves = mismatchOctaves
	}
	return b
}

func compareAmplitude(cur, ref float64) AmplitudeComparison {
	// Floored so silence stays JSON-encodable instead of -Inf.
	a := AmplitudeComparison{
		CurrentDB:   math.Max(model.AmpToDB(cur), -60),
		ReferenceDB: math.Max(model.AmpToDB(ref), -60),
	}
	switch {
	case cur > 0 && ref > 0:
		a.DiffDB = a.CurrentDB - a.ReferenceDB
	case cur == 0 && ref == 0:
		a.DiffDB = 0
	case cur == 0:
		a.DiffDB = -60
	default:
		a.DiffDB = 60
	}
	return a
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	return s
}
