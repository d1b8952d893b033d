package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

func analysisAt(freq, centroid float64) model.Analysis {
	return model.Analysis{
		Timestamp: time.Unix(1_700_000_000, 0),
		Freq:      freq,
		Centroid:  centroid,
		Flatness:  0.1,
		RMSL:      0.3,
		RMSR:      0.3,
		Loudness:  10,
	}
}

func reference(a model.Analysis) model.Reference {
	return model.Reference{
		Name:       "ref",
		CapturedAt: a.Timestamp,
		Analysis:   a,
	}
}

func TestCompareIdenticalScoresPerfect(t *testing.T) {
	a := analysisAt(440, 880)
	c := Compare(a, reference(a))

	require.Greater(t, c.Overall, 95.0)
	require.InDelta(t, 100, c.Pitch.Score, 0.01)
	require.InDelta(t, 100, c.Brightness.Score, 0.01)
	require.InDelta(t, 100, c.Loudness.Score, 0.01)
	require.InDelta(t, 100, c.Character.Score, 0.01)
	require.True(t, c.Pitch.Valid)
	require.True(t, c.Brightness.Valid)
}

func TestCompareOctaveUp(t *testing.T) {
	c := Compare(analysisAt(880, 880), reference(analysisAt(440, 880)))
	require.InDelta(t, 12, c.Pitch.DiffSemitones, 0.01)
	require.Zero(t, c.Pitch.Score, "12 semitones off should clamp to 0")
}

func TestCompareBrightnessSymmetric(t *testing.T) {
	// Doubling and halving the centroid are equally wrong on a log scale.
	ref := reference(analysisAt(440, 1000))
	brighter := Compare(analysisAt(440, 2000), ref)
	darker := Compare(analysisAt(440, 500), ref)
	require.InDelta(t, brighter.Brightness.Score, darker.Brightness.Score, 1.0)
	require.InDelta(t, 1, brighter.Brightness.DiffOctaves, 0.01)
}

func TestCompareBothSilentRenormalizes(t *testing.T) {
	// Pitch is unknowable for two silent sounds and must not drag the
	// overall score down when everything measurable matches.
	a := analysisAt(0, 880)
	c := Compare(a, reference(a))
	require.False(t, c.Pitch.Valid)
	require.Zero(t, c.Pitch.Score)
	require.Greater(t, c.Overall, 95.0)
}

func TestCompareOneSilentCentroidInvalid(t *testing.T) {
	c := Compare(analysisAt(440, 0), reference(analysisAt(440, 880)))
	require.False(t, c.Brightness.Valid)
	require.Zero(t, c.Brightness.Score)
	require.Equal(t, mismatchOctaves, c.Brightness.DiffOctaves)
}

func TestCompareBothCentroidsZeroMatch(t *testing.T) {
	c := Compare(analysisAt(440, 0), reference(analysisAt(440, 0)))
	require.True(t, c.Brightness.Valid)
	require.Equal(t, 100.0, c.Brightness.Score)
}

func TestCompareLoudnessAndFlatnessPenalties(t *testing.T) {
	cur := analysisAt(440, 880)
	cur.Loudness = 14 // 4 sones apart
	cur.Flatness = 0.3
	c := Compare(cur, reference(analysisAt(440, 880)))
	require.InDelta(t, 80, c.Loudness.Score, 0.01)
	require.InDelta(t, 60, c.Character.Score, 0.01)
}

func TestCompareAmplitudeSilentSides(t *testing.T) {
	cur := analysisAt(440, 880)
	cur.RMSL = 0
	c := Compare(cur, reference(analysisAt(440, 880)))
	require.Equal(t, -60.0, c.Amplitude.DiffDB)

	ref := analysisAt(440, 880)
	ref.RMSL = 0
	c = Compare(analysisAt(440, 880), reference(ref))
	require.Equal(t, 60.0, c.Amplitude.DiffDB)
}
