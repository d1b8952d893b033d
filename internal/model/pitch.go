package model

import "math"

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// FreqToNote converts a frequency to its nearest note name, octave, and
// cents deviation. 440Hz maps to ("A", 4, 0).
func FreqToNote(freq float64) (note string, octave int, cents float64) {
	if freq <= 0 {
		return "?", 0, 0
	}
	midi := 12*math.Log2(freq/440.0) + 69
	rounded := math.Round(midi)
	cents = (midi - rounded) * 100
	idx := int(rounded) % 12
	if idx < 0 {
		idx += 12
	}
	return noteNames[idx], int(rounded)/12 - 1, cents
}

// AmpToDB converts linear amplitude to decibels. Zero or negative amplitude
// yields -Inf.
func AmpToDB(amp float64) float64 {
	if amp <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amp)
}
