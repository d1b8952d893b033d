package model

import "fmt"

// Metric names a measurable quantity extracted from an Analysis snapshot
// during a parameter sweep.
type Metric string

const (
	MetricPitch    Metric = "pitch"
	MetricCentroid Metric = "centroid"
	MetricLoudness Metric = "loudness"
	MetricFlatness Metric = "flatness"
	MetricRMS      Metric = "rms"
)

var metrics = map[Metric]bool{
	MetricPitch:    true,
	MetricCentroid: true,
	MetricLoudness: true,
	MetricFlatness: true,
	MetricRMS:      true,
}

func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !metrics[m] {
		return "", fmt.Errorf("unknown metric %q (use: pitch, centroid, loudness, flatness, rms)", s)
	}
	return m, nil
}
