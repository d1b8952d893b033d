package session

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

func TestBuildAnalysisReport(t *testing.T) {
	r := BuildAnalysisReport(model.Analysis{
		Timestamp:  time.Now(),
		Freq:       440,
		Confidence: 0.95,
		Centroid:   880,
		Flatness:   0.1,
		Rolloff:    4000,
		PeakL:      0.5,
		PeakR:      0.5,
		RMSL:       0.3,
		RMSR:       0.3,
		Loudness:   10,
	})
	if r.Pitch.Note != "A4" {
		t.Fatalf("note = %q, want A4", r.Pitch.Note)
	}
	if math.Abs(r.Amplitude.DBL-(-10.46)) > 0.01 {
		t.Fatalf("db_l = %v", r.Amplitude.DBL)
	}
	if r.IsSilent || r.IsClipping {
		t.Fatalf("flags wrong: silent=%v clipping=%v", r.IsSilent, r.IsClipping)
	}
}

func TestBuildAnalysisReportSilenceAndClipping(t *testing.T) {
	silent := BuildAnalysisReport(model.Analysis{RMSL: 0.0005, RMSR: 0.0001})
	if !silent.IsSilent {
		t.Fatal("sub-floor rms should read as silent")
	}
	if silent.Amplitude.DBL != -60 {
		t.Fatalf("db for near-silence = %v, want -60 floor", silent.Amplitude.DBL)
	}

	hot := BuildAnalysisReport(model.Analysis{PeakL: 1.2, RMSL: 0.9, RMSR: 0.9})
	if !hot.IsClipping {
		t.Fatal("peak above 1.0 should read as clipping")
	}
}

func TestBuildSpectrumReport(t *testing.T) {
	var sp model.Spectrum
	sp.Bands[0] = 0.5
	sp.Bands[13] = 0 // silent band

	r := BuildSpectrumReport(sp)
	if len(r.Bands) != model.SpectrumBands {
		t.Fatalf("band count = %d", len(r.Bands))
	}
	if r.Bands[0].Freq != 60 || r.Bands[13].Freq != 16000 {
		t.Fatalf("band labels wrong: %v, %v", r.Bands[0].Freq, r.Bands[13].Freq)
	}
	if math.Abs(r.Bands[0].DB-(-6.0206)) > 0.001 {
		t.Fatalf("band 0 db = %v", r.Bands[0].DB)
	}
	if r.Bands[13].DB != -60 {
		t.Fatalf("silent band db = %v, want -60 floor", r.Bands[13].DB)
	}
}

func TestRecordRequestNormalize(t *testing.T) {
	var req RecordRequest
	if err := req.normalize(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	if req.HeaderFormat != "wav" || req.SampleFormat != "int24" || req.Channels != 2 {
		t.Fatalf("defaults = %+v", req)
	}

	bad := []RecordRequest{
		{HeaderFormat: "mp3"},
		{SampleFormat: "int8"},
		{Channels: 33},
		{Channels: -1},
		{Duration: -time.Second},
	}
	for _, r := range bad {
		if err := r.normalize(); err == nil {
			t.Fatalf("accepted invalid request %+v", r)
		}
	}

	ok := RecordRequest{HeaderFormat: "rf64", SampleFormat: "float", Channels: 32}
	if err := ok.normalize(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestStopRecordingWhenIdle(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.StopRecording(); err != ErrNotRecording {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestLastAndFirstLine(t *testing.T) {
	out := "s.record\ntrue\n/tmp/SC_2024.wav\n"
	if got := lastLine(out); got != "/tmp/SC_2024.wav" {
		t.Fatalf("lastLine = %q", got)
	}
	if got := firstLine("ERROR: boom\ndetails"); got != "ERROR: boom" {
		t.Fatalf("firstLine = %q", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Fatalf("firstLine single = %q", got)
	}
}

func TestAbsPathExpandsHome(t *testing.T) {
	got, err := absPath("~/recordings/take.wav")
	if err != nil {
		t.Fatalf("absPath: %v", err)
	}
	if strings.HasPrefix(got, "~") || !strings.HasSuffix(got, "recordings/take.wav") {
		t.Fatalf("absPath = %q", got)
	}
}
