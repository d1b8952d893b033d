package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sclang"
)

var (
	// ErrAlreadyRecording reports a second start while a recording runs.
	ErrAlreadyRecording = errors.New("already recording")
	// ErrNotRecording reports a stop without a running recording.
	ErrNotRecording = errors.New("not currently recording")
)

var (
	headerFormats = []string{"wav", "aiff", "caf", "w64", "rf64"}
	sampleFormats = []string{"int16", "int24", "int32", "float"}
)

// RecordRequest configures a recording of the server's output bus. Zero
// values use SuperCollider's defaults: its own timestamped path, wav/int24,
// two channels, no auto-stop.
type RecordRequest struct {
	Path         string
	Duration     time.Duration
	HeaderFormat string
	SampleFormat string
	Channels     int
}

func (r *RecordRequest) normalize() error {
	if r.HeaderFormat == "" {
		r.HeaderFormat = "wav"
	}
	if r.SampleFormat == "" {
		r.SampleFormat = "int24"
	}
	if r.Channels == 0 {
		r.Channels = 2
	}
	if !slices.Contains(headerFormats, r.HeaderFormat) {
		return fmt.Errorf("invalid header format %q (use: %s)", r.HeaderFormat, strings.Join(headerFormats, ", "))
	}
	if !slices.Contains(sampleFormats, r.SampleFormat) {
		return fmt.Errorf("invalid sample format %q (use: %s)", r.SampleFormat, strings.Join(sampleFormats, ", "))
	}
	if r.Channels < 1 || r.Channels > 32 {
		return fmt.Errorf("channels must be between 1 and 32, got %d", r.Channels)
	}
	if r.Duration < 0 {
		return fmt.Errorf("duration must be positive, got %s", r.Duration)
	}
	return nil
}

// StartRecording asks the interpreter to record the server output and
// returns the resolved file path. With a duration set, the recording stops
// itself; a manual stop or a newer recording in the meantime wins over the
// delayed stop.
func (s *Session) StartRecording(ctx context.Context, req RecordRequest) (string, error) {
	if !s.interp.Running() {
		return "", ErrInterpUnavailable
	}
	if err := req.normalize(); err != nil {
		return "", err
	}

	// Claim the recording slot before talking to sclang so two concurrent
	// starts cannot both proceed.
	s.recMu.Lock()
	if s.recording {
		path := s.recPath
		s.recMu.Unlock()
		return "", fmt.Errorf("%w to: %s", ErrAlreadyRecording, path)
	}
	s.recording = true
	s.recSession++
	session := s.recSession
	s.recMu.Unlock()

	pathArg := "nil"
	if req.Path != "" {
		abs, err := absPath(req.Path)
		if err != nil {
			s.clearRecordingState()
			return "", err
		}
		pathArg = `"` + sclang.Escape(abs) + `"`
	}

	code := fmt.Sprintf(`
s.recChannels = %d;
s.recHeaderFormat = "%s";
s.recSampleFormat = "%s";
s.record(%s);
s.recorder.path;
`, req.Channels, req.HeaderFormat, req.SampleFormat, pathArg)

	output, err := s.Eval(ctx, code, s.cfg.RecordTimeout)
	if err != nil {
		s.clearRecordingState()
		return "", fmt.Errorf("start recording: %w", err)
	}

	// The last output line is the recorder's resolved path.
	path := lastLine(output)
	if path == "" || strings.HasPrefix(path, "ERROR") || strings.HasPrefix(path, "WARNING") {
		s.clearRecordingState()
		return "", fmt.Errorf("could not determine recording path from sclang output: %s", firstLine(output))
	}

	s.recMu.Lock()
	s.recPath = path
	s.recMu.Unlock()

	if req.Duration > 0 {
		s.scheduler().After(req.Duration, func() {
			s.recMu.Lock()
			current := s.recording && s.recSession == session
			s.recMu.Unlock()
			if !current {
				return
			}
			if _, err := s.StopRecording(); err != nil {
				s.logs.Append(model.LogFail, fmt.Sprintf("Auto-stop recording failed: %v", err))
			}
		})
	}

	s.log.Info("recording started",
		zap.String("path", path),
		zap.String("format", req.HeaderFormat+"/"+req.SampleFormat),
		zap.Int("channels", req.Channels),
		zap.Duration("auto_stop", req.Duration))
	return path, nil
}

// StopRecording finalizes the current recording and returns its path. The
// local state is cleared even when the interpreter cannot be reached, so a
// wedged sclang does not pin the session in a recording state forever.
func (s *Session) StopRecording() (string, error) {
	s.recMu.Lock()
	if !s.recording {
		s.recMu.Unlock()
		return "", ErrNotRecording
	}
	path := s.recPath
	s.recMu.Unlock()

	defer s.clearRecordingState()

	if !s.interp.Running() {
		return path, fmt.Errorf("sclang not available, recording state cleared but file may be incomplete: %s", path)
	}
	if _, err := s.Eval(context.Background(), "s.stopRecording;", s.cfg.RecordTimeout); err != nil {
		return path, fmt.Errorf("stop recording: %w (file may be incomplete: %s)", err, path)
	}
	s.log.Info("recording saved", zap.String("path", path))
	return path, nil
}

func (s *Session) clearRecordingState() {
	s.recMu.Lock()
	s.recording = false
	s.recPath = ""
	s.recMu.Unlock()
}

// IsRecording reports whether a recording is in progress.
func (s *Session) IsRecording() bool {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.recording
}

// RecordingPath returns the current recording's path, empty when idle.
func (s *Session) RecordingPath() string {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.recPath
}

// RecordingSummary describes a finished WAV recording.
type RecordingSummary struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
}

// DescribeRecording reads the header of a finished WAV file. Other container
// formats are recorded fine but not summarized.
func DescribeRecording(path string) (RecordingSummary, error) {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return RecordingSummary{}, fmt.Errorf("can only summarize wav files, got %s", filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return RecordingSummary{}, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return RecordingSummary{}, fmt.Errorf("%s is not a valid wav file", path)
	}
	dur, err := dec.Duration()
	if err != nil {
		return RecordingSummary{}, fmt.Errorf("read duration: %w", err)
	}
	return RecordingSummary{
		Path:       path,
		Duration:   dur,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

func absPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
