package cli

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RefDBPath = t.TempDir() + "/refs.db"
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return NewRunner(cfg, zap.NewNop(), out, errOut), out, errOut
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), nil); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: screpl") {
		t.Fatalf("expected usage text, got: %s", errOut.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"bogus"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command: bogus") {
		t.Fatalf("missing error, got: %s", errOut.String())
	}
}

func TestRunHelp(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"help"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(errOut.String(), "commands:") {
		t.Fatalf("expected command list, got: %s", errOut.String())
	}
}

func TestPlayRequiresSynthdef(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"play"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: screpl play") {
		t.Fatalf("expected play usage, got: %s", errOut.String())
	}
}

func TestAnalyzerRequiresAction(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"analyzer"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRefRequiresAction(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"ref"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRecordRequiresAction(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"record"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestSweepRequiresSynthdef(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"sweep", "-values", "220,440"}); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage: screpl sweep") {
		t.Fatalf("expected sweep usage, got: %s", errOut.String())
	}
}

func TestEvalRequiresCode(t *testing.T) {
	r, _, errOut := newTestRunner(t)
	if code := r.Run(context.Background(), []string{"eval"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "no code provided") {
		t.Fatalf("expected code error, got: %s", errOut.String())
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"freq=440", "gate=true", "buf=drum.wav", "amp=0.25"})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got := params["freq"].OSCArg(); got != float32(440) {
		t.Fatalf("freq = %v, want 440", got)
	}
	if got := params["gate"].OSCArg(); got != int32(1) {
		t.Fatalf("gate = %v, want 1", got)
	}
	if got := params["buf"].OSCArg(); got != "drum.wav" {
		t.Fatalf("buf = %v, want drum.wav", got)
	}
	if got := params["amp"].OSCArg(); got != float32(0.25) {
		t.Fatalf("amp = %v, want 0.25", got)
	}
}

func TestParseParamsRejectsMalformed(t *testing.T) {
	for _, pair := range []string{"freq", "=440", ""} {
		if _, err := parseParams([]string{pair}); err == nil {
			t.Fatalf("expected error for %q", pair)
		}
	}
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := parseParams(nil)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if params != nil {
		t.Fatalf("expected nil params, got %v", params)
	}
}

func TestParseFloats(t *testing.T) {
	got, err := parseFloats("220, 440.5 ,880")
	if err != nil {
		t.Fatalf("parseFloats: %v", err)
	}
	want := []float64{220, 440.5, 880}
	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseFloatsRejectsBadInput(t *testing.T) {
	for _, csv := range []string{"", "  ", "220,abc"} {
		if _, err := parseFloats(csv); err == nil {
			t.Fatalf("expected error for %q", csv)
		}
	}
}

func TestReadCodeJoinsArgs(t *testing.T) {
	code, err := readCode([]string{"s.boot;", "1.postln;"})
	if err != nil {
		t.Fatalf("readCode: %v", err)
	}
	if code != "s.boot; 1.postln;" {
		t.Fatalf("code = %q", code)
	}
}

func TestReadCodeEmpty(t *testing.T) {
	if _, err := readCode(nil); err == nil {
		t.Fatal("expected error for empty args")
	}
}
