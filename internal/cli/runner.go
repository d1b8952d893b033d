// Package cli implements the screpl command line. Each invocation connects
// to the running SuperCollider pair, performs one operation, and disconnects.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
	"github.com/viktorkelemen/sc-repl-mcp/internal/session"
	"github.com/viktorkelemen/sc-repl-mcp/internal/sweep"
)

type Runner struct {
	cfg    config.Config
	log    *zap.Logger
	out    io.Writer
	errOut io.Writer
}

func NewRunner(cfg config.Config, log *zap.Logger, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log, out: out, errOut: errOut}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		r.printUsage()
		return 2
	}
	switch args[0] {
	case "status":
		return r.runStatus(ctx)
	case "play-sine":
		return r.runPlaySine(ctx, args[1:])
	case "play":
		return r.runPlay(ctx, args[1:])
	case "free-all":
		return r.runFreeAll(ctx)
	case "analyzer":
		return r.runAnalyzer(ctx, args[1:])
	case "analysis":
		return r.runAnalysis(ctx, args[1:])
	case "spectrum":
		return r.runSpectrum(ctx)
	case "onsets":
		return r.runOnsets(ctx, args[1:])
	case "logs":
		return r.runLogs(ctx, args[1:])
	case "eval":
		return r.runEval(ctx, args[1:])
	case "validate":
		return r.runValidate(ctx, args[1:])
	case "ref":
		return r.runRef(ctx, args[1:])
	case "sweep":
		return r.runSweep(ctx, args[1:])
	case "record":
		return r.runRecord(ctx, args[1:])
	case "help", "-h", "--help":
		r.printUsage()
		return 0
	default:
		fmt.Fprintf(r.errOut, "unknown command: %s\n", args[0])
		r.printUsage()
		return 2
	}
}

func (r *Runner) printUsage() {
	fmt.Fprint(r.errOut, `usage: screpl <command> [flags]

commands:
  status                     query scsynth server status
  play-sine                  play a test tone (-freq -amp -dur)
  play <synthdef>            play a synthdef (-dur -release -p key=value ...)
  free-all                   free every node on the server
  analyzer <start|stop>      control the analyzer synth
  analysis                   latest analysis snapshot (-wait)
  spectrum                   latest 14-band spectrum
  onsets                     drain onset events (-keep -window)
  logs                       recent server notifications (-limit -category)
  eval <code>                run code in the persistent interpreter (-timeout)
  validate <code>            syntax-check code without running it
  ref <capture|compare|list|delete>
                             reference snapshots (-name -desc)
  sweep <synthdef>           measure a metric across parameter values
                             (-param -values -metric -dur -settle)
  record <start|stop>        record server output (-path -dur -format
                             -samples -channels)
`)
}

// connect builds a session and connects it; callers must Close it.
func (r *Runner) connect(ctx context.Context) (*session.Session, error) {
	s, err := session.New(ctx, r.cfg, r.log)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.Degraded() {
		fmt.Fprintln(r.errOut, "warning: sclang failed to start; analyzer and eval are unavailable")
	}
	return s, nil
}

func (r *Runner) fail(err error) int {
	fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printJSON(v interface{}) int {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return r.fail(err)
	}
	return 0
}

func (r *Runner) runStatus(ctx context.Context) int {
	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	status, err := s.Status(ctx)
	if err != nil {
		return r.fail(err)
	}
	if !status.Running {
		fmt.Fprintln(r.out, "scsynth: not responding")
		return 1
	}
	fmt.Fprintf(r.out, "scsynth: running\n")
	fmt.Fprintf(r.out, "  synths: %d  groups: %d  ugens: %d  synthdefs: %d\n",
		status.NumSynths, status.NumGroups, status.NumUGens, status.NumSynthDefs)
	fmt.Fprintf(r.out, "  cpu: %.1f%% avg, %.1f%% peak  sample rate: %.0f Hz\n",
		status.AvgCPU, status.PeakCPU, status.SampleRate)
	return 0
}

func (r *Runner) runPlaySine(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("play-sine", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	freq := fs.Float64("freq", 440, "frequency in Hz")
	amp := fs.Float64("amp", 0.1, "amplitude 0-1")
	dur := fs.Duration("dur", time.Second, "duration")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	node, err := s.PlaySine(ctx, *freq, *amp, *dur)
	if err != nil {
		return r.fail(err)
	}
	fmt.Fprintf(r.out, "playing %gHz for %s (node %d)\n", *freq, *dur, node)
	// Stay alive until the scheduled release fires.
	sleepCtx(ctx, *dur+200*time.Millisecond)
	return 0
}

func (r *Runner) runPlay(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dur := fs.Duration("dur", 0, "duration (0 = until freed)")
	release := fs.Bool("release", true, "release via envelope gate instead of hard free")
	var paramFlags multiFlag
	fs.Var(&paramFlags, "p", "synth parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(r.errOut, "usage: screpl play <synthdef> [-dur d] [-p key=value ...]")
		return 2
	}
	synthdef := fs.Arg(0)

	params, err := parseParams(paramFlags)
	if err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	node, err := s.PlaySynth(ctx, synthdef, params, *dur, *release)
	if err != nil {
		return r.fail(err)
	}
	if *dur > 0 {
		fmt.Fprintf(r.out, "playing %q for %s (node %d)\n", synthdef, *dur, node)
		sleepCtx(ctx, *dur+200*time.Millisecond)
	} else {
		fmt.Fprintf(r.out, "playing %q (node %d), use free-all to stop\n", synthdef, node)
	}
	return 0
}

func (r *Runner) runFreeAll(ctx context.Context) int {
	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	if err := s.FreeAll(ctx); err != nil {
		return r.fail(err)
	}
	fmt.Fprintln(r.out, "all nodes freed")
	return 0
}

func (r *Runner) runAnalyzer(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(r.errOut, "usage: screpl analyzer <start|stop>")
		return 2
	}
	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	switch args[0] {
	case "start":
		node, err := s.StartAnalyzer(ctx)
		if err != nil {
			return r.fail(err)
		}
		fmt.Fprintf(r.out, "analyzer running (node %d)\n", node)
		return 0
	case "stop":
		if err := s.StopAnalyzer(ctx); err != nil {
			return r.fail(err)
		}
		fmt.Fprintln(r.out, "analyzer stopped")
		return 0
	default:
		fmt.Fprintf(r.errOut, "unknown analyzer action: %s\n", args[0])
		return 2
	}
}

func (r *Runner) runAnalysis(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("analysis", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	wait := fs.Duration("wait", 500*time.Millisecond, "settle time before reading")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	if _, err := s.StartAnalyzer(ctx); err != nil {
		return r.fail(err)
	}
	sleepCtx(ctx, *wait)

	report, err := s.Analysis()
	if err != nil {
		return r.fail(err)
	}
	return r.printJSON(report)
}

func (r *Runner) runSpectrum(ctx context.Context) int {
	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	if _, err := s.StartAnalyzer(ctx); err != nil {
		return r.fail(err)
	}
	sleepCtx(ctx, 500*time.Millisecond)

	report, err := s.Spectrum()
	if err != nil {
		return r.fail(err)
	}
	return r.printJSON(report)
}

func (r *Runner) runOnsets(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("onsets", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	keep := fs.Bool("keep", false, "leave events in the buffer")
	window := fs.Duration("window", 2*time.Second, "listen window")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	if _, err := s.StartAnalyzer(ctx); err != nil {
		return r.fail(err)
	}
	sleepCtx(ctx, *window)

	events := s.Onsets(time.Time{}, !*keep)
	return r.printJSON(events)
}

func (r *Runner) runLogs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 50, "maximum entries")
	category := fs.String("category", "", "filter: fail, done, node, info")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	for _, e := range s.Logs(*limit, model.LogCategory(*category)) {
		fmt.Fprintf(r.out, "%s [%s] %s\n",
			e.Timestamp.Format(time.TimeOnly), e.Category, e.Message)
	}
	return 0
}

func (r *Runner) runEval(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	timeout := fs.Duration("timeout", 0, "execution timeout (0 = default)")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}
	code, err := readCode(fs.Args())
	if err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	output, err := s.Eval(ctx, code, *timeout)
	if err != nil {
		if output != "" {
			fmt.Fprintln(r.out, output)
		}
		return r.fail(err)
	}
	fmt.Fprintln(r.out, output)
	return 0
}

func (r *Runner) runValidate(ctx context.Context, args []string) int {
	code, err := readCode(args)
	if err != nil {
		return r.fail(err)
	}

	// Validation runs sclang in one-shot mode and needs no server connection.
	s, err := session.New(ctx, r.cfg, r.log)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	ok, syntaxErrs, err := s.ValidateSyntax(ctx, code)
	if err != nil {
		return r.fail(err)
	}
	if ok {
		fmt.Fprintln(r.out, "syntax valid")
		return 0
	}
	for _, e := range syntaxErrs {
		fmt.Fprintf(r.out, "line %d: %s\n", e.Line, e.Message)
	}
	return 1
}

func (r *Runner) runRef(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(r.errOut, "usage: screpl ref <capture|compare|list|delete> [flags]")
		return 2
	}
	action, rest := args[0], args[1:]

	fs := flag.NewFlagSet("ref "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", "", "reference name")
	desc := fs.String("desc", "", "description")
	if err := fs.Parse(rest); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	switch action {
	case "capture":
		if _, err := s.StartAnalyzer(ctx); err != nil {
			return r.fail(err)
		}
		sleepCtx(ctx, 500*time.Millisecond)
		updated, err := s.CaptureReference(ctx, *name, *desc)
		if err != nil {
			return r.fail(err)
		}
		verb := "captured"
		if updated {
			verb = "updated"
		}
		fmt.Fprintf(r.out, "reference %q %s\n", *name, verb)
		return 0
	case "compare":
		if _, err := s.StartAnalyzer(ctx); err != nil {
			return r.fail(err)
		}
		sleepCtx(ctx, 500*time.Millisecond)
		cmp, err := s.CompareReference(ctx, *name)
		if err != nil {
			return r.fail(err)
		}
		return r.printJSON(cmp)
	case "list":
		refs, err := s.ListReferences(ctx)
		if err != nil {
			return r.fail(err)
		}
		for _, ref := range refs {
			fmt.Fprintf(r.out, "%-20s %s  %s\n",
				ref.Name, ref.CapturedAt.Format(time.DateTime), ref.Description)
		}
		return 0
	case "delete":
		if err := s.DeleteReference(ctx, *name); err != nil {
			return r.fail(err)
		}
		fmt.Fprintf(r.out, "reference %q deleted\n", *name)
		return 0
	default:
		fmt.Fprintf(r.errOut, "unknown ref action: %s\n", action)
		return 2
	}
}

func (r *Runner) runSweep(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	param := fs.String("param", "freq", "parameter to sweep")
	values := fs.String("values", "", "comma-separated values")
	metric := fs.String("metric", "pitch", "metric: pitch, centroid, loudness, flatness, rms")
	dur := fs.Duration("dur", sweep.DefaultDur, "tone duration per step")
	settle := fs.Duration("settle", sweep.DefaultSettle, "settle time before measuring")
	var paramFlags multiFlag
	fs.Var(&paramFlags, "p", "fixed parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return r.fail(err)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(r.errOut, "usage: screpl sweep <synthdef> -param freq -values 220,440,880 -metric pitch")
		return 2
	}

	sweepValues, err := parseFloats(*values)
	if err != nil {
		return r.fail(err)
	}
	base, err := parseParams(paramFlags)
	if err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	if _, err := s.StartAnalyzer(ctx); err != nil {
		return r.fail(err)
	}

	points, err := s.Sweep(ctx, sweep.Request{
		Synthdef:   fs.Arg(0),
		Param:      *param,
		Values:     sweepValues,
		Metric:     model.Metric(*metric),
		BaseParams: base,
		Dur:        *dur,
		Settle:     *settle,
	})
	if err != nil {
		return r.fail(err)
	}
	return r.printJSON(points)
}

func (r *Runner) runRecord(ctx context.Context, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(r.errOut, "usage: screpl record <start|stop> [flags]")
		return 2
	}
	action, rest := args[0], args[1:]

	fs := flag.NewFlagSet("record "+action, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("path", "", "output file (default: SuperCollider's choice)")
	dur := fs.Duration("dur", 0, "auto-stop after this duration")
	format := fs.String("format", "wav", "header format: wav, aiff, caf, w64, rf64")
	samples := fs.String("samples", "int24", "sample format: int16, int24, int32, float")
	channels := fs.Int("channels", 2, "channel count")
	if err := fs.Parse(rest); err != nil {
		return r.fail(err)
	}

	s, err := r.connect(ctx)
	if err != nil {
		return r.fail(err)
	}
	defer s.Close()

	switch action {
	case "start":
		recPath, err := s.StartRecording(ctx, session.RecordRequest{
			Path:         *path,
			Duration:     *dur,
			HeaderFormat: *format,
			SampleFormat: *samples,
			Channels:     *channels,
		})
		if err != nil {
			return r.fail(err)
		}
		fmt.Fprintf(r.out, "recording to %s\n", recPath)
		if *dur > 0 {
			// Wait for the auto-stop, then summarize the file.
			sleepCtx(ctx, *dur+time.Second)
			if summary, err := session.DescribeRecording(recPath); err == nil {
				return r.printJSON(summary)
			}
		}
		return 0
	case "stop":
		recPath, err := s.StopRecording()
		if err != nil {
			return r.fail(err)
		}
		fmt.Fprintf(r.out, "recording saved: %s\n", recPath)
		return 0
	default:
		fmt.Fprintf(r.errOut, "unknown record action: %s\n", action)
		return 2
	}
}

// multiFlag collects repeated -p flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// parseParams turns key=value pairs into typed synth parameters: bools and
// numbers are recognized, anything else stays a string.
func parseParams(pairs []string) (model.Params, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(model.Params, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			params[key] = model.Bool(value == "true")
		default:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				params[key] = model.Float(f)
			} else {
				params[key] = model.String(value)
			}
		}
	}
	return params, nil
}

func parseFloats(csv string) ([]float64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, fmt.Errorf("no values provided")
	}
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", p)
		}
		out = append(out, f)
	}
	return out, nil
}

// readCode takes code from arguments, or stdin when the sole argument is -.
func readCode(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("no code provided (pass code as an argument or - for stdin)")
	}
	return strings.Join(args, " "), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
