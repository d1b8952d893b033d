package sclang

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

// Startup chatter sclang prints on stderr before running any user code.
var stderrSkipPrefixes = []string{
	"compiling class library",
	"NumPrimitives",
	"Welcome to SuperCollider",
	"type 'help'",
	"Found",
	"Compiling",
	"Read",
}

// Eval runs code in a fresh sclang process and returns its combined output.
// The script is wrapped so it attaches to the running scsynth and exits when
// done; timeouts kill the process. Slower than the persistent interpreter
// but usable before it is up.
func Eval(ctx context.Context, cfg config.Config, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("no code provided")
	}

	path, err := Find()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "screpl-eval-*.scd")
	if err != nil {
		return "", fmt.Errorf("write eval script: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(wrapEval(cfg, code)); err != nil {
		f.Close()
		return "", fmt.Errorf("write eval script: %w", err)
	}
	f.Close()

	cmd := exec.CommandContext(ctx, path, f.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("sclang execution timed out")
	}

	output := combineOutput(stdout.String(), stderr.String())
	if runErr != nil {
		return output, fmt.Errorf("sclang exited with %v", runErr)
	}
	return output, nil
}

// wrapEval prepends the server-attach preamble and appends the exit call so
// the one-shot process terminates on its own.
func wrapEval(cfg config.Config, code string) string {
	code = strings.TrimRight(code, " \t\r\n")
	if !strings.HasSuffix(code, ";") {
		code += ";"
	}
	return fmt.Sprintf(`// Attach to the existing scsynth rather than booting a private one.
Server.default = Server.remote(\scsynth, NetAddr("%s", %d));
s = Server.default;
%s
0.exit;
`, cfg.Host, cfg.ScsynthPort, code)
}

func combineOutput(stdout, stderr string) string {
	var parts []string
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		var kept []string
		for _, line := range strings.Split(s, "\n") {
			if hasNoisePrefix(strings.TrimSpace(line)) {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) > 0 {
			parts = append(parts, "stderr: "+strings.Join(kept, "\n"))
		}
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n")
}

func hasNoisePrefix(line string) bool {
	for _, prefix := range stderrSkipPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Escape makes code safe for embedding in a double-quoted SuperCollider
// string literal.
func Escape(code string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"\x00", "",
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(code)
}
