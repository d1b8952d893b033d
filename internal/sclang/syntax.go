package sclang

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

// SyntaxError is one parse problem reported by the interpreter. sclang does
// not report columns, so Column is always 1.
type SyntaxError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

var (
	errorPattern = regexp.MustCompile(`(?i)(ERROR|Parse error|syntax error)[:\s]+(.+)`)
	linePattern  = regexp.MustCompile(`(?i)(?:at |in )?line\s+(\d+)`)
)

// ParseErrors extracts structured syntax errors from sclang output. When no
// structured error is found, error-looking lines are returned raw.
func ParseErrors(output string) []SyntaxError {
	var errs []SyntaxError
	for _, line := range strings.Split(output, "\n") {
		m := errorPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		errLine := 1
		if lm := linePattern.FindStringSubmatch(line); lm != nil {
			if n, err := strconv.Atoi(lm[1]); err == nil {
				errLine = n
			}
		}
		errs = append(errs, SyntaxError{Line: errLine, Column: 1, Message: strings.TrimSpace(m[2])})
	}
	if len(errs) > 0 || strings.TrimSpace(output) == "" {
		return errs
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasNoisePrefix(line) {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "unexpected") {
			errs = append(errs, SyntaxError{Line: 1, Column: 1, Message: line})
		}
	}
	return errs
}

// ValidateSyntax compiles code without executing it, using the interpreter's
// own parser as the authority. Empty code is trivially valid.
func ValidateSyntax(ctx context.Context, cfg config.Config, code string) (bool, []SyntaxError, error) {
	if strings.TrimSpace(code) == "" {
		return true, nil, nil
	}

	// compile() parses but does not run; nil means a parse failure.
	script := fmt.Sprintf(`
var code = "%s";
var result = thisProcess.interpreter.compile(code);
if(result.isNil) {
    "SYNTAX_ERROR".postln;
} {
    "SYNTAX_OK".postln;
};
`, Escape(code))

	ctx, cancel := context.WithTimeout(ctx, cfg.ValidateTimeout)
	defer cancel()

	output, err := Eval(ctx, cfg, script)
	if strings.Contains(output, "SYNTAX_OK") {
		return true, nil, nil
	}
	if err != nil && output == "" {
		return false, nil, err
	}
	return false, ParseErrors(output), nil
}
