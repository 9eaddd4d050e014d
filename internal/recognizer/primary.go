package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/constants"
)

// ProcessRecognizer delegates comparison to an external face-matching process
// invoked as `<executable> <script> <capture> <template>`.
type ProcessRecognizer struct {
	executable string
	script     string
	timeout    time.Duration
}

// NewProcessRecognizer creates a recognizer for the given interpreter and script.
// Empty executable and zero timeout fall back to defaults.
func NewProcessRecognizer(executable, script string, timeout time.Duration) *ProcessRecognizer {
	if executable == "" {
		executable = constants.DefaultPythonExecutable
	}
	if timeout <= 0 {
		timeout = constants.DefaultRecognizerTimeout
	}
	return &ProcessRecognizer{
		executable: executable,
		script:     script,
		timeout:    timeout,
	}
}

// processOutput is the JSON line emitted by the comparison script.
type processOutput struct {
	Match    *bool    `json:"match"`
	Score    *float64 `json:"score"`
	Distance *float64 `json:"distance"`
	Error    string   `json:"error"`
}

func (p *ProcessRecognizer) Method() Method { return MethodPrimary }

// Compare runs the process once. Any failure to produce a well-formed result is
// reported as ErrUnavailable.
func (p *ProcessRecognizer) Compare(ctx context.Context, sample Sample, templatePath string) (MatchResult, error) {
	if p.script == "" {
		return MatchResult{}, unavailable("no script configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.executable, p.script, sample.Path, templatePath) //nolint:gosec // paths are engine-generated
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return MatchResult{}, unavailable("timed out after %s", p.timeout)
	}
	if err != nil {
		return MatchResult{}, unavailable("process failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseProcessOutput(stdout.String())
}

// parseProcessOutput interprets the last non-empty line of the process output.
func parseProcessOutput(raw string) (MatchResult, error) {
	line := lastNonEmptyLine(raw)
	if line == "" {
		return MatchResult{}, unavailable("empty output")
	}

	var out processOutput
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		return MatchResult{}, unavailable("malformed output %q", truncate(line, 120))
	}
	if out.Error != "" {
		return MatchResult{}, unavailable("%s", out.Error)
	}
	if out.Score == nil || out.Distance == nil {
		return MatchResult{}, unavailable("output missing score or distance")
	}

	matched := *out.Distance < constants.RecognizerMatchDistance
	if out.Match != nil {
		matched = *out.Match
	}

	result := newResult(MethodPrimary, matched, *out.Score)
	result.Distance = *out.Distance
	return result, nil
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
