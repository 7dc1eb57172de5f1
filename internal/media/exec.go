// Package media wraps the external audio tooling (yt-dlp, ffmpeg, ffprobe,
// demucs, whisperx, silero-vad, qwen-tts) behind a narrow run-with-timeout
// capability so phase logic stays independent of subprocess mechanics.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// ErrTimeout is returned when a command exceeds its wall-clock budget. The
// subprocess is killed.
var ErrTimeout = errors.New("media: command timed out")

// Output carries a finished command's streams and exit status.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands with a timeout and captured output.
// The zero value is not usable; construct with [NewRunner].
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes name with args under the given timeout, returning captured
// stdout/stderr and the exit code. A non-zero exit is an error carrying the
// tail of stderr; a timeout kills the subprocess and returns [ErrTimeout].
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Output, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	r.logger.Debug("external command finished",
		"command", name,
		"exit_code", out.ExitCode,
		"duration", out.Duration,
	)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return out, fmt.Errorf("%w: %s after %s", ErrTimeout, name, timeout)
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("media: %s exited %d: %s", name, out.ExitCode, tail(out.Stderr, 500))
	}
	return out, nil
}

// tail returns the last n bytes of s, whole string when shorter.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
