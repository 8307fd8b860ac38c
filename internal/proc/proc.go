// Package proc runs external tools (ffmpeg, ffprobe, detector CLIs) as
// subprocesses with bounded diagnostics.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	waitDelay      = 2 * time.Second
)

// Result is the structured outcome of executing a subprocess.
type Result struct {
	ExitCode   int
	Stdout     []byte
	StderrTail string // last N bytes of stderr
	Duration   time.Duration
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r Result) IsSuccess() bool { return r.ExitCode == 0 }

// Run executes name with args, feeding stdin when non-nil, and collects stdout.
// A non-zero exit is reported through Result.ExitCode; the returned error is
// reserved for failures to start the process and for context expiry.
func Run(ctx context.Context, logger *slog.Logger, name string, args []string, stdin io.Reader) (Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	// Grandchildren holding stdout open must not outlive the deadline.
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	if stdin != nil {
		cmd.Stdin = stdin
	}

	logger.Debug("executing command", "name", name, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	result := Result{
		Stdout:     stdoutBuf.Bytes(),
		StderrTail: stderrBuf.String(),
		Duration:   elapsed,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			result.ExitCode = -1
			return result, fmt.Errorf("cannot run %s: %w", name, err)
		}
		result.ExitCode = exitErr.ExitCode()
		logger.Warn("command failed",
			"name", name,
			"exit_code", result.ExitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", Truncate(result.StderrTail, 512),
		)
		return result, nil
	}

	logger.Debug("command succeeded", "name", name, "duration_ms", elapsed.Milliseconds())
	return result, nil
}

// Resolve finds a binary on PATH, returning an error naming the binary when
// it is missing.
func Resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty binary name")
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%q not found: %w", name, err)
	}
	return p, nil
}

// Truncate keeps the tail of s when it exceeds maxLen.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
