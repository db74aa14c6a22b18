// SPDX-License-Identifier: Apache-2.0

// Package step executes one unit of pipeline work as an isolated child
// process. It is a pure isolation boundary: no retries, no output
// parsing, exactly one child spawned and fully reaped per call.
package step

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/instantprod/proposal-engine/internal/metrics"
)

const DefaultTimeout = 120 * time.Second

// reapDelay bounds how long Wait may block on lingering pipe readers
// after the process is killed.
const reapDelay = 5 * time.Second

// Step is an immutable description of one unit of work. It is consumed
// exactly once by Runner.Run.
type Step struct {
	Name    string
	Program string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Result reports how a step finished. ExitCode is -1 when the process
// never produced one (launch failure or kill on timeout).
type Result struct {
	Succeeded      bool
	CombinedOutput string
	ExitCode       int
	TimedOut       bool
}

type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run launches the step's program bounded by its timeout, with stdout
// and stderr merged into a single stream. The parent blocks until the
// child exits or is killed.
func (r *Runner) Run(ctx context.Context, s Step) Result {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.Program, s.Args...)
	cmd.Dir = s.Dir

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	cmd.WaitDelay = reapDelay

	started := time.Now()
	err := cmd.Run()
	duration := time.Since(started)

	if err == nil {
		r.logger.Debug("step completed",
			"step", s.Name,
			"program", s.Program,
			"duration_ms", duration.Milliseconds(),
		)
		return Result{
			Succeeded:      true,
			CombinedOutput: combined.String(),
			ExitCode:       0,
		}
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		metrics.IncStepTimeouts()
		r.logger.Warn("step timed out",
			"step", s.Name,
			"program", s.Program,
			"timeout", timeout,
		)
		return Result{
			Succeeded:      false,
			CombinedOutput: fmt.Sprintf("timed out after %ds", int(timeout.Seconds())),
			ExitCode:       -1,
			TimedOut:       true,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Warn("step failed",
			"step", s.Name,
			"program", s.Program,
			"exit_code", exitErr.ExitCode(),
			"duration_ms", duration.Milliseconds(),
		)
		return Result{
			Succeeded:      false,
			CombinedOutput: combined.String(),
			ExitCode:       exitErr.ExitCode(),
		}
	}

	// Launch failure: missing executable, permission error. The raised
	// error's message stands in for process output.
	r.logger.Error("step launch failed",
		"step", s.Name,
		"program", s.Program,
		"error", err,
	)
	return Result{
		Succeeded:      false,
		CombinedOutput: err.Error(),
		ExitCode:       -1,
	}
}
