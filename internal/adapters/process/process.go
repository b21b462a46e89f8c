// Package process implements usecase.CommandPort by spawning real
// child processes, the "small Command abstraction" design note in
// spec.md §9: the engine composes Run calls instead of embedding
// shell strings, which keeps exclusion patterns and paths out of any
// shell-quoting pitfall.
package process

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"

	"github.com/snapback/snapback2/internal/usecase"
)

// Adapter implements usecase.CommandPort using os/exec.
type Adapter struct {
	logger *slog.Logger
}

// New creates a new process adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		panic("process adapter requires logger")
	}
	return &Adapter{logger: logger}
}

// Run invokes name with args, optionally feeding stdin, and captures
// combined stdout+stderr. A non-zero exit is reported via ExitCode,
// not as a Go error, so callers can distinguish "ran and failed" from
// "could not even start" per the job-fatal taxonomy in §7.
func (a *Adapter) Run(ctx context.Context, name string, args []string, stdin string) (usecase.CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = bytes.NewBufferString(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := usecase.CommandResult{Output: out.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
		return result, nil
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		return result, err
	}
}
