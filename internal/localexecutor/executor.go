// Package localexecutor provides the concrete, in-process implementation of
// the engine's command-execution capability: run a command line to
// completion, capture its output, and report the exit code.
package localexecutor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/engine"
)

// Executor runs commands on the local machine via os/exec.
type Executor struct{}

// New creates a new local command executor.
func New() *Executor {
	return &Executor{}
}

// Run implements engine.CommandRunner. A nonzero exit code is reported in
// the result, not as an error; errors are reserved for failures to launch
// or to observe the process, including context cancellation.
func (e *Executor) Run(ctx context.Context, spec engine.CommandSpec) (engine.CommandResult, error) {
	if len(spec.Args) == 0 {
		return engine.CommandResult{}, errors.New("empty command")
	}
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Launching command.", "args", spec.Args, "dir", spec.Dir)

	cmd := exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		// Extra entries extend the inherited environment; a nil Env keeps
		// it untouched.
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := engine.CommandResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("launching %q: %w", spec.Args[0], err)
	}
	return res, nil
}
