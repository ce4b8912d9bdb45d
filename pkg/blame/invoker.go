package blame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultGitBinary is the git executable looked up on PATH.
const DefaultGitBinary = "git"

// launchFailedExitCode is the ProcessError exit code when git never started.
const launchFailedExitCode = -1

// ErrProcessFailure matches every error from a git process that could not be
// launched or exited non-zero.
var ErrProcessFailure = errors.New("blame process failed")

// ProcessError describes a failed git invocation.
type ProcessError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s: git %s: exit code %d", ErrProcessFailure, strings.Join(e.Args, " "), e.ExitCode)

	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both ErrProcessFailure and the underlying exec error.
func (e *ProcessError) Unwrap() []error {
	return []error{ErrProcessFailure, e.Err}
}

// Invoker runs git blame for a request and returns its complete stdout.
type Invoker interface {
	Run(ctx context.Context, req Request) ([]byte, error)
}

// GitInvoker runs the git binary as a subprocess. It imposes no timeout of its
// own; the context passed to Run bounds the process.
type GitInvoker struct {
	// Binary is the git executable. Empty uses DefaultGitBinary.
	Binary string
	// Dir is the working directory, normally the repository root.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Run executes git blame and waits for it to exit.
func (g *GitInvoker) Run(ctx context.Context, req Request) ([]byte, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	binary := g.Binary
	if binary == "" {
		binary = DefaultGitBinary
	}

	args := req.Args()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = g.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(g.Env) > 0 {
		cmd.Env = append(cmd.Environ(), g.Env...)
	}

	runErr := cmd.Run()
	if runErr != nil {
		exitCode := launchFailedExitCode

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return nil, &ProcessError{
			Args:     args,
			ExitCode: exitCode,
			Stderr:   stderr.String(),
			Err:      runErr,
		}
	}

	return stdout.Bytes(), nil
}
