package manager

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

// Result holds the captured output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor runs external commands. It is an interface so tests can fake the system.
type Executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// OSExecutor runs commands with os/exec.
type OSExecutor struct{}

// LookPath implements Executor.
func (OSExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Run implements Executor. A non-zero exit is reported through Result.ExitCode
// together with a non-nil error.
func (OSExecutor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return result, errors.Join(ErrUnavailable, err)
	}
	return result, err
}
