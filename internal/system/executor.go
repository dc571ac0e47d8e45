package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"
)

// Runner executes external commands. Every shell-out in this module goes
// through it so that callers can be exercised against fakes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunOutput(ctx context.Context, name string, args ...string) (string, error)
	// RunInput feeds stdin to the command. Stdin is never logged.
	RunInput(ctx context.Context, stdin []byte, name string, args ...string) (string, error)
	CommandExists(name string) bool
}

// Executor handles execution of external commands
type Executor struct {
	logger *zap.Logger
	debug  bool
}

// NewExecutor creates a new executor
func NewExecutor(logger *zap.Logger, debug bool) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		logger: logger,
		debug:  debug,
	}
}

// Run executes a command and discards output
func (e *Executor) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.RunOutput(ctx, name, args...)
	return err
}

// RunOutput executes a command and returns stdout
func (e *Executor) RunOutput(ctx context.Context, name string, args ...string) (string, error) {
	e.trace(name, args)

	out, err := cmd.RunContext(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}

	return out, nil
}

// RunInput executes a command with the given stdin and returns stdout
func (e *Executor) RunInput(ctx context.Context, stdin []byte, name string, args ...string) (string, error) {
	e.trace(name, args)

	c := exec.CommandContext(ctx, name, args...)
	c.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %w\nStderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// CommandExists checks if a command is available in PATH
func (e *Executor) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckDependencies verifies required commands are available
func (e *Executor) CheckDependencies(deps []string) error {
	var missing []string
	for _, dep := range deps {
		if !e.CommandExists(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s",
			strings.Join(missing, ", "))
	}
	return nil
}

func (e *Executor) trace(name string, args []string) {
	if !e.debug {
		return
	}

	e.logger.Debug("executing", zap.String("cmd", name), zap.Strings("args", args))
}

// ExitCode extracts the process exit code from an error returned by a Runner.
// It returns -1 when the error does not carry one.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if err != nil && errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
