package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kirillkom/court-registry/internal/core/domain"
)

const (
	defaultTimeout = 2 * time.Minute
	stderrTail     = 512
	waitDelay      = 5 * time.Second
)

// CommandRunner is the subprocess capability adapters depend on.
type CommandRunner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// Runner executes external tools with a hard deadline. On expiry the child's
// whole process group is killed.
type Runner struct {
	timeout time.Duration
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Lookup resolves a tool name or path to an executable path.
func Lookup(tool string) (string, error) {
	if strings.TrimSpace(tool) == "" {
		return "", domain.WrapError(domain.ErrToolNotFound, "lookup tool", errors.New("empty tool path"))
	}
	path, err := exec.LookPath(tool)
	if err != nil {
		return "", domain.WrapError(domain.ErrToolNotFound, "lookup "+tool, err)
	}
	return path, nil
}

// Check verifies that every tool is resolvable.
func Check(tools ...string) error {
	var errs []error
	for _, tool := range tools {
		if _, err := Lookup(tool); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run starts tool with args and returns its stdout.
func (r *Runner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	path, err := Lookup(tool)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path, args...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	op := fmt.Sprintf("run %s", tool)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, domain.WrapError(domain.ErrTimeout, op,
			domain.WrapError(domain.ErrToolInvocation, fmt.Sprintf("killed after %s", r.timeout), err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrTimeout, op, ctxErr)
		}
		return nil, fmt.Errorf("%s: %w", op, ctxErr)
	}
	return nil, domain.WrapError(domain.ErrToolInvocation, op, describeExit(err, stderr.Bytes()))
}

func describeExit(err error, stderr []byte) error {
	tail := strings.TrimSpace(string(lastBytes(stderr, stderrTail)))
	if tail == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, tail)
}

func lastBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
