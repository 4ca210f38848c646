// Package toolchain invokes the external compiler and disassembler.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout marks an invocation killed because it exceeded Runner.Timeout.
var ErrTimeout = errors.New("tool timed out")

// ExitError describes a failed tool invocation.
type ExitError struct {
	Tool     string
	Args     []string
	Output   string // artefact the invocation was producing
	ExitCode int    // -1 when the process did not exit normally
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	b.WriteString(e.Tool)
	if e.Output != "" {
		b.WriteString(" (")
		b.WriteString(e.Output)
		b.WriteString(")")
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(firstLine(e.Stderr))
	}
	return b.String()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Invocation is one external command.
type Invocation struct {
	Name   string
	Args   []string
	Output string    // artefact path, used for error reporting
	Stdout io.Writer // nil discards stdout
}

// String renders the invocation as a shell-like command line.
func (inv Invocation) String() string {
	if len(inv.Args) == 0 {
		return inv.Name
	}
	return inv.Name + " " + strings.Join(inv.Args, " ")
}

// Runner executes invocations with an optional per-invocation timeout.
type Runner struct {
	Timeout time.Duration
	// Echo, when set, receives each command line before it runs.
	Echo io.Writer
}

// Run executes inv and waits for it. A non-zero exit, a start failure or a
// timeout is reported as *ExitError.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r != nil && r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	if r != nil && r.Echo != nil {
		if _, err := fmt.Fprintln(r.Echo, inv.String()); err != nil {
			return fmt.Errorf("failed to print command: %w", err)
		}
	}

	// #nosec G204 -- tool names and arguments come from the pipeline configuration
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	configureProcessGroup(cmd)
	cmd.Stdout = inv.Stdout
	var stderr strings.Builder
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	exitErr := &ExitError{
		Tool:     inv.Name,
		Args:     inv.Args,
		Output:   inv.Output,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && r != nil && r.Timeout > 0 {
			exitErr.Err = fmt.Errorf("%w after %s", ErrTimeout, r.Timeout)
		} else {
			exitErr.Err = ctxErr
		}
		return exitErr
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.ExitCode = ee.ExitCode()
	}
	return exitErr
}

// EnsureAvailable checks that every named tool resolves on PATH.
func EnsureAvailable(names ...string) error {
	var missing []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tools not found on PATH: %s; install with: sudo apt-get update && sudo apt-get install -y build-essential binutils", strings.Join(missing, ", "))
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
