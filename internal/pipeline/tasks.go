package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"asmcorpus/internal/toolchain"
	"asmcorpus/internal/trace"
)

// task is one tool invocation over a single sample.
type task struct {
	stem  string
	input string
	inv   toolchain.Invocation
}

func (p *run) compile(ctx context.Context) (int, string, error) {
	entries, err := os.ReadDir(p.req.SourceDir)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read source dir: %w", err)
	}
	tasks := make([]task, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !p.compiler.Supports(filepath.Ext(e.Name())) {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, ok := p.cached[stem]; ok {
			continue
		}
		src := filepath.Join(p.req.SourceDir, e.Name())
		inv, cmdErr := p.compiler.Command(src, p.req.AsmDir)
		if cmdErr != nil {
			return 0, "", cmdErr
		}
		tasks = append(tasks, task{stem: stem, input: src, inv: inv})
	}

	results, err := p.pool(ctx, StageCompile, tasks, p.runCompile)
	for _, r := range results {
		if r.Status == StatusDone {
			p.report.Compiled++
			continue
		}
		p.report.CompileFailed++
	}
	return len(tasks), failureNote(p.report.CompileFailed), err
}

func (p *run) runCompile(ctx context.Context, t task) error {
	err := p.runner.Run(ctx, t.inv)
	if err != nil {
		removeQuiet(t.inv.Output)
	}
	return err
}

func (p *run) disassemble(ctx context.Context) (int, string, error) {
	entries, err := os.ReadDir(p.req.AsmDir)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read asm dir: %w", err)
	}
	tasks := make([]task, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".o" {
			continue
		}
		obj := filepath.Join(p.req.AsmDir, e.Name())
		tasks = append(tasks, task{
			stem:  strings.TrimSuffix(e.Name(), ".o"),
			input: obj,
			inv:   p.disasm.Command(obj),
		})
	}

	results, err := p.pool(ctx, StageDisassemble, tasks, p.runDisassemble)
	for _, r := range results {
		if r.Status == StatusDone {
			p.report.Disassembled++
			continue
		}
		p.report.DisassembleFailed++
	}
	return len(tasks), failureNote(p.report.DisassembleFailed), err
}

// runDisassemble captures stdout into the sibling .s file. The object is
// removed on success and kept for diagnosis on failure.
func (p *run) runDisassemble(ctx context.Context, t task) error {
	f, err := os.Create(t.inv.Output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", t.inv.Output, err)
	}
	inv := t.inv
	inv.Stdout = f
	runErr := p.runner.Run(ctx, inv)
	closeErr := f.Close()
	if runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("failed to write %s: %w", t.inv.Output, closeErr)
	}
	if runErr != nil {
		removeQuiet(t.inv.Output)
		return runErr
	}
	if err := os.Remove(t.input); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove object %s: %w", t.input, err)
	}
	return nil
}

// pool runs fn over tasks with a bounded number of workers. Task failures
// are recorded, never returned; only cancellation of ctx stops the stage.
// Results land in per-index slots.
func (p *run) pool(ctx context.Context, stage Stage, tasks []task, fn func(context.Context, task) error) ([]TaskResult, error) {
	results := make([]TaskResult, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}
	files := make([]string, len(tasks))
	for i, t := range tasks {
		files[i] = filepath.Base(t.input)
	}
	emitQueued(p.req.Progress, stage, files)

	parent := trace.CurrentSpan(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs(p.req.Jobs, len(tasks)))

	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = TaskResult{Stage: stage, Stem: t.stem, Input: t.input, Output: t.inv.Output, Status: StatusError, Err: err}
				return err
			}
			emit(p.req.Progress, Event{File: files[i], Stage: stage, Status: StatusWorking})
			span := trace.BeginTool(p.tracer, t.inv.Name, t.stem, parent)
			start := time.Now()
			err := fn(gctx, t)
			elapsed := time.Since(start)
			span.End(outcome(err))

			res := TaskResult{
				Stage:   stage,
				Stem:    t.stem,
				Input:   t.input,
				Output:  t.inv.Output,
				Status:  StatusDone,
				Elapsed: elapsed,
			}
			if err != nil {
				res.Status = StatusError
				res.Err = err
				p.logFailure(parent, res)
			}
			results[i] = res
			emit(p.req.Progress, Event{File: files[i], Stage: stage, Status: res.Status, Err: err, Elapsed: elapsed})
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	p.collectFailures(results)
	return results, err
}

func (p *run) collectFailures(results []TaskResult) {
	for _, r := range results {
		if r.Status != StatusError {
			continue
		}
		p.report.Failures = append(p.report.Failures, r)
		if isInterrupt(r.Err) {
			continue
		}
		if _, seen := p.outcomes[r.Stem]; !seen {
			p.outcomes[r.Stem] = r
		}
	}
	sort.SliceStable(p.report.Failures, func(i, j int) bool {
		return p.report.Failures[i].Stem < p.report.Failures[j].Stem
	})
}

var failurePrefix = color.New(color.FgRed, color.Bold).SprintFunc()

func (p *run) logFailure(parent uint64, res TaskResult) {
	trace.Failure(p.tracer, string(res.Stage)+":failed", res.Err.Error(), parent, map[string]string{
		"stem":   res.Stem,
		"output": res.Output,
	})
	if p.req.Diagnostics == nil {
		return
	}
	p.diagMu.Lock()
	defer p.diagMu.Unlock()
	_, _ = fmt.Fprintf(p.req.Diagnostics, "%s %s %s: %v\n", failurePrefix("error:"), res.Stage, res.Stem, res.Err)
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, toolchain.ErrTimeout)
}

func failureNote(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d failed", n)
}

func removeQuiet(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
