// Package pipeline runs the collect, compile, disassemble and write stages
// over one corpus. Stages are complete passes that communicate through the
// working directories, keyed by file stem.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"asmcorpus/internal/cache"
	"asmcorpus/internal/collect"
	"asmcorpus/internal/corpus"
	"asmcorpus/internal/dataset"
	"asmcorpus/internal/observ"
	"asmcorpus/internal/standardize"
	"asmcorpus/internal/toolchain"
	"asmcorpus/internal/trace"
)

// Request configures one pipeline run.
type Request struct {
	Strategy corpus.Strategy
	// Input is the raw corpus root.
	Input string
	// SourceDir receives cleaned sources, AsmDir receives objects and
	// assembly. Both are flat.
	SourceDir string
	AsmDir    string
	Output    string
	// Samples caps the number of collected files; negative means unlimited.
	Samples int
	Exclude []string

	// Compilers maps source extensions to compiler binaries; nil uses
	// toolchain.DefaultCompilers.
	Compilers    map[string]string
	Flags        []string
	Disassembler toolchain.Disassembler
	// Symbol overrides the strategy's target symbol.
	Symbol string

	// Jobs bounds the compile and disassemble worker pools; <= 0 uses
	// runtime.NumCPU.
	Jobs    int
	Timeout time.Duration

	Cache    *cache.Store
	Progress ProgressSink
	// Diagnostics receives one line per failed task; nil discards.
	Diagnostics io.Writer
	// Echo receives every tool command line before it runs.
	Echo  io.Writer
	Timer *observ.Timer
}

// TaskResult is the outcome of one compile or disassemble task.
type TaskResult struct {
	Stage   Stage
	Stem    string
	Input   string
	Output  string
	Status  Status
	Err     error
	Elapsed time.Duration
	Cached  bool
}

// Report summarizes a run.
type Report struct {
	Collected         int
	Skipped           []collect.Skip
	Compiled          int
	CompileFailed     int
	Disassembled      int
	DisassembleFailed int
	Written           int
	Dropped           map[dataset.DropReason]int
	CacheHits         int
	Failures          []TaskResult
	Timings           Timings
}

// DroppedTotal sums every drop reason.
func (r Report) DroppedTotal() int {
	return dataset.Summary{Dropped: r.Dropped}.DroppedTotal()
}

type run struct {
	req      *Request
	report   Report
	tracer   trace.Tracer
	runner   *toolchain.Runner
	compiler toolchain.Compiler
	disasm   toolchain.Disassembler
	dialect  standardize.Dialect
	records  []collect.Record
	// cached holds stems whose outcome was replayed from the cache.
	cached map[string]struct{}
	// outcomes holds per-stem failures of this run for the cache.
	outcomes map[string]TaskResult
	diagMu   sync.Mutex
}

// Run executes every stage in order. Setup problems (unknown dialect,
// missing tools, missing corpus root) are returned before any file is
// produced; per-sample tool failures are only reported.
func Run(ctx context.Context, req *Request) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return Report{}, fmt.Errorf("missing pipeline request")
	}
	if req.Input == "" || req.SourceDir == "" || req.AsmDir == "" || req.Output == "" {
		return Report{}, fmt.Errorf("pipeline request needs input, source dir, asm dir and output")
	}
	dialect, err := req.Strategy.NewDialect(req.Symbol)
	if err != nil {
		return Report{}, err
	}
	compilers := req.Compilers
	if compilers == nil {
		compilers = toolchain.DefaultCompilers()
	}
	p := &run{
		req:      req,
		tracer:   trace.FromContext(ctx),
		runner:   &toolchain.Runner{Timeout: req.Timeout, Echo: req.Echo},
		compiler: toolchain.Compiler{Tools: compilers, Flags: req.Flags, Mode: req.Strategy.Mode},
		disasm:   req.Disassembler.WithDefaults(),
		dialect:  dialect,
		cached:   make(map[string]struct{}),
		outcomes: make(map[string]TaskResult),
	}

	tools := p.compiler.Binaries()
	if req.Strategy.Disassembles() {
		tools = append(tools, p.disasm.Binary)
	}
	if err := toolchain.EnsureAvailable(tools...); err != nil {
		return p.report, err
	}
	if err := checkRoot(req.Input); err != nil {
		return p.report, err
	}
	for _, dir := range []string{req.SourceDir, req.AsmDir} {
		if err := resetWorkDir(dir); err != nil {
			return p.report, err
		}
	}

	span := trace.Begin(p.tracer, trace.ScopeDriver, "preprocess", trace.CurrentSpan(ctx)).
		WithExtra("corpus", req.Strategy.Name)
	ctx = trace.WithSpan(ctx, span)

	err = p.execute(ctx)
	span.WithExtra("written", strconv.Itoa(p.report.Written)).End(outcome(err))
	return p.report, err
}

func (p *run) execute(ctx context.Context) error {
	if err := p.stage(ctx, StageCollect, p.collect); err != nil {
		return err
	}
	if p.req.Cache != nil {
		if err := p.stage(ctx, StageReplay, p.replay); err != nil {
			return err
		}
	}
	if err := p.stage(ctx, StageCompile, p.compile); err != nil {
		return err
	}
	if p.req.Strategy.Disassembles() {
		if err := p.stage(ctx, StageDisassemble, p.disassemble); err != nil {
			return err
		}
	}
	if p.req.Cache != nil {
		p.store()
	}
	return p.stage(ctx, StageWrite, p.write)
}

func (p *run) stage(ctx context.Context, stage Stage, fn func(context.Context) (int, string, error)) error {
	span := trace.Begin(p.tracer, trace.ScopeStage, string(stage), trace.CurrentSpan(ctx))
	idx := p.req.Timer.Begin(string(stage))
	emit(p.req.Progress, Event{Stage: stage, Status: StatusWorking})

	items, note, err := fn(trace.WithSpan(ctx, span))

	elapsed := p.req.Timer.EndItems(idx, note, items)
	dur := span.WithExtra("items", strconv.Itoa(items)).End(outcome(err))
	if elapsed == 0 {
		elapsed = dur
	}
	p.report.Timings.Set(stage, elapsed)
	status := StatusDone
	if err != nil {
		status = StatusError
	}
	emit(p.req.Progress, Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	return err
}

func (p *run) collect(ctx context.Context) (int, string, error) {
	res, err := collect.Collect(ctx, collect.Options{
		Root:    p.req.Input,
		OutDir:  p.req.SourceDir,
		Budget:  p.req.Samples,
		Exclude: collect.ExcludeRules(p.req.Exclude),
		Cleanup: p.req.Strategy.Cleanup,
	})
	if err != nil {
		return 0, "", err
	}
	p.records = res.Records
	p.report.Collected = len(res.Records)
	p.report.Skipped = res.Skipped
	note := ""
	if len(res.Skipped) > 0 {
		note = fmt.Sprintf("%d skipped", len(res.Skipped))
	}
	return len(res.Records), note, nil
}

func (p *run) write(ctx context.Context) (int, string, error) {
	summary, err := dataset.Write(ctx, dataset.Options{
		SourceDir:  p.req.SourceDir,
		AsmDir:     p.req.AsmDir,
		Output:     p.req.Output,
		Dialect:    p.dialect,
		Extensions: sourceExtensions(p.compiler),
	})
	p.report.Written = summary.Written
	p.report.Dropped = summary.Dropped
	if err != nil {
		return summary.Written, "", err
	}
	note := ""
	if n := summary.DroppedTotal(); n > 0 {
		note = fmt.Sprintf("%d dropped", n)
	}
	return summary.Written, note, nil
}

func jobs(n, tasks int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, tasks))
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", collect.ErrRootMissing, root)
		}
		return fmt.Errorf("failed to stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus root %q is not a directory", root)
	}
	return nil
}

// resetWorkDir creates dir and removes pipeline artefacts left by a previous
// run. Only flat files with known extensions are touched.
func resetWorkDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read work dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".c", ".cpp", ".o", ".s":
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("failed to clear work dir: %w", err)
			}
		}
	}
	return nil
}

func sourceExtensions(c toolchain.Compiler) []string {
	exts := make([]string, 0, len(c.Tools))
	for ext := range c.Tools {
		exts = append(exts, ext)
	}
	return exts
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
