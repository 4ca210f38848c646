package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"asmcorpus/internal/dataset"
	"asmcorpus/internal/observ"
	"asmcorpus/internal/pipeline"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess [dataset]",
	Short: "Collect, compile, disassemble and write a dataset",
	Long: `Collect up to --samples sources from the raw corpus, compile and
disassemble them, standardize the target function and write one JSON line per
sample. [dataset] overrides [dataset].name from the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreprocess,
}

func init() {
	addPreprocessFlags(preprocessCmd.Flags())
}

func addPreprocessFlags(f *pflag.FlagSet) {
	f.String("corpus", "", "corpus strategy (geeksforgeeks|anghabench)")
	f.String("input", "", "raw corpus root (default datasets/raw/<dataset>)")
	f.String("source-dir", "", "working directory for cleaned sources")
	f.String("asm-dir", "", "working directory for objects and assembly")
	f.String("output", "", "dataset file (default datasets/formatted/<dataset>.jsonl)")
	f.Int("samples", 0, "maximum number of sources to collect (negative for no limit)")
	f.Int("jobs", 0, "parallel compiler/disassembler processes (0 uses all CPUs)")
	f.String("syntax", "", "disassembly syntax (att|intel)")
	f.String("arch", "", "objdump -M architecture")
	f.String("objdump", "", "disassembler binary")
	f.String("symbol", "", "target function symbol")
	f.Duration("timeout", 0, "per-tool timeout (0 disables)")
	f.StringSlice("exclude", nil, "deny globs relative to the corpus root (repeatable)")
	f.Bool("cache", false, "replay and store per-sample outcomes in the stage cache")
	f.Bool("print-commands", false, "print every tool command before it runs")
	f.String("ui", "auto", "progress UI (auto|on|off)")
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFor(cmd)
	if err != nil {
		return err
	}
	if err := applyPreprocessFlags(cmd, &cfg, args); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	req, err := cfg.request()
	if err != nil {
		return err
	}
	quiet := quietFlag(cmd)
	useTUI := shouldUseTUI(mode, quiet)
	if !quiet && !useTUI {
		req.Diagnostics = cmd.ErrOrStderr()
	}
	if printCommands, _ := cmd.Flags().GetBool("print-commands"); printCommands {
		req.Echo = cmd.ErrOrStderr()
	}
	var timer *observ.Timer
	if timingsFlag(cmd) {
		timer = observ.NewTimer()
		req.Timer = timer
	}

	var report pipeline.Report
	if useTUI {
		report, err = runPipelineWithUI(cmd.Context(), "preprocess "+cfg.Dataset.Name, req)
	} else {
		report, err = pipeline.Run(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !quiet {
		if useTUI {
			printFailures(out, report.Failures, 10)
		}
		printReport(out, report, req.Output)
	}
	if timer != nil {
		fmt.Fprint(out, timer.Summary())
	}
	return nil
}

func applyPreprocessFlags(cmd *cobra.Command, cfg *projectConfig, args []string) error {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		cfg.Dataset.Name = strings.TrimSpace(args[0])
	}
	f := cmd.Flags()
	strFlags := map[string]*string{
		"corpus":     &cfg.Dataset.Corpus,
		"input":      &cfg.Dataset.Input,
		"source-dir": &cfg.Dataset.SourceDir,
		"asm-dir":    &cfg.Dataset.AsmDir,
		"output":     &cfg.Dataset.Output,
		"syntax":     &cfg.Toolchain.Syntax,
		"arch":       &cfg.Toolchain.Arch,
		"objdump":    &cfg.Toolchain.Objdump,
		"symbol":     &cfg.Toolchain.Symbol,
	}
	for name, dst := range strFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetString(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	// Flag paths are relative to the working directory, not the config.
	for _, name := range []string{"input", "source-dir", "asm-dir", "output"} {
		if f.Changed(name) {
			if err := absFlag(strFlags[name]); err != nil {
				return err
			}
		}
	}
	intFlags := map[string]*int{
		"samples": &cfg.Dataset.Samples,
		"jobs":    &cfg.Toolchain.Jobs,
	}
	for name, dst := range intFlags {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetInt(name)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	if f.Changed("timeout") {
		d, err := f.GetDuration("timeout")
		if err != nil {
			return fmt.Errorf("failed to get timeout flag: %w", err)
		}
		cfg.Toolchain.Timeout = d.String()
	}
	if f.Changed("exclude") {
		v, err := f.GetStringSlice("exclude")
		if err != nil {
			return fmt.Errorf("failed to get exclude flag: %w", err)
		}
		cfg.Dataset.Exclude = append(cfg.Dataset.Exclude, v...)
	}
	if f.Changed("cache") {
		v, err := f.GetBool("cache")
		if err != nil {
			return fmt.Errorf("failed to get cache flag: %w", err)
		}
		cfg.Cache.Enabled = v
	}
	return nil
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

func printReport(out io.Writer, r pipeline.Report, output string) {
	fmt.Fprintf(out, "collected %d", r.Collected)
	if n := len(r.Skipped); n > 0 {
		fmt.Fprintf(out, " (%d skipped)", n)
	}
	fmt.Fprintln(out)
	if r.CacheHits > 0 {
		fmt.Fprintf(out, "cached    %d\n", r.CacheHits)
	}
	fmt.Fprintf(out, "compiled  %d%s\n", r.Compiled, failedSuffix(r.CompileFailed))
	if r.Disassembled > 0 || r.DisassembleFailed > 0 {
		fmt.Fprintf(out, "disasm    %d%s\n", r.Disassembled, failedSuffix(r.DisassembleFailed))
	}
	fmt.Fprintf(out, "%s %d entries to %s\n", okColor.Sprint("wrote"), r.Written, output)
	if r.DroppedTotal() > 0 {
		fmt.Fprintf(out, "%s %d samples:", warnColor.Sprint("dropped"), r.DroppedTotal())
		for _, reason := range sortedDropReasons(r) {
			fmt.Fprintf(out, " %s=%d", reason, r.Dropped[reason])
		}
		fmt.Fprintln(out)
	}
}

func failedSuffix(n int) string {
	if n == 0 {
		return ""
	}
	return failColor.Sprintf(" (%d failed)", n)
}

func printFailures(out io.Writer, failures []pipeline.TaskResult, limit int) {
	for i, f := range failures {
		if i == limit {
			fmt.Fprintf(out, "... and %d more failures\n", len(failures)-limit)
			return
		}
		msg := ""
		if f.Err != nil {
			msg = firstLine(f.Err.Error())
		}
		fmt.Fprintf(out, "%s %s %s: %s\n", failColor.Sprint("error:"), f.Stage, f.Stem, msg)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func sortedDropReasons(r pipeline.Report) []dataset.DropReason {
	return dataset.Summary{Dropped: r.Dropped}.Reasons()
}

func absFlag(p *string) error {
	if *p == "" {
		return nil
	}
	abs, err := filepath.Abs(*p)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", *p, err)
	}
	*p = abs
	return nil
}
