// Package collect gathers a sample of C/C++ sources from a corpus tree into
// a flat working directory and cleans them up for pairing with assembly.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"asmcorpus/internal/trace"
)

// ErrRootMissing is returned when the corpus root does not exist.
var ErrRootMissing = errors.New("corpus root not found")

// Language identifies a source dialect by file extension.
type Language string

const (
	LangC   Language = "c"
	LangCPP Language = "cpp"
)

// DefaultExtensions maps eligible file extensions to their language.
var DefaultExtensions = map[string]Language{
	".c":   LangC,
	".cpp": LangCPP,
}

// Record is one collected, cleaned source file.
type Record struct {
	Origin   string // path in the corpus tree
	Path     string // path in the output directory
	Stem     string
	Language Language
	Text     string // cleaned content
}

// SkipReason explains why an eligible file was not collected.
type SkipReason string

const (
	SkipExcluded   SkipReason = "excluded"
	SkipDuplicate  SkipReason = "duplicate_stem"
	SkipUnreadable SkipReason = "unreadable"
)

// Skip records a file or directory the collector passed over.
type Skip struct {
	Path   string
	Reason SkipReason
	Err    error
}

// Options configures a collection pass.
type Options struct {
	Root    string
	OutDir  string
	Budget  int // maximum files to collect; negative means unlimited
	Exclude ExcludeRules
	Cleanup Cleanup
	// Extensions overrides DefaultExtensions when non-nil.
	Extensions map[string]Language
}

// Result lists what a collection pass produced.
type Result struct {
	Records []Record
	Skipped []Skip
}

type frame struct {
	rel     string
	entries []fs.DirEntry
	next    int
}

// Collect walks opts.Root depth-first, copying up to opts.Budget eligible
// files into opts.OutDir and cleaning each copy in place. Children are
// visited in lexical order; a subdirectory is fully walked before its later
// siblings, and the walk stops as soon as the budget is spent.
func Collect(ctx context.Context, opts Options) (Result, error) {
	var result Result
	if ctx == nil {
		ctx = context.Background()
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("%w: %s", ErrRootMissing, opts.Root)
		}
		return result, fmt.Errorf("failed to stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("corpus root %q is not a directory", opts.Root)
	}
	if err := os.MkdirAll(opts.OutDir, 0o750); err != nil {
		return result, fmt.Errorf("failed to create source dir: %w", err)
	}
	exts := opts.Extensions
	if exts == nil {
		exts = DefaultExtensions
	}

	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx)

	rootEntries, err := os.ReadDir(opts.Root)
	if err != nil {
		return result, fmt.Errorf("failed to read corpus root: %w", err)
	}
	budget := opts.Budget
	stems := make(map[string]struct{})
	stack := []*frame{{rel: "", entries: rootEntries}}

	for len(stack) > 0 && budget != 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		top := stack[len(stack)-1]
		if top.next >= len(top.entries) {
			stack = stack[:len(stack)-1]
			continue
		}
		entry := top.entries[top.next]
		top.next++

		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}
		rel := name
		if top.rel != "" {
			rel = top.rel + "/" + name
		}
		if opts.Exclude.Match(rel) {
			result.Skipped = append(result.Skipped, Skip{Path: rel, Reason: SkipExcluded})
			continue
		}

		full := filepath.Join(opts.Root, filepath.FromSlash(rel))
		if entry.IsDir() {
			children, readErr := os.ReadDir(full)
			if readErr != nil {
				result.Skipped = append(result.Skipped, Skip{Path: rel, Reason: SkipUnreadable, Err: readErr})
				trace.Point(tracer, trace.ScopeSample, "collect:unreadable", readErr.Error(), parent, map[string]string{"path": rel})
				continue
			}
			stack = append(stack, &frame{rel: rel, entries: children})
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		ext := filepath.Ext(name)
		lang, ok := exts[ext]
		if !ok {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		if _, taken := stems[stem]; taken {
			result.Skipped = append(result.Skipped, Skip{Path: rel, Reason: SkipDuplicate})
			trace.Point(tracer, trace.ScopeSample, "collect:duplicate", stem, parent, map[string]string{"path": rel})
			continue
		}

		rec, copyErr := copySource(full, opts.OutDir, name, opts.Cleanup)
		if copyErr != nil {
			result.Skipped = append(result.Skipped, Skip{Path: rel, Reason: SkipUnreadable, Err: copyErr})
			trace.Point(tracer, trace.ScopeSample, "collect:unreadable", copyErr.Error(), parent, map[string]string{"path": rel})
			continue
		}
		rec.Origin = full
		rec.Stem = stem
		rec.Language = lang
		stems[stem] = struct{}{}
		result.Records = append(result.Records, rec)
		if budget > 0 {
			budget--
		}
	}
	return result, nil
}

func copySource(src, outDir, name string, cleanup Cleanup) (Record, error) {
	// #nosec G304 -- src is a regular file found under the corpus root
	data, err := os.ReadFile(src)
	if err != nil {
		return Record{}, err
	}
	dst := filepath.Join(outDir, name)
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return Record{}, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	text, err := cleanup.File(dst)
	if err != nil {
		return Record{}, fmt.Errorf("failed to clean %s: %w", dst, err)
	}
	return Record{Path: dst, Text: text}, nil
}
