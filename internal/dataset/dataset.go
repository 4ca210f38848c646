// Package dataset joins cleaned sources with their standardized assembly and
// writes the pairs as JSON Lines.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"asmcorpus/internal/standardize"
	"asmcorpus/internal/trace"
)

// Entry is one dataset record. Field order is the serialized key order.
type Entry struct {
	Input    string `json:"input"`
	Output   string `json:"output"`
	FileName string `json:"file_name"`
}

// DropReason explains why a source produced no entry.
type DropReason string

const (
	DropMissingAssembly DropReason = "missing_assembly"
	DropSymbolNotFound  DropReason = "symbol_not_found"
	DropEmptySource     DropReason = "empty_source"
	DropEmptyAssembly   DropReason = "empty_assembly"
)

// Summary counts written and dropped samples.
type Summary struct {
	Written int
	Dropped map[DropReason]int
}

// DroppedTotal sums every drop reason.
func (s Summary) DroppedTotal() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Reasons returns the drop reasons present, sorted.
func (s Summary) Reasons() []DropReason {
	out := make([]DropReason, 0, len(s.Dropped))
	for r := range s.Dropped {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Summary) drop(r DropReason) {
	if s.Dropped == nil {
		s.Dropped = make(map[DropReason]int)
	}
	s.Dropped[r]++
}

// Options configures a write pass.
type Options struct {
	SourceDir string
	AsmDir    string
	Output    string
	Dialect   standardize.Dialect
	// Extensions restricts which files in SourceDir count as sources.
	// Empty accepts every regular file.
	Extensions []string
}

// Write pairs every source in SourceDir with AsmDir/<stem>.s and writes the
// entries to Output. The file is replaced atomically.
func Write(ctx context.Context, opts Options) (Summary, error) {
	if opts.Dialect == nil {
		return Summary{}, fmt.Errorf("missing standardization dialect")
	}
	dir := filepath.Dir(opts.Output)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Summary{}, fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dataset-*")
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create dataset file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	buf := bufio.NewWriter(tmp)
	summary, err := Encode(ctx, buf, opts)
	if err == nil {
		err = buf.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return summary, err
	}
	if err := os.Rename(tmp.Name(), opts.Output); err != nil {
		return summary, fmt.Errorf("failed to write dataset %q: %w", opts.Output, err)
	}
	return summary, nil
}

// Encode streams entries to w in directory order.
func Encode(ctx context.Context, w io.Writer, opts Options) (Summary, error) {
	var summary Summary
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx)

	entries, err := os.ReadDir(opts.SourceDir)
	if err != nil {
		return summary, fmt.Errorf("failed to read source dir: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !de.Type().IsRegular() || !acceptExt(opts.Extensions, de.Name()) {
			continue
		}
		name := de.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		entry, reason, err := buildEntry(opts, name, stem)
		if err != nil {
			return summary, err
		}
		if reason != "" {
			summary.drop(reason)
			trace.Point(tracer, trace.ScopeSample, "drop:"+string(reason), name, parent, nil)
			continue
		}
		if err := enc.Encode(entry); err != nil {
			return summary, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		summary.Written++
	}
	return summary, nil
}

func buildEntry(opts Options, name, stem string) (Entry, DropReason, error) {
	// #nosec G304 -- name comes from listing SourceDir
	src, err := os.ReadFile(filepath.Join(opts.SourceDir, name))
	if err != nil {
		return Entry{}, "", fmt.Errorf("failed to read source %s: %w", name, err)
	}
	output := strings.TrimSpace(string(src))
	if output == "" {
		return Entry{}, DropEmptySource, nil
	}

	stream, err := standardize.File(opts.Dialect, filepath.Join(opts.AsmDir, stem+".s"))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Entry{}, DropMissingAssembly, nil
	case errors.Is(err, standardize.ErrSymbolNotFound):
		return Entry{}, DropSymbolNotFound, nil
	case err != nil:
		return Entry{}, "", fmt.Errorf("failed to standardize %s: %w", stem, err)
	}
	if stream.Empty() {
		return Entry{}, DropEmptyAssembly, nil
	}

	return Entry{
		Input:    norm.NFC.String(stream.String()),
		Output:   norm.NFC.String(output),
		FileName: name,
	}, "", nil
}

func acceptExt(exts []string, name string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// Read decodes a JSONL dataset.
func Read(r io.Reader) ([]Entry, error) {
	var out []Entry
	dec := json.NewDecoder(r)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, e)
	}
}
