// Package standardize turns raw disassembler or compiler assembly text into
// the canonical instruction stream used as model input.
package standardize

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrSymbolNotFound is returned when the target function is absent from the
// raw text. Standardized output no longer carries the markers the dialects
// look for, so re-standardizing it also yields this error.
var ErrSymbolNotFound = errors.New("target symbol not found")

// Stream is one function's canonical instruction stream.
type Stream struct {
	Signature    string
	Instructions []string
}

// String renders the stream: the signature line followed by each
// instruction, every line newline-terminated.
func (s Stream) String() string {
	if s.Signature == "" && len(s.Instructions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(s.Signature)
	b.WriteByte('\n')
	for _, inst := range s.Instructions {
		b.WriteString(inst)
		b.WriteByte('\n')
	}
	return b.String()
}

// Empty reports whether the stream carries no instructions.
func (s Stream) Empty() bool {
	return len(s.Instructions) == 0
}

// Dialect parses one grammar of raw assembly text.
type Dialect interface {
	Name() string
	Standardize(raw string) (Stream, error)
}

// Factory builds a dialect for a target symbol prefix; an empty symbol
// selects the dialect's default.
type Factory func(symbol string) Dialect

var registry = map[string]Factory{
	ObjdumpDialectName: func(symbol string) Dialect { return NewObjdump(symbol) },
	GCCDialectName:     func(symbol string) Dialect { return NewGCC(symbol) },
}

// Lookup returns the dialect registered under name.
func Lookup(name, symbol string) (Dialect, error) {
	factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown assembly dialect %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return factory(symbol), nil
}

// Names lists registered dialect names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File reads path and standardizes its content with d.
func File(d Dialect, path string) (Stream, error) {
	// #nosec G304 -- path comes from the pipeline's asm directory
	data, err := os.ReadFile(path)
	if err != nil {
		return Stream{}, err
	}
	stream, err := d.Standardize(string(data))
	if err != nil {
		return Stream{}, fmt.Errorf("%s: %w", path, err)
	}
	return stream, nil
}

// normalizeInstruction pads operand commas, collapses whitespace and wraps
// the line as "\t<inst> ;".
func normalizeInstruction(line string) string {
	line = strings.Join(strings.Fields(strings.ReplaceAll(line, ",", " , ")), " ")
	return "\t" + line + " ;"
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
