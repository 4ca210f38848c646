package toolchain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Mode selects what the compiler emits.
type Mode string

const (
	// ModeObject compiles without linking into <stem>.o.
	ModeObject Mode = "object"
	// ModeAssembly stops after code generation, emitting <stem>.s.
	ModeAssembly Mode = "assembly"
)

// ParseMode validates a compile mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeObject:
		return ModeObject, nil
	case ModeAssembly:
		return ModeAssembly, nil
	default:
		return "", fmt.Errorf("invalid compile mode %q (expected object|assembly)", s)
	}
}

// OutputExt returns the artefact extension produced in mode m.
func (m Mode) OutputExt() string {
	if m == ModeAssembly {
		return ".s"
	}
	return ".o"
}

// DefaultCompilers maps source extensions to the compiler driver.
func DefaultCompilers() map[string]string {
	return map[string]string{
		".c":   "gcc",
		".cpp": "g++",
	}
}

// Compiler builds compile invocations for one corpus.
type Compiler struct {
	Tools map[string]string // extension → compiler binary
	Flags []string          // inserted after -c/-S
	Mode  Mode
}

// Supports reports whether ext has a configured compiler.
func (c Compiler) Supports(ext string) bool {
	_, ok := c.Tools[ext]
	return ok
}

// Binaries lists the configured compiler binaries, sorted.
func (c Compiler) Binaries() []string {
	out := make([]string, 0, len(c.Tools))
	for _, tool := range c.Tools {
		out = append(out, tool)
	}
	sort.Strings(out)
	return out
}

// Command returns the invocation compiling src into outDir/<stem><ext>.
func (c Compiler) Command(src, outDir string) (Invocation, error) {
	ext := filepath.Ext(src)
	tool, ok := c.Tools[ext]
	if !ok {
		return Invocation{}, fmt.Errorf("no compiler configured for %q files", ext)
	}
	stem := strings.TrimSuffix(filepath.Base(src), ext)
	out := filepath.Join(outDir, stem+c.Mode.OutputExt())

	flag := "-c"
	if c.Mode == ModeAssembly {
		flag = "-S"
	}
	args := make([]string, 0, len(c.Flags)+4)
	args = append(args, flag)
	args = append(args, c.Flags...)
	args = append(args, src, "-o", out)
	return Invocation{Name: tool, Args: args, Output: out}, nil
}

// Fingerprint identifies the compile template for cache keys.
func (c Compiler) Fingerprint() string {
	exts := make([]string, 0, len(c.Tools))
	for ext := range c.Tools {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	var b strings.Builder
	b.WriteString(string(c.Mode))
	for _, ext := range exts {
		b.WriteString("|" + ext + "=" + c.Tools[ext])
	}
	b.WriteString("|" + strings.Join(c.Flags, " "))
	return b.String()
}

// Disassembler builds objdump invocations.
type Disassembler struct {
	Binary string // default "objdump"
	Syntax string // default "att"
	Arch   string // default "x86-64"
}

// WithDefaults fills empty fields.
func (d Disassembler) WithDefaults() Disassembler {
	if d.Binary == "" {
		d.Binary = "objdump"
	}
	if d.Syntax == "" {
		d.Syntax = "att"
	}
	if d.Arch == "" {
		d.Arch = "x86-64"
	}
	return d
}

// Command returns the invocation disassembling obj; the caller routes
// Stdout into the sibling .s file reported as Output.
func (d Disassembler) Command(obj string) Invocation {
	d = d.WithDefaults()
	out := strings.TrimSuffix(obj, filepath.Ext(obj)) + ".s"
	return Invocation{
		Name:   d.Binary,
		Args:   d.args(obj),
		Output: out,
	}
}

func (d Disassembler) args(obj string) []string {
	return []string{
		"-d",
		"-M", d.Syntax,
		"-M", d.Arch,
		"-M", "att-mnemonic",
		"-M", "suffix",
		"--demangle",
		"--line-numbers",
		"--no-show-raw-insn",
		obj,
	}
}

// Fingerprint identifies the disassembly flag set for cache keys.
func (d Disassembler) Fingerprint() string {
	d = d.WithDefaults()
	return d.Binary + "|" + strings.Join(d.args(""), " ")
}
