package standardize

import (
	"fmt"
	"regexp"
	"strings"
)

// GCCDialectName selects the compiler-emitted (`-S`) assembly grammar.
const GCCDialectName = "gcc"

var labelLine = regexp.MustCompile(`^([A-Za-z_.$][\w.$@]*):\s*$`)

// GCC parses assembler output bracketed by .cfi_startproc/.cfi_endproc.
type GCC struct {
	symbol string
}

// NewGCC returns a gcc dialect. An empty symbol takes the first
// CFI-bracketed function in the file.
func NewGCC(symbol string) *GCC {
	return &GCC{symbol: symbol}
}

// Name implements Dialect.
func (d *GCC) Name() string { return GCCDialectName }

// Standardize implements Dialect.
func (d *GCC) Standardize(raw string) (Stream, error) {
	var (
		out      Stream
		label    string
		inRegion bool
	)
	for _, line := range splitLines(raw) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !inRegion {
			if m := labelLine.FindStringSubmatch(trimmed); m != nil {
				// .LFB0 and friends sit between the symbol and .cfi_startproc.
				if !strings.HasPrefix(m[1], ".L") {
					label = m[1]
				}
				continue
			}
			if trimmed == ".cfi_startproc" && label != "" && d.matches(label) {
				out.Signature = label + ":"
				inRegion = true
			}
			continue
		}
		if trimmed == ".cfi_endproc" {
			return out, nil
		}
		if strings.HasPrefix(trimmed, ".cfi_") || trimmed == "endbr64" {
			continue
		}
		out.Instructions = append(out.Instructions, normalizeInstruction(trimmed))
	}
	// An unterminated region is truncated input, not a function.
	return Stream{}, fmt.Errorf("%s %s: %w", d.Name(), d.describe(), ErrSymbolNotFound)
}

func (d *GCC) matches(label string) bool {
	return d.symbol == "" || strings.HasPrefix(label, d.symbol)
}

func (d *GCC) describe() string {
	if d.symbol == "" {
		return "<.cfi_startproc>"
	}
	return "<" + d.symbol + ">"
}
