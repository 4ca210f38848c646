// Package corpus names the supported input corpora and the processing
// choices each one implies.
package corpus

import (
	"fmt"
	"sort"
	"strings"

	"asmcorpus/internal/collect"
	"asmcorpus/internal/standardize"
	"asmcorpus/internal/toolchain"
)

const (
	GeeksForGeeks = "geeksforgeeks"
	AnghaBench    = "anghabench"

	// Default is used when no corpus is configured.
	Default = GeeksForGeeks
)

// Strategy drives one pipeline over a corpus.
type Strategy struct {
	Name        string
	Description string
	Cleanup     collect.Cleanup
	// Mode selects object output followed by disassembly, or direct
	// compiler assembly output.
	Mode toolchain.Mode
	// Dialect and Symbol select the standardizer.
	Dialect string
	Symbol  string
}

// Disassembles reports whether the strategy runs the disassemble stage.
func (s Strategy) Disassembles() bool {
	return s.Mode != toolchain.ModeAssembly
}

// NewDialect builds the standardizer, honoring a non-empty symbol override.
func (s Strategy) NewDialect(symbol string) (standardize.Dialect, error) {
	if symbol == "" {
		symbol = s.Symbol
	}
	return standardize.Lookup(s.Dialect, symbol)
}

// Fingerprint identifies the strategy for cache keys.
func (s Strategy) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s|%t", s.Name, s.Mode, s.Dialect, s.Symbol, s.Cleanup.HeaderStripped)
}

var strategies = map[string]Strategy{
	GeeksForGeeks: {
		Name:        GeeksForGeeks,
		Description: "competitive-programming solutions with an f_gold target function",
		Cleanup:     collect.Cleanup{},
		Mode:        toolchain.ModeObject,
		Dialect:     standardize.ObjdumpDialectName,
		Symbol:      standardize.DefaultTargetSymbol,
	},
	AnghaBench: {
		Name:        AnghaBench,
		Description: "single-function C files extracted without their headers",
		Cleanup:     collect.Cleanup{HeaderStripped: true},
		Mode:        toolchain.ModeAssembly,
		Dialect:     standardize.GCCDialectName,
	},
}

// Lookup returns the strategy registered under name (case-insensitive).
func Lookup(name string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = Default
	}
	s, ok := strategies[key]
	if !ok {
		return Strategy{}, fmt.Errorf("unknown corpus %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists registered corpora, sorted.
func Names() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
