package standardize

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// ObjdumpDialectName selects the objdump disassembly grammar.
	ObjdumpDialectName = "objdump"
	// DefaultTargetSymbol is the function every corpus sample defines.
	DefaultTargetSymbol = "f_gold"

	objdumpHeaderLines = 5
)

var (
	symbolBoundary = regexp.MustCompile(`^[0-9a-fA-F]{16} <.*>:$`)
	endbrLine      = regexp.MustCompile(`^\s*(?:[0-9a-fA-F]+:\s*)?endbr64\s*$`)
)

type objdumpState uint8

const (
	seekingSymbol objdumpState = iota
	captureSignature
	captureBody
	done
)

// Objdump parses `objdump -d --line-numbers --no-show-raw-insn` output.
type Objdump struct {
	symbol      string
	symbolLine  *regexp.Regexp
	headerLines int
}

// NewObjdump returns an objdump dialect targeting functions whose symbol
// starts with symbol.
func NewObjdump(symbol string) *Objdump {
	if symbol == "" {
		symbol = DefaultTargetSymbol
	}
	return &Objdump{
		symbol:      symbol,
		symbolLine:  regexp.MustCompile(`^[0-9a-fA-F]{16} <` + regexp.QuoteMeta(symbol) + `.*>`),
		headerLines: objdumpHeaderLines,
	}
}

// Name implements Dialect.
func (d *Objdump) Name() string { return ObjdumpDialectName }

// Standardize implements Dialect.
func (d *Objdump) Standardize(raw string) (Stream, error) {
	lines := splitLines(raw)
	if len(lines) <= d.headerLines {
		return Stream{}, fmt.Errorf("%s <%s>: %w", d.Name(), d.symbol, ErrSymbolNotFound)
	}

	var out Stream
	state := seekingSymbol
	for _, line := range lines[d.headerLines:] {
		if state == done {
			break
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		switch state {
		case seekingSymbol:
			if d.symbolLine.MatchString(line) {
				state = captureSignature
			}
		case captureSignature:
			out.Signature = line
			state = captureBody
		case captureBody:
			if endbrLine.MatchString(line) {
				continue
			}
			if symbolBoundary.MatchString(line) {
				state = done
				continue
			}
			out.Instructions = append(out.Instructions, normalizeInstruction(line))
		}
	}

	if state == seekingSymbol {
		return Stream{}, fmt.Errorf("%s <%s>: %w", d.Name(), d.symbol, ErrSymbolNotFound)
	}
	return out, nil
}
