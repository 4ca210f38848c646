package corpus

import (
	"strings"
	"testing"

	"asmcorpus/internal/standardize"
	"asmcorpus/internal/toolchain"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in          string
		want        string
		disassemble bool
		dialect     string
		err         bool
	}{
		{in: "", want: GeeksForGeeks, disassemble: true, dialect: standardize.ObjdumpDialectName},
		{in: "GeeksForGeeks", want: GeeksForGeeks, disassemble: true, dialect: standardize.ObjdumpDialectName},
		{in: " anghabench ", want: AnghaBench, disassemble: false, dialect: standardize.GCCDialectName},
		{in: "csmith", err: true},
	}
	for _, tt := range tests {
		s, err := Lookup(tt.in)
		if tt.err {
			if err == nil || !strings.Contains(err.Error(), "supported") {
				t.Fatalf("Lookup(%q): expected error listing corpora, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.in, err)
		}
		if s.Name != tt.want || s.Disassembles() != tt.disassemble {
			t.Fatalf("Lookup(%q) = %+v", tt.in, s)
		}
		d, err := s.NewDialect("")
		if err != nil {
			t.Fatalf("NewDialect: %v", err)
		}
		if d.Name() != tt.dialect {
			t.Fatalf("%s: dialect %q, want %q", tt.in, d.Name(), tt.dialect)
		}
	}
}

func TestStrategyShapes(t *testing.T) {
	g, _ := Lookup(GeeksForGeeks)
	a, _ := Lookup(AnghaBench)
	if g.Cleanup.HeaderStripped || !a.Cleanup.HeaderStripped {
		t.Fatalf("unexpected cleanup dialects: %+v / %+v", g.Cleanup, a.Cleanup)
	}
	if g.Mode != toolchain.ModeObject || a.Mode != toolchain.ModeAssembly {
		t.Fatalf("unexpected modes: %s / %s", g.Mode, a.Mode)
	}
	if g.Fingerprint() == a.Fingerprint() {
		t.Fatal("fingerprints should differ across corpora")
	}
}

func TestNames(t *testing.T) {
	got := strings.Join(Names(), ",")
	if got != "anghabench,geeksforgeeks" {
		t.Fatalf("Names() = %s", got)
	}
}
