package toolchain

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestCompilerCommand(t *testing.T) {
	out := filepath.Join("work", "asm")
	cases := []struct {
		name     string
		compiler Compiler
		src      string
		want     string
		output   string
	}{
		{
			name:     "c object",
			compiler: Compiler{Tools: DefaultCompilers(), Mode: ModeObject},
			src:      filepath.Join("work", "src", "add.c"),
			want:     "gcc -c " + filepath.Join("work", "src", "add.c") + " -o " + filepath.Join(out, "add.o"),
			output:   filepath.Join(out, "add.o"),
		},
		{
			name:     "cpp object with flags",
			compiler: Compiler{Tools: DefaultCompilers(), Flags: []string{"-O0", "-w"}, Mode: ModeObject},
			src:      filepath.Join("work", "src", "sum.cpp"),
			want:     "g++ -c -O0 -w " + filepath.Join("work", "src", "sum.cpp") + " -o " + filepath.Join(out, "sum.o"),
			output:   filepath.Join(out, "sum.o"),
		},
		{
			name:     "assembly only",
			compiler: Compiler{Tools: DefaultCompilers(), Mode: ModeAssembly},
			src:      filepath.Join("work", "src", "angha.c"),
			want:     "gcc -S " + filepath.Join("work", "src", "angha.c") + " -o " + filepath.Join(out, "angha.s"),
			output:   filepath.Join(out, "angha.s"),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := tc.compiler.Command(tc.src, out)
			if err != nil {
				t.Fatalf("Command: %v", err)
			}
			if inv.String() != tc.want {
				t.Fatalf("command = %q, want %q", inv.String(), tc.want)
			}
			if inv.Output != tc.output {
				t.Fatalf("output = %q, want %q", inv.Output, tc.output)
			}
		})
	}
}

func TestCompilerRejectsUnknownExtension(t *testing.T) {
	c := Compiler{Tools: DefaultCompilers()}
	if _, err := c.Command("x.rs", "out"); err == nil {
		t.Fatalf("expected error for .rs source")
	}
	if c.Supports(".h") {
		t.Fatalf("headers must not be compiled")
	}
}

func TestDisassemblerFlags(t *testing.T) {
	inv := Disassembler{}.Command(filepath.Join("asm", "add.o"))
	want := "objdump -d -M att -M x86-64 -M att-mnemonic -M suffix --demangle --line-numbers --no-show-raw-insn " + filepath.Join("asm", "add.o")
	if inv.String() != want {
		t.Fatalf("command = %q\nwant %q", inv.String(), want)
	}
	if inv.Output != filepath.Join("asm", "add.s") {
		t.Fatalf("output = %q", inv.Output)
	}
	intel := Disassembler{Syntax: "intel", Arch: "i386"}.Command("a.o")
	if !strings.Contains(intel.String(), "-M intel -M i386") {
		t.Fatalf("syntax/arch not applied: %q", intel.String())
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeObject {
		t.Fatalf("ParseMode(\"\") = %q, %v", m, err)
	}
	if m, err := ParseMode("Assembly"); err != nil || m != ModeAssembly {
		t.Fatalf("ParseMode(Assembly) = %q, %v", m, err)
	}
	if _, err := ParseMode("link"); err == nil {
		t.Fatalf("expected error for link mode")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Compiler{Tools: map[string]string{".c": "gcc", ".cpp": "g++"}, Mode: ModeObject}
	b := Compiler{Tools: map[string]string{".cpp": "g++", ".c": "gcc"}, Mode: ModeObject}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("fingerprint depends on map order: %q vs %q", a.Fingerprint(), b.Fingerprint())
	}
	c := Compiler{Tools: a.Tools, Mode: ModeAssembly}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("mode must change the fingerprint")
	}
}
