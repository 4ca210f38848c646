package dataset

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"asmcorpus/internal/standardize"
)

const sampleAsm = `
%[1]s.o:     file format elf64-x86-64


Disassembly of section .text:

0000000000000000 <f_gold(int)>:
f_gold(int):
   0:	endbr64 
   4:	mov    %edi,%eax
   6:	add    $0x1,%eax
   9:	ret    
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func objdump(t *testing.T) standardize.Dialect {
	t.Helper()
	d, err := standardize.Lookup(standardize.ObjdumpDialectName, standardize.DefaultTargetSymbol)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return d
}

func TestWriteJoinsByStem(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	asmDir := filepath.Join(root, "asm")
	writeFile(t, filepath.Join(srcDir, "a.cpp"), "\nint f_gold(int x) { return x + 1; }\n\n")
	writeFile(t, filepath.Join(asmDir, "a.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "a"))
	writeFile(t, filepath.Join(srcDir, "b.cpp"), "int f_gold(int x) { return x + 1; }\n")
	writeFile(t, filepath.Join(asmDir, "b.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "b"))

	out := filepath.Join(root, "out", "data.jsonl")
	summary, err := Write(context.Background(), Options{
		SourceDir: srcDir,
		AsmDir:    asmDir,
		Output:    out,
		Dialect:   objdump(t),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if summary.Written != 2 || summary.DroppedTotal() != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	entries, err := Read(f)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	wantInput := "f_gold(int):\n\t4: mov %edi , %eax ;\n\t6: add $0x1 , %eax ;\n\t9: ret ;\n"
	for i, name := range []string{"a.cpp", "b.cpp"} {
		e := entries[i]
		if e.FileName != name {
			t.Fatalf("entry %d: file_name %q, want %q", i, e.FileName, name)
		}
		if e.Input != wantInput {
			t.Fatalf("entry %d: input %q", i, e.Input)
		}
		if e.Output != "int f_gold(int x) { return x + 1; }" {
			t.Fatalf("entry %d: output not trimmed: %q", i, e.Output)
		}
	}
}

func TestWriteDropReasons(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	asmDir := filepath.Join(root, "asm")
	writeFile(t, filepath.Join(srcDir, "ok.cpp"), "int f_gold() { return 1; }\n")
	writeFile(t, filepath.Join(asmDir, "ok.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "ok"))
	writeFile(t, filepath.Join(srcDir, "missing.cpp"), "int f_gold() { return 2; }\n")
	writeFile(t, filepath.Join(srcDir, "blank.cpp"), "  \n\n")
	writeFile(t, filepath.Join(asmDir, "blank.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "blank"))
	writeFile(t, filepath.Join(srcDir, "nosym.cpp"), "int other() { return 3; }\n")
	writeFile(t, filepath.Join(asmDir, "nosym.s"), strings.ReplaceAll(
		strings.ReplaceAll(sampleAsm, "%[1]s", "nosym"), "f_gold", "other"))

	var buf bytes.Buffer
	summary, err := Encode(context.Background(), &buf, Options{
		SourceDir: srcDir,
		AsmDir:    asmDir,
		Dialect:   objdump(t),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if summary.Written != 1 {
		t.Fatalf("expected 1 written, got %d", summary.Written)
	}
	want := map[DropReason]int{
		DropMissingAssembly: 1,
		DropEmptySource:     1,
		DropSymbolNotFound:  1,
	}
	for reason, n := range want {
		if summary.Dropped[reason] != n {
			t.Fatalf("drop %s: got %d want %d (%+v)", reason, summary.Dropped[reason], n, summary.Dropped)
		}
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Fatalf("expected one line, got %d: %q", got, buf.String())
	}
	if len(summary.Reasons()) != 3 || summary.Reasons()[0] != DropEmptySource {
		t.Fatalf("unexpected reasons %v", summary.Reasons())
	}
}

func TestEncodeKeyOrderAndEscaping(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	asmDir := filepath.Join(root, "asm")
	writeFile(t, filepath.Join(srcDir, "x.cpp"), "bool f_gold(int a) { return a < 3 && a > 1; }\n")
	writeFile(t, filepath.Join(asmDir, "x.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "x"))

	var buf bytes.Buffer
	if _, err := Encode(context.Background(), &buf, Options{
		SourceDir: srcDir,
		AsmDir:    asmDir,
		Dialect:   objdump(t),
	}); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	line := buf.String()
	in := strings.Index(line, `"input"`)
	out := strings.Index(line, `"output"`)
	name := strings.Index(line, `"file_name"`)
	if !(in >= 0 && in < out && out < name) {
		t.Fatalf("unexpected key order: %s", line)
	}
	if !strings.Contains(line, "a < 3 && a > 1") {
		t.Fatalf("html characters were escaped: %s", line)
	}
}

func TestEncodeExtensionsFilter(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	asmDir := filepath.Join(root, "asm")
	writeFile(t, filepath.Join(srcDir, "a.cpp"), "int f_gold() { return 1; }\n")
	writeFile(t, filepath.Join(asmDir, "a.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "a"))
	writeFile(t, filepath.Join(srcDir, "notes.txt"), "ignored\n")

	var buf bytes.Buffer
	summary, err := Encode(context.Background(), &buf, Options{
		SourceDir:  srcDir,
		AsmDir:     asmDir,
		Dialect:    objdump(t),
		Extensions: []string{".c", ".cpp"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if summary.Written != 1 || summary.DroppedTotal() != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestWriteMissingDialect(t *testing.T) {
	if _, err := Write(context.Background(), Options{Output: filepath.Join(t.TempDir(), "x.jsonl")}); err == nil {
		t.Fatal("expected error without dialect")
	}
}

func TestWriteNormalizesOutsideSources(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	asmDir := filepath.Join(root, "asm")
	writeFile(t, filepath.Join(srcDir, "a.cpp"), "const char *f_gold = \"cafe\u0301\";\n")
	writeFile(t, filepath.Join(asmDir, "a.s"), strings.ReplaceAll(sampleAsm, "%[1]s", "a"))

	out := filepath.Join(root, "data.jsonl")
	if _, err := Write(context.Background(), Options{SourceDir: srcDir, AsmDir: asmDir, Output: out, Dialect: objdump(t)}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	entries, err := Read(f)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Read = %v, %v", entries, err)
	}
	if want := "const char *f_gold = \"caf\u00e9\";"; entries[0].Output != want {
		t.Fatalf("output = %q, want %q", entries[0].Output, want)
	}
}
