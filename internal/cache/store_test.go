package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStorePutGet(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := Key("object|.c=gcc", []byte("int f_gold() { return 0; }\n"))
	if _, ok, err := store.Get(key); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	want := &Payload{Stem: "f", Status: StatusOK, Assembly: "raw objdump text\n", Lines: 1}
	if err := store.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Stem != want.Stem || got.Status != StatusOK || got.Assembly != want.Assembly || got.Lines != 1 {
		t.Fatalf("payload = %+v", got)
	}
	if got.Schema != schemaVersion || got.Stored == 0 {
		t.Fatalf("schema/stored not stamped: %+v", got)
	}
	tmp, _ := filepath.Glob(filepath.Join(store.Dir(), "samples", "tmp-*"))
	if len(tmp) != 0 {
		t.Fatalf("temp files left behind: %v", tmp)
	}
}

func TestKeyDependsOnFingerprint(t *testing.T) {
	src := []byte("int f_gold;\n")
	if Key("a", src) == Key("b", src) {
		t.Fatalf("fingerprint ignored")
	}
	if Key("a", src) != Key("a", []byte("int f_gold;\n")) {
		t.Fatalf("key not deterministic")
	}
}

func TestDropAll(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := Key("fp", []byte("x"))
	if err := store.Put(key, &Payload{Stem: "x", Status: StatusCompileFailed}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.DropAll(); err != nil {
		t.Fatalf("DropAll: %v", err)
	}
	if _, ok, _ := store.Get(key); ok {
		t.Fatalf("entry survived DropAll")
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "samples")); err != nil {
		t.Fatalf("store unusable after DropAll: %v", err)
	}
}

func TestStatusString(t *testing.T) {
	if StatusDisassembleFailed.String() != "disassemble_failed" || Status(0).String() != "unknown" {
		t.Fatalf("unexpected status names")
	}
}

func TestGetRejectsLineCountMismatch(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := Key("fp", []byte("int f_gold;\n"))
	asm := "f_gold:\n\tret\n"
	if err := store.Put(key, &Payload{Stem: "f", Status: StatusOK, Assembly: asm, Lines: 7}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := store.Get(key); ok || !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get = %v, %v; want ErrCorrupt", ok, err)
	}

	lines, err := CountLines(asm)
	if err != nil || lines != 2 {
		t.Fatalf("CountLines = %d, %v", lines, err)
	}
	if err := store.Put(key, &Payload{Stem: "f", Status: StatusOK, Assembly: asm, Lines: lines}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := store.Get(key); !ok || err != nil {
		t.Fatalf("Get after repair = %v, %v", ok, err)
	}
}

func TestGetRejectsGarbage(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	key := Key("fp", []byte("x"))
	if err := os.WriteFile(store.pathFor(key), []byte{0xc1, 0xc1}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Get(key); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}
