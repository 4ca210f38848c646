// Package cache persists per-sample compile/disassemble outcomes so reruns
// over an unchanged corpus skip the external tools.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorrupt marks an entry that cannot be decoded or disagrees with its
// recorded line count.
var ErrCorrupt = errors.New("corrupt cache entry")

// Current schema version - increment when Payload format changes.
const schemaVersion uint16 = 1

// Status is the recorded outcome of a sample.
type Status uint8

const (
	StatusOK Status = iota + 1
	StatusCompileFailed
	StatusDisassembleFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCompileFailed:
		return "compile_failed"
	case StatusDisassembleFailed:
		return "disassemble_failed"
	default:
		return "unknown"
	}
}

// Payload is the cached outcome for one sample.
type Payload struct {
	Schema   uint16
	Stem     string
	Status   Status
	Assembly string // raw .s content when Status is StatusOK
	Lines    uint32 // newline count of Assembly
	Message  string // tool error message on failure
	Stored   int64  // unix seconds
}

// CountLines returns the number of newline-terminated lines in asm.
func CountLines(asm string) (uint32, error) {
	return safecast.Conv[uint32](strings.Count(asm, "\n"))
}

// check verifies that an ok payload's assembly matches its line count.
func (p *Payload) check() error {
	if p.Status != StatusOK {
		return nil
	}
	lines, err := CountLines(p.Assembly)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if lines != p.Lines {
		return fmt.Errorf("%w: %s has %d assembly lines, recorded %d", ErrCorrupt, p.Stem, lines, p.Lines)
	}
	return nil
}

// Store is a directory of msgpack payloads keyed by Digest.
// Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// DefaultDir returns $XDG_CACHE_HOME/<app> or ~/.cache/<app>.
func DefaultDir(app string) (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, app), nil
}

// Open creates dir if needed and returns a store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "samples"), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

func (s *Store) pathFor(key Digest) string {
	return filepath.Join(s.dir, "samples", key.Hex()+".mp")
}

// Put serializes payload and atomically replaces the entry for key.
func (s *Store) Put(key Digest, payload *Payload) (err error) {
	if s == nil || payload == nil {
		return nil
	}
	payload.Schema = schemaVersion
	if payload.Stored == 0 {
		payload.Stored = time.Now().Unix()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if removeErr := os.Remove(f.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
			err = removeErr
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry for key. A missing entry or one written by another
// schema version reports false; an undecodable entry or one whose assembly
// disagrees with its line count returns ErrCorrupt.
func (s *Store) Get(key Digest) (*Payload, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 -- path is derived from a hex digest inside the cache dir
	f, err := os.Open(s.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer func() {
		_ = f.Close()
	}()

	var payload Payload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("%w %s: %v", ErrCorrupt, key.Hex(), err)
	}
	if payload.Schema != schemaVersion {
		return nil, false, nil
	}
	if err := payload.check(); err != nil {
		return nil, false, fmt.Errorf("entry %s: %w", key.Hex(), err)
	}
	return &payload, true, nil
}

// DropAll removes every cached entry.
func (s *Store) DropAll() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(s.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(s.dir, "samples"), 0o750)
}
