package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a SHA-256 cache key.
type Digest [32]byte

// Hex returns the lowercase hex form of d.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Key hashes the strategy fingerprint together with the cleaned source, so a
// change in either the toolchain template or the source invalidates the entry.
func Key(fingerprint string, source []byte) Digest {
	h := sha256.New()
	_, _ = h.Write([]byte(fingerprint))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(source)
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}
