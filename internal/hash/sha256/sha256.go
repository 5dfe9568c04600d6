// Package sha256 provides SHA-256 content keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher produces hex SHA-256 digests.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() Hasher {
	return Hasher{}
}

// Hash returns the hex digest of data.
func (Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShardedPath splits a digest into a two-level directory prefix, e.g. "ab/cd/abcd...",
// with ext appended to the file name.
func (h Hasher) ShardedPath(data []byte, ext string) string {
	digest := h.Hash(data)
	return digest[:2] + "/" + digest[2:4] + "/" + digest + ext
}
