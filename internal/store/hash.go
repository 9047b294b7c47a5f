package store

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	ierr "github.com/mark3labs/prdflow/internal/errors"
)

// HashLength is the number of hex characters of the SHA-256 digest used to
// identify a PRD revision. Twelve characters keep session directory names
// short while leaving collisions out of practical reach.
const HashLength = 12

// HashBytes returns the truncated SHA-256 hash of the raw PRD bytes.
// Identical bytes always hash identically; any single-byte difference,
// line endings included, produces a different hash.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:HashLength]
}

// HashFile hashes the file's raw bytes as stored on disk.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ierr.NewFilesystemError("read", path, err)
	}
	return HashBytes(data), nil
}
