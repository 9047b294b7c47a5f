package store

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	ierr "github.com/mark3labs/prdflow/internal/errors"
)

// WriteFileAtomic writes data to path so readers never observe a partial
// file: the bytes go to a temp file in the same directory
// (.<name>.<16-hex-random>.tmp) and a rename swaps it into place. Rename is
// the only operation that changes what readers of path see. On failure the
// temp file is removed best-effort and the original error is returned with
// path and operation context; a failed cleanup never masks it.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+randomHex(8)+".tmp")

	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return ierr.NewFilesystemError("write", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return ierr.NewFilesystemError("rename", path, err)
	}
	return nil
}

// randomHex returns 2*n random hex characters.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// treat that as unrecoverable.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
