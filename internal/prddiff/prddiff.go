// Package prddiff produces a unified text diff between two PRD revisions.
// The diff is an audit artifact and the raw input for the external
// change-classification collaborator; mapping hunks to backlog items is
// out of scope here.
package prddiff

import (
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/mark3labs/prdflow/internal/store"
)

// ArtifactName is the diff file written into a delta session's artifacts/
// directory.
const ArtifactName = "prd-delta.diff"

// Unified returns the unified diff of the previous PRD snapshot against
// the current PRD text. An empty string means the revisions are
// byte-identical.
func Unified(prevLabel, curLabel string, prev, cur []byte) string {
	return udiff.Unified(prevLabel, curLabel, string(prev), string(cur))
}

// WriteArtifact persists the diff under the given artifacts directory with
// the usual atomic write. Returns the written path.
func WriteArtifact(artifactsDir, diff string) (string, error) {
	path := filepath.Join(artifactsDir, ArtifactName)
	if err := store.WriteFileAtomic(path, []byte(diff), 0644); err != nil {
		return "", err
	}
	return path, nil
}
