package prddiff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnifiedIdentical(t *testing.T) {
	prd := []byte("# PRD\n\nRequirement A.\n")
	if diff := Unified("old", "new", prd, prd); diff != "" {
		t.Errorf("identical revisions should produce an empty diff, got %q", diff)
	}
}

func TestUnifiedChanged(t *testing.T) {
	prev := []byte("# PRD\n\nRequirement A.\n")
	cur := []byte("# PRD\n\nRequirement B.\n")

	diff := Unified("001_abc/prd.md", "PRD.md", prev, cur)
	if diff == "" {
		t.Fatal("expected a non-empty diff")
	}
	for _, part := range []string{
		"--- 001_abc/prd.md",
		"+++ PRD.md",
		"@@",
		"-Requirement A.",
		"+Requirement B.",
	} {
		if !strings.Contains(diff, part) {
			t.Errorf("diff missing %q:\n%s", part, diff)
		}
	}
}

func TestWriteArtifact(t *testing.T) {
	dir := t.TempDir()
	diff := "--- a\n+++ b\n@@ -1 +1 @@\n-x\n+y\n"

	path, err := WriteArtifact(dir, diff)
	if err != nil {
		t.Fatalf("WriteArtifact failed: %v", err)
	}
	if want := filepath.Join(dir, ArtifactName); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != diff {
		t.Errorf("content = %q, want %q", data, diff)
	}
}
