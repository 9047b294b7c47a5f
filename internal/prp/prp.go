// Package prp renders and persists per-subtask briefs (PRPs) under a
// session's prps/ directory. Brief content comes from an external
// generator; this package owns the markdown shape and the atomic write.
package prp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/prdflow/internal/backlog"
	"github.com/mark3labs/prdflow/internal/store"
)

// Gate is one validation level: either a shell command or a manual check.
type Gate struct {
	Level   int
	Command string
	Manual  bool
}

// Criterion is one success-criteria checklist entry.
type Criterion struct {
	Text string
	Done bool
}

// Document is a per-subtask brief.
type Document struct {
	ID         string
	Objective  string
	Context    string
	Steps      []string
	Gates      []Gate
	Criteria   []Criterion
	References []string
}

// Render produces the brief's markdown: title, objective, context,
// numbered implementation steps, per-level validation gates (fenced shell
// command or a manual marker), a success-criteria checklist, and
// references.
func (d *Document) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", d.ID)

	sb.WriteString("## Objective\n\n")
	sb.WriteString(strings.TrimSpace(d.Objective))
	sb.WriteString("\n\n")

	sb.WriteString("## Context\n\n")
	sb.WriteString(strings.TrimSpace(d.Context))
	sb.WriteString("\n\n")

	sb.WriteString("## Implementation Steps\n\n")
	for i, step := range d.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	sb.WriteString("\n")

	sb.WriteString("## Validation Gates\n")
	for _, g := range d.Gates {
		fmt.Fprintf(&sb, "\n### Level %d\n\n", g.Level)
		if g.Manual || g.Command == "" {
			sb.WriteString("*Manual validation required*\n")
		} else {
			fmt.Fprintf(&sb, "```sh\n%s\n```\n", g.Command)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Success Criteria\n\n")
	for _, c := range d.Criteria {
		box := " "
		if c.Done {
			box = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", box, c.Text)
	}
	sb.WriteString("\n")

	sb.WriteString("## References\n\n")
	for _, ref := range d.References {
		fmt.Fprintf(&sb, "- %s\n", ref)
	}

	return sb.String()
}

// Writer persists briefs into one session's prps/ directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir (typically the session's prps/
// directory).
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write renders the document and writes it to <dir>/<id>.md with the same
// temp-file-plus-rename pattern the store uses for tasks.json.
func (w *Writer) Write(d *Document) (string, error) {
	path := filepath.Join(w.dir, d.ID+".md")
	if err := store.WriteFileAtomic(path, []byte(d.Render()), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteBrief derives a minimal brief from the subtask itself and persists
// it. Rich brief generation is an external capability; this fallback keeps
// the prps/ layout populated when no generator is wired in.
func (w *Writer) WriteBrief(s *backlog.Subtask) (string, error) {
	return w.Write(FromSubtask(s))
}

// FromSubtask maps a subtask onto the brief shape: the title becomes the
// objective, the 4-section context scope is carried verbatim, and a single
// manual validation gate plus a one-line checklist stand in until an
// external generator supplies richer content.
func FromSubtask(s *backlog.Subtask) *Document {
	steps := []string{
		"Review the context scope and referenced code.",
		fmt.Sprintf("Implement %s.", s.Title),
		"Run the validation gates.",
	}
	refs := make([]string, 0, len(s.Dependencies))
	for _, dep := range s.Dependencies {
		refs = append(refs, fmt.Sprintf("depends on %s", dep))
	}
	return &Document{
		ID:        s.ID,
		Objective: s.Title,
		Context:   s.ContextScope,
		Steps:     steps,
		Gates:     []Gate{{Level: 1, Manual: true}},
		Criteria: []Criterion{
			{Text: fmt.Sprintf("%s implemented and validated", s.ID)},
		},
		References: refs,
	}
}
