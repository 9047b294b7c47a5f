package backlog

import (
	"fmt"
	"regexp"

	ierr "github.com/mark3labs/prdflow/internal/errors"
)

var (
	phaseIDPattern   = regexp.MustCompile(`^P[0-9]+$`)
	subtaskIDPattern = regexp.MustCompile(`^P[0-9]+\.M[0-9]+\.T[0-9]+\.S[0-9]+$`)
	segmentPatterns  = map[Kind]*regexp.Regexp{
		KindMilestone: regexp.MustCompile(`^M[0-9]+$`),
		KindTask:      regexp.MustCompile(`^T[0-9]+$`),
		KindSubtask:   regexp.MustCompile(`^S[0-9]+$`),
	}
)

// Validate checks a backlog against the schema: id grammar per level, child
// ids extending their parent by exactly one dotted segment, global id
// uniqueness, status membership, story-point range 1-21, and well-formed
// dependency ids. Returns a *errors.ValidationError on the first violation.
func Validate(b *Backlog) error {
	if b == nil {
		return ierr.NewValidationError("", "backlog is nil")
	}
	seen := make(map[string]bool)
	for _, p := range b.Phases {
		if p == nil {
			return ierr.NewValidationError("", "nil phase in backlog")
		}
		if !phaseIDPattern.MatchString(p.ID) {
			return ierr.NewValidationError(p.ID, "phase id must match P<n>")
		}
		if err := checkCommon(seen, p, string(KindPhase), p.Type); err != nil {
			return err
		}
		for _, m := range p.Milestones {
			// JSON null children unmarshal as nil pointers; check before
			// touching any field, a typed nil still satisfies Item.
			if m == nil {
				return ierr.NewValidationError(p.ID, "nil milestone in phase")
			}
			if err := checkChild(seen, m, p.ID, KindMilestone, m.Type); err != nil {
				return err
			}
			for _, t := range m.Tasks {
				if t == nil {
					return ierr.NewValidationError(m.ID, "nil task in milestone")
				}
				if err := checkChild(seen, t, m.ID, KindTask, t.Type); err != nil {
					return err
				}
				for _, s := range t.Subtasks {
					if s == nil {
						return ierr.NewValidationError(t.ID, "nil subtask in task")
					}
					if err := checkChild(seen, s, t.ID, KindSubtask, s.Type); err != nil {
						return err
					}
					if s.StoryPoints < 1 || s.StoryPoints > 21 {
						return ierr.NewValidationError(s.ID,
							fmt.Sprintf("story_points must be 1-21, got %d", s.StoryPoints))
					}
					for _, dep := range s.Dependencies {
						if !subtaskIDPattern.MatchString(dep) {
							return ierr.NewValidationError(s.ID,
								fmt.Sprintf("dependency %q is not a subtask id", dep))
						}
					}
				}
			}
		}
	}
	return nil
}

func checkCommon(seen map[string]bool, it Item, wantType, gotType string) error {
	id := it.ItemID()
	if gotType != "" && gotType != wantType {
		return ierr.NewValidationError(id,
			fmt.Sprintf("type tag %q does not match shape %q", gotType, wantType))
	}
	if !it.ItemStatus().Valid() {
		return ierr.NewValidationError(id,
			fmt.Sprintf("unknown status %q", it.ItemStatus()))
	}
	if seen[id] {
		return ierr.NewValidationError(id, "duplicate id")
	}
	seen[id] = true
	return nil
}

func checkChild(seen map[string]bool, it Item, parentID string, kind Kind, gotType string) error {
	if it.ItemID() == "" {
		return ierr.NewValidationError(parentID, "child with empty id")
	}
	id := it.ItemID()
	prefix := parentID + "."
	if len(id) <= len(prefix) || id[:len(prefix)] != prefix {
		return ierr.NewValidationError(id,
			fmt.Sprintf("id must extend parent %s by one segment", parentID))
	}
	if !segmentPatterns[kind].MatchString(id[len(prefix):]) {
		return ierr.NewValidationError(id,
			fmt.Sprintf("segment %q is not a valid %s segment", id[len(prefix):], kind))
	}
	return checkCommon(seen, it, string(kind), gotType)
}
