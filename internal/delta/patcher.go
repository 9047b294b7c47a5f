// Package delta reconciles a changed PRD against a partially-completed
// backlog. The classification of PRD changes is an external collaborator's
// job; this package consumes its output (a DeltaAnalysis) and rewrites the
// affected items' statuses, leaving everything else untouched so finished
// work is never re-run after a partial requirements change.
package delta

import (
	"context"

	"github.com/mark3labs/prdflow/internal/backlog"
	ierr "github.com/mark3labs/prdflow/internal/errors"
	"github.com/mark3labs/prdflow/internal/logger"
)

// ChangeType classifies a requirement change at the section level.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// RequirementChange is one section-level change detected between two PRD
// revisions, mapped to the backlog item it affects.
type RequirementChange struct {
	ItemID      string     `json:"item_id"`
	Type        ChangeType `json:"type"`
	Description string     `json:"description"`
	Impact      string     `json:"impact"`
}

// DeltaAnalysis is the externally computed change list for one PRD
// revision. TaskIDs may contain duplicates; the patcher de-duplicates.
type DeltaAnalysis struct {
	Changes           []RequirementChange `json:"changes"`
	PatchInstructions string              `json:"patch_instructions"`
	TaskIDs           []string            `json:"task_ids"`
}

// Validate checks the analysis fields the schema requires to be non-empty.
func (d *DeltaAnalysis) Validate() error {
	if d.PatchInstructions == "" {
		return ierr.NewValidationError("patch_instructions", "must not be empty")
	}
	for i, c := range d.Changes {
		if c.Description == "" {
			return ierr.NewValidationError(c.ItemID, "change description must not be empty")
		}
		if c.Impact == "" {
			return ierr.NewValidationError(c.ItemID, "change impact must not be empty")
		}
		switch c.Type {
		case ChangeAdded, ChangeModified, ChangeRemoved:
		default:
			return ierr.NewValidationError(c.ItemID, "unknown change type "+string(d.Changes[i].Type))
		}
	}
	return nil
}

// Analyzer is the external "diff PRDs" capability: previous and current PRD
// text in, a DeltaAnalysis out. Its implementation is out of scope.
type Analyzer interface {
	Analyze(ctx context.Context, previous, current string) (*DeltaAnalysis, error)
}

// PatchBacklog returns a new backlog with the statuses of the items named
// in the analysis rewritten. The input is never mutated and the result is
// always a distinct object.
//
// For each unique id in TaskIDs, the matching change (by ItemID) decides
// the rewrite: modified resets the item to planned so it re-executes;
// removed marks it obsolete, excluding it from scheduling while keeping it
// for audit; added is intentionally unimplemented upstream and stays a
// warning no-op. Ids without a matching change, or absent from the
// backlog, are silently ignored. Items not named keep their status,
// completed ones included.
func PatchBacklog(b *backlog.Backlog, analysis *DeltaAnalysis) *backlog.Backlog {
	changesByID := make(map[string]RequirementChange, len(analysis.Changes))
	for _, c := range analysis.Changes {
		changesByID[c.ItemID] = c
	}

	result := backlog.Clone(b)
	seen := make(map[string]bool, len(analysis.TaskIDs))
	for _, id := range analysis.TaskIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		change, ok := changesByID[id]
		if !ok {
			continue
		}

		var status backlog.Status
		switch change.Type {
		case ChangeModified:
			status = backlog.StatusPlanned
		case ChangeRemoved:
			status = backlog.StatusObsolete
		case ChangeAdded:
			logger.Warn("Change type 'added' for %s is not implemented; item left unchanged", id)
			continue
		default:
			continue
		}

		patched, ok := backlog.WithItemStatus(result, id, status)
		if !ok {
			continue
		}
		result = patched
		logger.Info("Patched %s → %s (%s)", id, status, change.Type)
	}
	return result
}
