// Package orchestrator walks the backlog in deterministic depth-first
// pre-order, advances each item's status state machine, and delegates
// subtask work to an external execution capability. All status writes go
// through the session store so the scheduler and the store always agree on
// the latest backlog.
package orchestrator

import (
	"context"
	"time"

	"github.com/mark3labs/prdflow/internal/backlog"
	ierr "github.com/mark3labs/prdflow/internal/errors"
	"github.com/mark3labs/prdflow/internal/logger"
	"github.com/mark3labs/prdflow/internal/store"
)

// Executor is the opaque "execute this subtask" capability: an external
// agent runtime. A nil error means the work succeeded; any error is
// re-raised to the caller unwrapped after the subtask is marked failed.
type Executor interface {
	ExecuteSubtask(ctx context.Context, s *backlog.Subtask) error
}

// BriefWriter generates and persists the per-subtask brief consumed by the
// execution capability. Brief content generation is external; the
// orchestrator only asks for the brief to exist before executing.
type BriefWriter interface {
	WriteBrief(s *backlog.Subtask) (path string, err error)
}

// WaitOptions bound a dependency wait: poll every Interval until
// executable or until Timeout elapses.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultWaitOptions matches one scheduling step's patience: dependency
// completion is expected from earlier steps of the same run, not from
// another process.
var DefaultWaitOptions = WaitOptions{
	Timeout:  60 * time.Second,
	Interval: 500 * time.Millisecond,
}

// Config holds configuration for the orchestrator.
type Config struct {
	Store    *store.Store
	Executor Executor
	Briefs   BriefWriter // optional
	Wait     WaitOptions // zero values fall back to DefaultWaitOptions
}

// Orchestrator schedules backlog items for execution under dependency and
// status constraints. It is bound to one store and runs as sequential
// steps of one logical task; it is not safe for concurrent use.
type Orchestrator struct {
	store  *store.Store
	exec   Executor
	briefs BriefWriter
	wait   WaitOptions
}

// New binds an orchestrator to an initialized session store.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil || cfg.Store.Metadata() == nil {
		return nil, ierr.NewStateError("orchestrator requires an initialized session store")
	}
	if cfg.Executor == nil {
		return nil, ierr.NewStateError("orchestrator requires an executor")
	}
	wait := cfg.Wait
	if wait.Timeout <= 0 {
		wait.Timeout = DefaultWaitOptions.Timeout
	}
	if wait.Interval <= 0 {
		wait.Interval = DefaultWaitOptions.Interval
	}
	return &Orchestrator{
		store:  cfg.Store,
		exec:   cfg.Executor,
		briefs: cfg.Briefs,
		wait:   wait,
	}, nil
}

// ProcessNextItem finds the first planned item in depth-first pre-order
// and advances it one step. Returns false with no side effect when no
// planned items remain. Execution errors from subtasks propagate to the
// caller after the subtask is marked failed.
func (o *Orchestrator) ProcessNextItem(ctx context.Context) (bool, error) {
	b, err := o.store.LoadBacklog()
	if err != nil {
		return false, err
	}
	item := backlog.NextPending(b)
	if item == nil {
		logger.Debug("No planned items remain")
		return false, nil
	}

	switch it := item.(type) {
	case *backlog.Phase:
		return true, o.executePhase(it)
	case *backlog.Milestone:
		return true, o.executeMilestone(it)
	case *backlog.Task:
		return true, o.executeTask(it)
	case *backlog.Subtask:
		return true, o.executeSubtask(ctx, it)
	default:
		return false, ierr.NewStateError("unknown item kind in backlog")
	}
}

// Container items have a degenerate state machine: planned → implementing.
// Their completion is never inferred from children.

func (o *Orchestrator) executePhase(p *backlog.Phase) error {
	logger.Info("Beginning phase %s: %s", p.ID, p.Title)
	return o.setStatus(p.ID, backlog.StatusImplementing, "")
}

func (o *Orchestrator) executeMilestone(m *backlog.Milestone) error {
	logger.Info("Beginning milestone %s: %s", m.ID, m.Title)
	return o.setStatus(m.ID, backlog.StatusImplementing, "")
}

func (o *Orchestrator) executeTask(t *backlog.Task) error {
	logger.Info("Beginning task %s: %s", t.ID, t.Title)
	return o.setStatus(t.ID, backlog.StatusImplementing, "")
}

// executeSubtask advances one subtask through its state machine:
// researching unconditionally, then implementing and the external executor
// once dependencies allow. A blocked subtask keeps status researching (not
// rolled back) and the step ends without error; the scheduler moves on.
func (o *Orchestrator) executeSubtask(ctx context.Context, s *backlog.Subtask) error {
	if err := o.setStatus(s.ID, backlog.StatusResearching, ""); err != nil {
		return err
	}

	executable, err := o.CanExecute(s)
	if err != nil {
		return err
	}
	if !executable {
		blockers, err := o.GetBlockingDependencies(s)
		if err != nil {
			return err
		}
		for _, dep := range blockers {
			logger.Info("Subtask %s blocked by %s (status %s)", s.ID, dep.ID, dep.Status)
		}
		return nil
	}

	if err := o.setStatus(s.ID, backlog.StatusImplementing, ""); err != nil {
		return err
	}

	if o.briefs != nil {
		path, err := o.briefs.WriteBrief(s)
		if err != nil {
			return err
		}
		logger.Debug("Brief for %s written to %s", s.ID, path)
	}

	logger.Info("Executing subtask %s: %s", s.ID, s.Title)
	execErr := ierr.Recover(func() error {
		return o.exec.ExecuteSubtask(ctx, s)
	})
	if execErr != nil {
		// Mark failed and persist before re-raising so surfaced error and
		// stored state stay consistent. The failure reason is logged, not
		// persisted.
		if err := o.setStatus(s.ID, backlog.StatusFailed, execErr.Error()); err != nil {
			logger.Error("Failed to record failure of %s: %v", s.ID, err)
		} else if _, err := o.store.FlushUpdates(); err != nil {
			logger.Error("Failed to flush failure of %s: %v", s.ID, err)
		}
		return execErr
	}

	return o.setStatus(s.ID, backlog.StatusComplete, "")
}

// CanExecute reports whether every resolvable dependency of s is complete.
// Unresolved ids and ids that name a non-subtask item are discarded, so an
// empty or fully-unresolvable dependency list executes immediately. A
// subtask that depends on itself or sits on a dependency cycle never
// becomes executable; that latent upstream behavior is preserved.
func (o *Orchestrator) CanExecute(s *backlog.Subtask) (bool, error) {
	blockers, err := o.GetBlockingDependencies(s)
	if err != nil {
		return false, err
	}
	return len(blockers) == 0, nil
}

// GetBlockingDependencies returns the resolved dependency subtasks whose
// status is not complete, in declaration order.
func (o *Orchestrator) GetBlockingDependencies(s *backlog.Subtask) ([]*backlog.Subtask, error) {
	b, err := o.store.LoadBacklog()
	if err != nil {
		return nil, err
	}
	var blockers []*backlog.Subtask
	for _, dep := range backlog.DependenciesOf(b, s) {
		if dep.Status != backlog.StatusComplete {
			blockers = append(blockers, dep)
		}
	}
	return blockers, nil
}

// WaitForDependencies polls CanExecute until s becomes executable, the
// configured timeout elapses, or ctx is cancelled. The wait is local to
// one scheduling step, not a global lock. On timeout it returns a
// TimeoutError naming the subtask and the timeout.
func (o *Orchestrator) WaitForDependencies(ctx context.Context, s *backlog.Subtask) error {
	executable, err := o.CanExecute(s)
	if err != nil {
		return err
	}
	if executable {
		return nil
	}

	deadline := time.NewTimer(o.wait.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.wait.Interval)
	defer ticker.Stop()

	logger.Debug("Waiting up to %s for dependencies of %s", o.wait.Timeout, s.ID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ierr.NewTimeoutError(s.ID, o.wait.Timeout)
		case <-ticker.C:
			executable, err := o.CanExecute(s)
			if err != nil {
				return err
			}
			if executable {
				return nil
			}
		}
	}
}

// setStatus is the shared status-transition primitive: it logs
// "<id> <old> → <new>" (the logger adds the timestamp) and routes the edit
// through the store's batched update.
func (o *Orchestrator) setStatus(id string, status backlog.Status, reason string) error {
	old := backlog.Status("unknown")
	if b, err := o.store.LoadBacklog(); err == nil {
		if item := backlog.FindItem(b, id); item != nil {
			old = item.ItemStatus()
		}
	}
	if reason != "" {
		logger.Info("%s %s → %s (%s)", id, old, status, reason)
	} else {
		logger.Info("%s %s → %s", id, old, status)
	}
	_, err := o.store.UpdateItemStatus(id, status)
	return err
}
