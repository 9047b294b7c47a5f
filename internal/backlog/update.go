package backlog

import "strings"

// WithItemStatus returns a new backlog in which only the target item's
// status is replaced. The rebuild is copy-on-path: every ancestor of the
// target is a fresh value, while every subtree not on the path keeps its
// original pointer. Callers can therefore compare untouched siblings by
// identity across updates. Returns (nil, false) when no item has the id.
//
// Routing uses the dotted-id invariant (child id = parent id + one
// segment), so lookup touches a single root-to-leaf path.
func WithItemStatus(b *Backlog, id string, status Status) (*Backlog, bool) {
	phases := make([]*Phase, len(b.Phases))
	copy(phases, b.Phases)
	for i, p := range b.Phases {
		switch {
		case p.ID == id:
			cp := *p
			cp.Status = status
			phases[i] = &cp
			return &Backlog{Phases: phases}, true
		case strings.HasPrefix(id, p.ID+"."):
			np, ok := phaseWithStatus(p, id, status)
			if !ok {
				return nil, false
			}
			phases[i] = np
			return &Backlog{Phases: phases}, true
		}
	}
	return nil, false
}

func phaseWithStatus(p *Phase, id string, status Status) (*Phase, bool) {
	for i, m := range p.Milestones {
		switch {
		case m.ID == id:
			cm := *m
			cm.Status = status
			return phaseWithMilestone(p, i, &cm), true
		case strings.HasPrefix(id, m.ID+"."):
			nm, ok := milestoneWithStatus(m, id, status)
			if !ok {
				return nil, false
			}
			return phaseWithMilestone(p, i, nm), true
		}
	}
	return nil, false
}

func milestoneWithStatus(m *Milestone, id string, status Status) (*Milestone, bool) {
	for i, t := range m.Tasks {
		switch {
		case t.ID == id:
			ct := *t
			ct.Status = status
			return milestoneWithTask(m, i, &ct), true
		case strings.HasPrefix(id, t.ID+"."):
			nt, ok := taskWithStatus(t, id, status)
			if !ok {
				return nil, false
			}
			return milestoneWithTask(m, i, nt), true
		}
	}
	return nil, false
}

func taskWithStatus(t *Task, id string, status Status) (*Task, bool) {
	for i, s := range t.Subtasks {
		if s.ID == id {
			cs := *s
			cs.Status = status
			return taskWithSubtask(t, i, &cs), true
		}
	}
	return nil, false
}

func phaseWithMilestone(p *Phase, i int, m *Milestone) *Phase {
	cp := *p
	cp.Milestones = make([]*Milestone, len(p.Milestones))
	copy(cp.Milestones, p.Milestones)
	cp.Milestones[i] = m
	return &cp
}

func milestoneWithTask(m *Milestone, i int, t *Task) *Milestone {
	cm := *m
	cm.Tasks = make([]*Task, len(m.Tasks))
	copy(cm.Tasks, m.Tasks)
	cm.Tasks[i] = t
	return &cm
}

func taskWithSubtask(t *Task, i int, s *Subtask) *Task {
	ct := *t
	ct.Subtasks = make([]*Subtask, len(t.Subtasks))
	copy(ct.Subtasks, t.Subtasks)
	ct.Subtasks[i] = s
	return &ct
}

// Clone returns a backlog value that shares no structure with the input.
// The delta patcher uses it so patched results are always distinct objects.
func Clone(b *Backlog) *Backlog {
	nb := &Backlog{Phases: make([]*Phase, len(b.Phases))}
	for i, p := range b.Phases {
		cp := *p
		cp.Milestones = make([]*Milestone, len(p.Milestones))
		for j, m := range p.Milestones {
			cm := *m
			cm.Tasks = make([]*Task, len(m.Tasks))
			for k, t := range m.Tasks {
				ct := *t
				ct.Subtasks = make([]*Subtask, len(t.Subtasks))
				for l, s := range t.Subtasks {
					cs := *s
					cs.Dependencies = append([]string(nil), s.Dependencies...)
					ct.Subtasks[l] = &cs
				}
				cm.Tasks[k] = &ct
			}
			cp.Milestones[j] = &cm
		}
		nb.Phases[i] = &cp
	}
	return nb
}
