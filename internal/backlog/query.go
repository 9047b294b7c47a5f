package backlog

import "strings"

// Walk visits every item in depth-first pre-order: each phase before its
// milestones, each milestone before its tasks, and so on, lists in array
// order. Walk stops early when fn returns false.
func Walk(b *Backlog, fn func(Item) bool) {
	for _, p := range b.Phases {
		if !fn(p) {
			return
		}
		for _, m := range p.Milestones {
			if !fn(m) {
				return
			}
			for _, t := range m.Tasks {
				if !fn(t) {
					return
				}
				for _, s := range t.Subtasks {
					if !fn(s) {
						return
					}
				}
			}
		}
	}
}

// FindItem returns the item with the given id, or nil when no item matches.
func FindItem(b *Backlog, id string) Item {
	var found Item
	Walk(b, func(it Item) bool {
		if it.ItemID() == id {
			found = it
			return false
		}
		return true
	})
	return found
}

// FindSubtask returns the subtask with the given id. Ids that resolve to a
// phase, milestone, or task are treated as not found.
func FindSubtask(b *Backlog, id string) *Subtask {
	if s, ok := FindItem(b, id).(*Subtask); ok {
		return s
	}
	return nil
}

// FilterByStatus returns all items with the given status in depth-first
// pre-order.
func FilterByStatus(b *Backlog, status Status) []Item {
	var items []Item
	Walk(b, func(it Item) bool {
		if it.ItemStatus() == status {
			items = append(items, it)
		}
		return true
	})
	return items
}

// NextPending returns the first planned item in depth-first pre-order, or
// nil when the backlog has no planned items left. This defines the
// scheduling order: a phase is begun before its milestones, a milestone
// before its tasks, a task before its subtasks.
func NextPending(b *Backlog) Item {
	var next Item
	Walk(b, func(it Item) bool {
		if it.ItemStatus() == StatusPlanned {
			next = it
			return false
		}
		return true
	})
	return next
}

// Subtasks returns every subtask in depth-first pre-order.
func Subtasks(b *Backlog) []*Subtask {
	var subs []*Subtask
	Walk(b, func(it Item) bool {
		if s, ok := it.(*Subtask); ok {
			subs = append(subs, s)
		}
		return true
	})
	return subs
}

// DependenciesOf resolves a subtask's dependency ids against the backlog.
// Unresolved ids and ids that name a non-subtask item are discarded; order
// follows the declaration order.
func DependenciesOf(b *Backlog, s *Subtask) []*Subtask {
	var deps []*Subtask
	for _, id := range s.Dependencies {
		if dep := FindSubtask(b, id); dep != nil {
			deps = append(deps, dep)
		}
	}
	return deps
}

// ParentID returns the id of an item's parent: the id with its last dotted
// segment removed. Phase ids have no parent and return "".
func ParentID(id string) string {
	i := strings.LastIndex(id, ".")
	if i < 0 {
		return ""
	}
	return id[:i]
}
