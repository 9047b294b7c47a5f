// Package backlog defines the hierarchical work-item model produced from a
// PRD: Phase → Milestone → Task → Subtask, plus the pure traversal and
// copy-on-path update operations the store, orchestrator, and delta patcher
// share. Items form a tagged union with an explicit type tag; ids encode the
// ancestor path as dotted segments (P1.M2.T3.S4), so the id doubles as a
// prefix index into the tree.
package backlog

// Status is the execution state of a hierarchy item.
type Status string

const (
	StatusPlanned      Status = "planned"
	StatusResearching  Status = "researching"
	StatusImplementing Status = "implementing"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
	StatusObsolete     Status = "obsolete"
)

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusResearching, StatusImplementing,
		StatusComplete, StatusFailed, StatusObsolete:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is an absorbing state. Failed and obsolete are
// reachable from any non-terminal state; complete only via the forward path.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusObsolete:
		return true
	default:
		return false
	}
}

// Kind discriminates the four item shapes.
type Kind string

const (
	KindPhase     Kind = "phase"
	KindMilestone Kind = "milestone"
	KindTask      Kind = "task"
	KindSubtask   Kind = "subtask"
)

// Item is the common surface of the four hierarchy variants. Code that
// needs shape-specific fields switches on the concrete type; the switch
// must cover all four kinds.
type Item interface {
	ItemID() string
	ItemTitle() string
	ItemStatus() Status
	ItemKind() Kind
}

// Phase is the top level of the hierarchy: id "P<n>".
type Phase struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Milestones  []*Milestone `json:"milestones"`
}

// Milestone groups tasks under a phase: id "P<n>.M<n>".
type Milestone struct {
	Type        string  `json:"type"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      Status  `json:"status"`
	Tasks       []*Task `json:"tasks"`
}

// Task groups subtasks under a milestone: id "P<n>.M<n>.T<n>".
type Task struct {
	Type        string     `json:"type"`
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Subtasks    []*Subtask `json:"subtasks"`
}

// Subtask is the only leaf and the only item that carries dependencies.
// Dependencies are subtask ids and may reference any subtask in the
// backlog, cross-phase included. The model does not forbid a subtask
// depending on itself or on a cycle; such items simply never become
// executable (see orchestrator.CanExecute).
type Subtask struct {
	Type         string   `json:"type"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       Status   `json:"status"`
	StoryPoints  int      `json:"story_points"`
	Dependencies []string `json:"dependencies"`
	ContextScope string   `json:"context_scope"`
}

// Backlog is the root aggregate: the unit of persistence and diffing.
type Backlog struct {
	Phases []*Phase `json:"backlog"`
}

func (p *Phase) ItemID() string { return p.ID }

func (p *Phase) ItemTitle() string { return p.Title }

func (p *Phase) ItemStatus() Status { return p.Status }

func (p *Phase) ItemKind() Kind { return KindPhase }

func (m *Milestone) ItemID() string { return m.ID }

func (m *Milestone) ItemTitle() string { return m.Title }

func (m *Milestone) ItemStatus() Status { return m.Status }

func (m *Milestone) ItemKind() Kind { return KindMilestone }

func (t *Task) ItemID() string { return t.ID }

func (t *Task) ItemTitle() string { return t.Title }

func (t *Task) ItemStatus() Status { return t.Status }

func (t *Task) ItemKind() Kind { return KindTask }

func (s *Subtask) ItemID() string { return s.ID }

func (s *Subtask) ItemTitle() string { return s.Title }

func (s *Subtask) ItemStatus() Status { return s.Status }

func (s *Subtask) ItemKind() Kind { return KindSubtask }

// New returns an empty backlog, the seed state of a fresh session.
func New() *Backlog {
	return &Backlog{Phases: []*Phase{}}
}

// Normalize fills in the type tag of every item in place. Items built from
// literals frequently omit the tag; persistence and validation expect it.
func (b *Backlog) Normalize() {
	for _, p := range b.Phases {
		if p == nil {
			continue
		}
		p.Type = string(KindPhase)
		for _, m := range p.Milestones {
			if m == nil {
				continue
			}
			m.Type = string(KindMilestone)
			for _, t := range m.Tasks {
				if t == nil {
					continue
				}
				t.Type = string(KindTask)
				for _, s := range t.Subtasks {
					if s == nil {
						continue
					}
					s.Type = string(KindSubtask)
				}
			}
		}
	}
}
