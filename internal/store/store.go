// Package store owns on-disk session state: the PRD snapshot, the backlog
// (tasks.json), and the session directory tree under plan/. Status edits are
// batched in memory as a single pending backlog and flushed with a
// temp-file-plus-rename write, so the canonical file is always a complete,
// schema-valid snapshot.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/prdflow/internal/backlog"
	ierr "github.com/mark3labs/prdflow/internal/errors"
	"github.com/mark3labs/prdflow/internal/logger"
)

const (
	// TasksFile is the serialized backlog inside a session directory.
	TasksFile = "tasks.json"
	// SnapshotFile is the copy of the PRD taken at session creation.
	SnapshotFile = "prd.md"
	// ParentFile holds the sequence number of the parent session when this
	// session was created as a delta of a prior PRD revision.
	ParentFile = "parent"
)

// subdirs created alongside tasks.json at session creation.
var sessionSubdirs = []string{"architecture", "prps", "artifacts"}

var sessionDirPattern = regexp.MustCompile(`^([0-9]{3})_([0-9a-f]{12})$`)

// SessionMetadata identifies one session: a versioned snapshot of a PRD.
type SessionMetadata struct {
	ID            string    `json:"id"`   // "<seq3>_<hash12>"
	Hash          string    `json:"hash"` // first 12 hex chars of SHA-256 of the PRD
	Path          string    `json:"path"`
	CreatedAt     time.Time `json:"created_at"`
	ParentSession string    `json:"parent_session,omitempty"`
}

// FlushReport describes one durable write.
type FlushReport struct {
	ItemsWritten int     // status updates collapsed into this write
	Efficiency   float64 // (ItemsWritten-1)/ItemsWritten: I/O saved by batching
}

// Store manages one session's state. A mutex serializes all public methods:
// the orchestrator loop and the MCP tool handlers share one instance, and
// every update must extend the latest in-memory backlog. Concurrent writers
// from separate processes are out of scope and guarded only by the
// atomicity of rename.
type Store struct {
	prdPath string
	planDir string

	mu sync.Mutex

	meta        *SessionMetadata
	prdSnapshot []byte
	backlog     *backlog.Backlog

	pending       *backlog.Backlog // the single pending update slot
	dirty         bool
	updates       int // status updates since last flush
	currentItemID string
}

// New creates a store for the given PRD file. Session directories live
// under planDir. No I/O happens until Initialize.
func New(prdPath, planDir string) *Store {
	if planDir == "" {
		planDir = "plan"
	}
	return &Store{prdPath: prdPath, planDir: planDir}
}

// Initialize hashes the PRD and either resumes the session matching that
// hash or creates a new one. A new session allocates the next sequence
// number, creates the directory tree, snapshots the PRD, and seeds the
// backlog: empty for a first session, copied from the most recent prior
// session when one exists (a delta session, recorded via the parent file).
// The seeded backlog is flushed once so tasks.json exists from the start.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.prdPath)
	if err != nil {
		return ierr.NewFilesystemError("read", s.prdPath, err)
	}
	hash := HashBytes(data)
	logger.Debug("PRD %s hashed to %s", s.prdPath, hash)

	if err := os.MkdirAll(s.planDir, 0755); err != nil {
		return ierr.NewFilesystemError("mkdir", s.planDir, err)
	}

	sessions, err := s.listSessions()
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		if sess.hash == hash {
			return s.resume(sess, data)
		}
	}
	return s.create(sessions, hash, data)
}

// OpenExisting resumes the session matching the current PRD hash without
// ever creating one. Read-only commands use it so that inspecting state
// never allocates a new session directory.
func (s *Store) OpenExisting() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.prdPath)
	if err != nil {
		return ierr.NewFilesystemError("read", s.prdPath, err)
	}
	hash := HashBytes(data)

	sessions, err := s.listSessions()
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if sess.hash == hash {
			return s.resume(sess, data)
		}
	}
	return ierr.NewStateError(fmt.Sprintf("no session for PRD hash %s; run the pipeline first", hash))
}

// OpenLatest resumes the most recent session regardless of the current PRD
// hash. Diffing a drifted PRD against its snapshot needs the session that
// predates the change.
func (s *Store) OpenLatest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.prdPath)
	if err != nil {
		return ierr.NewFilesystemError("read", s.prdPath, err)
	}

	sessions, err := s.listSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return ierr.NewStateError("no sessions exist; run the pipeline first")
	}
	latest := sessions[0]
	for _, sess := range sessions[1:] {
		if sess.seq > latest.seq {
			latest = sess
		}
	}
	return s.resume(latest, data)
}

// sessionRef is a parsed plan/ directory entry.
type sessionRef struct {
	seq  int
	hash string
	id   string
	path string
}

func (s *Store) listSessions() ([]sessionRef, error) {
	entries, err := os.ReadDir(s.planDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ierr.NewFilesystemError("readdir", s.planDir, err)
	}
	var sessions []sessionRef
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := sessionDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, _ := strconv.Atoi(m[1])
		sessions = append(sessions, sessionRef{
			seq:  seq,
			hash: m[2],
			id:   e.Name(),
			path: filepath.Join(s.planDir, e.Name()),
		})
	}
	return sessions, nil
}

func (s *Store) resume(sess sessionRef, prd []byte) error {
	logger.Info("Resuming session %s", sess.id)

	tasksPath := filepath.Join(sess.path, TasksFile)
	data, err := os.ReadFile(tasksPath)
	if err != nil {
		return ierr.NewFilesystemError("read", tasksPath, err)
	}
	var b backlog.Backlog
	if err := json.Unmarshal(data, &b); err != nil {
		return ierr.NewValidationError(tasksPath, fmt.Sprintf("malformed backlog: %v", err))
	}
	if err := backlog.Validate(&b); err != nil {
		return err
	}

	// The stored snapshot is the PRD as it was when the session was
	// created; fall back to the current bytes if it is missing.
	snapshot := prd
	if snap, err := os.ReadFile(filepath.Join(sess.path, SnapshotFile)); err == nil {
		snapshot = snap
	}

	createdAt := time.Now()
	if info, err := os.Stat(sess.path); err == nil {
		createdAt = info.ModTime()
	}

	meta := &SessionMetadata{
		ID:        sess.id,
		Hash:      sess.hash,
		Path:      sess.path,
		CreatedAt: createdAt,
	}
	// The parent file holds the parent's sequence number; resolve it back
	// to the full session id.
	if raw, err := os.ReadFile(filepath.Join(sess.path, ParentFile)); err == nil {
		parentSeq := strings.TrimSpace(string(raw))
		if others, err := s.listSessions(); err == nil {
			for _, other := range others {
				if fmt.Sprintf("%03d", other.seq) == parentSeq {
					meta.ParentSession = other.id
					break
				}
			}
		}
	}

	s.meta = meta
	s.prdSnapshot = snapshot
	s.backlog = &b
	s.pending = nil
	s.dirty = false
	s.updates = 0
	return nil
}

func (s *Store) create(prior []sessionRef, hash string, prd []byte) error {
	seq := 1
	var parent *sessionRef
	for i := range prior {
		if prior[i].seq >= seq {
			seq = prior[i].seq + 1
		}
		if parent == nil || prior[i].seq > parent.seq {
			parent = &prior[i]
		}
	}

	id := fmt.Sprintf("%03d_%s", seq, hash)
	path := filepath.Join(s.planDir, id)
	logger.Info("Creating session %s", id)

	// MkdirAll tolerates pre-existing directories; any other failure is a
	// filesystem error.
	if err := os.MkdirAll(path, 0755); err != nil {
		return ierr.NewFilesystemError("mkdir", path, err)
	}
	for _, sub := range sessionSubdirs {
		subPath := filepath.Join(path, sub)
		if err := os.MkdirAll(subPath, 0755); err != nil {
			return ierr.NewFilesystemError("mkdir", subPath, err)
		}
	}

	if err := WriteFileAtomic(filepath.Join(path, SnapshotFile), prd, 0644); err != nil {
		return err
	}

	meta := &SessionMetadata{
		ID:        id,
		Hash:      hash,
		Path:      path,
		CreatedAt: time.Now(),
	}

	if parent != nil {
		// Delta session: record the link for audit. The backlog itself
		// still seeds empty; the delta patcher stages the parent's
		// patched backlog afterward.
		meta.ParentSession = parent.id
		parentSeq := fmt.Sprintf("%03d\n", parent.seq)
		if err := WriteFileAtomic(filepath.Join(path, ParentFile), []byte(parentSeq), 0644); err != nil {
			return err
		}
		logger.Info("Session %s created as delta of %s", id, parent.id)
	}

	s.meta = meta
	s.prdSnapshot = prd
	s.backlog = backlog.New()
	s.pending = s.backlog
	s.dirty = true
	s.updates = 0

	_, err := s.flushUpdates()
	return err
}

// ParentBacklog loads the parent session's persisted backlog. The delta
// patch flow reconciles it against the changed PRD before staging the
// result into this session. Returns a StateError when the session has no
// parent.
func (s *Store) ParentBacklog() (*backlog.Backlog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return nil, ierr.NewStateError("no session loaded; call Initialize first")
	}
	if s.meta.ParentSession == "" {
		return nil, ierr.NewStateError("session has no parent")
	}
	parentTasks := filepath.Join(s.planDir, s.meta.ParentSession, TasksFile)
	data, err := os.ReadFile(parentTasks)
	if err != nil {
		return nil, ierr.NewFilesystemError("read", parentTasks, err)
	}
	var pb backlog.Backlog
	if err := json.Unmarshal(data, &pb); err != nil {
		return nil, ierr.NewValidationError(parentTasks, fmt.Sprintf("malformed backlog: %v", err))
	}
	return &pb, nil
}

// ParentSnapshot returns the parent session's stored PRD snapshot, used to
// diff the previous PRD revision against the current one.
func (s *Store) ParentSnapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return nil, ierr.NewStateError("no session loaded; call Initialize first")
	}
	if s.meta.ParentSession == "" {
		return nil, ierr.NewStateError("session has no parent")
	}
	path := filepath.Join(s.planDir, s.meta.ParentSession, SnapshotFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ierr.NewFilesystemError("read", path, err)
	}
	return data, nil
}

// UpdateItemStatus builds a new backlog with only the target item's status
// replaced and stores it as the single pending update, overwriting any
// prior pending backlog. Every update extends the latest in-memory backlog,
// so N sequential updates collapse into one complete snapshot. No disk I/O
// happens here.
func (s *Store) UpdateItemStatus(id string, status backlog.Status) (*backlog.Backlog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return nil, ierr.NewStateError("no session loaded; call Initialize first")
	}
	if !status.Valid() {
		return nil, ierr.NewValidationError(id, fmt.Sprintf("unknown status %q", status))
	}

	nb, ok := backlog.WithItemStatus(s.current(), id, status)
	if !ok {
		return nil, ierr.NewValidationError(id, "no item with this id in the backlog")
	}

	s.pending = nb
	s.dirty = true
	s.updates++
	s.currentItemID = id
	return nb, nil
}

// FlushUpdates persists the pending backlog atomically. A clean store is a
// no-op with zero I/O. On write or rename failure the pending state and
// dirty flag are left intact so the caller can retry the same logical
// write; the temp file is removed best-effort and the original error is
// returned with path and operation context.
func (s *Store) FlushUpdates() (FlushReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushUpdates()
}

// flushUpdates is FlushUpdates with the lock already held; session creation
// calls it for the seed flush.
func (s *Store) flushUpdates() (FlushReport, error) {
	if !s.dirty {
		return FlushReport{}, nil
	}
	if s.meta == nil {
		return FlushReport{}, ierr.NewStateError("no session loaded; call Initialize first")
	}

	s.pending.Normalize()
	if err := backlog.Validate(s.pending); err != nil {
		return FlushReport{}, err
	}
	data, err := json.MarshalIndent(s.pending, "", "  ")
	if err != nil {
		return FlushReport{}, ierr.NewValidationError(TasksFile, fmt.Sprintf("marshal backlog: %v", err))
	}
	data = append(data, '\n')

	path := filepath.Join(s.meta.Path, TasksFile)
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return FlushReport{}, err
	}

	n := s.updates
	if n < 1 {
		n = 1
	}
	report := FlushReport{
		ItemsWritten: n,
		Efficiency:   float64(n-1) / float64(n),
	}

	s.backlog = s.pending
	s.pending = nil
	s.dirty = false
	s.updates = 0

	logger.Debug("Flushed %d updates to %s (efficiency %.2f)", report.ItemsWritten, path, report.Efficiency)
	return report, nil
}

// HasSessionChanged rehashes the PRD file and reports whether its first 12
// hex characters differ from the loaded session's hash.
func (s *Store) HasSessionChanged() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return false, ierr.NewStateError("no session loaded; call Initialize first")
	}
	hash, err := HashFile(s.prdPath)
	if err != nil {
		return false, err
	}
	return hash != s.meta.Hash, nil
}

// LoadBacklog returns the current in-memory backlog, including any
// unflushed pending update.
func (s *Store) LoadBacklog() (*backlog.Backlog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return nil, ierr.NewStateError("no session loaded; call Initialize first")
	}
	return s.current(), nil
}

// StageBacklog validates b and stores it as the pending update. The delta
// patcher uses this to hand its rewritten backlog to the store.
func (s *Store) StageBacklog(b *backlog.Backlog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return ierr.NewStateError("no session loaded; call Initialize first")
	}
	b.Normalize()
	if err := backlog.Validate(b); err != nil {
		return err
	}
	s.pending = b
	s.dirty = true
	s.updates++
	return nil
}

func (s *Store) current() *backlog.Backlog {
	if s.pending != nil {
		return s.pending
	}
	return s.backlog
}

// Metadata returns the loaded session metadata, or nil before Initialize.
func (s *Store) Metadata() *SessionMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// PRDSnapshot returns the PRD bytes captured at session creation.
func (s *Store) PRDSnapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prdSnapshot
}

// PRDPath returns the path of the live PRD file.
func (s *Store) PRDPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prdPath
}

// Dirty reports whether a pending update awaits the next flush.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// CurrentItemID returns the id of the most recently updated item, or ""
// when no update has been made this session.
func (s *Store) CurrentItemID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentItemID
}

// PRPDir returns the session's prps/ directory.
func (s *Store) PRPDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return ""
	}
	return filepath.Join(s.meta.Path, "prps")
}

// ArtifactsDir returns the session's artifacts/ directory.
func (s *Store) ArtifactsDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return ""
	}
	return filepath.Join(s.meta.Path, "artifacts")
}
