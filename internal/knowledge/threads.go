// Package knowledge holds the project thread log and the knowledge graph
// that every dispatcher call writes through.
package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// ThreadEntry is one append-only record inside a task thread.
type ThreadEntry struct {
	EntryID    string            `json:"entry_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Text       string            `json:"text"`
	References []string          `json:"references,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TaskThread tracks one long-running user project.
type TaskThread struct {
	ThreadID  string        `json:"thread_id"`
	Project   string        `json:"project"`
	Title     string        `json:"title"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Entries   []ThreadEntry `json:"entries"`
}

// ThreadStore keeps task threads, optionally persisted as one JSON file per
// thread.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*TaskThread
	dir     string
	logger  logging.Logger
}

// NewThreadStore creates a thread store. dir may be empty for a purely
// in-memory store; when set, existing thread files are loaded from it.
func NewThreadStore(dir string, logger logging.Logger) *ThreadStore {
	s := &ThreadStore{
		threads: make(map[string]*TaskThread),
		dir:     dir,
		logger:  logging.OrNop(logger),
	}
	s.load()
	return s
}

// Create opens a new thread for a project.
func (s *ThreadStore) Create(project, title string) *TaskThread {
	now := time.Now().UTC()
	thread := &TaskThread{
		ThreadID:  uuid.NewString(),
		Project:   project,
		Title:     title,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.threads[thread.ThreadID] = thread
	s.mu.Unlock()
	s.save(thread)
	return thread
}

// Get returns a thread by ID.
func (s *ThreadStore) Get(threadID string) (*TaskThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return nil, nerrors.NotFound("threads.get", "no thread "+threadID)
	}
	return thread, nil
}

// AddEntry appends an entry and advances the thread's UpdatedAt.
func (s *ThreadStore) AddEntry(threadID, text string, refs []string) (ThreadEntry, error) {
	entry := ThreadEntry{
		EntryID:    uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Text:       text,
		References: refs,
	}
	s.mu.Lock()
	thread, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return ThreadEntry{}, nerrors.NotFound("threads.add_entry", "no thread "+threadID)
	}
	thread.Entries = append(thread.Entries, entry)
	thread.UpdatedAt = entry.Timestamp
	s.mu.Unlock()
	s.save(thread)
	return entry, nil
}

// FindByProject returns the most recently updated open thread for a project.
func (s *ThreadStore) FindByProject(project string) (*TaskThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *TaskThread
	for _, thread := range s.threads {
		if thread.Project != project || thread.Status != "open" {
			continue
		}
		if best == nil || thread.UpdatedAt.After(best.UpdatedAt) {
			best = thread
		}
	}
	return best, best != nil
}

// List returns threads ordered by UpdatedAt descending.
func (s *ThreadStore) List(limit int) []*TaskThread {
	s.mu.RLock()
	threads := make([]*TaskThread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.mu.RUnlock()
	sort.Slice(threads, func(i, j int) bool { return threads[i].UpdatedAt.After(threads[j].UpdatedAt) })
	if limit > 0 && len(threads) > limit {
		threads = threads[:limit]
	}
	return threads
}

// UpdateStatus changes a thread's status (open/closed).
func (s *ThreadStore) UpdateStatus(threadID, status string) error {
	s.mu.Lock()
	thread, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return nerrors.NotFound("threads.update_status", "no thread "+threadID)
	}
	thread.Status = status
	thread.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.save(thread)
	return nil
}

// save is best-effort per-thread persistence.
func (s *ThreadStore) save(thread *TaskThread) {
	if s.dir == "" {
		return
	}
	s.mu.RLock()
	data, err := jsonx.MarshalIndent(thread, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		s.logger.Warn("thread marshal failed: %v", err)
		return
	}
	path := filepath.Join(s.dir, thread.ThreadID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Warn("thread write failed: %v", err)
	}
}

func (s *ThreadStore) load() {
	if s.dir == "" {
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var thread TaskThread
		if err := jsonx.Unmarshal(data, &thread); err != nil {
			s.logger.Warn("skipping corrupt thread file %s: %v", entry.Name(), err)
			continue
		}
		s.threads[thread.ThreadID] = &thread
	}
}
