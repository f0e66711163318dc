package memory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// Store is the append-only, process-wide memory log. Adds are exclusive;
// reads proceed concurrently. Items are never evicted.
type Store struct {
	mu    sync.RWMutex
	items []*Item
	byID  map[string]*Item

	embedder Embedder
	vectors  *vectorIndex

	persistDir string
	logger     logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEmbedder enables vector similarity search through the given embedder.
func WithEmbedder(e Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// WithPersistDir appends items to one JSONL file per kind under dir.
// Persistence is best-effort; write failures are logged, not returned.
func WithPersistDir(dir string) Option {
	return func(s *Store) { s.persistDir = dir }
}

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a memory store.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{byID: make(map[string]*Item)}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewComponentLogger("MemoryStore")
	}
	if s.embedder != nil {
		idx, err := newVectorIndex(s.embedder)
		if err != nil {
			return nil, nerrors.Wrap(nerrors.KindInternal, "memory.init", err)
		}
		s.vectors = idx
	}
	return s, nil
}

// Add appends an item and returns its ID. Append-only: adding identical
// content twice yields two distinct items.
func (s *Store) Add(ctx context.Context, item *Item) (string, error) {
	if item == nil {
		return "", nerrors.Internal("memory.add", "nil item")
	}
	if s.embedder != nil && item.Embedding == nil {
		vec, err := s.embedder.Embed(ctx, item.Text)
		if err != nil {
			// Degrade to text-only search for this item.
			s.logger.Warn("embed failed for item %s: %v", item.ID, err)
		} else {
			item.Embedding = vec
		}
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.byID[item.ID] = item
	s.mu.Unlock()

	if s.vectors != nil && item.Embedding != nil {
		if err := s.vectors.add(ctx, item); err != nil {
			s.logger.Warn("vector index add failed for item %s: %v", item.ID, err)
		}
	}
	s.persist(item)
	s.logger.Debug("added item %s (%s)", item.ID, item.Kind)
	return item.ID, nil
}

// Get returns an item by ID.
func (s *Store) Get(id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byID[id]
	if !ok {
		return nil, nerrors.NotFound("memory.get", "no item "+id)
	}
	return item, nil
}

// Len returns the item count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SearchOptions narrows a Search.
type SearchOptions struct {
	Kind  Kind
	Tags  []string
	Limit int
}

// Search returns items whose text contains every whitespace-separated query
// token (case-insensitive), newest first. With an embedder configured,
// results are ranked by cosine similarity instead, with token containment as
// the secondary sort.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]*Item, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	if s.vectors != nil {
		if items, err := s.vectorSearch(ctx, query, opts, limit); err == nil {
			return items, nil
		}
		// Vector backend trouble degrades to token matching.
	}

	tokens := queryTokens(query)
	s.mu.RLock()
	matched := make([]*Item, 0, limit)
	for i := len(s.items) - 1; i >= 0 && len(matched) < limit; i-- {
		item := s.items[i]
		if !s.filterOK(item, opts) {
			continue
		}
		if containsAll(item.Text, tokens) {
			matched = append(matched, item)
		}
	}
	s.mu.RUnlock()
	return matched, nil
}

func (s *Store) vectorSearch(ctx context.Context, query string, opts SearchOptions, limit int) ([]*Item, error) {
	hits, err := s.vectors.query(ctx, query, limit*2)
	if err != nil {
		return nil, err
	}
	tokens := queryTokens(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	type ranked struct {
		item     *Item
		sim      float32
		contains bool
	}
	out := make([]ranked, 0, len(hits))
	for _, hit := range hits {
		item, ok := s.byID[hit.id]
		if !ok || !s.filterOK(item, opts) {
			continue
		}
		out = append(out, ranked{item, hit.sim, containsAll(item.Text, tokens)})
	}
	// Similarity first; containment breaks score ties.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].sim != out[j].sim {
			return out[i].sim > out[j].sim
		}
		return out[i].contains && !out[j].contains
	})
	items := make([]*Item, 0, limit)
	for _, r := range out {
		if len(items) >= limit {
			break
		}
		items = append(items, r.item)
	}
	return items, nil
}

// ListByKind returns the newest items of a kind.
func (s *Store) ListByKind(kind Kind, limit int) []*Item {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, 0, limit)
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		if s.items[i].Kind == kind {
			out = append(out, s.items[i])
		}
	}
	return out
}

// ListByTags returns items carrying any of the given tags, newest first.
func (s *Store) ListByTags(tags []string) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Item
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		for _, tag := range tags {
			if item.HasTag(tag) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func (s *Store) filterOK(item *Item, opts SearchOptions) bool {
	if opts.Kind != "" && item.Kind != opts.Kind {
		return false
	}
	if len(opts.Tags) > 0 {
		any := false
		for _, tag := range opts.Tags {
			if item.HasTag(tag) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}

// persist appends the item to <dir>/<kind>.jsonl.
func (s *Store) persist(item *Item) {
	if s.persistDir == "" {
		return
	}
	data, err := jsonx.Marshal(item)
	if err != nil {
		s.logger.Warn("persist marshal failed: %v", err)
		return
	}
	path := filepath.Join(s.persistDir, strings.ToLower(string(item.Kind))+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.logger.Warn("persist open failed: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		s.logger.Warn("persist write failed: %v", err)
	}
}

func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAll(text string, tokens []string) bool {
	lower := strings.ToLower(text)
	for _, tok := range tokens {
		if !strings.Contains(lower, tok) {
			return false
		}
	}
	return true
}
