// Package skills defines the skill catalog: each skill compiles an utterance
// into a workflow DAG the engine executes.
package skills

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/B-A-M-N/NERVA/internal/browser"
	"github.com/B-A-M-N/NERVA/internal/config"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/memory"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
	"github.com/B-A-M-N/NERVA/internal/workflow"
)

// Env bundles the collaborators a skill's DAG nodes close over.
type Env struct {
	LLM        llm.TextClient
	Vision     llm.VisionClient
	NewBrowser func() (browser.Driver, error)
	Memory     *memory.Store
	Config     *config.Config
	Logger     logging.Logger
}

// Skill is one catalog entry. Keywords drive fast routing; Build compiles the
// utterance into an executable DAG.
type Skill struct {
	Name          string
	Description   string
	Keywords      []string
	Patterns      []*regexp.Regexp
	VerifyActions bool
	Build         func(env *Env, utterance string) (*workflow.Dag, error)
}

// Matches reports whether the utterance hits any keyword or pattern.
func (s *Skill) Matches(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range s.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, p := range s.Patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Registry is the immutable-after-setup skill catalog.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// Register adds a skill; names are unique.
func (r *Registry) Register(s *Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil || s.Name == "" {
		return nerrors.Internal("skills.register", "skill must have a name")
	}
	if _, exists := r.skills[s.Name]; exists {
		return nerrors.Internal("skills.register", "duplicate skill "+s.Name)
	}
	r.skills[s.Name] = s
	return nil
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns all skill names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns every skill whose keywords or patterns hit the utterance,
// sorted by name for deterministic routing.
func (r *Registry) Match(utterance string) []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var hits []*Skill
	for _, s := range r.skills {
		if s.Matches(utterance) {
			hits = append(hits, s)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Name < hits[j].Name })
	return hits
}

// DefaultRegistry returns the full NERVA skill catalog.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []*Skill{
		CalendarSkill(),
		MailSkill(),
		DriveSkill(),
		LookupSkill(),
		ResearchSkill(),
		GenericBrowserSkill(),
		RepoQuerySkill(),
		DailyOpsSkill(),
		FreeFormSkill(),
	} {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}
