package dispatch

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/llm"
	"github.com/B-A-M-N/NERVA/internal/logging"
	"github.com/B-A-M-N/NERVA/internal/skills"
)

// Router maps an utterance to a skill: exact keyword hits first, the text
// model as tiebreaker and fallback, free_form as the floor.
type Router struct {
	registry *skills.Registry
	client   llm.TextClient
	cache    *lru.Cache[string, string]
	logger   logging.Logger
}

// NewRouter creates a router over the skill catalog.
func NewRouter(registry *skills.Registry, client llm.TextClient, logger logging.Logger) *Router {
	cache, _ := lru.New[string, string](256)
	return &Router{
		registry: registry,
		client:   client,
		cache:    cache,
		logger:   logging.OrNop(logger),
	}
}

// Route picks the skill for an utterance. Exactly one keyword hit routes
// directly; zero or several fall through to the model, whose verdict is
// cached. An unknown or failed model verdict lands on free_form.
func (r *Router) Route(ctx context.Context, utterance string) string {
	hits := r.registry.Match(utterance)
	if len(hits) == 1 {
		r.logger.Debug("keyword route: %s", hits[0].Name)
		return hits[0].Name
	}

	key := strings.ToLower(strings.TrimSpace(utterance))
	if name, ok := r.cache.Get(key); ok {
		return name
	}

	name := r.llmRoute(ctx, utterance, hits)
	if _, ok := r.registry.Get(name); !ok {
		name = "free_form"
	}
	r.cache.Add(key, name)
	r.logger.Debug("model route: %s", name)
	return name
}

func (r *Router) llmRoute(ctx context.Context, utterance string, hits []*skills.Skill) string {
	candidates := r.registry.Names()
	if len(hits) > 1 {
		candidates = make([]string, len(hits))
		for i, s := range hits {
			candidates[i] = s.Name
		}
	}
	prompt := fmt.Sprintf(`Pick the one skill that best handles this request.
Request: %q
Skills: %s
Reply with exactly one skill name and nothing else.`, utterance, strings.Join(candidates, ", "))

	reply, err := r.client.Chat(ctx, []llm.Message{llm.User(prompt)}, nil)
	if err != nil {
		r.logger.Warn("route model call failed: %v", err)
		return "free_form"
	}
	return strings.ToLower(strings.TrimSpace(strings.Trim(reply, `"'.`)))
}

// clarifyVerdict is the model's ambiguity ruling.
type clarifyVerdict struct {
	NeedsClarification bool   `json:"needs_clarification"`
	Question           string `json:"question"`
}

// minClearLength: anything this short is ambiguous without asking the model,
// unless it routes by keyword.
const minClearLength = 3

// CheckAmbiguity decides whether the utterance needs one clarification round
// and, if so, what to ask. Model failure counts as unambiguous; guessing a
// route is better than stalling the pipeline on a dead model.
func (r *Router) CheckAmbiguity(ctx context.Context, utterance string) (bool, string) {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return true, "What would you like me to do?"
	}
	if isGreeting(trimmed) {
		return false, ""
	}
	// A unique keyword route is a clear intent; no model round needed.
	if len(r.registry.Match(trimmed)) == 1 {
		return false, ""
	}
	if len(strings.Fields(trimmed)) < minClearLength {
		return true, fmt.Sprintf("Could you say more about what you mean by %q?", trimmed)
	}

	prompt := fmt.Sprintf(`Does this request need clarification before acting? It does when the intent is unclear or it mixes multiple unrelated intents.
Request: %q
Reply with one JSON object: {"needs_clarification": true/false, "question": "..."}.`, utterance)
	reply, err := r.client.Chat(ctx, []llm.Message{llm.User(prompt)}, nil)
	if err != nil {
		r.logger.Warn("ambiguity model call failed: %v", err)
		return false, ""
	}
	var verdict clarifyVerdict
	if err := jsonx.ExtractObject(reply, &verdict); err != nil {
		return false, ""
	}
	if verdict.NeedsClarification && verdict.Question == "" {
		verdict.Question = "Could you rephrase that with a bit more detail?"
	}
	return verdict.NeedsClarification, verdict.Question
}

var greetings = map[string]bool{
	"hello": true, "hi": true, "hey": true, "thanks": true, "thank you": true,
	"good morning": true, "good evening": true,
}

func isGreeting(s string) bool {
	return greetings[strings.ToLower(strings.Trim(s, ".,!?"))]
}
