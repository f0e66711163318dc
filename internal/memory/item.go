// Package memory implements the append-only in-process memory store shared
// by the dispatcher and skills, with optional vector similarity search.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies memory items.
type Kind string

const (
	KindQAndA       Kind = "Q_AND_A"
	KindTodo        Kind = "TODO"
	KindRepoInsight Kind = "REPO_INSIGHT"
	KindDailyOp     Kind = "DAILY_OP"
	KindSystem      Kind = "SYSTEM"
	KindTaskResult  Kind = "TASK_RESULT"
)

// Item is a single memory record. Items are never mutated after Add.
type Item struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Text      string         `json:"text"`
	Tags      []string       `json:"tags,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Embedding []float32      `json:"-"`
}

// NewItem creates an item with a fresh ID and timestamp.
func NewItem(kind Kind, text string, tags []string, metadata map[string]any) *Item {
	return &Item{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Tags:      tags,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// HasTag reports whether the item carries the given tag.
func (i *Item) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
