package memory

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder turns text into an embedding vector. Vector search is optional;
// a nil embedder degrades Search to token matching without error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// vectorIndex wraps an in-process chromem collection keyed by item ID.
type vectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func newVectorIndex(embedder Embedder) (*vectorIndex, error) {
	db := chromem.NewDB()
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection("memory", nil, embeddingFunc)
	if err != nil {
		return nil, err
	}
	return &vectorIndex{db: db, collection: collection}, nil
}

func (v *vectorIndex) add(ctx context.Context, item *Item) error {
	return v.collection.AddDocument(ctx, chromem.Document{
		ID:        item.ID,
		Content:   item.Text,
		Embedding: item.Embedding,
		Metadata:  map[string]string{"kind": string(item.Kind)},
	})
}

// scoredID is one vector query hit.
type scoredID struct {
	id  string
	sim float32
}

// query returns item IDs with their cosine similarity to the query text,
// best first.
func (v *vectorIndex) query(ctx context.Context, text string, topK int) ([]scoredID, error) {
	if count := v.collection.Count(); count < topK {
		topK = count
	}
	if topK <= 0 {
		return nil, nil
	}
	results, err := v.collection.Query(ctx, text, topK, nil, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]scoredID, 0, len(results))
	for _, r := range results {
		hits = append(hits, scoredID{id: r.ID, sim: r.Similarity})
	}
	return hits, nil
}
