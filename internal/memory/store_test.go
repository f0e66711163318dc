package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsAppendOnly(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)

	ctx := context.Background()
	id1, err := store.Add(ctx, NewItem(KindTodo, "water the plants", nil, nil))
	require.NoError(t, err)
	id2, err := store.Add(ctx, NewItem(KindTodo, "water the plants", nil, nil))
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, store.Len())
}

func TestGetUnknownID(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	_, err = store.Get("nope")
	require.Error(t, err)
}

func TestSearchTokenMatching(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, NewItem(KindQAndA, "The capital of France is Paris", nil, nil))
	require.NoError(t, err)
	_, err = store.Add(ctx, NewItem(KindQAndA, "The capital of Japan is Tokyo", nil, nil))
	require.NoError(t, err)

	results, err := store.Search(ctx, "capital france", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "Paris")

	// All tokens must match.
	results, err = store.Search(ctx, "capital atlantis", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchNewestFirst(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, NewItem(KindTodo, "review old report", nil, nil))
	require.NoError(t, err)
	_, err = store.Add(ctx, NewItem(KindTodo, "review new report", nil, nil))
	require.NoError(t, err)

	results, err := store.Search(ctx, "review report", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "new")
}

func TestSearchFiltersByKindAndTags(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, NewItem(KindTodo, "deploy the service", []string{"work"}, nil))
	require.NoError(t, err)
	_, err = store.Add(ctx, NewItem(KindQAndA, "deploy means ship", []string{"definitions"}, nil))
	require.NoError(t, err)

	results, err := store.Search(ctx, "deploy", SearchOptions{Kind: KindTodo})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindTodo, results[0].Kind)

	results, err = store.Search(ctx, "deploy", SearchOptions{Tags: []string{"definitions"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, KindQAndA, results[0].Kind)
}

func TestListByKind(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err = store.Add(ctx, NewItem(KindDailyOp, "briefing", nil, nil))
		require.NoError(t, err)
	}
	_, err = store.Add(ctx, NewItem(KindTodo, "chore", nil, nil))
	require.NoError(t, err)

	assert.Len(t, store.ListByKind(KindDailyOp, 0), 3)
	assert.Len(t, store.ListByKind(KindDailyOp, 2), 2)
}

func TestPersistWritesJSONLPerKind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(WithPersistDir(dir))
	require.NoError(t, err)

	_, err = store.Add(context.Background(), NewItem(KindTaskResult, "did the thing", nil, nil))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "task_result.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "did the thing")
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0.0, 1.0}, nil
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"cats are great":   {1.0, 0.0},
		"stock prices up":  {0.0, 1.0},
		"all about felines": {0.9, 0.1},
	}}
	store, err := NewStore(WithEmbedder(embedder))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, NewItem(KindQAndA, "cats are great", nil, nil))
	require.NoError(t, err)
	_, err = store.Add(ctx, NewItem(KindQAndA, "stock prices up", nil, nil))
	require.NoError(t, err)

	embedder.vectors["cats"] = []float32{1.0, 0.0}
	results, err := store.Search(ctx, "cats", SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cats are great", results[0].Text)
}

func TestVectorSearchBreaksScoreTiesByContainment(t *testing.T) {
	// Both items embed to the same vector, so similarity cannot separate
	// them; the item containing the query token wins the tie.
	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"meeting notes from tuesday": {1.0, 0.0},
		"cats are great":             {1.0, 0.0},
		"cats":                       {1.0, 0.0},
	}}
	store, err := NewStore(WithEmbedder(embedder))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Add(ctx, NewItem(KindQAndA, "meeting notes from tuesday", nil, nil))
	require.NoError(t, err)
	_, err = store.Add(ctx, NewItem(KindQAndA, "cats are great", nil, nil))
	require.NoError(t, err)

	results, err := store.Search(ctx, "cats", SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cats are great", results[0].Text)
}
