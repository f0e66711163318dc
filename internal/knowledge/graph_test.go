package knowledge

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(entities []*Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	return out
}

func TestRelatedDepthZeroIsSelf(t *testing.T) {
	g := NewGraph("", nil)
	g.UpsertEntity("a", "thing", nil)
	g.UpsertEntity("b", "thing", nil)
	g.AddEdge("a", "b", "LINKS", nil)

	related := g.Related("a", 0)
	assert.Equal(t, []string{"a"}, ids(related))
}

func TestRelatedMonotonicInDepth(t *testing.T) {
	g := NewGraph("", nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		g.UpsertEntity(id, "thing", nil)
	}
	g.AddEdge("a", "b", "LINKS", nil)
	g.AddEdge("b", "c", "LINKS", nil)
	g.AddEdge("c", "d", "LINKS", nil)

	prev := 0
	for depth := 0; depth <= 3; depth++ {
		n := len(g.Related("a", depth))
		assert.GreaterOrEqual(t, n, prev, "depth %d", depth)
		prev = n
	}
	assert.Equal(t, 4, prev)
}

func TestRelatedTerminatesOnCycle(t *testing.T) {
	g := NewGraph("", nil)
	g.UpsertEntity("a", "thing", nil)
	g.UpsertEntity("b", "thing", nil)
	g.AddEdge("a", "b", "LINKS", nil)
	g.AddEdge("b", "a", "LINKS", nil)

	done := make(chan []*Entity, 1)
	go func() { done <- g.Related("a", 100) }()
	select {
	case related := <-done:
		assert.ElementsMatch(t, []string{"a", "b"}, ids(related))
	case <-time.After(2 * time.Second):
		t.Fatal("Related did not terminate on a cyclic graph")
	}
}

func TestAddEdgeDropsUnknownEndpoints(t *testing.T) {
	g := NewGraph("", nil)
	g.UpsertEntity("a", "thing", nil)
	g.AddEdge("a", "ghost", "LINKS", nil)
	g.AddEdge("ghost", "a", "LINKS", nil)

	assert.Empty(t, g.Neighbors("a", ""))
}

func TestUpsertMergesAttributes(t *testing.T) {
	g := NewGraph("", nil)
	g.UpsertEntity("a", "thing", map[string]string{"color": "red"})
	g.UpsertEntity("a", "", map[string]string{"size": "large"})

	e, ok := g.Entity("a")
	require.True(t, ok)
	assert.Equal(t, "thing", e.Kind)
	assert.Equal(t, "red", e.Attributes["color"])
	assert.Equal(t, "large", e.Attributes["size"])
}

func TestIngestThreadLinksEntriesAndReferences(t *testing.T) {
	g := NewGraph("", nil)
	entries := []ThreadEntry{
		{EntryID: "e1", Text: "looked up a number", References: []string{"mem-1"}},
	}
	g.IngestThread("t1", "phone lookup", entries)

	thread, ok := g.Entity("t1")
	require.True(t, ok)
	assert.Equal(t, "thread", thread.Kind)

	entryNeighbors := g.Neighbors("t1", "HAS_ENTRY")
	require.Len(t, entryNeighbors, 1)
	assert.Equal(t, "e1", entryNeighbors[0].ID)

	refs := g.Neighbors("e1", "REFERENCES")
	require.Len(t, refs, 1)
	assert.Equal(t, "mem-1", refs[0].ID)
	assert.Equal(t, "reference", refs[0].Kind)
}

func TestIngestThreadTruncatesLabelOnRuneBoundary(t *testing.T) {
	g := NewGraph("", nil)
	entries := []ThreadEntry{
		{EntryID: "e1", Text: strings.Repeat("日", 100)},
	}
	g.IngestThread("t1", "multibyte", entries)

	entry, ok := g.Entity("e1")
	require.True(t, ok)
	label := entry.Attributes["text"]
	assert.True(t, utf8.ValidString(label))
	assert.Equal(t, 80, utf8.RuneCountInString(label))
}

func TestGraphSnapshotRoundTrip(t *testing.T) {
	path := t.TempDir() + "/graph.json"
	g := NewGraph(path, nil)
	g.UpsertEntity("a", "thing", map[string]string{"x": "1"})
	g.UpsertEntity("b", "thing", nil)
	g.AddEdge("a", "b", "LINKS", nil)

	g2 := NewGraph(path, nil)
	e, ok := g2.Entity("a")
	require.True(t, ok)
	assert.Equal(t, "1", e.Attributes["x"])
	neighbors := g2.Neighbors("a", "LINKS")
	require.Len(t, neighbors, 1)
	assert.Equal(t, "b", neighbors[0].ID)
}
