package knowledge

import (
	"os"
	"sort"
	"sync"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/logging"
)

// Entity is a node in the knowledge graph.
type Entity struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Edge is a directed labeled edge. The graph is a multigraph; parallel edges
// with distinct labels are allowed, and cycles are legal.
type Edge struct {
	Src        string            `json:"src"`
	Dst        string            `json:"dst"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Graph is the in-memory directed labeled multigraph recording entities
// referenced across dispatcher calls.
type Graph struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	outgoing map[string][]Edge

	path   string
	logger logging.Logger
}

// maxRelated caps BFS traversal so no query returns an unbounded result even
// on a cyclic graph.
const maxRelated = 64

// NewGraph creates a knowledge graph. path may be empty; when set, a prior
// snapshot is loaded from it and mutations are re-snapshotted best-effort.
func NewGraph(path string, logger logging.Logger) *Graph {
	g := &Graph{
		entities: make(map[string]*Entity),
		outgoing: make(map[string][]Edge),
		path:     path,
		logger:   logging.OrNop(logger),
	}
	g.load()
	return g
}

// UpsertEntity creates or updates an entity, merging attributes.
func (g *Graph) UpsertEntity(id, kind string, attrs map[string]string) *Entity {
	g.mu.Lock()
	entity, ok := g.entities[id]
	if !ok {
		entity = &Entity{ID: id, Kind: kind, Attributes: make(map[string]string)}
		g.entities[id] = entity
	}
	if kind != "" {
		entity.Kind = kind
	}
	for k, v := range attrs {
		if entity.Attributes == nil {
			entity.Attributes = make(map[string]string)
		}
		entity.Attributes[k] = v
	}
	g.mu.Unlock()
	g.snapshot()
	return entity
}

// AddEdge links two existing entities. Unknown endpoints are dropped.
func (g *Graph) AddEdge(src, dst, label string, attrs map[string]string) {
	g.mu.Lock()
	if _, ok := g.entities[src]; !ok {
		g.mu.Unlock()
		return
	}
	if _, ok := g.entities[dst]; !ok {
		g.mu.Unlock()
		return
	}
	g.outgoing[src] = append(g.outgoing[src], Edge{Src: src, Dst: dst, Label: label, Attributes: attrs})
	g.mu.Unlock()
	g.snapshot()
}

// Entity returns an entity by ID.
func (g *Graph) Entity(id string) (*Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[id]
	return e, ok
}

// Neighbors returns entities one hop out, optionally filtered by edge label.
func (g *Graph) Neighbors(id, label string) []*Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Entity
	for _, edge := range g.outgoing[id] {
		if label != "" && edge.Label != label {
			continue
		}
		if e, ok := g.entities[edge.Dst]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Related returns entities reachable within depth hops, including the start
// entity itself: Related(id, 0) is exactly {id}. Traversal uses a visited
// set, so cyclic graphs terminate, and results are capped at maxRelated.
func (g *Graph) Related(id string, depth int) []*Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.entities[id]
	if !ok {
		return nil
	}
	visited := map[string]bool{id: true}
	result := []*Entity{start}
	frontier := []string{id}

	for hop := 0; hop < depth && len(frontier) > 0 && len(result) < maxRelated; hop++ {
		var next []string
		for _, current := range frontier {
			edges := append([]Edge(nil), g.outgoing[current]...)
			sort.Slice(edges, func(i, j int) bool { return edges[i].Dst < edges[j].Dst })
			for _, edge := range edges {
				if visited[edge.Dst] {
					continue
				}
				visited[edge.Dst] = true
				if e, ok := g.entities[edge.Dst]; ok {
					result = append(result, e)
					next = append(next, edge.Dst)
					if len(result) >= maxRelated {
						return result
					}
				}
			}
		}
		frontier = next
	}
	return result
}

// IngestThread records a thread and its entries into the graph: one thread
// entity, one entity per entry linked by HAS_ENTRY, and REFERENCES edges to
// every referenced entity (created as kind "reference" when unknown).
func (g *Graph) IngestThread(threadID, title string, entries []ThreadEntry) {
	g.UpsertEntity(threadID, "thread", map[string]string{"title": title})
	for _, entry := range entries {
		label := entry.Text
		if r := []rune(label); len(r) > 80 {
			label = string(r[:80])
		}
		g.UpsertEntity(entry.EntryID, "entry", map[string]string{"text": label})
		g.AddEdge(threadID, entry.EntryID, "HAS_ENTRY", nil)
		for _, ref := range entry.References {
			if _, ok := g.Entity(ref); !ok {
				g.UpsertEntity(ref, "reference", nil)
			}
			g.AddEdge(entry.EntryID, ref, "REFERENCES", nil)
		}
	}
}

type graphSnapshot struct {
	Entities []*Entity `json:"entities"`
	Edges    []Edge    `json:"edges"`
}

// snapshot persists the adjacency lists to graph.json, best-effort.
func (g *Graph) snapshot() {
	if g.path == "" {
		return
	}
	g.mu.RLock()
	snap := graphSnapshot{}
	for _, e := range g.entities {
		snap.Entities = append(snap.Entities, e)
	}
	for _, edges := range g.outgoing {
		snap.Edges = append(snap.Edges, edges...)
	}
	g.mu.RUnlock()
	sort.Slice(snap.Entities, func(i, j int) bool { return snap.Entities[i].ID < snap.Entities[j].ID })

	data, err := jsonx.MarshalIndent(snap, "", "  ")
	if err != nil {
		g.logger.Warn("graph marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		g.logger.Warn("graph write failed: %v", err)
	}
}

func (g *Graph) load() {
	if g.path == "" {
		return
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return
	}
	var snap graphSnapshot
	if err := jsonx.Unmarshal(data, &snap); err != nil {
		g.logger.Warn("graph snapshot corrupt, starting empty: %v", err)
		return
	}
	for _, e := range snap.Entities {
		g.entities[e.ID] = e
	}
	for _, edge := range snap.Edges {
		g.outgoing[edge.Src] = append(g.outgoing[edge.Src], edge)
	}
}
