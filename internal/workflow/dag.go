package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

// DagFunc is the body of one node. It reads and writes the RunContext and
// must honor ctx cancellation at every suspension point.
type DagFunc func(ctx context.Context, rc *RunContext) error

// RetryPolicy re-runs a failed node with geometric backoff. Retries are
// transparent to dependents.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DagNode is an immutable node descriptor.
type DagNode struct {
	Name string
	Deps []string
	Func DagFunc

	// Timeout bounds one attempt of this node. Nil means unbounded; a
	// zero value fails the attempt immediately with a Timeout error.
	Timeout *time.Duration
	Retry   *RetryPolicy
}

// Dag is a named set of nodes whose Deps edges must form a directed acyclic
// graph.
type Dag struct {
	Name  string
	nodes map[string]*DagNode
}

// NewDag creates an empty DAG.
func NewDag(name string) *Dag {
	return &Dag{Name: name, nodes: make(map[string]*DagNode)}
}

// AddNode registers a node; node names are unique within the DAG.
func (d *Dag) AddNode(node *DagNode) error {
	if node == nil || node.Name == "" {
		return nerrors.Internal("dag.add", "node must have a name")
	}
	if node.Func == nil {
		return nerrors.Internal("dag.add", fmt.Sprintf("node %s has no func", node.Name))
	}
	if _, exists := d.nodes[node.Name]; exists {
		return nerrors.Internal("dag.add", fmt.Sprintf("node %s already exists in DAG %s", node.Name, d.Name))
	}
	d.nodes[node.Name] = node
	return nil
}

// Add is shorthand for AddNode with just a name, deps, and func.
func (d *Dag) Add(name string, deps []string, fn DagFunc) error {
	return d.AddNode(&DagNode{Name: name, Deps: deps, Func: fn})
}

// MustAdd panics on a construction error; used by skill builders whose shape
// is fixed at compile time.
func (d *Dag) MustAdd(name string, deps []string, fn DagFunc) {
	if err := d.Add(name, deps, fn); err != nil {
		panic(err)
	}
}

// Node returns a node by name.
func (d *Dag) Node(name string) (*DagNode, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// Nodes returns all nodes sorted by name.
func (d *Dag) Nodes() []*DagNode {
	out := make([]*DagNode, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the node count.
func (d *Dag) Len() int { return len(d.nodes) }

// Validate checks that every dep exists and that the edges are acyclic.
func (d *Dag) Validate() error {
	for name, node := range d.nodes {
		for _, dep := range node.Deps {
			if _, ok := d.nodes[dep]; !ok {
				return nerrors.Internal("dag.validate",
					fmt.Sprintf("node %s depends on missing node %s in DAG %s", name, dep, d.Name))
			}
		}
	}
	if _, err := d.TopoOrder(); err != nil {
		return err
	}
	return nil
}

// TopoOrder returns a topological ordering with ties broken by node name so
// single-threaded execution is deterministic.
func (d *Dag) TopoOrder() ([]string, error) {
	indegree := make(map[string]int, len(d.nodes))
	dependents := make(map[string][]string, len(d.nodes))
	for name, node := range d.nodes {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range node.Deps {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(d.nodes))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		changed := false
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				changed = true
			}
		}
		if changed {
			sort.Strings(ready)
		}
	}
	if len(order) != len(d.nodes) {
		return nil, nerrors.Internal("dag.topo", fmt.Sprintf("cycle detected in DAG %s", d.Name))
	}
	return order, nil
}
