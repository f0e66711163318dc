package llm

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/B-A-M-N/NERVA/internal/logging"
)

// NodeRouter picks the base URL for the next LLM request. With a gateway
// configured, every request goes there; otherwise requests round-robin over
// the node list, skipping nodes that failed recently.
type NodeRouter struct {
	routerURL string
	nodes     []string
	next      atomic.Uint64
	cooldown  *lru.Cache[string, time.Time]
	ttl       time.Duration
	logger    logging.Logger
}

const defaultCooldown = 30 * time.Second

// NewNodeRouter creates a router. routerURL may be empty to force direct
// node access.
func NewNodeRouter(routerURL string, nodes []string, logger logging.Logger) *NodeRouter {
	cooldown, _ := lru.New[string, time.Time](64)
	return &NodeRouter{
		routerURL: routerURL,
		nodes:     nodes,
		cooldown:  cooldown,
		ttl:       defaultCooldown,
		logger:    logging.OrNop(logger),
	}
}

// Pick returns the base URL for the next request.
func (r *NodeRouter) Pick() string {
	if r.routerURL != "" {
		return r.routerURL
	}
	if len(r.nodes) == 0 {
		return ""
	}
	for range r.nodes {
		idx := r.next.Add(1) - 1
		node := r.nodes[idx%uint64(len(r.nodes))]
		if until, ok := r.cooldown.Get(node); ok && time.Now().Before(until) {
			continue
		}
		return node
	}
	// Every node is cooling down; take the next one anyway.
	idx := r.next.Add(1) - 1
	return r.nodes[idx%uint64(len(r.nodes))]
}

// MarkFailed puts a node on cooldown so the next picks skip it.
func (r *NodeRouter) MarkFailed(node string) {
	if node == "" || node == r.routerURL {
		return
	}
	r.cooldown.Add(node, time.Now().Add(r.ttl))
	r.logger.Warn("node %s on cooldown for %s", node, r.ttl)
}
