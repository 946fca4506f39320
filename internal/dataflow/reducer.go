// Package dataflow reduces a finding's raw dataflow graph into linear,
// human-reviewable call chains.
package dataflow

// Role classifies a node's part in the flow.
type Role string

const (
	RoleSource     Role = "SOURCE"
	RolePropagator Role = "PROPAGATOR"
	RoleSink       Role = "SINK"
)

// Location points at the code the node was extracted from.
type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
	EndCol    int    `json:"end_col,omitempty"`
}

// Node is one vertex of the raw dataflow graph.
type Node struct {
	ID       string   `json:"id"`
	Role     Role     `json:"role"`
	Label    string   `json:"label"`
	Location Location `json:"location"`
}

// Edge is a directed edge between node ids.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the reducer input: a node set and a directed edge set.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Step mirrors the node attributes inside a chain.
type Step struct {
	NodeID   string   `json:"node_id"`
	Role     Role     `json:"role"`
	Label    string   `json:"label"`
	Location Location `json:"location"`
}

// CallChain is one root-to-leaf simple path through the graph.
type CallChain struct {
	Steps []Step `json:"steps"`
}

// Reduce converts the graph into the ordered list of root-to-leaf chains.
// Roots are visited in node input order; at a branch the traversal forks into
// one chain per outgoing edge, edges visited in input order. The output is
// deterministic and input-order-stable. A node already on the current path
// terminates the chain there, keeping output finite on cyclic input.
func Reduce(g Graph) []CallChain {
	nodesByID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodesByID[n.ID] = n
	}

	hasIncoming := make(map[string]bool)
	outgoing := make(map[string][]string)
	for _, e := range g.Edges {
		if _, ok := nodesByID[e.From]; !ok {
			continue
		}
		if _, ok := nodesByID[e.To]; !ok {
			continue
		}
		hasIncoming[e.To] = true
		outgoing[e.From] = append(outgoing[e.From], e.To)
	}

	var chains []CallChain
	for _, n := range g.Nodes {
		if hasIncoming[n.ID] {
			continue
		}
		onPath := make(map[string]bool)
		chains = walk(n.ID, nil, onPath, nodesByID, outgoing, chains)
	}
	return chains
}

func walk(id string, path []Step, onPath map[string]bool, nodes map[string]Node, outgoing map[string][]string, chains []CallChain) []CallChain {
	n := nodes[id]
	path = append(path, Step{NodeID: n.ID, Role: n.Role, Label: n.Label, Location: n.Location})

	next := outgoing[id]
	if len(next) == 0 {
		// Leaf: yield one chain. Copy, the backing array is shared across forks.
		steps := make([]Step, len(path))
		copy(steps, path)
		return append(chains, CallChain{Steps: steps})
	}

	onPath[id] = true
	for _, to := range next {
		if onPath[to] {
			steps := make([]Step, len(path))
			copy(steps, path)
			chains = append(chains, CallChain{Steps: steps})
			continue
		}
		chains = walk(to, path, onPath, nodes, outgoing, chains)
	}
	delete(onPath, id)

	return chains
}
