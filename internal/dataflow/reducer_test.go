package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepIDs(c CallChain) []string {
	ids := make([]string, 0, len(c.Steps))
	for _, s := range c.Steps {
		ids = append(ids, s.NodeID)
	}
	return ids
}

func TestReduceDisjointComponentsKeepInputOrder(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "n0", Role: RoleSource, Label: "req.param"},
			{ID: "n1", Role: RoleSink, Label: "db.query"},
			{ID: "n2", Role: RoleSource, Label: "os.environ"},
			{ID: "n3", Role: RolePropagator, Label: "fmt.Sprintf"},
			{ID: "n4", Role: RoleSink, Label: "exec.Command"},
		},
		Edges: []Edge{
			{From: "n0", To: "n1"},
			{From: "n2", To: "n3"},
			{From: "n3", To: "n4"},
		},
	}

	chains := Reduce(g)
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"n0", "n1"}, stepIDs(chains[0]))
	assert.Equal(t, []string{"n2", "n3", "n4"}, stepIDs(chains[1]))
}

func TestReduceBranchSplitsIntoOneChainPerEdge(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "n0", Role: RoleSource},
			{ID: "n1", Role: RolePropagator},
			{ID: "n2", Role: RolePropagator},
			{ID: "n3", Role: RoleSink},
		},
		Edges: []Edge{
			{From: "n0", To: "n1"},
			{From: "n0", To: "n2"},
			{From: "n1", To: "n3"},
			{From: "n2", To: "n3"},
		},
	}

	chains := Reduce(g)
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"n0", "n1", "n3"}, stepIDs(chains[0]))
	assert.Equal(t, []string{"n0", "n2", "n3"}, stepIDs(chains[1]))
}

func TestReduceBranchEdgeOrderFollowsInput(t *testing.T) {
	// Same branch as above with edge input order swapped: chains swap too.
	g := Graph{
		Nodes: []Node{
			{ID: "n0", Role: RoleSource},
			{ID: "n1", Role: RolePropagator},
			{ID: "n2", Role: RolePropagator},
			{ID: "n3", Role: RoleSink},
		},
		Edges: []Edge{
			{From: "n0", To: "n2"},
			{From: "n0", To: "n1"},
			{From: "n1", To: "n3"},
			{From: "n2", To: "n3"},
		},
	}

	chains := Reduce(g)
	require.Len(t, chains, 2)
	assert.Equal(t, []string{"n0", "n2", "n3"}, stepIDs(chains[0]))
	assert.Equal(t, []string{"n0", "n1", "n3"}, stepIDs(chains[1]))
}

func TestReduceStepsMirrorNodeAttributes(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "a", Role: RoleSource, Label: "input", Location: Location{Path: "handler.go", StartLine: 10}},
			{ID: "b", Role: RoleSink, Label: "query", Location: Location{Path: "repo.go", StartLine: 42}},
		},
		Edges: []Edge{{From: "a", To: "b"}},
	}

	chains := Reduce(g)
	require.Len(t, chains, 1)
	require.Len(t, chains[0].Steps, 2)
	assert.Equal(t, RoleSource, chains[0].Steps[0].Role)
	assert.Equal(t, "handler.go", chains[0].Steps[0].Location.Path)
	assert.Equal(t, "query", chains[0].Steps[1].Label)
	assert.Equal(t, 42, chains[0].Steps[1].Location.StartLine)
}

func TestReduceSingletonNodeIsItsOwnChain(t *testing.T) {
	g := Graph{Nodes: []Node{{ID: "only", Role: RoleSink}}}

	chains := Reduce(g)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"only"}, stepIDs(chains[0]))
}

func TestReduceCycleTerminates(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "n0", Role: RoleSource},
			{ID: "n1", Role: RolePropagator},
			{ID: "n2", Role: RolePropagator},
		},
		Edges: []Edge{
			{From: "n0", To: "n1"},
			{From: "n1", To: "n2"},
			{From: "n2", To: "n1"},
		},
	}

	chains := Reduce(g)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"n0", "n1", "n2"}, stepIDs(chains[0]))
}

func TestReduceIgnoresEdgesReferencingUnknownNodes(t *testing.T) {
	g := Graph{
		Nodes: []Node{
			{ID: "n0", Role: RoleSource},
			{ID: "n1", Role: RoleSink},
		},
		Edges: []Edge{
			{From: "n0", To: "n1"},
			{From: "ghost", To: "n1"},
			{From: "n1", To: "phantom"},
		},
	}

	chains := Reduce(g)
	require.Len(t, chains, 1)
	assert.Equal(t, []string{"n0", "n1"}, stepIDs(chains[0]))
}
