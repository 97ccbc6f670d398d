package graph

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func arenaWith(ids []uuid.UUID) *Arena {
	a := New(len(ids))
	for _, id := range ids {
		a.AddNode(id)
	}
	return a
}

// wouldCycle predicts whether parent -> child closes a cycle.
func wouldCycle(g *Arena, parent, child uuid.UUID) bool {
	return parent == child || g.IsAncestor(child, parent)
}

func TestAddEdgeRules(t *testing.T) {
	ids := newIDs(3)
	a, b, c := ids[0], ids[1], ids[2]
	g := arenaWith(ids)

	assert.ErrorIs(t, g.AddEdge(a, a), ErrSelfLoop)
	assert.ErrorIs(t, g.AddEdge(a, uuid.New()), ErrUnknownNode)

	require.NoError(t, g.AddEdge(a, b))
	assert.ErrorIs(t, g.AddEdge(a, b), ErrDuplicateEdge)
	assert.ErrorIs(t, g.AddEdge(b, a), ErrCycle)

	require.NoError(t, g.AddEdge(b, c))
	assert.ErrorIs(t, g.AddEdge(c, a), ErrCycle)
	assert.Equal(t, 2, g.EdgeCount())
}

func TestIsAncestorIsStrict(t *testing.T) {
	ids := newIDs(3)
	g := arenaWith(ids)
	require.NoError(t, g.AddEdge(ids[0], ids[1]))
	require.NoError(t, g.AddEdge(ids[1], ids[2]))

	assert.True(t, g.IsAncestor(ids[0], ids[2]))
	assert.False(t, g.IsAncestor(ids[2], ids[0]))
	assert.False(t, g.IsAncestor(ids[0], ids[0]))
	assert.False(t, g.IsAncestor(ids[0], uuid.New()))
	assert.True(t, wouldCycle(g, ids[2], ids[0]))
	assert.True(t, wouldCycle(g, ids[1], ids[1]))
	assert.False(t, wouldCycle(g, ids[0], ids[2]))
}

func TestChildrenKeepEdgeCreationOrder(t *testing.T) {
	ids := newIDs(4)
	p := ids[0]
	g := arenaWith(ids)
	require.NoError(t, g.AddEdge(p, ids[3]))
	require.NoError(t, g.AddEdge(p, ids[1]))
	require.NoError(t, g.AddEdge(p, ids[2]))

	assert.Equal(t, []uuid.UUID{ids[3], ids[1], ids[2]}, g.Children(p))

	require.True(t, g.RemoveEdge(p, ids[1]))
	assert.False(t, g.RemoveEdge(p, ids[1]))
	assert.Equal(t, []uuid.UUID{ids[3], ids[2]}, g.Children(p))
	assert.Empty(t, g.Parents(ids[1]))
	assert.Contains(t, g.Roots(), ids[1])
}

func TestMultipleParentsPromoteToRootWhenRemoved(t *testing.T) {
	ids := newIDs(3)
	p1, p2, n := ids[0], ids[1], ids[2]
	g := arenaWith(ids)
	require.NoError(t, g.AddEdge(p1, n))
	require.NoError(t, g.AddEdge(p2, n))
	assert.Equal(t, []uuid.UUID{p1, p2}, g.Parents(n))
	assert.NotContains(t, g.Roots(), n)

	g.RemoveEdge(p1, n)
	g.RemoveEdge(p2, n)
	assert.Empty(t, g.Parents(n))
	assert.Equal(t, []uuid.UUID{p1, p2, n}, g.Roots())
}

func assertAcyclic(t *testing.T, g *Arena, ids []uuid.UUID) {
	t.Helper()
	for _, x := range ids {
		require.False(t, g.IsAncestor(x, x), "node %s reaches itself", x)
		for _, y := range ids {
			if x == y {
				continue
			}
			require.False(t, g.IsAncestor(x, y) && g.IsAncestor(y, x), "%s and %s reach each other", x, y)
		}
	}
	require.Nil(t, g.FindCycle())
}

func TestRandomEditsNeverCreateCycles(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	ids := newIDs(12)
	g := arenaWith(ids)

	var edges []Edge
	for step := 0; step < 600; step++ {
		if len(edges) > 0 && rng.IntN(10) < 3 {
			i := rng.IntN(len(edges))
			require.True(t, g.RemoveEdge(edges[i].Parent, edges[i].Child))
			edges = append(edges[:i], edges[i+1:]...)
		} else {
			p, c := ids[rng.IntN(len(ids))], ids[rng.IntN(len(ids))]
			cycles := wouldCycle(g, p, c)
			err := g.AddEdge(p, c)
			switch {
			case err == nil:
				require.False(t, cycles)
				edges = append(edges, Edge{Parent: p, Child: c})
			case p == c:
				require.ErrorIs(t, err, ErrSelfLoop)
			case cycles:
				require.ErrorIs(t, err, ErrCycle)
			default:
				require.ErrorIs(t, err, ErrDuplicateEdge)
			}
		}
		assertAcyclic(t, g, ids)
	}
	assert.Equal(t, len(edges), g.EdgeCount())
}

func reachability(g *Arena, ids []uuid.UUID) map[uuid.UUID]map[uuid.UUID]bool {
	out := make(map[uuid.UUID]map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set := map[uuid.UUID]bool{}
		for _, other := range ids {
			if g.IsAncestor(id, other) {
				set[other] = true
			}
		}
		out[id] = set
	}
	return out
}

func TestRemoveThenAddRestoresReachability(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	ids := newIDs(10)
	g := arenaWith(ids)
	var edges []Edge
	for len(edges) < 18 {
		p, c := ids[rng.IntN(len(ids))], ids[rng.IntN(len(ids))]
		if g.AddEdge(p, c) == nil {
			edges = append(edges, Edge{Parent: p, Child: c})
		}
	}

	for _, e := range edges {
		before := reachability(g, ids)
		require.True(t, g.RemoveEdge(e.Parent, e.Child))
		require.NoError(t, g.AddEdge(e.Parent, e.Child))
		assert.Equal(t, before, reachability(g, ids))
	}
}
