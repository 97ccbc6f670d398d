package graph

import (
	"slices"

	"github.com/google/uuid"
)

// Edge is a parent -> child pair.
type Edge struct {
	Parent uuid.UUID `json:"parent_id"`
	Child  uuid.UUID `json:"child_id"`
}

// Arena maps node ids to dense indices and keeps adjacency as index slices.
// Node order is insertion order; adjacency order is edge insertion order.
type Arena struct {
	index    map[uuid.UUID]int
	ids      []uuid.UUID
	children [][]int
	parents  [][]int
	edges    int
}

// New returns an empty arena sized for n nodes.
func New(n int) *Arena {
	return &Arena{
		index:    make(map[uuid.UUID]int, n),
		ids:      make([]uuid.UUID, 0, n),
		children: make([][]int, 0, n),
		parents:  make([][]int, 0, n),
	}
}

// AddNode registers id and returns its index. Adding a known id is a no-op.
func (a *Arena) AddNode(id uuid.UUID) int {
	if i, ok := a.index[id]; ok {
		return i
	}
	i := len(a.ids)
	a.index[id] = i
	a.ids = append(a.ids, id)
	a.children = append(a.children, nil)
	a.parents = append(a.parents, nil)
	return i
}

// Has reports whether id is part of the arena.
func (a *Arena) Has(id uuid.UUID) bool {
	_, ok := a.index[id]
	return ok
}

// Len returns the number of nodes.
func (a *Arena) Len() int { return len(a.ids) }

// EdgeCount returns the number of edges.
func (a *Arena) EdgeCount() int { return a.edges }

// AddEdge inserts parent -> child after checking every DAG rule. The arena
// is unchanged when an error is returned.
func (a *Arena) AddEdge(parent, child uuid.UUID) error {
	if parent == child {
		return ErrSelfLoop
	}
	p, ok := a.index[parent]
	if !ok {
		return ErrUnknownNode
	}
	c, ok := a.index[child]
	if !ok {
		return ErrUnknownNode
	}
	if slices.Contains(a.children[p], c) {
		return ErrDuplicateEdge
	}
	if a.reaches(c, p) {
		return ErrCycle
	}
	a.link(p, c)
	return nil
}

// RemoveEdge deletes parent -> child and reports whether it existed.
func (a *Arena) RemoveEdge(parent, child uuid.UUID) bool {
	p, ok := a.index[parent]
	if !ok {
		return false
	}
	c, ok := a.index[child]
	if !ok {
		return false
	}
	i := slices.Index(a.children[p], c)
	if i < 0 {
		return false
	}
	a.children[p] = slices.Delete(a.children[p], i, i+1)
	j := slices.Index(a.parents[c], p)
	a.parents[c] = slices.Delete(a.parents[c], j, j+1)
	a.edges--
	return true
}

func (a *Arena) link(p, c int) {
	a.children[p] = append(a.children[p], c)
	a.parents[c] = append(a.parents[c], p)
	a.edges++
}

// reaches runs a breadth-first search over child edges starting at the
// children of from and reports whether to is met. A node does not reach
// itself unless it sits on a cycle.
func (a *Arena) reaches(from, to int) bool {
	visited := make([]bool, len(a.ids))
	queue := slices.Clone(a.children[from])
	for _, c := range queue {
		visited[c] = true
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == to {
			return true
		}
		for _, c := range a.children[n] {
			if !visited[c] {
				visited[c] = true
				queue = append(queue, c)
			}
		}
	}
	return false
}

// IsAncestor reports whether candidate reaches of through one or more child
// edges.
func (a *Arena) IsAncestor(candidate, of uuid.UUID) bool {
	c, ok := a.index[candidate]
	if !ok {
		return false
	}
	o, ok := a.index[of]
	if !ok {
		return false
	}
	return a.reaches(c, o)
}

// Children returns the children of id in edge creation order.
func (a *Arena) Children(id uuid.UUID) []uuid.UUID {
	i, ok := a.index[id]
	if !ok {
		return nil
	}
	return a.resolve(a.children[i])
}

// Parents returns the parents of id in edge creation order.
func (a *Arena) Parents(id uuid.UUID) []uuid.UUID {
	i, ok := a.index[id]
	if !ok {
		return nil
	}
	return a.resolve(a.parents[i])
}

// Roots returns nodes without parents in node insertion order.
func (a *Arena) Roots() []uuid.UUID {
	var out []uuid.UUID
	for i, ps := range a.parents {
		if len(ps) == 0 {
			out = append(out, a.ids[i])
		}
	}
	return out
}

// Leaves returns nodes without children in node insertion order.
func (a *Arena) Leaves() []uuid.UUID {
	var out []uuid.UUID
	for i, cs := range a.children {
		if len(cs) == 0 {
			out = append(out, a.ids[i])
		}
	}
	return out
}

func (a *Arena) resolve(idx []int) []uuid.UUID {
	out := make([]uuid.UUID, len(idx))
	for i, n := range idx {
		out[i] = a.ids[n]
	}
	return out
}
