package graph

import (
	"iter"
	"slices"

	"github.com/google/uuid"
)

// DefaultMaxDepth bounds walks when no explicit limit is configured.
const DefaultMaxDepth = 512

// Direction selects which edges a walk follows.
type Direction string

const (
	// Normal starts at roots and follows child edges.
	Normal Direction = "normal"
	// Reverse starts at leaves and follows parent edges.
	Reverse Direction = "reverse"
)

// ParseDirection maps a query value to a Direction. Empty means Normal.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case "", Normal:
		return Normal, true
	case Reverse:
		return Reverse, true
	}
	return "", false
}

// Row is one occurrence of a node in a projected view. A node reachable
// along k distinct paths yields k rows.
type Row struct {
	NodeID uuid.UUID `json:"node_id"`
	Title  string    `json:"title"`
	Depth  int       `json:"depth"`
	// ParentID is the node of the row this one hangs from in the view, nil
	// for starting rows. In a reverse view that is the real child.
	ParentID *uuid.UUID `json:"parent_id"`
	// OccurrencePath lists node ids from the starting row down to this one.
	OccurrencePath     []uuid.UUID `json:"occurrence_path"`
	HasMultipleParents bool        `json:"has_multiple_parents"`
}

// WalkOptions configures Walk.
type WalkOptions struct {
	Direction Direction
	// From overrides the starting set. Nil starts at roots (Normal) or
	// leaves (Reverse).
	From     []uuid.UUID
	MaxDepth int
	Title    func(uuid.UUID) string
}

// Walk returns a lazy pre-order depth-first traversal. Siblings are visited
// in edge creation order. The sequence ends after yielding an error. A walk
// over the default starting set ends with an *UnreachableError when some
// node was never visited.
func (a *Arena) Walk(opts WalkOptions) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		next := a.children
		starts := opts.From
		if opts.Direction == Reverse {
			next = a.parents
			if starts == nil {
				starts = a.Leaves()
			}
		} else if starts == nil {
			starts = a.Roots()
		}
		limit := opts.MaxDepth
		if limit <= 0 {
			limit = DefaultMaxDepth
		}

		type frame struct {
			node   int
			depth  int
			parent int
			path   []uuid.UUID
		}
		full := opts.From == nil
		var visited []bool
		if full {
			visited = make([]bool, len(a.ids))
		}

		stack := make([]frame, 0, len(starts))
		for i := len(starts) - 1; i >= 0; i-- {
			n, ok := a.index[starts[i]]
			if !ok {
				yield(Row{NodeID: starts[i]}, ErrUnknownNode)
				return
			}
			stack = append(stack, frame{node: n, parent: -1, path: []uuid.UUID{starts[i]}})
		}

		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			id := a.ids[f.node]
			if f.depth > limit {
				yield(Row{}, &DepthError{NodeID: id, Depth: f.depth, Limit: limit})
				return
			}
			row := Row{
				NodeID:             id,
				Depth:              f.depth,
				OccurrencePath:     f.path,
				HasMultipleParents: len(a.parents[f.node]) > 1,
			}
			if opts.Title != nil {
				row.Title = opts.Title(id)
			}
			if f.parent >= 0 {
				pid := a.ids[f.parent]
				row.ParentID = &pid
			}
			if !yield(row, nil) {
				return
			}
			if full {
				visited[f.node] = true
			}

			base := slices.Clip(f.path)
			kids := next[f.node]
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{
					node:   kids[i],
					depth:  f.depth + 1,
					parent: f.node,
					path:   append(base, a.ids[kids[i]]),
				})
			}
		}

		if !full {
			return
		}
		var missed []uuid.UUID
		for i, ok := range visited {
			if !ok {
				missed = append(missed, a.ids[i])
			}
		}
		if len(missed) > 0 {
			yield(Row{}, &UnreachableError{NodeIDs: missed})
		}
	}
}
