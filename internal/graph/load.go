package graph

import (
	"slices"

	"github.com/google/uuid"
)

// AnomalyKind classifies a stored edge that Load refused to link.
type AnomalyKind string

const (
	AnomalySelfLoop  AnomalyKind = "self_loop"
	AnomalyDangling  AnomalyKind = "dangling"
	AnomalyDuplicate AnomalyKind = "duplicate"
)

// Anomaly is an edge skipped while loading.
type Anomaly struct {
	Kind AnomalyKind `json:"kind"`
	Edge Edge        `json:"edge"`
}

// Load builds an arena from stored state. Nodes must be given in creation
// order and edges in edge creation order. Edges that break a structural rule
// are skipped and reported. Cycles are linked as stored so FindCycle can see
// them.
func Load(nodes []uuid.UUID, edges []Edge) (*Arena, []Anomaly) {
	a := New(len(nodes))
	for _, id := range nodes {
		a.AddNode(id)
	}
	var anomalies []Anomaly
	for _, e := range edges {
		p, pok := a.index[e.Parent]
		c, cok := a.index[e.Child]
		switch {
		case e.Parent == e.Child:
			anomalies = append(anomalies, Anomaly{Kind: AnomalySelfLoop, Edge: e})
		case !pok || !cok:
			anomalies = append(anomalies, Anomaly{Kind: AnomalyDangling, Edge: e})
		case slices.Contains(a.children[p], c):
			anomalies = append(anomalies, Anomaly{Kind: AnomalyDuplicate, Edge: e})
		default:
			a.link(p, c)
		}
	}
	return a, anomalies
}

// FindCycle returns the nodes of one cycle in edge order, or nil when the
// arena is acyclic.
func (a *Arena) FindCycle() []uuid.UUID {
	const (
		white uint8 = iota
		grey
		black
	)
	color := make([]uint8, len(a.ids))
	pred := make([]int, len(a.ids))

	type frame struct{ node, next int }
	for s := range a.ids {
		if color[s] != white {
			continue
		}
		color[s] = grey
		stack := []frame{{node: s}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(a.children[top.node]) {
				color[top.node] = black
				stack = stack[:len(stack)-1]
				continue
			}
			n := top.node
			c := a.children[n][top.next]
			top.next++
			switch color[c] {
			case white:
				color[c] = grey
				pred[c] = n
				stack = append(stack, frame{node: c})
			case grey:
				cycle := []int{n}
				for m := n; m != c; {
					m = pred[m]
					cycle = append(cycle, m)
				}
				slices.Reverse(cycle)
				return a.resolve(cycle)
			}
		}
	}
	return nil
}
