// Package graph holds the in-memory form of one outline tree: an arena of
// dense node indices with parent and child adjacency in edge creation order.
//
// An Arena is built from one consistent snapshot of a tree and discarded
// afterwards. It is not safe for concurrent mutation.
package graph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnknownNode is returned when an edge references a node that is not
	// part of the arena.
	ErrUnknownNode = errors.New("node not found")

	// ErrSelfLoop is returned when parent and child are the same node.
	ErrSelfLoop = errors.New("node cannot be its own parent")

	// ErrDuplicateEdge is returned when the parent -> child edge already exists.
	ErrDuplicateEdge = errors.New("edge already exists")

	// ErrCycle is returned when adding an edge would make the parent
	// reachable from the child.
	ErrCycle = errors.New("edge would create a cycle")

	// ErrMaxDepth is returned by walks that descend past their depth limit.
	// On a valid DAG this only happens for pathologically deep outlines; on
	// corrupted data it is what stops a walk around a stored cycle.
	ErrMaxDepth = errors.New("projection depth limit exceeded")

	// ErrUnreachable is returned by full walks that end without visiting
	// every node. Only a stored cycle that no root (or leaf) leads into can
	// leave nodes behind.
	ErrUnreachable = errors.New("nodes unreachable from any starting row")
)

// DepthError reports where a walk hit its depth limit.
type DepthError struct {
	NodeID uuid.UUID
	Depth  int
	Limit  int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("%v: node %s at depth %d (limit %d)", ErrMaxDepth, e.NodeID, e.Depth, e.Limit)
}

func (e *DepthError) Unwrap() error { return ErrMaxDepth }

// UnreachableError lists the nodes a full walk never reached.
type UnreachableError struct {
	NodeIDs []uuid.UUID
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%v: %d nodes, first %s", ErrUnreachable, len(e.NodeIDs), e.NodeIDs[0])
}

func (e *UnreachableError) Unwrap() error { return ErrUnreachable }
