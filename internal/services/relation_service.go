package services

import (
	"bytes"
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// RelationService owns edge existence and keeps every tree acyclic. All
// checks and the write happen in one per-tree serializable transaction.
type RelationService interface {
	AddEdge(ctx context.Context, actor Actor, treeID, parentID, childID uuid.UUID) (*models.Relation, error)
	// RemoveEdge deletes parent -> child. A child left without parents
	// becomes a root.
	RemoveEdge(ctx context.Context, actor Actor, treeID, parentID, childID uuid.UUID) error
	// MoveEdge replaces fromParent -> child with toParent -> child
	// atomically. Either both changes commit or neither does.
	MoveEdge(ctx context.Context, actor Actor, treeID, childID, fromParentID, toParentID uuid.UUID) (*models.Relation, error)
	// ParentsOf returns the parents of nodeID ordered by id.
	ParentsOf(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Node, error)
	// ChildrenOf returns the children of nodeID in edge creation order.
	ChildrenOf(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Node, error)
	// IsAncestor reports whether candidate reaches of through child edges.
	IsAncestor(ctx context.Context, treeID, candidateID, ofID uuid.UUID) (bool, error)
}

type relationService struct {
	store repository.Store
}

func NewRelationService(store repository.Store) RelationService {
	return &relationService{store: store}
}

var _ RelationService = (*relationService)(nil)

func edgeFields(treeID, parentID, childID uuid.UUID) []zap.Field {
	return []zap.Field{logger.Tree(treeID), logger.Node("parent_id", parentID), logger.Node("child_id", childID)}
}

// edgeError maps an arena rule violation to an AppError.
func edgeError(err error, treeID, parentID, childID uuid.UUID) error {
	var e *appErr.AppError
	switch {
	case errors.Is(err, graph.ErrSelfLoop):
		e = appErr.New(appErr.CodeInvalid, "node cannot be its own parent")
	case errors.Is(err, graph.ErrUnknownNode):
		e = appErr.New(appErr.CodeNotFound, "node not found")
	case errors.Is(err, graph.ErrDuplicateEdge):
		e = appErr.Conflict(appErr.ReasonDuplicate, "edge already exists")
	case errors.Is(err, graph.ErrCycle):
		e = appErr.Conflict(appErr.ReasonCycle, "edge would create a cycle")
	default:
		return err
	}
	return e.WithMeta("tree_id", treeID).WithMeta("parent_id", parentID).WithMeta("child_id", childID)
}

// link validates parent -> child against the snapshot and stores it.
func link(ctx context.Context, tx repository.TreeTx, snap *snapshot, parentID, childID uuid.UUID) (*models.Relation, error) {
	treeID := tx.TreeID()
	if parentID == childID {
		return nil, edgeError(graph.ErrSelfLoop, treeID, parentID, childID)
	}
	if err := snap.require(treeID, parentID, childID); err != nil {
		return nil, err
	}
	if err := snap.arena.AddEdge(parentID, childID); err != nil {
		return nil, edgeError(err, treeID, parentID, childID)
	}
	r := &models.Relation{ParentID: parentID, ChildID: childID}
	if err := tx.CreateRelation(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *relationService) AddEdge(ctx context.Context, actor Actor, treeID, parentID, childID uuid.UUID) (r *models.Relation, err error) {
	ctx, done := track(ctx, "add_edge", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("add_edge"); err != nil {
		return nil, err
	}
	if parentID == childID {
		return nil, edgeError(graph.ErrSelfLoop, treeID, parentID, childID)
	}
	logger.L().Info("add edge called", append(edgeFields(treeID, parentID, childID), zap.String("author", actor.Author))...)

	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		r, err = link(ctx, tx, snap, parentID, childID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("edge added", append(edgeFields(treeID, parentID, childID), zap.Uint64("relation_id", r.ID))...)
	return r, nil
}

func (s *relationService) RemoveEdge(ctx context.Context, actor Actor, treeID, parentID, childID uuid.UUID) (err error) {
	ctx, done := track(ctx, "remove_edge", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("remove_edge"); err != nil {
		return err
	}
	logger.L().Info("remove edge called", append(edgeFields(treeID, parentID, childID), zap.String("author", actor.Author))...)

	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		removed, err := tx.DeleteRelation(ctx, parentID, childID)
		if err != nil {
			return err
		}
		if !removed {
			return appErr.New(appErr.CodeNotFound, "edge not found").
				WithMeta("tree_id", treeID).
				WithMeta("parent_id", parentID).
				WithMeta("child_id", childID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.L().Info("edge removed", edgeFields(treeID, parentID, childID)...)
	return nil
}

func (s *relationService) MoveEdge(ctx context.Context, actor Actor, treeID, childID, fromParentID, toParentID uuid.UUID) (r *models.Relation, err error) {
	ctx, done := track(ctx, "move_edge", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("move_edge"); err != nil {
		return nil, err
	}
	logger.L().Info("move edge called",
		logger.Tree(treeID),
		logger.Node("child_id", childID),
		logger.Node("from_parent_id", fromParentID),
		logger.Node("to_parent_id", toParentID),
		zap.String("author", actor.Author),
	)

	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		if !snap.arena.RemoveEdge(fromParentID, childID) {
			return appErr.New(appErr.CodeNotFound, "edge not found").
				WithMeta("tree_id", treeID).
				WithMeta("parent_id", fromParentID).
				WithMeta("child_id", childID)
		}
		if _, err := tx.DeleteRelation(ctx, fromParentID, childID); err != nil {
			return err
		}
		r, err = link(ctx, tx, snap, toParentID, childID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("edge moved", append(edgeFields(treeID, toParentID, childID), zap.Uint64("relation_id", r.ID))...)
	return r, nil
}

func (s *relationService) neighbours(ctx context.Context, op string, treeID, nodeID uuid.UUID, pick func(*graph.Arena, uuid.UUID) []uuid.UUID) (out []models.Node, err error) {
	ctx, done := track(ctx, op, treeID, false)
	defer func() { done(err) }()

	err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		if err := snap.require(treeID, nodeID); err != nil {
			return err
		}
		out = snap.nodesOf(pick(snap.arena, nodeID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *relationService) ParentsOf(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Node, error) {
	out, err := s.neighbours(ctx, "parents_of", treeID, nodeID, (*graph.Arena).Parents)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b models.Node) int { return bytes.Compare(a.ID[:], b.ID[:]) })
	return out, nil
}

func (s *relationService) ChildrenOf(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Node, error) {
	return s.neighbours(ctx, "children_of", treeID, nodeID, (*graph.Arena).Children)
}

func (s *relationService) IsAncestor(ctx context.Context, treeID, candidateID, ofID uuid.UUID) (ok bool, err error) {
	ctx, done := track(ctx, "is_ancestor", treeID, false)
	defer func() { done(err) }()

	err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		if err := snap.require(treeID, candidateID, ofID); err != nil {
			return err
		}
		ok = snap.arena.IsAncestor(candidateID, ofID)
		return nil
	})
	return ok, err
}
