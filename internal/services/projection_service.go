package services

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/telemetry"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// ProjectionService renders a tree as rows of a tree view. Sequences are
// lazy and restartable: each range reads one fresh snapshot and walks it.
type ProjectionService interface {
	ProjectNormal(ctx context.Context, treeID uuid.UUID) iter.Seq2[graph.Row, error]
	ProjectReverse(ctx context.Context, treeID uuid.UUID) iter.Seq2[graph.Row, error]
	// ProjectFrom walks from a single node: its subtree for graph.Normal,
	// its ancestor chains for graph.Reverse.
	ProjectFrom(ctx context.Context, treeID, nodeID uuid.UUID, dir graph.Direction) iter.Seq2[graph.Row, error]
}

type projectionService struct {
	store    repository.Store
	maxDepth int
}

func NewProjectionService(store repository.Store, maxDepth int) ProjectionService {
	if maxDepth <= 0 {
		maxDepth = graph.DefaultMaxDepth
	}
	return &projectionService{store: store, maxDepth: maxDepth}
}

var _ ProjectionService = (*projectionService)(nil)

func (s *projectionService) ProjectNormal(ctx context.Context, treeID uuid.UUID) iter.Seq2[graph.Row, error] {
	return s.project(ctx, treeID, nil, graph.Normal)
}

func (s *projectionService) ProjectReverse(ctx context.Context, treeID uuid.UUID) iter.Seq2[graph.Row, error] {
	return s.project(ctx, treeID, nil, graph.Reverse)
}

func (s *projectionService) ProjectFrom(ctx context.Context, treeID, nodeID uuid.UUID, dir graph.Direction) iter.Seq2[graph.Row, error] {
	return s.project(ctx, treeID, &nodeID, dir)
}

func (s *projectionService) project(ctx context.Context, treeID uuid.UUID, from *uuid.UUID, dir graph.Direction) iter.Seq2[graph.Row, error] {
	return func(yield func(graph.Row, error) bool) {
		var err error
		ctx, done := track(ctx, "project_"+string(dir), treeID, false)
		defer func() { done(err) }()

		var snap *snapshot
		err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
			var lerr error
			snap, lerr = loadSnapshot(ctx, tx)
			return lerr
		})
		if err != nil {
			yield(graph.Row{}, err)
			return
		}
		for _, a := range snap.anomalies {
			telemetry.IntegrityFindings.WithLabelValues(string(a.Kind)).Inc()
			logger.L().Error("skipping invalid relation",
				logger.Tree(treeID),
				zap.String("kind", string(a.Kind)),
				logger.Node("parent_id", a.Edge.Parent),
				logger.Node("child_id", a.Edge.Child),
			)
		}

		opts := graph.WalkOptions{
			Direction: dir,
			MaxDepth:  s.maxDepth,
			Title:     func(id uuid.UUID) string { return snap.nodes[id].Title },
		}
		if from != nil {
			if err = snap.require(treeID, *from); err != nil {
				yield(graph.Row{}, err)
				return
			}
			opts.From = []uuid.UUID{*from}
		}

		rows := 0
		defer func() { telemetry.ProjectionRows.WithLabelValues(string(dir)).Add(float64(rows)) }()
		for row, werr := range snap.arena.Walk(opts) {
			if werr != nil {
				err = walkError(werr, treeID)
				yield(graph.Row{}, err)
				return
			}
			if cerr := ctx.Err(); cerr != nil {
				err = appErr.FromContext(cerr)
				yield(graph.Row{}, err)
				return
			}
			rows++
			if !yield(row, nil) {
				return
			}
		}
	}
}

func walkError(err error, treeID uuid.UUID) error {
	var de *graph.DepthError
	if errors.As(err, &de) {
		telemetry.IntegrityFindings.WithLabelValues("max_depth").Inc()
		return appErr.Wrap(err, appErr.CodeIntegrity, "projection exceeded maximum depth").
			WithMeta("tree_id", treeID).
			WithMeta("node_id", de.NodeID).
			WithMeta("depth", de.Depth)
	}
	var ue *graph.UnreachableError
	if errors.As(err, &ue) {
		telemetry.IntegrityFindings.WithLabelValues("unreachable").Inc()
		return appErr.Wrap(err, appErr.CodeIntegrity, "projection left nodes on a stored cycle unreached").
			WithMeta("tree_id", treeID).
			WithMeta("node_id", ue.NodeIDs[0]).
			WithMeta("unreachable", ue.NodeIDs)
	}
	return appErr.Wrap(err, appErr.CodeInternal, "projection failed").WithMeta("tree_id", treeID)
}
