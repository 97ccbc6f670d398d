package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/telemetry"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// Actor is the caller of a mutation as seen by the engine. Role checks
// happen before the engine is invoked; MayEdit carries their outcome.
type Actor struct {
	Author  string
	MayEdit bool
}

func (a Actor) authorize(op string) error {
	if !a.MayEdit {
		return appErr.New(appErr.CodeForbidden, "actor may not edit this tree").WithMeta("op", op)
	}
	return nil
}

// Options tunes the services.
type Options struct {
	// MaxDepth bounds projections. Zero uses graph.DefaultMaxDepth.
	MaxDepth int
}

// Services bundles every engine service over one store.
type Services struct {
	Trees      TreeService
	Nodes      NodeService
	Relations  RelationService
	Versions   VersionService
	Projection ProjectionService
	Audit      AuditService
}

// New wires all services to store.
func New(store repository.Store, opts Options) *Services {
	return &Services{
		Trees:      NewTreeService(store),
		Nodes:      NewNodeService(store),
		Relations:  NewRelationService(store),
		Versions:   NewVersionService(store),
		Projection: NewProjectionService(store, opts.MaxDepth),
		Audit:      NewAuditService(store),
	}
}

// track starts a span and a latency timer for op. The returned func records
// the outcome.
func track(ctx context.Context, op string, treeID uuid.UUID, mutation bool) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "services."+op, attribute.String("tree_id", treeID.String()))
	return ctx, func(err error) {
		telemetry.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if mutation {
			telemetry.Observe(op, err)
		}
		logOutcome(op, treeID, span, err)
		telemetry.EndSpan(span, err)
	}
}

func logOutcome(op string, treeID uuid.UUID, span trace.Span, err error) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.String("op", op), logger.Tree(treeID), zap.Error(err)}
	if sc := span.SpanContext(); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	switch {
	case appErr.IsCode(err, appErr.CodeIntegrity), appErr.IsCode(err, appErr.CodeInternal):
		logger.L().Error("operation failed", fields...)
	case appErr.IsTransient(err):
		logger.L().Warn("operation failed", fields...)
	default:
		logger.L().Debug("operation rejected", fields...)
	}
}

func validateContent(title, author string) error {
	if strings.TrimSpace(title) == "" {
		return appErr.New(appErr.CodeInvalid, "title is required").WithMeta("field", "title")
	}
	if strings.TrimSpace(author) == "" {
		return appErr.New(appErr.CodeInvalid, "author is required").WithMeta("field", "author")
	}
	return nil
}

// snapshot is one consistent read of a tree loaded into an arena.
type snapshot struct {
	arena     *graph.Arena
	nodes     map[uuid.UUID]models.Node
	anomalies []graph.Anomaly
}

func loadSnapshot(ctx context.Context, tx repository.TreeReader) (*snapshot, error) {
	nodes, err := tx.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := tx.ListRelations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(nodes))
	byID := make(map[uuid.UUID]models.Node, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		byID[n.ID] = n
	}
	edges := make([]graph.Edge, len(rels))
	for i, r := range rels {
		edges[i] = graph.Edge{Parent: r.ParentID, Child: r.ChildID}
	}
	arena, anomalies := graph.Load(ids, edges)
	return &snapshot{arena: arena, nodes: byID, anomalies: anomalies}, nil
}

func (s *snapshot) nodesOf(ids []uuid.UUID) []models.Node {
	out := make([]models.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.nodes[id])
	}
	return out
}

func (s *snapshot) require(treeID uuid.UUID, ids ...uuid.UUID) error {
	for _, id := range ids {
		if !s.arena.Has(id) {
			return appErr.New(appErr.CodeNotFound, "node not found").WithMeta("tree_id", treeID).WithMeta("node_id", id)
		}
	}
	return nil
}
