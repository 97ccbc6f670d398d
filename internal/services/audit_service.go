package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/internal/telemetry"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// AuditService checks stored trees for states the engine never writes:
// cycles, self loops, duplicate edges and edges to missing nodes.
type AuditService interface {
	// Audit returns the report for one tree. When problems are found the
	// report comes back together with an integrity error.
	Audit(ctx context.Context, treeID uuid.UUID) (*AuditReport, error)
	// AuditAll audits every tree, at most parallel at a time.
	AuditAll(ctx context.Context, parallel int) ([]*AuditReport, error)
}

type AuditReport struct {
	TreeID    uuid.UUID       `json:"tree_id"`
	Nodes     int             `json:"nodes"`
	Relations int             `json:"relations"`
	Anomalies []graph.Anomaly `json:"anomalies"`
	Cycle     []uuid.UUID     `json:"cycle,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Healthy reports whether the audit found nothing.
func (r *AuditReport) Healthy() bool {
	return len(r.Anomalies) == 0 && len(r.Cycle) == 0
}

type auditService struct {
	store repository.Store
}

func NewAuditService(store repository.Store) AuditService {
	return &auditService{store: store}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Audit(ctx context.Context, treeID uuid.UUID) (report *AuditReport, err error) {
	ctx, done := track(ctx, "audit", treeID, false)
	defer func() { done(err) }()

	logger.L().Info("audit tree called", logger.Tree(treeID))
	report = &AuditReport{TreeID: treeID, Anomalies: []graph.Anomaly{}}
	err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
		snap, err := loadSnapshot(ctx, tx)
		if err != nil {
			return err
		}
		report.Nodes = snap.arena.Len()
		report.Relations = snap.arena.EdgeCount() + len(snap.anomalies)
		report.Anomalies = append(report.Anomalies, snap.anomalies...)
		report.Cycle = snap.arena.FindCycle()
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.CheckedAt = time.Now().UTC()

	if report.Healthy() {
		logger.L().Info("audit passed", logger.Tree(treeID), zap.Int("nodes", report.Nodes), zap.Int("relations", report.Relations))
		return report, nil
	}

	for _, a := range report.Anomalies {
		telemetry.IntegrityFindings.WithLabelValues(string(a.Kind)).Inc()
	}
	if len(report.Cycle) > 0 {
		telemetry.IntegrityFindings.WithLabelValues("cycle").Inc()
	}
	return report, appErr.New(appErr.CodeIntegrity, "tree failed integrity audit").
		WithMeta("tree_id", treeID).
		WithMeta("anomalies", len(report.Anomalies)).
		WithMeta("cycle", report.Cycle)
}

func (s *auditService) AuditAll(ctx context.Context, parallel int) ([]*AuditReport, error) {
	trees, err := s.store.ListTrees(ctx)
	if err != nil {
		return nil, err
	}
	if parallel <= 0 {
		parallel = 4
	}

	reports := make([]*AuditReport, len(trees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, t := range trees {
		g.Go(func() error {
			r, err := s.Audit(gctx, t.ID)
			if err != nil && !appErr.IsCode(err, appErr.CodeIntegrity) {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.L().Info("audit sweep finished", zap.Int("trees", len(trees)))
	return reports, nil
}
