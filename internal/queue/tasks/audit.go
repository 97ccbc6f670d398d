package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/services"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

const (
	TypeTreeAudit = "tree:audit"
	TypeAuditAll  = "tree:audit_all"
)

// AuditPayload is the task payload for tree audits.
type AuditPayload struct {
	TreeID string `json:"tree_id"`
}

// NewAuditTask builds a tree:audit task. Duplicate audits of the same tree
// within a minute collapse into one.
func NewAuditTask(treeID uuid.UUID) (*asynq.Task, error) {
	pb, err := json.Marshal(AuditPayload{TreeID: treeID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTreeAudit, pb, asynq.Unique(time.Minute), asynq.MaxRetry(3)), nil
}

// Enqueuer schedules audits on asynq.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer { return &Enqueuer{client: client} }

func (e *Enqueuer) EnqueueAudit(ctx context.Context, treeID uuid.UUID) error {
	task, err := NewAuditTask(treeID)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "build audit task failed")
	}
	if e.client == nil {
		logger.L().Warn("asynq client not configured, skipping enqueue", logger.Tree(treeID))
		return nil
	}
	info, err := e.client.EnqueueContext(ctx, task)
	switch {
	case err == nil:
		logger.L().Info("audit enqueued", logger.Tree(treeID), zap.String("task_id", info.ID))
		return nil
	case errors.Is(err, asynq.ErrDuplicateTask):
		logger.L().Debug("audit already queued", logger.Tree(treeID))
		return nil
	default:
		return appErr.Wrap(err, appErr.CodeUnavailable, "enqueue audit failed").WithMeta("tree_id", treeID)
	}
}

// AuditTaskHandler runs queued audits.
type AuditTaskHandler struct {
	audit    services.AuditService
	parallel int
}

func NewAuditTaskHandler(audit services.AuditService, parallel int) *AuditTaskHandler {
	return &AuditTaskHandler{audit: audit, parallel: parallel}
}

func (h *AuditTaskHandler) HandleAudit(ctx context.Context, t *asynq.Task) error {
	var p AuditPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid audit task payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.TreeID)
	if err != nil {
		logger.L().Error("invalid tree id in task", zap.String("tree_id", p.TreeID), zap.Error(err))
		return fmt.Errorf("parse tree id: %v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling audit task", logger.Tree(id))
	report, err := h.audit.Audit(ctx, id)
	switch {
	case err == nil:
		return nil
	case appErr.IsCode(err, appErr.CodeIntegrity):
		// The audit ran; findings are logged rather than retried.
		logger.L().Error("tree failed audit",
			logger.Tree(id),
			zap.Int("anomalies", len(report.Anomalies)),
			zap.Int("cycle_len", len(report.Cycle)),
		)
		return nil
	case appErr.IsCode(err, appErr.CodeNotFound):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

// HandleAuditAll sweeps every tree. The worker schedules it periodically.
func (h *AuditTaskHandler) HandleAuditAll(ctx context.Context, _ *asynq.Task) error {
	reports, err := h.audit.AuditAll(ctx, h.parallel)
	if err != nil {
		return err
	}
	unhealthy := 0
	for _, r := range reports {
		if r != nil && !r.Healthy() {
			unhealthy++
		}
	}
	logger.L().Info("audit sweep task finished", zap.Int("trees", len(reports)), zap.Int("unhealthy", unhealthy))
	return nil
}
