package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// VersionService applies content edits with optimistic versioning.
type VersionService interface {
	// Update replaces the content of a node if its stored version equals
	// input.ExpectedVersion. On a stale version it returns the current node
	// together with a stale_version conflict that also carries it in Meta
	// under "current".
	Update(ctx context.Context, actor Actor, treeID, nodeID uuid.UUID, input *UpdateNodeInput) (*models.Node, error)
}

type UpdateNodeInput struct {
	ExpectedVersion int
	Title           string
	Content         string
	Author          string
}

type versionService struct {
	store repository.Store
	now   func() time.Time
}

func NewVersionService(store repository.Store) VersionService {
	return &versionService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

var _ VersionService = (*versionService)(nil)

func staleVersion(treeID uuid.UUID, current *models.Node, expected int) error {
	return appErr.Conflict(appErr.ReasonStaleVersion, "node was changed by someone else").
		WithMeta("tree_id", treeID).
		WithMeta("node_id", current.ID).
		WithMeta("expected_version", expected).
		WithMeta("current", current)
}

func (s *versionService) Update(ctx context.Context, actor Actor, treeID, nodeID uuid.UUID, input *UpdateNodeInput) (n *models.Node, err error) {
	ctx, done := track(ctx, "update_node", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("update_node"); err != nil {
		return nil, err
	}
	if err := validateContent(input.Title, input.Author); err != nil {
		return nil, err
	}
	logger.L().Info("update node called",
		logger.Tree(treeID),
		logger.Node("node_id", nodeID),
		zap.Int("expected_version", input.ExpectedVersion),
		zap.String("author", input.Author),
	)

	var current *models.Node
	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		current = nil
		cur, err := tx.GetNode(ctx, nodeID)
		if err != nil {
			return err
		}
		if cur.Version != input.ExpectedVersion {
			current = cur
			return staleVersion(treeID, cur, input.ExpectedVersion)
		}

		next := *cur
		next.Title = input.Title
		next.Content = input.Content
		next.Author = input.Author
		next.Version = input.ExpectedVersion + 1
		next.UpdatedAt = s.now()

		ok, err := tx.CompareAndSwapNode(ctx, &next, input.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := tx.GetNode(ctx, nodeID)
			if err != nil {
				return err
			}
			current = latest
			return staleVersion(treeID, latest, input.ExpectedVersion)
		}
		n = &next
		return nil
	})
	if err != nil {
		if appErr.IsConflict(err, appErr.ReasonStaleVersion) {
			logger.L().Info("stale node update rejected",
				logger.Tree(treeID),
				logger.Node("node_id", nodeID),
				zap.Int("expected_version", input.ExpectedVersion),
				zap.Int("current_version", current.Version),
			)
			return current, err
		}
		return nil, err
	}

	logger.L().Info("node updated", logger.Tree(treeID), logger.Node("node_id", nodeID), zap.Int("version", n.Version))
	return n, nil
}
