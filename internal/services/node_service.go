package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// NodeService owns node content and lifecycle. Versions are changed only
// through VersionService.
type NodeService interface {
	Create(ctx context.Context, actor Actor, treeID uuid.UUID, input *CreateNodeInput) (*models.Node, error)
	Get(ctx context.Context, treeID, nodeID uuid.UUID) (*models.Node, error)
	// List returns live nodes in creation order.
	List(ctx context.Context, treeID uuid.UUID) ([]models.Node, error)
	// SoftDelete fails with a has_relations conflict while the node still
	// has a parent or child edge.
	SoftDelete(ctx context.Context, actor Actor, treeID, nodeID uuid.UUID) error
}

type CreateNodeInput struct {
	Title   string
	Content string
	Author  string
}

type nodeService struct {
	store repository.Store
}

func NewNodeService(store repository.Store) NodeService {
	return &nodeService{store: store}
}

var _ NodeService = (*nodeService)(nil)

func (s *nodeService) Create(ctx context.Context, actor Actor, treeID uuid.UUID, input *CreateNodeInput) (n *models.Node, err error) {
	ctx, done := track(ctx, "create_node", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("create_node"); err != nil {
		return nil, err
	}
	if err := validateContent(input.Title, input.Author); err != nil {
		return nil, err
	}

	id := uuid.New()
	logger.L().Info("create node called", logger.Tree(treeID), logger.Node("node_id", id), zap.String("author", input.Author))

	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		n = &models.Node{
			ID:      id,
			Title:   input.Title,
			Content: input.Content,
			Author:  input.Author,
			Version: 1,
		}
		return tx.CreateNode(ctx, n)
	})
	if err != nil {
		return nil, err
	}

	logger.L().Info("node created", logger.Tree(treeID), logger.Node("node_id", id))
	return n, nil
}

func (s *nodeService) Get(ctx context.Context, treeID, nodeID uuid.UUID) (n *models.Node, err error) {
	ctx, done := track(ctx, "get_node", treeID, false)
	defer func() { done(err) }()

	err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
		n, err = tx.GetNode(ctx, nodeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *nodeService) List(ctx context.Context, treeID uuid.UUID) (out []models.Node, err error) {
	ctx, done := track(ctx, "list_nodes", treeID, false)
	defer func() { done(err) }()

	err = s.store.View(ctx, treeID, func(tx repository.TreeReader) error {
		out, err = tx.ListNodes(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *nodeService) SoftDelete(ctx context.Context, actor Actor, treeID, nodeID uuid.UUID) (err error) {
	ctx, done := track(ctx, "delete_node", treeID, true)
	defer func() { done(err) }()

	if err := actor.authorize("delete_node"); err != nil {
		return err
	}
	logger.L().Info("delete node called", logger.Tree(treeID), logger.Node("node_id", nodeID), zap.String("author", actor.Author))

	err = s.store.Update(ctx, treeID, func(tx repository.TreeTx) error {
		if _, err := tx.GetNode(ctx, nodeID); err != nil {
			return err
		}
		edges, err := tx.CountRelations(ctx, nodeID)
		if err != nil {
			return err
		}
		if edges > 0 {
			return appErr.Conflict(appErr.ReasonHasRelations, "node still has relations").
				WithMeta("tree_id", treeID).
				WithMeta("node_id", nodeID).
				WithMeta("relations", edges)
		}
		return tx.SoftDeleteNode(ctx, nodeID)
	})
	if err != nil {
		return err
	}

	logger.L().Info("node deleted", logger.Tree(treeID), logger.Node("node_id", nodeID))
	return nil
}
