package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

type TreeService interface {
	CreateTree(ctx context.Context, actor Actor, name string) (*models.Tree, error)
	GetTree(ctx context.Context, treeID uuid.UUID) (*models.Tree, error)
	ListTrees(ctx context.Context) ([]models.Tree, error)
}

type treeService struct {
	store repository.Store
}

func NewTreeService(store repository.Store) TreeService {
	return &treeService{store: store}
}

var _ TreeService = (*treeService)(nil)

func (s *treeService) CreateTree(ctx context.Context, actor Actor, name string) (t *models.Tree, err error) {
	id := uuid.New()
	ctx, done := track(ctx, "create_tree", id, true)
	defer func() { done(err) }()

	if err := actor.authorize("create_tree"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErr.New(appErr.CodeInvalid, "tree name is required").WithMeta("field", "name")
	}

	logger.L().Info("create tree called", logger.Tree(id), zap.String("name", name), zap.String("author", actor.Author))
	t = &models.Tree{ID: id, Name: name}
	if err := s.store.CreateTree(ctx, t); err != nil {
		return nil, err
	}
	logger.L().Info("tree created", logger.Tree(id))
	return t, nil
}

func (s *treeService) GetTree(ctx context.Context, treeID uuid.UUID) (t *models.Tree, err error) {
	ctx, done := track(ctx, "get_tree", treeID, false)
	defer func() { done(err) }()
	return s.store.GetTree(ctx, treeID)
}

func (s *treeService) ListTrees(ctx context.Context) (out []models.Tree, err error) {
	ctx, done := track(ctx, "list_trees", uuid.Nil, false)
	defer func() { done(err) }()
	return s.store.ListTrees(ctx)
}
