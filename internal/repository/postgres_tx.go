package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

// SQLSTATE codes the store reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// classify maps a gorm/pgx error to an AppError.
func classify(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return serializationError(err)
		case pgUniqueViolation:
			return duplicateError(pgErr)
		}
	}
	if ce := appErr.FromContext(err); ce != err {
		return ce
	}
	return appErr.Wrap(err, appErr.CodeInternal, msg)
}

// uniqueSubjects names what each unique constraint protects.
var uniqueSubjects = map[string]string{
	"idx_relations_edge": "edge",
	"nodes_pkey":         "node",
	"trees_pkey":         "tree",
}

func duplicateError(pgErr *pgconn.PgError) error {
	subject, ok := uniqueSubjects[pgErr.ConstraintName]
	if !ok {
		subject = "record"
	}
	e := appErr.Conflict(appErr.ReasonDuplicate, subject+" already exists")
	if pgErr.ConstraintName != "" {
		e = e.WithMeta("constraint", pgErr.ConstraintName)
	}
	return e
}

// gormTreeTx implements TreeTx on top of an open gorm transaction. The
// transaction is already bound to the store call's context, which bounds
// every statement.
type gormTreeTx struct {
	db   *gorm.DB
	tree uuid.UUID
}

var _ TreeTx = (*gormTreeTx)(nil)

func (t *gormTreeTx) TreeID() uuid.UUID { return t.tree }

func (t *gormTreeTx) GetNode(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	var n models.Node
	if err := t.db.Where("tree_id = ? AND id = ?", t.tree, id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nodeNotFound(t.tree, id)
		}
		return nil, classify(err, "get node failed")
	}
	return &n, nil
}

func (t *gormTreeTx) ListNodes(ctx context.Context) ([]models.Node, error) {
	var out []models.Node
	if err := t.db.Where("tree_id = ?", t.tree).Order("seq ASC").Find(&out).Error; err != nil {
		return nil, classify(err, "list nodes failed")
	}
	return out, nil
}

func (t *gormTreeTx) ListRelations(ctx context.Context) ([]models.Relation, error) {
	var out []models.Relation
	if err := t.db.Where("tree_id = ?", t.tree).Order("id ASC").Find(&out).Error; err != nil {
		return nil, classify(err, "list relations failed")
	}
	return out, nil
}

func (t *gormTreeTx) RelationExists(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	var n int64
	err := t.db.Model(&models.Relation{}).
		Where("tree_id = ? AND parent_id = ? AND child_id = ?", t.tree, parentID, childID).
		Count(&n).Error
	if err != nil {
		return false, classify(err, "check relation failed")
	}
	return n > 0, nil
}

func (t *gormTreeTx) CountRelations(ctx context.Context, nodeID uuid.UUID) (int, error) {
	var n int64
	err := t.db.Model(&models.Relation{}).
		Where("tree_id = ? AND (parent_id = ? OR child_id = ?)", t.tree, nodeID, nodeID).
		Count(&n).Error
	if err != nil {
		return 0, classify(err, "count relations failed")
	}
	return int(n), nil
}

func (t *gormTreeTx) CreateNode(ctx context.Context, n *models.Node) error {
	n.TreeID = t.tree
	if err := t.db.Create(n).Error; err != nil {
		return classify(err, "create node failed")
	}
	return nil
}

func (t *gormTreeTx) CompareAndSwapNode(ctx context.Context, n *models.Node, expected int) (bool, error) {
	res := t.db.Model(&models.Node{}).
		Where("tree_id = ? AND id = ? AND version = ?", t.tree, n.ID, expected).
		Updates(map[string]any{
			"title":      n.Title,
			"content":    n.Content,
			"author":     n.Author,
			"version":    n.Version,
			"updated_at": n.UpdatedAt,
		})
	if res.Error != nil {
		return false, classify(res.Error, "update node failed")
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTreeTx) SoftDeleteNode(ctx context.Context, id uuid.UUID) error {
	res := t.db.Where("tree_id = ? AND id = ?", t.tree, id).Delete(&models.Node{})
	if res.Error != nil {
		return classify(res.Error, "delete node failed")
	}
	if res.RowsAffected == 0 {
		return nodeNotFound(t.tree, id)
	}
	return nil
}

func (t *gormTreeTx) CreateRelation(ctx context.Context, r *models.Relation) error {
	r.TreeID = t.tree
	if err := t.db.Create(r).Error; err != nil {
		return classify(err, "create relation failed")
	}
	return nil
}

func (t *gormTreeTx) DeleteRelation(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	res := t.db.
		Where("tree_id = ? AND parent_id = ? AND child_id = ?", t.tree, parentID, childID).
		Delete(&models.Relation{})
	if res.Error != nil {
		return false, classify(res.Error, "delete relation failed")
	}
	return res.RowsAffected > 0, nil
}
