package repository

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

// badgerTreeTx implements TreeTx on a badger transaction. Read-only
// transactions use the same type; their writes fail inside badger.
type badgerTreeTx struct {
	ctx  context.Context
	txn  *badger.Txn
	tree uuid.UUID
	meta *treeMeta
}

// alive fails once either the caller or the store call is done.
func (t *badgerTreeTx) alive(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.ctx.Err()
}

var _ TreeTx = (*badgerTreeTx)(nil)

// nodeRecord is the stored form of a node. The model hides Seq and
// DeletedAt from JSON, so they are carried next to it.
type nodeRecord struct {
	models.Node
	Seq       uint64     `json:"seq"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func newNodeRecord(n *models.Node) *nodeRecord {
	rec := &nodeRecord{Node: *n, Seq: n.Seq}
	if n.DeletedAt.Valid {
		at := n.DeletedAt.Time
		rec.DeletedAt = &at
	}
	return rec
}

func (r *nodeRecord) node() *models.Node {
	n := r.Node
	n.Seq = r.Seq
	if r.DeletedAt != nil {
		n.DeletedAt = gorm.DeletedAt{Time: *r.DeletedAt, Valid: true}
	}
	return &n
}

func (t *badgerTreeTx) putNode(n *models.Node) error {
	return putJSON(t.txn, nodeKey(t.tree, n.ID), newNodeRecord(n))
}

func (t *badgerTreeTx) TreeID() uuid.UUID { return t.tree }

func (t *badgerTreeTx) getNode(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	if err := t.alive(ctx); err != nil {
		return nil, err
	}
	var rec nodeRecord
	found, err := getJSON(t.txn, nodeKey(t.tree, id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return rec.node(), nil
}

func (t *badgerTreeTx) GetNode(ctx context.Context, id uuid.UUID) (*models.Node, error) {
	n, err := t.getNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil || n.Deleted() {
		return nil, nodeNotFound(t.tree, id)
	}
	return n, nil
}

func (t *badgerTreeTx) ListNodes(ctx context.Context) ([]models.Node, error) {
	var out []models.Node
	err := scan(t.ctx, t.txn, nodePrefix(t.tree), func(val []byte) error {
		var rec nodeRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "decode node failed")
		}
		if n := rec.node(); !n.Deleted() {
			out = append(out, *n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b models.Node) int { return cmp.Compare(a.Seq, b.Seq) })
	return out, nil
}

func (t *badgerTreeTx) ListRelations(ctx context.Context) ([]models.Relation, error) {
	var out []models.Relation
	err := scan(t.ctx, t.txn, relationPrefix(t.tree), func(val []byte) error {
		var r models.Relation
		if err := json.Unmarshal(val, &r); err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "decode relation failed")
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b models.Relation) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *badgerTreeTx) RelationExists(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	if err := t.alive(ctx); err != nil {
		return false, err
	}
	_, err := t.txn.Get(relationKey(t.tree, parentID, childID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "check relation failed")
	}
	return true, nil
}

func (t *badgerTreeTx) CountRelations(ctx context.Context, nodeID uuid.UUID) (int, error) {
	rels, err := t.ListRelations(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range rels {
		if r.ParentID == nodeID || r.ChildID == nodeID {
			n++
		}
	}
	return n, nil
}

func (t *badgerTreeTx) CreateNode(ctx context.Context, n *models.Node) error {
	existing, err := t.getNode(ctx, n.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return appErr.Conflict(appErr.ReasonDuplicate, "node already exists").WithMeta("node_id", n.ID)
	}
	now := time.Now().UTC()
	t.meta.NextNodeSeq++
	n.TreeID = t.tree
	n.Seq = t.meta.NextNodeSeq
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	return t.putNode(n)
}

func (t *badgerTreeTx) CompareAndSwapNode(ctx context.Context, n *models.Node, expected int) (bool, error) {
	cur, err := t.getNode(ctx, n.ID)
	if err != nil {
		return false, err
	}
	if cur == nil || cur.Deleted() || cur.Version != expected {
		return false, nil
	}
	next := *cur
	next.Title = n.Title
	next.Content = n.Content
	next.Author = n.Author
	next.Version = n.Version
	next.UpdatedAt = n.UpdatedAt
	return true, t.putNode(&next)
}

func (t *badgerTreeTx) SoftDeleteNode(ctx context.Context, id uuid.UUID) error {
	n, err := t.getNode(ctx, id)
	if err != nil {
		return err
	}
	if n == nil || n.Deleted() {
		return nodeNotFound(t.tree, id)
	}
	n.DeletedAt = gorm.DeletedAt{Time: time.Now().UTC(), Valid: true}
	return t.putNode(n)
}

func (t *badgerTreeTx) CreateRelation(ctx context.Context, r *models.Relation) error {
	exists, err := t.RelationExists(ctx, r.ParentID, r.ChildID)
	if err != nil {
		return err
	}
	if exists {
		return appErr.Conflict(appErr.ReasonDuplicate, "edge already exists")
	}
	t.meta.NextRelationID++
	r.ID = t.meta.NextRelationID
	r.TreeID = t.tree
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return putJSON(t.txn, relationKey(t.tree, r.ParentID, r.ChildID), r)
}

func (t *badgerTreeTx) DeleteRelation(ctx context.Context, parentID, childID uuid.UUID) (bool, error) {
	exists, err := t.RelationExists(ctx, parentID, childID)
	if err != nil || !exists {
		return false, err
	}
	if err := t.txn.Delete(relationKey(t.tree, parentID, childID)); err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "delete relation failed")
	}
	return true, nil
}
