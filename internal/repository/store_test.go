package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

// testOptions keeps the production retry budget and only widens the
// timeout for slow CI machines.
func testOptions() Options {
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Second
	return opts
}

func newTree(t *testing.T, s Store) uuid.UUID {
	t.Helper()
	tree := &models.Tree{ID: uuid.New(), Name: "outline"}
	require.NoError(t, s.CreateTree(context.Background(), tree))
	return tree.ID
}

func newNode(title string) *models.Node {
	return &models.Node{ID: uuid.New(), Title: title, Author: "ada", Version: 1}
}

// runStoreContract exercises behaviour every Store implementation shares.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("trees", func(t *testing.T) {
		id := newTree(t, s)
		got, err := s.GetTree(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "outline", got.Name)

		trees, err := s.ListTrees(ctx)
		require.NoError(t, err)
		ids := make([]uuid.UUID, len(trees))
		for i, tr := range trees {
			ids[i] = tr.ID
		}
		assert.Contains(t, ids, id)

		_, err = s.GetTree(ctx, uuid.New())
		assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "got %v", err)

		err = s.CreateTree(ctx, &models.Tree{ID: id, Name: "again"})
		require.True(t, appErr.IsConflict(err, appErr.ReasonDuplicate), "got %v", err)
		ae, _ := appErr.As(err)
		assert.Equal(t, "tree already exists", ae.Message)

		err = s.Update(ctx, uuid.New(), func(tx TreeTx) error { return nil })
		assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "got %v", err)
	})

	t.Run("nodes and relations", func(t *testing.T) {
		tree := newTree(t, s)
		a, b, c := newNode("a"), newNode("b"), newNode("c")

		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error {
			for _, n := range []*models.Node{c, a, b} {
				if err := tx.CreateNode(ctx, n); err != nil {
					return err
				}
			}
			if err := tx.CreateRelation(ctx, &models.Relation{ParentID: c.ID, ChildID: b.ID}); err != nil {
				return err
			}
			return tx.CreateRelation(ctx, &models.Relation{ParentID: c.ID, ChildID: a.ID})
		}))

		require.NoError(t, s.View(ctx, tree, func(tx TreeReader) error {
			nodes, err := tx.ListNodes(ctx)
			require.NoError(t, err)
			require.Len(t, nodes, 3)
			assert.Equal(t, []string{"c", "a", "b"}, []string{nodes[0].Title, nodes[1].Title, nodes[2].Title})

			rels, err := tx.ListRelations(ctx)
			require.NoError(t, err)
			require.Len(t, rels, 2)
			assert.Equal(t, b.ID, rels[0].ChildID)
			assert.Equal(t, a.ID, rels[1].ChildID)
			assert.Less(t, rels[0].ID, rels[1].ID)

			ok, err := tx.RelationExists(ctx, c.ID, a.ID)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = tx.RelationExists(ctx, a.ID, c.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			cnt, err := tx.CountRelations(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, cnt)
			return nil
		}))

		err := s.Update(ctx, tree, func(tx TreeTx) error {
			return tx.CreateRelation(ctx, &models.Relation{ParentID: c.ID, ChildID: a.ID})
		})
		assert.True(t, appErr.IsConflict(err, appErr.ReasonDuplicate), "got %v", err)

		var removed bool
		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error {
			var err error
			removed, err = tx.DeleteRelation(ctx, c.ID, a.ID)
			return err
		}))
		assert.True(t, removed)
		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error {
			var err error
			removed, err = tx.DeleteRelation(ctx, c.ID, a.ID)
			return err
		}))
		assert.False(t, removed)

		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error { return tx.SoftDeleteNode(ctx, a.ID) }))
		require.NoError(t, s.View(ctx, tree, func(tx TreeReader) error {
			_, err := tx.GetNode(ctx, a.ID)
			assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "got %v", err)
			nodes, err := tx.ListNodes(ctx)
			require.NoError(t, err)
			assert.Len(t, nodes, 2)
			return nil
		}))
		err = s.Update(ctx, tree, func(tx TreeTx) error { return tx.SoftDeleteNode(ctx, a.ID) })
		assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "got %v", err)
	})

	t.Run("compare and swap", func(t *testing.T) {
		tree := newTree(t, s)
		n := newNode("draft")
		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error { return tx.CreateNode(ctx, n) }))

		next := *n
		next.Title = "final"
		next.Version = 2
		next.UpdatedAt = time.Now().UTC()

		var swapped bool
		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error {
			var err error
			swapped, err = tx.CompareAndSwapNode(ctx, &next, 1)
			return err
		}))
		assert.True(t, swapped)

		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error {
			var err error
			swapped, err = tx.CompareAndSwapNode(ctx, &next, 1)
			return err
		}))
		assert.False(t, swapped)

		require.NoError(t, s.View(ctx, tree, func(tx TreeReader) error {
			got, err := tx.GetNode(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, "final", got.Title)
			assert.Equal(t, 2, got.Version)
			return nil
		}))
	})

	t.Run("failed update leaves no partial writes", func(t *testing.T) {
		tree := newTree(t, s)
		boom := errors.New("boom")
		err := s.Update(ctx, tree, func(tx TreeTx) error {
			if err := tx.CreateNode(ctx, newNode("ghost")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, s.View(ctx, tree, func(tx TreeReader) error {
			nodes, err := tx.ListNodes(ctx)
			require.NoError(t, err)
			assert.Empty(t, nodes)
			return nil
		}))
	})

	t.Run("concurrent writers are serialized", func(t *testing.T) {
		tree := newTree(t, s)
		n := newNode("counter")
		require.NoError(t, s.Update(ctx, tree, func(tx TreeTx) error { return tx.CreateNode(ctx, n) }))

		const writers = 32
		var g errgroup.Group
		for i := 0; i < writers; i++ {
			g.Go(func() error {
				return s.Update(ctx, tree, func(tx TreeTx) error {
					cur, err := tx.GetNode(ctx, n.ID)
					if err != nil {
						return err
					}
					next := *cur
					next.Version = cur.Version + 1
					ok, err := tx.CompareAndSwapNode(ctx, &next, cur.Version)
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("lost update")
					}
					return nil
				})
			})
		}
		require.NoError(t, g.Wait())

		require.NoError(t, s.View(ctx, tree, func(tx TreeReader) error {
			got, err := tx.GetNode(ctx, n.ID)
			require.NoError(t, err)
			assert.Equal(t, 1+writers, got.Version)
			return nil
		}))
	})

	t.Run("expired context is transient", func(t *testing.T) {
		tree := newTree(t, s)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := s.Update(cctx, tree, func(tx TreeTx) error { return nil })
		assert.True(t, appErr.IsTransient(err), "got %v", err)
	})
}
