package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

func TestTreeService(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	got, err := f.svc.Trees.GetTree(ctx, f.tree)
	require.NoError(t, err)
	assert.Equal(t, "outline", got.Name)

	_, err = f.svc.Trees.CreateTree(ctx, editor, "   ")
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = f.svc.Trees.CreateTree(ctx, Actor{Author: "viewer"}, "other")
	assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

	trees, err := f.svc.Trees.ListTrees(ctx)
	require.NoError(t, err)
	assert.Len(t, trees, 1)
}

func TestNodeService_Create(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	n, err := f.svc.Nodes.Create(ctx, editor, f.tree, &CreateNodeInput{Title: "Intro", Content: "# hi", Author: "ada"})
	require.NoError(t, err)
	assert.Equal(t, 1, n.Version)
	assert.Equal(t, f.tree, n.TreeID)

	got, err := f.svc.Nodes.Get(ctx, f.tree, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", got.Title)
	assert.Equal(t, "# hi", got.Content)

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.Nodes.Create(ctx, editor, f.tree, &CreateNodeInput{Title: "", Author: "ada"})
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
		_, err = f.svc.Nodes.Create(ctx, editor, f.tree, &CreateNodeInput{Title: "x", Author: " \t"})
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	})

	t.Run("forbidden actor touches nothing", func(t *testing.T) {
		_, err := f.svc.Nodes.Create(ctx, Actor{Author: "bob"}, f.tree, &CreateNodeInput{Title: "x", Author: "bob"})
		assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))
		nodes, err := f.svc.Nodes.List(ctx, f.tree)
		require.NoError(t, err)
		assert.Len(t, nodes, 1)
	})

	t.Run("unknown tree", func(t *testing.T) {
		_, err := f.svc.Nodes.Create(ctx, editor, uuid.New(), &CreateNodeInput{Title: "x", Author: "ada"})
		assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})
}

func TestNodeService_ListKeepsCreationOrder(t *testing.T) {
	f := newFixture(t, Options{})
	want := []uuid.UUID{f.node(t, "c"), f.node(t, "a"), f.node(t, "b")}

	nodes, err := f.svc.Nodes.List(context.Background(), f.tree)
	require.NoError(t, err)
	assert.Equal(t, want, idsOf(nodes))
}

func TestNodeService_SoftDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	p, c := f.node(t, "p"), f.node(t, "c")
	f.edge(t, p, c)

	err := f.svc.Nodes.SoftDelete(ctx, editor, f.tree, c)
	require.True(t, appErr.IsConflict(err, appErr.ReasonHasRelations), "got %v", err)
	ae, _ := appErr.As(err)
	assert.Equal(t, 1, ae.Meta["relations"])

	require.NoError(t, f.svc.Relations.RemoveEdge(ctx, editor, f.tree, p, c))
	require.NoError(t, f.svc.Nodes.SoftDelete(ctx, editor, f.tree, c))

	_, err = f.svc.Nodes.Get(ctx, f.tree, c)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	err = f.svc.Nodes.SoftDelete(ctx, editor, f.tree, c)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	_, err = f.svc.Relations.AddEdge(ctx, editor, f.tree, p, c)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound), "deleted nodes take no edges")

	assert.Equal(t, []uuid.UUID{p}, nodeIDs(rows(t, f.svc.Projection.ProjectNormal(ctx, f.tree))))
}
