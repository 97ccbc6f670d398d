package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/pkg/database"
	"github.com/outline-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

var editor = Actor{Author: "ada", MayEdit: true}

type fixture struct {
	store repository.Store
	svc   *Services
	tree  uuid.UUID
}

// storeOptions keeps the production retry budget with a wider timeout.
func storeOptions() repository.Options {
	opts := repository.DefaultOptions()
	opts.Timeout = 20 * time.Second
	return opts
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := database.OpenBadger(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)

	store := repository.NewBadgerStore(db, storeOptions())
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureOn(t, store, opts)
}

// newFixtureOn creates a fresh tree in store.
func newFixtureOn(t *testing.T, store repository.Store, opts Options) *fixture {
	t.Helper()
	svc := New(store, opts)
	tree, err := svc.Trees.CreateTree(context.Background(), editor, "outline")
	require.NoError(t, err)
	return &fixture{store: store, svc: svc, tree: tree.ID}
}

func (f *fixture) node(t *testing.T, title string) uuid.UUID {
	t.Helper()
	n, err := f.svc.Nodes.Create(context.Background(), editor, f.tree, &CreateNodeInput{Title: title, Author: "ada"})
	require.NoError(t, err)
	return n.ID
}

func (f *fixture) edge(t *testing.T, parent, child uuid.UUID) {
	t.Helper()
	_, err := f.svc.Relations.AddEdge(context.Background(), editor, f.tree, parent, child)
	require.NoError(t, err)
}

// rows drains a projection, failing the test on error.
func rows(t *testing.T, seq func(func(graph.Row, error) bool)) []graph.Row {
	t.Helper()
	var out []graph.Row
	for row, err := range seq {
		require.NoError(t, err)
		out = append(out, row)
	}
	return out
}

func nodeIDs(rs []graph.Row) []uuid.UUID {
	out := make([]uuid.UUID, len(rs))
	for i, r := range rs {
		out[i] = r.NodeID
	}
	return out
}

func idsOf(ns []models.Node) []uuid.UUID {
	out := make([]uuid.UUID, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}
