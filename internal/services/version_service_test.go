package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

func update(f *fixture, id uuid.UUID, expected int, title string) (*models.Node, error) {
	return f.svc.Versions.Update(context.Background(), editor, f.tree, id, &UpdateNodeInput{
		ExpectedVersion: expected,
		Title:           title,
		Content:         "body " + title,
		Author:          "ada",
	})
}

func TestVersionService_Update(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.node(t, "v1")

	for v := 1; v < 4; v++ {
		n, err := update(f, id, v, "next")
		require.NoError(t, err)
		require.Equal(t, v+1, n.Version)
	}

	t.Run("stale version carries the stored node", func(t *testing.T) {
		cur, err := update(f, id, 3, "late")
		require.True(t, appErr.IsConflict(err, appErr.ReasonStaleVersion), "got %v", err)
		require.NotNil(t, cur)
		assert.Equal(t, 4, cur.Version)

		ae, _ := appErr.As(err)
		assert.Equal(t, 3, ae.Meta["expected_version"])
		assert.Equal(t, cur, ae.Meta["current"])
	})

	t.Run("matching version stores the next one", func(t *testing.T) {
		n, err := update(f, id, 4, "fresh")
		require.NoError(t, err)
		assert.Equal(t, 5, n.Version)

		got, err := f.svc.Nodes.Get(context.Background(), f.tree, id)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Version)
		assert.Equal(t, "fresh", got.Title)
		assert.Equal(t, "body fresh", got.Content)
	})

	t.Run("validation and permissions", func(t *testing.T) {
		_, err := update(f, id, 5, " ")
		assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

		_, err = f.svc.Versions.Update(context.Background(), Actor{Author: "bob"}, f.tree, id, &UpdateNodeInput{ExpectedVersion: 5, Title: "x", Author: "bob"})
		assert.True(t, appErr.IsCode(err, appErr.CodeForbidden))

		_, err = update(f, uuid.New(), 1, "x")
		assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	})
}

func TestVersionService_UpdatedAtUsesClock(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.node(t, "a")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.Versions.(*versionService).now = func() time.Time { return at }

	n, err := update(f, id, 1, "b")
	require.NoError(t, err)
	assert.True(t, n.UpdatedAt.Equal(at))
}

// raceUpdates sends several updates that all expect version 1.
func raceUpdates(t *testing.T, f *fixture) {
	t.Helper()
	id := f.node(t, "base")

	const writers = 6
	var wins atomic.Int32
	var winner atomic.Pointer[models.Node]
	losers := make([]*models.Node, writers)

	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			n, err := update(f, id, 1, "writer")
			switch {
			case err == nil:
				wins.Add(1)
				winner.Store(n)
			case appErr.IsConflict(err, appErr.ReasonStaleVersion):
				losers[i] = n
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())

	w := winner.Load()
	assert.Equal(t, 2, w.Version)
	for _, l := range losers {
		if l == nil {
			continue
		}
		assert.Equal(t, 2, l.Version)
		assert.Equal(t, w.ID, l.ID)
	}
}

func TestVersionService_ConcurrentUpdatesOneWins(t *testing.T) {
	raceUpdates(t, newFixture(t, Options{}))
}
