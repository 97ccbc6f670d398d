package repository

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/utils"
)

const lockStripes = 64

// treeLocks serializes writers of one tree inside the process. Trees are
// hashed onto a fixed set of stripes, so unrelated trees may share one.
type treeLocks struct {
	stripes [lockStripes]*semaphore.Weighted
}

func newTreeLocks() *treeLocks {
	l := &treeLocks{}
	for i := range l.stripes {
		l.stripes[i] = semaphore.NewWeighted(1)
	}
	return l
}

// acquire blocks until the tree's stripe is free or ctx ends. The returned
// func releases it.
func (l *treeLocks) acquire(ctx context.Context, tree uuid.UUID) (func(), error) {
	sem := l.stripes[uint64(utils.LockKey("tree", tree))%lockStripes]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, appErr.FromContext(err)
	}
	return func() { sem.Release(1) }, nil
}
