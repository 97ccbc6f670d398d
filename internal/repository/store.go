package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/telemetry"
	"github.com/outline-studio/engine/pkg/database"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

// Store persists trees. Every Update runs as one serializable transaction
// scoped to a single tree; View reads one consistent snapshot of it.
type Store interface {
	CreateTree(ctx context.Context, tree *models.Tree) error
	GetTree(ctx context.Context, id uuid.UUID) (*models.Tree, error)
	ListTrees(ctx context.Context) ([]models.Tree, error)

	// Update runs fn in a read-write transaction on treeID. fn may be
	// called more than once when the transaction loses a serialization
	// race, so it must not have side effects outside tx.
	Update(ctx context.Context, treeID uuid.UUID, fn func(tx TreeTx) error) error
	View(ctx context.Context, treeID uuid.UUID, fn func(tx TreeReader) error) error

	Ping(ctx context.Context) error
	Close() error
}

// TreeReader reads nodes and relations of one tree.
type TreeReader interface {
	TreeID() uuid.UUID
	// GetNode returns a not_found AppError for missing or soft-deleted nodes.
	GetNode(ctx context.Context, id uuid.UUID) (*models.Node, error)
	// ListNodes returns live nodes in creation order.
	ListNodes(ctx context.Context) ([]models.Node, error)
	// ListRelations returns all relations in creation order.
	ListRelations(ctx context.Context) ([]models.Relation, error)
	RelationExists(ctx context.Context, parentID, childID uuid.UUID) (bool, error)
	// CountRelations counts edges that have nodeID as parent or child.
	CountRelations(ctx context.Context, nodeID uuid.UUID) (int, error)
}

// TreeTx is a TreeReader that can also write.
type TreeTx interface {
	TreeReader
	CreateNode(ctx context.Context, n *models.Node) error
	// CompareAndSwapNode stores n only if the stored version equals
	// expected. It reports whether the swap happened.
	CompareAndSwapNode(ctx context.Context, n *models.Node, expected int) (bool, error)
	SoftDeleteNode(ctx context.Context, id uuid.UUID) error
	CreateRelation(ctx context.Context, r *models.Relation) error
	DeleteRelation(ctx context.Context, parentID, childID uuid.UUID) (bool, error)
}

// Options bounds store calls.
type Options struct {
	// Timeout applies to each Store call including its retries. Zero
	// disables it.
	Timeout time.Duration
	Retry   database.Backoff
}

// DefaultOptions returns the limits used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Retry:   database.Backoff{MaxRetries: 8, Delay: 5 * time.Millisecond, MaxDelay: 200 * time.Millisecond},
	}
}

// errSerialization marks an attempt that lost a race with a concurrent
// transaction and may be replayed.
var errSerialization = errors.New("serialization failure")

func serializationError(err error) error {
	return appErr.Wrap(fmt.Errorf("%w: %w", errSerialization, err), appErr.CodeUnavailable, "transaction aborted by concurrent update")
}

// withRetry runs attempt under the store timeout and replays it while it
// fails with a serialization error.
func withRetry(ctx context.Context, opts Options, driver string, treeID uuid.UUID, attempt func(ctx context.Context) error) error {
	cancel := func() {}
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return appErr.FromContext(err)
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errSerialization) {
			if _, ok := appErr.As(err); (!ok || appErr.IsCode(err, appErr.CodeInternal)) && ctx.Err() != nil {
				return appErr.FromContext(ctx.Err())
			}
			return appErr.FromContext(err)
		}
		if n >= opts.Retry.MaxRetries {
			logger.L().Warn("transaction retries exhausted", logger.Tree(treeID), zap.String("driver", driver), zap.Int("attempts", n+1))
			return appErr.Wrap(err, appErr.CodeUnavailable, "transaction retries exhausted").WithMeta("tree_id", treeID)
		}
		telemetry.TxRetries.WithLabelValues(driver).Inc()
		logger.L().Debug("retrying transaction", logger.Tree(treeID), zap.String("driver", driver), zap.Int("attempt", n+1), zap.Error(err))
		if werr := opts.Retry.Wait(ctx, n); werr != nil {
			return appErr.FromContext(werr)
		}
	}
}

func treeNotFound(id uuid.UUID) error {
	return appErr.New(appErr.CodeNotFound, "tree not found").WithMeta("tree_id", id)
}

func nodeNotFound(treeID, nodeID uuid.UUID) error {
	return appErr.New(appErr.CodeNotFound, "node not found").WithMeta("tree_id", treeID).WithMeta("node_id", nodeID)
}
