package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/outline-studio/engine/internal/models"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/utils"
)

const driverPostgres = "postgres"

type postgresStore struct {
	db    *gorm.DB
	trees BaseRepository[models.Tree]
	opts  Options
}

// NewPostgresStore returns a Store backed by PostgreSQL. Writers on one tree
// are serialized by a transaction-scoped advisory lock taken as the first
// statement of a READ COMMITTED transaction, so every later statement sees
// what the previous lock holder committed.
func NewPostgresStore(db *gorm.DB, opts Options) Store {
	return &postgresStore{db: db, trees: NewBaseRepository[models.Tree](db), opts: opts}
}

var _ Store = (*postgresStore)(nil)

// Models lists the tables owned by the postgres store, in migration order.
func Models() []any {
	return []any{&models.Tree{}, &models.Node{}, &models.Relation{}}
}

func (s *postgresStore) CreateTree(ctx context.Context, tree *models.Tree) error {
	return withRetry(ctx, s.opts, driverPostgres, tree.ID, func(ctx context.Context) error {
		return s.trees.Create(ctx, tree)
	})
}

func (s *postgresStore) GetTree(ctx context.Context, id uuid.UUID) (*models.Tree, error) {
	var t models.Tree
	err := withRetry(ctx, s.opts, driverPostgres, id, func(ctx context.Context) error {
		return s.trees.GetByID(ctx, id, &t)
	})
	if appErr.IsCode(err, appErr.CodeNotFound) {
		return nil, treeNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *postgresStore) ListTrees(ctx context.Context) ([]models.Tree, error) {
	var out []models.Tree
	err := withRetry(ctx, s.opts, driverPostgres, uuid.Nil, func(ctx context.Context) error {
		var err error
		out, err = s.trees.List(ctx, "created_at ASC")
		return err
	})
	return out, err
}

func (s *postgresStore) Update(ctx context.Context, treeID uuid.UUID, fn func(tx TreeTx) error) error {
	return withRetry(ctx, s.opts, driverPostgres, treeID, func(ctx context.Context) error {
		return s.run(ctx, treeID, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, true, func(tx *gormTreeTx) error {
			return fn(tx)
		})
	})
}

func (s *postgresStore) View(ctx context.Context, treeID uuid.UUID, fn func(tx TreeReader) error) error {
	return withRetry(ctx, s.opts, driverPostgres, treeID, func(ctx context.Context) error {
		return s.run(ctx, treeID, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, false, func(tx *gormTreeTx) error {
			return fn(tx)
		})
	})
}

func (s *postgresStore) run(ctx context.Context, treeID uuid.UUID, opts *sql.TxOptions, lock bool, fn func(tx *gormTreeTx) error) error {
	tx := s.db.WithContext(ctx).Begin(opts)
	if tx.Error != nil {
		return classify(tx.Error, "begin transaction failed")
	}

	if lock {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", utils.LockKey("tree", treeID)).Error; err != nil {
			tx.Rollback()
			return classify(err, "acquire tree lock failed")
		}
	}

	var tree models.Tree
	if err := tx.Select("id").First(&tree, "id = ?", treeID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return treeNotFound(treeID)
		}
		return classify(err, "load tree failed")
	}

	if err := fn(&gormTreeTx{db: tx, tree: treeID}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return classify(err, "commit transaction failed")
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "get sql db failed")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "database ping failed")
	}
	return nil
}

func (s *postgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
