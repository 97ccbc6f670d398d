package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

// BaseRepository defines the plain CRUD used for tables outside the
// per-tree transactions.
type BaseRepository[T any] interface {
	Create(ctx context.Context, obj *T) error
	GetByID(ctx context.Context, id any, dest *T) error
	List(ctx context.Context, order string) ([]T, error)
}

type baseRepository[T any] struct {
	db *gorm.DB
}

func NewBaseRepository[T any](db *gorm.DB) BaseRepository[T] {
	return &baseRepository[T]{db: db}
}

func (r *baseRepository[T]) Create(ctx context.Context, obj *T) error {
	if err := r.db.WithContext(ctx).Create(obj).Error; err != nil {
		return classify(err, "create entity failed")
	}
	return nil
}

func (r *baseRepository[T]) GetByID(ctx context.Context, id any, dest *T) error {
	if err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "entity not found")
		}
		return classify(err, "get entity failed")
	}
	return nil
}

func (r *baseRepository[T]) List(ctx context.Context, order string) ([]T, error) {
	var out []T
	if err := r.db.WithContext(ctx).Order(order).Find(&out).Error; err != nil {
		return nil, classify(err, "list entities failed")
	}
	return out, nil
}
