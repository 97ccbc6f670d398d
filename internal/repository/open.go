package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/outline-studio/engine/pkg/config"
	"github.com/outline-studio/engine/pkg/database"
	"github.com/outline-studio/engine/pkg/logger"
)

// Open builds the store selected by cfg.StoreDriver. For postgres the
// underlying *gorm.DB is returned as well so callers can migrate it.
func Open(ctx context.Context, cfg *config.Config) (Store, *gorm.DB, error) {
	opts := DefaultOptions()
	opts.Timeout = cfg.StoreTimeout
	opts.Retry.MaxRetries = cfg.TxMaxRetries

	switch cfg.StoreDriver {
	case driverBadger:
		db, err := database.OpenBadger(database.BadgerOptions{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.BadgerPath == "",
			SyncWrites: !cfg.IsDevelopment(),
			Logger:     logger.L(),
		})
		if err != nil {
			return nil, nil, err
		}
		logger.L().Info("badger store opened", zap.String("path", cfg.BadgerPath), zap.Bool("in_memory", cfg.BadgerPath == ""))
		return NewBadgerStore(db, opts), nil, nil
	case driverPostgres:
		po := database.DefaultPostgresOptions()
		po.Verbose = cfg.IsDevelopment()
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, po)
		if err != nil {
			return nil, nil, err
		}
		logger.L().Info("postgres store opened")
		return NewPostgresStore(db, opts), db, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
