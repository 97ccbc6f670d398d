package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/repository"
	"github.com/outline-studio/engine/pkg/config"
	"github.com/outline-studio/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, db, err := repository.Open(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	if db == nil {
		// badger keeps no schema
		fmt.Fprintln(os.Stdout, "nothing to migrate for driver", cfg.StoreDriver)
		return
	}
	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
