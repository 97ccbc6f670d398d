package main

import (
	"gorm.io/gorm"

	"github.com/outline-studio/engine/internal/repository"
)

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(repository.Models()...); err != nil {
		return err
	}

	// Run custom migrations
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addRelationChecks,
		addLiveNodeIndex,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}

	return nil
}

// addRelationChecks rejects self loops at the database level.
func addRelationChecks(db *gorm.DB) error {
	return db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_relations_not_self') THEN
				ALTER TABLE relations ADD CONSTRAINT chk_relations_not_self CHECK (parent_id <> child_id);
			END IF;
		END $$
	`).Error
}

// addLiveNodeIndex speeds up loading the live nodes of a tree in creation order.
func addLiveNodeIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_nodes_tree_live
		ON nodes(tree_id, seq)
		WHERE deleted_at IS NULL
	`).Error
}
