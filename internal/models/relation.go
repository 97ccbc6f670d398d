package models

import (
	"time"

	"github.com/google/uuid"
)

// Relation is a directed parent -> child edge. ID is assigned by the store
// in creation order and fixes the display order of siblings.
type Relation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TreeID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_relations_edge,priority:1" json:"tree_id"`
	ParentID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_relations_edge,priority:2;index:idx_relations_parent" json:"parent_id"`
	ChildID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_relations_edge,priority:3;index:idx_relations_child" json:"child_id"`
	CreatedAt time.Time `json:"created_at"`
}
