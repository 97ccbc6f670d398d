package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Node is a unit of outline content. Version starts at 1 and only moves
// forward through a compare-and-set update.
type Node struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TreeID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_nodes_tree_seq,priority:1" json:"tree_id" validate:"required"`
	Seq       uint64         `gorm:"autoIncrement;not null;index:idx_nodes_tree_seq,priority:2" json:"-"`
	Title     string         `gorm:"not null" json:"title" validate:"required"`
	Content   string         `gorm:"type:text" json:"content"`
	Author    string         `gorm:"not null" json:"author" validate:"required"`
	Version   int            `gorm:"not null;default:1" json:"version" validate:"gte=1"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Deleted reports whether the node has been soft-deleted.
func (n *Node) Deleted() bool { return n.DeletedAt.Valid }
