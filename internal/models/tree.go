package models

import (
	"time"

	"github.com/google/uuid"
)

// Tree groups the nodes and relations of one outline.
type Tree struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name" validate:"required,max=200"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
