package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// LendingEvent is an audit entry for a completed engine transition.
type LendingEvent struct {
	ID         string         `db:"id" json:"id"`
	Action     string         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entity_type"`
	EntityID   string         `db:"entity_id" json:"entity_id"`
	ActorID    string         `db:"actor_id" json:"actor_id"`
	Payload    types.JSONText `db:"payload" json:"payload"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// LendingEventFilter narrows audit trail listings.
type LendingEventFilter struct {
	EntityType string
	EntityID   string
	Page       int
	PageSize   int
}
