package models

import "time"

// SlotStatus describes whether a slot may receive new assignments.
type SlotStatus string

const (
	SlotStatusActive   SlotStatus = "ACTIVE"
	SlotStatusInactive SlotStatus = "INACTIVE"
	SlotStatusPending  SlotStatus = "PENDING"
)

// Slot is a fixed daily time window reused across all days.
type Slot struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	StartTime string     `db:"start_time" json:"start_time"`
	EndTime   string     `db:"end_time" json:"end_time"`
	Status    SlotStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// SlotFilter narrows slot listings.
type SlotFilter struct {
	Status SlotStatus
}
