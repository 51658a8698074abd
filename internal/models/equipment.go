package models

import "time"

// EquipmentStatus is the lifecycle state of a piece of equipment.
type EquipmentStatus string

const (
	EquipmentStatusAvailable   EquipmentStatus = "AVAILABLE"
	EquipmentStatusInUse       EquipmentStatus = "IN_USE"
	EquipmentStatusMaintenance EquipmentStatus = "MAINTENANCE"
	EquipmentStatusOutOfOrder  EquipmentStatus = "OUT_OF_ORDER"
)

// Equipment is a physical device lent to teams.
type Equipment struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Code         string          `db:"code" json:"code"`
	SerialNumber string          `db:"serial_number" json:"serial_number"`
	Status       EquipmentStatus `db:"status" json:"status"`
	Description  string          `db:"description" json:"description"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// InventoryFilter is the shared keyword/status/page search over inventory tables.
type InventoryFilter struct {
	Keyword  string
	Status   string
	Page     int
	PageSize int
}
