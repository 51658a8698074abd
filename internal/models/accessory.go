package models

import "time"

// ValidityStatus is the valid/invalid badge shared by templates, accessories and kit accessories.
type ValidityStatus string

const (
	ValidityValid   ValidityStatus = "VALID"
	ValidityInvalid ValidityStatus = "INVALID"
)

// Accessory is a component type that kits are built from.
type Accessory struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	ValueCode string         `db:"value_code" json:"value_code"`
	Category  string         `db:"category" json:"category"`
	Status    ValidityStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
