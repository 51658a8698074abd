package models

import "time"

// KitStatus is the availability of a physical kit.
type KitStatus string

const (
	KitStatusValid KitStatus = "VALID"
	KitStatusInUse KitStatus = "IN_USE"
)

// KitTemplate is the recipe a kit is built from.
type KitTemplate struct {
	ID        string                 `db:"id" json:"id"`
	Name      string                 `db:"name" json:"name"`
	Quantity  int                    `db:"quantity" json:"quantity"`
	Status    ValidityStatus         `db:"status" json:"status"`
	Recipe    []AccessoryKitTemplate `db:"-" json:"recipe,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt time.Time              `db:"updated_at" json:"updated_at"`
}

// AccessoryKitTemplate binds an accessory to a template with the required quantity.
type AccessoryKitTemplate struct {
	ID            string `db:"id" json:"id"`
	KitTemplateID string `db:"kit_template_id" json:"kit_template_id"`
	AccessoryID   string `db:"accessory_id" json:"accessory_id"`
	AccessoryName string `db:"accessory_name" json:"accessory_name,omitempty"`
	Quantity      int    `db:"quantity" json:"quantity"`
}

// Kit is a physical instance of a template.
type Kit struct {
	ID            string    `db:"id" json:"id"`
	KitTemplateID string    `db:"kit_template_id" json:"kit_template_id"`
	Name          string    `db:"name" json:"name"`
	Status        KitStatus `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// KitDetail is a kit with its accessory rows.
type KitDetail struct {
	Kit
	Accessories []KitAccessory `json:"accessories"`
}

// KitAccessory tracks the current count of one accessory inside one kit.
type KitAccessory struct {
	ID              string         `db:"id" json:"id"`
	KitID           string         `db:"kit_id" json:"kit_id"`
	AccessoryID     string         `db:"accessory_id" json:"accessory_id"`
	AccessoryName   string         `db:"accessory_name" json:"accessory_name,omitempty"`
	InitialQuantity int            `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity int            `db:"current_quantity" json:"current_quantity"`
	ValidPercent    int            `db:"valid_percent" json:"valid_percent"`
	Status          ValidityStatus `db:"status" json:"status"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
