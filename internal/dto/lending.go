package dto

// CheckoutEquipmentRequest lends a device to a team.
type CheckoutEquipmentRequest struct {
	TeamID      string `json:"teamId" validate:"required"`
	ClassID     string `json:"classId" validate:"required"`
	EquipmentID string `json:"equipmentId" validate:"required"`
	Name        string `json:"name" validate:"max=150"`
	Description string `json:"description"`
}

// CheckoutKitRequest lends a kit to a team.
type CheckoutKitRequest struct {
	TeamID      string `json:"teamId" validate:"required"`
	ClassID     string `json:"classId" validate:"required"`
	KitID       string `json:"kitId" validate:"required"`
	Name        string `json:"name" validate:"max=150"`
	Description string `json:"description"`
}

// ReturnRequest closes a borrow record.
type ReturnRequest struct {
	ID string `json:"id" validate:"required"`
}

// ReturnKitRequest closes a kit borrow record, optionally with inspected accessory counts.
type ReturnKitRequest struct {
	ID              string         `json:"id" validate:"required"`
	AccessoryCounts map[string]int `json:"accessoryCounts"`
}
