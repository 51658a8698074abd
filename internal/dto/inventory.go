package dto

// CreateEquipmentRequest registers a device.
type CreateEquipmentRequest struct {
	Name         string `json:"name" validate:"required,max=150"`
	Code         string `json:"code" validate:"required,max=64"`
	SerialNumber string `json:"serialNumber" validate:"max=120"`
	Description  string `json:"description"`
}

// CreateAccessoryRequest registers a component type.
type CreateAccessoryRequest struct {
	Name      string `json:"name" validate:"required,max=150"`
	ValueCode string `json:"valueCode" validate:"max=64"`
	Category  string `json:"category" validate:"max=64"`
}

// RecipeItem is one accessory line of a kit template.
type RecipeItem struct {
	AccessoryID string `json:"accessoryId" validate:"required"`
	Quantity    int    `json:"quantity" validate:"required,min=1"`
}

// CreateKitTemplateRequest registers a template with its recipe.
type CreateKitTemplateRequest struct {
	Name     string       `json:"name" validate:"required,max=150"`
	Quantity int          `json:"quantity" validate:"min=0"`
	Recipe   []RecipeItem `json:"recipe" validate:"omitempty,dive"`
}

// SetRecipeRequest upserts recipe lines on a template.
type SetRecipeRequest struct {
	Items []RecipeItem `json:"items" validate:"required,min=1,dive"`
}

// CreateKitRequest builds a physical kit from a template.
type CreateKitRequest struct {
	KitTemplateID string `json:"kitTemplateId" validate:"required"`
	Name          string `json:"name" validate:"required,max=150"`
}

// ReconcileRequest records an inspection of a kit's accessories.
type ReconcileRequest struct {
	KitID  string         `json:"kitId" validate:"required"`
	Counts map[string]int `json:"counts" validate:"required,min=1"`
}
