package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
	"github.com/noah-isme/elab-api/pkg/response"
)

type inventoryService interface {
	CreateEquipment(ctx context.Context, req dto.CreateEquipmentRequest) (*models.Equipment, error)
	GetEquipment(ctx context.Context, id string) (*models.Equipment, error)
	SearchEquipment(ctx context.Context, filter models.InventoryFilter) ([]models.Equipment, *models.Pagination, error)
	UpdateEquipmentStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.Equipment, error)

	CreateAccessory(ctx context.Context, req dto.CreateAccessoryRequest) (*models.Accessory, error)
	GetAccessory(ctx context.Context, id string) (*models.Accessory, error)
	SearchAccessories(ctx context.Context, filter models.InventoryFilter) ([]models.Accessory, *models.Pagination, error)
	UpdateAccessoryStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.Accessory, error)

	CreateKitTemplate(ctx context.Context, req dto.CreateKitTemplateRequest) (*models.KitTemplate, error)
	GetKitTemplate(ctx context.Context, id string) (*models.KitTemplate, error)
	SearchKitTemplates(ctx context.Context, filter models.InventoryFilter) ([]models.KitTemplate, *models.Pagination, error)
	UpdateKitTemplateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.KitTemplate, error)
	SetRecipe(ctx context.Context, templateID string, req dto.SetRecipeRequest) (*models.KitTemplate, error)

	CreateKit(ctx context.Context, actor models.Actor, req dto.CreateKitRequest) (*models.KitDetail, error)
	GetKit(ctx context.Context, id string) (*models.KitDetail, error)
	SearchKits(ctx context.Context, filter models.InventoryFilter) ([]models.Kit, *models.Pagination, error)
	ListKitAccessories(ctx context.Context, kitID string) ([]models.KitAccessory, error)
}

type accessoryReconciler interface {
	Reconcile(ctx context.Context, actor models.Actor, req dto.ReconcileRequest) ([]models.KitAccessory, error)
}

// InventoryHandler exposes equipment, accessories, kit templates and kits.
type InventoryHandler struct {
	inventory inventoryService
	tracker   accessoryReconciler
}

// NewInventoryHandler constructs an InventoryHandler.
func NewInventoryHandler(inventory inventoryService, tracker accessoryReconciler) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, tracker: tracker}
}

func inventoryFilter(c *gin.Context) models.InventoryFilter {
	filter := models.InventoryFilter{
		Keyword: strings.TrimSpace(c.Query("keyword")),
		Status:  strings.ToUpper(strings.TrimSpace(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter
}

// CreateEquipment godoc
// @Summary Register equipment
// @Tags Equipment
// @Accept json
// @Produce json
// @Param payload body dto.CreateEquipmentRequest true "Equipment payload"
// @Success 201 {object} response.Envelope
// @Router /equipment [post]
func (h *InventoryHandler) CreateEquipment(c *gin.Context) {
	var req dto.CreateEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid equipment payload"))
		return
	}
	equipment, err := h.inventory.CreateEquipment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, equipment)
}

// SearchEquipment godoc
// @Summary Search equipment
// @Tags Equipment
// @Produce json
// @Param keyword query string false "Name, code or serial number"
// @Param status query string false "AVAILABLE, IN_USE, MAINTENANCE or OUT_OF_ORDER"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /equipment [get]
func (h *InventoryHandler) SearchEquipment(c *gin.Context) {
	items, pagination, err := h.inventory.SearchEquipment(c.Request.Context(), inventoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetEquipment godoc
// @Summary Get equipment
// @Tags Equipment
// @Produce json
// @Param id path string true "Equipment ID"
// @Success 200 {object} response.Envelope
// @Router /equipment/{id} [get]
func (h *InventoryHandler) GetEquipment(c *gin.Context) {
	equipment, err := h.inventory.GetEquipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, equipment, nil)
}

// UpdateEquipmentStatus godoc
// @Summary Move equipment between AVAILABLE, MAINTENANCE and OUT_OF_ORDER
// @Tags Equipment
// @Accept json
// @Produce json
// @Param id path string true "Equipment ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /equipment/{id}/status [patch]
func (h *InventoryHandler) UpdateEquipmentStatus(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	equipment, err := h.inventory.UpdateEquipmentStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, equipment, nil)
}

// CreateAccessory godoc
// @Summary Register accessory
// @Tags Accessories
// @Accept json
// @Produce json
// @Param payload body dto.CreateAccessoryRequest true "Accessory payload"
// @Success 201 {object} response.Envelope
// @Router /accessories [post]
func (h *InventoryHandler) CreateAccessory(c *gin.Context) {
	var req dto.CreateAccessoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid accessory payload"))
		return
	}
	accessory, err := h.inventory.CreateAccessory(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, accessory)
}

// SearchAccessories godoc
// @Summary Search accessories
// @Tags Accessories
// @Produce json
// @Param keyword query string false "Name, value code or category"
// @Param status query string false "VALID or INVALID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accessories [get]
func (h *InventoryHandler) SearchAccessories(c *gin.Context) {
	items, pagination, err := h.inventory.SearchAccessories(c.Request.Context(), inventoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetAccessory godoc
// @Summary Get accessory
// @Tags Accessories
// @Produce json
// @Param id path string true "Accessory ID"
// @Success 200 {object} response.Envelope
// @Router /accessories/{id} [get]
func (h *InventoryHandler) GetAccessory(c *gin.Context) {
	accessory, err := h.inventory.GetAccessory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accessory, nil)
}

// UpdateAccessoryStatus godoc
// @Summary Change accessory status
// @Tags Accessories
// @Accept json
// @Produce json
// @Param id path string true "Accessory ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /accessories/{id}/status [patch]
func (h *InventoryHandler) UpdateAccessoryStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	accessory, err := h.inventory.UpdateAccessoryStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accessory, nil)
}

// CreateKitTemplate godoc
// @Summary Register kit template with its recipe
// @Tags KitTemplates
// @Accept json
// @Produce json
// @Param payload body dto.CreateKitTemplateRequest true "Kit template payload"
// @Success 201 {object} response.Envelope
// @Router /kit-templates [post]
func (h *InventoryHandler) CreateKitTemplate(c *gin.Context) {
	var req dto.CreateKitTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid kit template payload"))
		return
	}
	template, err := h.inventory.CreateKitTemplate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// SearchKitTemplates godoc
// @Summary Search kit templates
// @Tags KitTemplates
// @Produce json
// @Param keyword query string false "Name"
// @Param status query string false "VALID or INVALID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /kit-templates [get]
func (h *InventoryHandler) SearchKitTemplates(c *gin.Context) {
	items, pagination, err := h.inventory.SearchKitTemplates(c.Request.Context(), inventoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetKitTemplate godoc
// @Summary Get kit template with recipe
// @Tags KitTemplates
// @Produce json
// @Param id path string true "Kit template ID"
// @Success 200 {object} response.Envelope
// @Router /kit-templates/{id} [get]
func (h *InventoryHandler) GetKitTemplate(c *gin.Context) {
	template, err := h.inventory.GetKitTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// UpdateKitTemplateStatus godoc
// @Summary Change kit template status
// @Tags KitTemplates
// @Accept json
// @Produce json
// @Param id path string true "Kit template ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /kit-templates/{id}/status [patch]
func (h *InventoryHandler) UpdateKitTemplateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	template, err := h.inventory.UpdateKitTemplateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// SetRecipe godoc
// @Summary Upsert recipe lines of a kit template
// @Tags KitTemplates
// @Accept json
// @Produce json
// @Param id path string true "Kit template ID"
// @Param payload body dto.SetRecipeRequest true "Recipe payload"
// @Success 200 {object} response.Envelope
// @Router /kit-templates/{id}/accessories [put]
func (h *InventoryHandler) SetRecipe(c *gin.Context) {
	var req dto.SetRecipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid recipe payload"))
		return
	}
	template, err := h.inventory.SetRecipe(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// CreateKit godoc
// @Summary Build a kit from a valid template
// @Tags Kits
// @Accept json
// @Produce json
// @Param payload body dto.CreateKitRequest true "Kit payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /kits [post]
func (h *InventoryHandler) CreateKit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateKitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid kit payload"))
		return
	}
	kit, err := h.inventory.CreateKit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, kit)
}

// SearchKits godoc
// @Summary Search kits
// @Tags Kits
// @Produce json
// @Param keyword query string false "Name"
// @Param status query string false "VALID or IN_USE"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /kits [get]
func (h *InventoryHandler) SearchKits(c *gin.Context) {
	items, pagination, err := h.inventory.SearchKits(c.Request.Context(), inventoryFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetKit godoc
// @Summary Get kit with accessories
// @Tags Kits
// @Produce json
// @Param id path string true "Kit ID"
// @Success 200 {object} response.Envelope
// @Router /kits/{id} [get]
func (h *InventoryHandler) GetKit(c *gin.Context) {
	kit, err := h.inventory.GetKit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, kit, nil)
}

// ListKitAccessories godoc
// @Summary List accessory rows of a kit
// @Tags Kits
// @Produce json
// @Param kitId query string true "Kit ID"
// @Success 200 {object} response.Envelope
// @Router /kit-accessories [get]
func (h *InventoryHandler) ListKitAccessories(c *gin.Context) {
	kitID := strings.TrimSpace(c.Query("kitId"))
	if kitID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kitId is required"))
		return
	}
	rows, err := h.inventory.ListKitAccessories(c.Request.Context(), kitID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Reconcile godoc
// @Summary Record observed accessory counts of a kit
// @Tags Kits
// @Accept json
// @Produce json
// @Param payload body dto.ReconcileRequest true "Observed counts"
// @Success 200 {object} response.Envelope
// @Router /kit-accessories/reconcile [post]
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid reconcile payload"))
		return
	}
	rows, err := h.tracker.Reconcile(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}
