package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/middleware"
	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/pkg/response"
)

type slotService interface {
	List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, bool, error)
	Get(ctx context.Context, id string) (*models.Slot, error)
	Create(ctx context.Context, req dto.CreateSlotRequest) (*models.Slot, error)
	Update(ctx context.Context, id string, req dto.UpdateSlotRequest) (*models.Slot, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*models.Slot, error)
}

// SlotHandler exposes the slot catalog.
type SlotHandler struct {
	slots slotService
}

// NewSlotHandler constructs a SlotHandler.
func NewSlotHandler(slots slotService) *SlotHandler {
	return &SlotHandler{slots: slots}
}

// List godoc
// @Summary List slots
// @Tags Slots
// @Produce json
// @Param status query string false "ACTIVE, INACTIVE or PENDING"
// @Success 200 {object} response.Envelope
// @Router /slots [get]
func (h *SlotHandler) List(c *gin.Context) {
	filter := models.SlotFilter{Status: models.SlotStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))}
	slots, hit, err := h.slots.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, slots, nil, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get slot
// @Tags Slots
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Router /slots/{id} [get]
func (h *SlotHandler) Get(c *gin.Context) {
	slot, err := h.slots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Create godoc
// @Summary Create slot
// @Tags Slots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSlotRequest true "Slot payload"
// @Success 201 {object} response.Envelope
// @Router /slots [post]
func (h *SlotHandler) Create(c *gin.Context) {
	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid slot payload"))
		return
	}
	slot, err := h.slots.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update godoc
// @Summary Update slot name and times
// @Description Rejected with SLOT_IN_USE once a schedule type or booking references the slot.
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateSlotRequest true "Slot payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slots/{id} [put]
func (h *SlotHandler) Update(c *gin.Context) {
	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid slot payload"))
		return
	}
	slot, err := h.slots.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// UpdateStatus godoc
// @Summary Change slot status
// @Tags Slots
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /slots/{id}/status [patch]
func (h *SlotHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	slot, err := h.slots.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}
