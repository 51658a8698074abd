package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/pkg/response"
)

type lendingEventLister interface {
	List(ctx context.Context, filter models.LendingEventFilter) ([]models.LendingEvent, *models.Pagination, error)
}

// LendingEventHandler exposes the lending audit trail.
type LendingEventHandler struct {
	events lendingEventLister
}

// NewLendingEventHandler constructs a LendingEventHandler.
func NewLendingEventHandler(events lendingEventLister) *LendingEventHandler {
	return &LendingEventHandler{events: events}
}

// List godoc
// @Summary List lending events
// @Tags LendingEvents
// @Produce json
// @Param entityType query string false "LAB_BOOKING, SCHEDULE_TYPE, EQUIPMENT or KIT"
// @Param entityId query string false "Entity ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lending-events [get]
func (h *LendingEventHandler) List(c *gin.Context) {
	filter := models.LendingEventFilter{
		EntityType: strings.ToUpper(strings.TrimSpace(c.Query("entityType"))),
		EntityID:   strings.TrimSpace(c.Query("entityId")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	events, pagination, err := h.events.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}
