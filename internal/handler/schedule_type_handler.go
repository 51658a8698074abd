package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/middleware"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
	"github.com/noah-isme/elab-api/pkg/response"
)

type scheduleTypeService interface {
	List(ctx context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, *models.Pagination, bool, error)
	Get(ctx context.Context, id string) (*models.ScheduleType, error)
	Assign(ctx context.Context, actor models.Actor, req dto.AssignScheduleTypeRequest) (*models.ScheduleType, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.ScheduleType, error)
	WeeklyGrid(ctx context.Context, classID, labID string) ([]models.WeeklyGridDay, error)
}

// ScheduleTypeHandler exposes the recurring weekly grid.
type ScheduleTypeHandler struct {
	schedules scheduleTypeService
}

// NewScheduleTypeHandler constructs a ScheduleTypeHandler.
func NewScheduleTypeHandler(schedules scheduleTypeService) *ScheduleTypeHandler {
	return &ScheduleTypeHandler{schedules: schedules}
}

// List godoc
// @Summary List schedule types
// @Tags ScheduleTypes
// @Produce json
// @Param dayOfWeek query string false "MON..SUN"
// @Param slotId query string false "Slot ID"
// @Param classId query string false "Class ID"
// @Param labId query string false "Lab ID"
// @Param status query string false "VALID or INVALID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedule-types [get]
func (h *ScheduleTypeHandler) List(c *gin.Context) {
	filter := models.ScheduleTypeFilter{
		SlotID:  strings.TrimSpace(c.Query("slotId")),
		ClassID: strings.TrimSpace(c.Query("classId")),
		LabID:   strings.TrimSpace(c.Query("labId")),
		Status:  models.ScheduleTypeStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	}
	if raw := strings.TrimSpace(c.Query("dayOfWeek")); raw != "" {
		day, ok := models.ParseWeekday(raw)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dayOfWeek must be one of MON..SUN"))
			return
		}
		filter.DayOfWeek = day
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, hit, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get schedule type
// @Tags ScheduleTypes
// @Produce json
// @Param id path string true "Schedule type ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-types/{id} [get]
func (h *ScheduleTypeHandler) Get(c *gin.Context) {
	item, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Assign godoc
// @Summary Assign a class to a weekly cell
// @Tags ScheduleTypes
// @Accept json
// @Produce json
// @Param payload body dto.AssignScheduleTypeRequest true "Schedule type payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedule-types [post]
func (h *ScheduleTypeHandler) Assign(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.AssignScheduleTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid schedule type payload"))
		return
	}
	item, err := h.schedules.Assign(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateStatus godoc
// @Summary Change schedule type status
// @Tags ScheduleTypes
// @Accept json
// @Produce json
// @Param id path string true "Schedule type ID"
// @Param payload body dto.UpdateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /schedule-types/{id}/status [patch]
func (h *ScheduleTypeHandler) UpdateStatus(c *gin.Context) {
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
	item, err := h.schedules.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Grid godoc
// @Summary Weekly day x slot grid for a class or lab
// @Tags ScheduleTypes
// @Produce json
// @Param classId query string false "Class ID"
// @Param labId query string false "Lab ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-types/grid [get]
func (h *ScheduleTypeHandler) Grid(c *gin.Context) {
	classID := strings.TrimSpace(c.Query("classId"))
	labID := strings.TrimSpace(c.Query("labId"))
	grid, err := h.schedules.WeeklyGrid(c.Request.Context(), classID, labID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}
