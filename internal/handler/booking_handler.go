package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/pkg/response"
)

type labBookingService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateBookingRequest) (*models.LabBooking, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateBookingStatusRequest) (*models.LabBooking, error)
	Get(ctx context.Context, id string) (*models.LabBooking, error)
	List(ctx context.Context, filter models.LabBookingFilter) ([]models.LabBooking, *models.Pagination, error)
	ListToday(ctx context.Context, labID string, status models.BookingStatus) ([]models.LabBooking, error)
}

// LabBookingHandler wires ad-hoc lab bookings to HTTP routes.
type LabBookingHandler struct {
	bookings labBookingService
}

// NewLabBookingHandler constructs a LabBookingHandler.
func NewLabBookingHandler(bookings labBookingService) *LabBookingHandler {
	return &LabBookingHandler{bookings: bookings}
}

// Create godoc
// @Summary Request a lab booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *LabBookingHandler) Create(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid booking payload"))
		return
	}
	booking, err := h.bookings.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// List godoc
// @Summary List lab bookings
// @Tags Bookings
// @Produce json
// @Param lecturerId query string false "Lecturer ID"
// @Param classId query string false "Class ID"
// @Param labId query string false "Lab ID"
// @Param slotId query string false "Slot ID"
// @Param status query string false "PENDING, ACCEPT or REJECTED"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param order query string false "Sort order (asc/desc)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *LabBookingHandler) List(c *gin.Context) {
	filter := models.LabBookingFilter{
		LecturerID: strings.TrimSpace(c.Query("lecturerId")),
		ClassID:    strings.TrimSpace(c.Query("classId")),
		LabID:      strings.TrimSpace(c.Query("labId")),
		SlotID:     strings.TrimSpace(c.Query("slotId")),
		Status:     models.BookingStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		SortOrder:  c.Query("order"),
	}
	var err error
	if filter.DateFrom, err = queryDate(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.DateTo, err = queryDate(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)

	bookings, pagination, err := h.bookings.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Today godoc
// @Summary Bookings of the current lab calendar day
// @Tags Bookings
// @Produce json
// @Param labId query string false "Lab ID"
// @Param status query string false "PENDING, ACCEPT or REJECTED"
// @Success 200 {object} response.Envelope
// @Router /bookings/today [get]
func (h *LabBookingHandler) Today(c *gin.Context) {
	status := models.BookingStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	bookings, err := h.bookings.ListToday(c.Request.Context(), strings.TrimSpace(c.Query("labId")), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Get godoc
// @Summary Get lab booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *LabBookingHandler) Get(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// UpdateStatus godoc
// @Summary Accept or reject a pending booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.UpdateBookingStatusRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/status [patch]
func (h *LabBookingHandler) UpdateStatus(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid booking status payload"))
		return
	}
	booking, err := h.bookings.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}
