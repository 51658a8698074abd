package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	"github.com/noah-isme/elab-api/internal/service"
	"github.com/noah-isme/elab-api/pkg/response"
)

type lendingService interface {
	CheckoutEquipment(ctx context.Context, actor models.Actor, req dto.CheckoutEquipmentRequest) (*models.BorrowRecord, error)
	CheckoutKit(ctx context.Context, actor models.Actor, req dto.CheckoutKitRequest) (*models.BorrowRecord, error)
	ReturnEquipment(ctx context.Context, actor models.Actor, req dto.ReturnRequest) (*models.BorrowRecord, error)
	ReturnKit(ctx context.Context, actor models.Actor, req dto.ReturnKitRequest) (*service.KitReturnResult, error)
	History(ctx context.Context, kind models.ResourceKind, filter models.BorrowHistoryFilter) ([]models.BorrowRecord, *models.Pagination, error)
	ExportHistory(ctx context.Context, kind models.ResourceKind, filter models.BorrowHistoryFilter, format models.ExportFormat) (*service.HistoryExport, error)
}

// LendingHandler exposes the team checkout/return ledger.
type LendingHandler struct {
	lending lendingService
}

// NewLendingHandler constructs a LendingHandler.
func NewLendingHandler(lending lendingService) *LendingHandler {
	return &LendingHandler{lending: lending}
}

// CheckoutEquipment godoc
// @Summary Lend equipment to a team
// @Tags TeamEquipment
// @Accept json
// @Produce json
// @Param payload body dto.CheckoutEquipmentRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /team-equipment/checkout [post]
func (h *LendingHandler) CheckoutEquipment(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CheckoutEquipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid checkout payload"))
		return
	}
	record, err := h.lending.CheckoutEquipment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ReturnEquipment godoc
// @Summary Return borrowed equipment
// @Tags TeamEquipment
// @Accept json
// @Produce json
// @Param payload body dto.ReturnRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /team-equipment/return [post]
func (h *LendingHandler) ReturnEquipment(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid return payload"))
		return
	}
	record, err := h.lending.ReturnEquipment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// CheckoutKit godoc
// @Summary Lend a kit to a team
// @Tags TeamKit
// @Accept json
// @Produce json
// @Param payload body dto.CheckoutKitRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /team-kit/checkout [post]
func (h *LendingHandler) CheckoutKit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CheckoutKitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid checkout payload"))
		return
	}
	record, err := h.lending.CheckoutKit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// ReturnKit godoc
// @Summary Return a borrowed kit, optionally with inspected accessory counts
// @Tags TeamKit
// @Accept json
// @Produce json
// @Param payload body dto.ReturnKitRequest true "Return payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /team-kit/return [post]
func (h *LendingHandler) ReturnKit(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ReturnKitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid return payload"))
		return
	}
	result, err := h.lending.ReturnKit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// EquipmentHistory godoc
// @Summary Equipment borrow history
// @Tags TeamEquipment
// @Produce json
// @Param keyword query string false "Record, team or equipment name"
// @Param teamId query string false "Team ID"
// @Param classId query string false "Class ID"
// @Param status query string false "ARE_BORROWING or PAID"
// @Param from query string false "Borrowed from (YYYY-MM-DD)"
// @Param to query string false "Borrowed to (YYYY-MM-DD)"
// @Param sort query string false "Sort field (borrow_date,return_date,name,resource)"
// @Param order query string false "Sort order (asc/desc)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /team-equipment [get]
func (h *LendingHandler) EquipmentHistory(c *gin.Context) {
	h.history(c, models.ResourceEquipment)
}

// KitHistory godoc
// @Summary Kit borrow history
// @Tags TeamKit
// @Produce json
// @Param keyword query string false "Record, team or kit name"
// @Param teamId query string false "Team ID"
// @Param classId query string false "Class ID"
// @Param status query string false "ARE_BORROWING or PAID"
// @Param from query string false "Borrowed from (YYYY-MM-DD)"
// @Param to query string false "Borrowed to (YYYY-MM-DD)"
// @Param sort query string false "Sort field (borrow_date,return_date,name,resource)"
// @Param order query string false "Sort order (asc/desc)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /team-kit [get]
func (h *LendingHandler) KitHistory(c *gin.Context) {
	h.history(c, models.ResourceKit)
}

// ExportEquipmentHistory godoc
// @Summary Export equipment borrow history
// @Tags TeamEquipment
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /team-equipment/export [get]
func (h *LendingHandler) ExportEquipmentHistory(c *gin.Context) {
	h.export(c, models.ResourceEquipment)
}

// ExportKitHistory godoc
// @Summary Export kit borrow history
// @Tags TeamKit
// @Produce octet-stream
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /team-kit/export [get]
func (h *LendingHandler) ExportKitHistory(c *gin.Context) {
	h.export(c, models.ResourceKit)
}

func (h *LendingHandler) history(c *gin.Context, kind models.ResourceKind) {
	filter, err := historyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination, err := h.lending.History(c.Request.Context(), kind, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

func (h *LendingHandler) export(c *gin.Context, kind models.ResourceKind) {
	filter, err := historyFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
	file, err := h.lending.ExportHistory(c.Request.Context(), kind, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Rows, file.Payload)
}

func historyFilter(c *gin.Context) (models.BorrowHistoryFilter, error) {
	filter := models.BorrowHistoryFilter{
		Keyword:   strings.TrimSpace(c.Query("keyword")),
		TeamID:    strings.TrimSpace(c.Query("teamId")),
		ClassID:   strings.TrimSpace(c.Query("classId")),
		Status:    models.BorrowStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	var err error
	if filter.From, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	filter.Page, filter.PageSize = pageParams(c)
	return filter, nil
}
