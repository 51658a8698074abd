package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/middleware"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type fakeSlotService struct {
	slotService
	listFilter models.SlotFilter
	hit        bool
	created    dto.CreateSlotRequest
	updateErr  error
}

func (f *fakeSlotService) List(_ context.Context, filter models.SlotFilter) ([]models.Slot, bool, error) {
	f.listFilter = filter
	return []models.Slot{{ID: "slot-1", Name: "Morning", StartTime: "07:00", EndTime: "09:00"}}, f.hit, nil
}

func (f *fakeSlotService) Create(_ context.Context, req dto.CreateSlotRequest) (*models.Slot, error) {
	f.created = req
	return &models.Slot{ID: "slot-2", Name: req.Name}, nil
}

func (f *fakeSlotService) Update(context.Context, string, dto.UpdateSlotRequest) (*models.Slot, error) {
	return nil, f.updateErr
}

func TestSlotHandlerListReportsCacheHit(t *testing.T) {
	svc := &fakeSlotService{hit: true}
	h := NewSlotHandler(svc)

	c, w := newGinContext(http.MethodGet, "/slots?status=active", nil)
	middleware.WithResponseMeta()(c)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SlotStatusActive, svc.listFilter.Status)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, string(envelope.Data), `"slot-1"`)
}

func TestSlotHandlerCreate(t *testing.T) {
	svc := &fakeSlotService{}
	h := NewSlotHandler(svc)

	c, w := newGinContext(http.MethodPost, "/slots", dto.CreateSlotRequest{Name: "Noon", StartTime: "12:00", EndTime: "13:30"})
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "12:00", svc.created.StartTime)
}

func TestSlotHandlerCreateRejectsMalformedJSON(t *testing.T) {
	h := NewSlotHandler(&fakeSlotService{})

	c, w := newGinContext(http.MethodPost, "/slots", "{")
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestSlotHandlerUpdateInUse(t *testing.T) {
	h := NewSlotHandler(&fakeSlotService{updateErr: appErrors.ErrSlotInUse})

	c, w := newGinContext(http.MethodPut, "/slots/slot-1", dto.UpdateSlotRequest{Name: "Noon", StartTime: "12:00", EndTime: "13:00"})
	c.Params = gin.Params{{Key: "id", Value: "slot-1"}}
	h.Update(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrSlotInUse.Code, decodeEnvelope(t, w).Error.Code)
}
