package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type fakeScheduleTypeService struct {
	scheduleTypeService
	filter    models.ScheduleTypeFilter
	assignErr error
	gridClass string
}

func (f *fakeScheduleTypeService) List(_ context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, *models.Pagination, bool, error) {
	f.filter = filter
	return []models.ScheduleType{}, &models.Pagination{Page: 1, PageSize: 20}, false, nil
}

func (f *fakeScheduleTypeService) Assign(context.Context, models.Actor, dto.AssignScheduleTypeRequest) (*models.ScheduleType, error) {
	return nil, f.assignErr
}

func (f *fakeScheduleTypeService) WeeklyGrid(_ context.Context, classID, _ string) ([]models.WeeklyGridDay, error) {
	f.gridClass = classID
	return []models.WeeklyGridDay{{DayOfWeek: models.Monday}}, nil
}

func TestScheduleTypeHandlerListParsesDay(t *testing.T) {
	svc := &fakeScheduleTypeService{}
	h := NewScheduleTypeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/schedule-types?dayOfWeek=tue&labId=lab-1", nil)
	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Tuesday, svc.filter.DayOfWeek)
	assert.Equal(t, "lab-1", svc.filter.LabID)
}

func TestScheduleTypeHandlerListRejectsUnknownDay(t *testing.T) {
	h := NewScheduleTypeHandler(&fakeScheduleTypeService{})

	c, w := newGinContext(http.MethodGet, "/schedule-types?dayOfWeek=someday", nil)
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleTypeHandlerAssignRecurringConflict(t *testing.T) {
	h := NewScheduleTypeHandler(&fakeScheduleTypeService{assignErr: appErrors.ErrRecurringConflict})

	c, w := newGinContext(http.MethodPost, "/schedule-types", dto.AssignScheduleTypeRequest{DayOfWeek: "MON", SlotID: "s", ClassID: "c", LabID: "l"})
	withActor(c, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	h.Assign(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrRecurringConflict.Code, decodeEnvelope(t, w).Error.Code)
}

func TestScheduleTypeHandlerGrid(t *testing.T) {
	svc := &fakeScheduleTypeService{}
	h := NewScheduleTypeHandler(svc)

	c, w := newGinContext(http.MethodGet, "/schedule-types/grid?classId=class-1", nil)
	h.Grid(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "class-1", svc.gridClass)
}
