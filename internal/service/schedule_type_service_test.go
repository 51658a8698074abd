package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

func assignRequest(day, classID, labID string) dto.AssignScheduleTypeRequest {
	return dto.AssignScheduleTypeRequest{DayOfWeek: day, SlotID: "slot-1", ClassID: classID, LabID: labID, Name: "Embedded Systems", Color: "#336699"}
}

func TestScheduleTypeAssign(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)

	item, err := f.schedules.Assign(context.Background(), admin, assignRequest("monday", "class-A", "lab-1"))
	require.NoError(t, err)
	assert.Equal(t, models.Monday, item.DayOfWeek)
	assert.Equal(t, "Monday", item.DayLabel)
	assert.Equal(t, models.ScheduleTypeStatusValid, item.Status)
	assert.ElementsMatch(t, []string{"schedule:MON:slot-1:lab-1", "schedule:MON:slot-1:class:class-A"}, f.runner.keys[0])
}

func TestScheduleTypeAssignConflicts(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.seedSchedule("st-1", models.Monday, "slot-1", "class-A", "lab-1")

	_, err := f.schedules.Assign(context.Background(), admin, assignRequest("MON", "class-B", "lab-1"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRecurringConflict.Code), "same lab")

	_, err = f.schedules.Assign(context.Background(), admin, assignRequest("MON", "class-A", "lab-2"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRecurringConflict.Code), "same class")

	_, err = f.schedules.Assign(context.Background(), admin, assignRequest("TUE", "class-A", "lab-1"))
	assert.NoError(t, err)
	assert.Len(t, f.store.scheduleTypes, 2)
}

func TestScheduleTypeAssignValidation(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusPending)

	_, err := f.schedules.Assign(context.Background(), admin, assignRequest("FUNDAY", "class-A", "lab-1"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.schedules.Assign(context.Background(), admin, assignRequest("MON", "class-A", "lab-1"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), "pending slot")
}

func TestScheduleTypeReactivationRevalidates(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSchedule("st-old", models.Monday, "slot-1", "class-A", "lab-1")
	f.seedSchedule("st-new", models.Monday, "slot-1", "class-B", "lab-1")
	old := f.store.scheduleTypes["st-old"]
	old.Status = models.ScheduleTypeStatusInvalid
	f.store.scheduleTypes["st-old"] = old

	_, err := f.schedules.UpdateStatus(context.Background(), admin, "st-old", dto.UpdateStatusRequest{Status: "VALID"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRecurringConflict.Code))

	_, err = f.schedules.UpdateStatus(context.Background(), admin, "st-new", dto.UpdateStatusRequest{Status: "INVALID"})
	require.NoError(t, err)

	item, err := f.schedules.UpdateStatus(context.Background(), admin, "st-old", dto.UpdateStatusRequest{Status: "VALID"})
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleTypeStatusValid, item.Status)

	// unchanged status is a no-op and takes no lock
	runs := len(f.runner.runs)
	_, err = f.schedules.UpdateStatus(context.Background(), admin, "st-old", dto.UpdateStatusRequest{Status: "VALID"})
	require.NoError(t, err)
	assert.Len(t, f.runner.runs, runs)
}

func TestScheduleTypeWeeklyGrid(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.seedSlot("slot-2", models.SlotStatusActive)
	f.seedSchedule("st-1", models.Wednesday, "slot-2", "class-A", "lab-1")

	_, err := f.schedules.WeeklyGrid(context.Background(), "", "")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	grid, err := f.schedules.WeeklyGrid(context.Background(), "", "lab-1")
	require.NoError(t, err)
	require.Len(t, grid, 7)
	assert.Equal(t, models.Monday, grid[0].DayOfWeek)
	require.Len(t, grid[2].Cells, 2)

	var occupied int
	for _, day := range grid {
		for _, cell := range day.Cells {
			if cell.ScheduleType != nil {
				occupied++
				assert.Equal(t, "st-1", cell.ScheduleType.ID)
				assert.Equal(t, models.Wednesday, day.DayOfWeek)
			}
		}
	}
	assert.Equal(t, 1, occupied)
}

func TestScheduleTypeListWithoutCache(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSchedule("st-1", models.Monday, "slot-1", "class-A", "lab-1")

	items, pagination, hit, err := f.schedules.List(context.Background(), models.ScheduleTypeFilter{LabID: "lab-1"})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, items, 1)
	assert.Equal(t, "Monday", items[0].DayLabel)
	assert.Equal(t, 1, pagination.TotalCount)
}
