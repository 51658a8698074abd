package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

func bookingRequest(day string) dto.CreateBookingRequest {
	return dto.CreateBookingRequest{ClassID: "class-A", LabID: "lab-1", SlotID: "slot-1", Date: day, Description: "makeup lab"}
}

func TestLabBookingCreatePending(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)

	booking, err := f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-04"))
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, lecturer.UserID, booking.LecturerID)
	assert.Equal(t, models.Wednesday, booking.DayOfWeek)
	assert.Equal(t, "Wednesday", booking.DayLabel)
	assert.Len(t, f.store.bookings, 1)
	assert.Equal(t, []string{"booking.create"}, f.runner.runs)
	assert.Contains(t, f.runner.keys[0], "booking:2026-03-04:slot-1:lab-1")
}

func TestLabBookingCreateRejectsRecurringConflict(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.seedSchedule("st-1", models.Wednesday, "slot-1", "class-Z", "lab-1")

	_, err := f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-04"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRecurringConflict.Code))
	assert.Empty(t, f.store.bookings)
}

func TestLabBookingCreateRejectsAcceptedConflict(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.seedBooking("b-1", mustDate(t, "2026-03-04"), "slot-1", "class-B", "lab-1", models.BookingStatusAccept)

	_, err := f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-04"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBookingConflict.Code))
	assert.Len(t, f.store.bookings, 1)
}

func TestLabBookingCreateValidation(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.seedSlot("slot-off", models.SlotStatusInactive)

	_, err := f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-01"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), "past date")

	_, err = f.bookings.Create(context.Background(), lecturer, bookingRequest("03/04/2026"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), "bad date layout")

	req := bookingRequest("2026-03-04")
	req.SlotID = "slot-off"
	_, err = f.bookings.Create(context.Background(), lecturer, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), "inactive slot")

	req.SlotID = "slot-missing"
	_, err = f.bookings.Create(context.Background(), lecturer, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	// today is still bookable
	_, err = f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-02"))
	assert.NoError(t, err)
}

func TestLabBookingCreateOnBehalf(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	req := bookingRequest("2026-03-04")
	req.LecturerID = "lecturer-9"

	_, err := f.bookings.Create(context.Background(), lecturer, req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	booking, err := f.bookings.Create(context.Background(), admin, req)
	require.NoError(t, err)
	assert.Equal(t, "lecturer-9", booking.LecturerID)
}

func TestLabBookingCreateRollsBackOnFailure(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	f.store.failOn["bookings.Create"] = errors.New("connection reset")

	_, err := f.bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-04"))
	require.Error(t, err)
	assert.Empty(t, f.store.bookings)
}

func TestLabBookingAcceptAndReject(t *testing.T) {
	f := newLabFixture(t, 0)
	day := mustDate(t, "2026-03-04")
	f.seedBooking("b-1", day, "slot-1", "class-A", "lab-1", models.BookingStatusPending)
	f.seedBooking("b-2", day, "slot-2", "class-A", "lab-1", models.BookingStatusPending)

	accepted, err := f.bookings.UpdateStatus(context.Background(), admin, "b-1", dto.UpdateBookingStatusRequest{Status: "ACCEPT"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusAccept, accepted.Status)
	require.NotNil(t, accepted.ApprovedBy)
	assert.Equal(t, admin.UserID, *accepted.ApprovedBy)
	assert.NotNil(t, accepted.DecidedAt)

	rejected, err := f.bookings.UpdateStatus(context.Background(), admin, "b-2", dto.UpdateBookingStatusRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, rejected.Status)
}

func TestLabBookingAcceptRechecksConflicts(t *testing.T) {
	f := newLabFixture(t, 0)
	day := mustDate(t, "2026-03-04")
	f.seedBooking("b-1", day, "slot-1", "class-A", "lab-1", models.BookingStatusPending)
	// a weekly entry was assigned after the booking was requested
	f.seedSchedule("st-1", models.Wednesday, "slot-1", "class-Q", "lab-1")

	_, err := f.bookings.UpdateStatus(context.Background(), admin, "b-1", dto.UpdateBookingStatusRequest{Status: "ACCEPT"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrRecurringConflict.Code))
	assert.Equal(t, models.BookingStatusPending, f.store.bookings["b-1"].Status)
}

func TestLabBookingRejectedIsTerminal(t *testing.T) {
	f := newLabFixture(t, 0)
	day := mustDate(t, "2026-03-04")
	f.seedBooking("b-1", day, "slot-1", "class-A", "lab-1", models.BookingStatusRejected)
	f.seedBooking("b-2", day, "slot-2", "class-A", "lab-1", models.BookingStatusAccept)

	same, err := f.bookings.UpdateStatus(context.Background(), admin, "b-1", dto.UpdateBookingStatusRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusRejected, same.Status)
	assert.Nil(t, f.store.bookings["b-1"].DecidedAt)

	_, err = f.bookings.UpdateStatus(context.Background(), admin, "b-1", dto.UpdateBookingStatusRequest{Status: "ACCEPT"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidStateTransition.Code, appErr.Code)
	assert.NotEmpty(t, appErr.IncidentID)

	_, err = f.bookings.UpdateStatus(context.Background(), admin, "b-2", dto.UpdateBookingStatusRequest{Status: "REJECTED"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidStateTransition.Code))

	_, err = f.bookings.UpdateStatus(context.Background(), admin, "b-2", dto.UpdateBookingStatusRequest{Status: "PENDING"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestLabBookingConcurrentAcceptOnlyOneWins(t *testing.T) {
	f := newLabFixture(t, 0)
	day := mustDate(t, "2026-03-04")
	ids := []string{"b-1", "b-2", "b-3", "b-4"}
	for _, id := range ids {
		f.seedBooking(id, day, "slot-1", "class-"+id, "lab-1", models.BookingStatusPending)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.bookings.UpdateStatus(context.Background(), admin, id, dto.UpdateBookingStatusRequest{Status: "ACCEPT"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if appErrors.HasCode(err, appErrors.ErrBookingConflict.Code) {
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(ids)-1, conflicts)
}

func TestLabBookingGetAndListToday(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedBooking("b-today", mustDate(t, "2026-03-02"), "slot-1", "class-A", "lab-1", models.BookingStatusPending)
	f.seedBooking("b-later", mustDate(t, "2026-03-05"), "slot-1", "class-A", "lab-1", models.BookingStatusPending)

	_, err := f.bookings.Get(context.Background(), "missing")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	today, err := f.bookings.ListToday(context.Background(), "lab-1", "")
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "b-today", today[0].ID)

	all, pagination, err := f.bookings.List(context.Background(), models.LabBookingFilter{LabID: "lab-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestLabBookingListTodayReturnsEveryPage(t *testing.T) {
	f := newLabFixture(t, 0)
	for i := 0; i < 130; i++ {
		f.seedBooking(fmt.Sprintf("b-%03d", i), mustDate(t, "2026-03-02"), fmt.Sprintf("slot-%d", i), "class-A", "lab-1", models.BookingStatusPending)
	}
	f.seedBooking("b-other-lab", mustDate(t, "2026-03-02"), "slot-1", "class-A", "lab-2", models.BookingStatusPending)

	today, err := f.bookings.ListToday(context.Background(), "lab-1", "")
	require.NoError(t, err)
	require.Len(t, today, 130)
	assert.Equal(t, "b-000", today[0].ID)
	assert.Equal(t, "b-129", today[129].ID)
	assert.Equal(t, "MON", string(today[0].DayOfWeek))
}

// deactivatingRunner deactivates a slot while the transition waits for its locks.
type deactivatingRunner struct {
	transitionRunner
	store  *memStore
	slotID string
}

func (r deactivatingRunner) Run(ctx context.Context, operation string, keys []string, fn func(tx *sqlx.Tx) error) error {
	r.store.mu.Lock()
	slot := r.store.slots[r.slotID]
	slot.Status = models.SlotStatusInactive
	r.store.slots[r.slotID] = slot
	r.store.mu.Unlock()
	return r.transitionRunner.Run(ctx, operation, keys, fn)
}

func TestLabBookingCreateRechecksSlotUnderLock(t *testing.T) {
	f := newLabFixture(t, 0)
	f.seedSlot("slot-1", models.SlotStatusActive)
	bookings := NewLabBookingService(LabBookingServiceDeps{
		Repo:    memBookings{f.store},
		Slots:   memSlots{f.store},
		Checker: f.checker,
		Runner:  deactivatingRunner{transitionRunner: f.runner, store: f.store, slotID: "slot-1"},
		Now:     func() time.Time { return f.now },
	})

	_, err := bookings.Create(context.Background(), lecturer, bookingRequest("2026-03-04"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Equal(t, "slot-1", appErrors.FromError(err).Details["slot_id"])
	assert.Empty(t, f.store.bookings)
}
