package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type recurringLookup interface {
	FindActiveConflict(ctx context.Context, exec sqlx.ExtContext, day models.Weekday, slotID, classID, labID, excludeID string) (*models.ScheduleType, error)
}

type acceptedBookingLookup interface {
	FindAccepted(ctx context.Context, exec sqlx.ExtContext, date time.Time, slotID, labID, excludeID string) (*models.LabBooking, error)
}

// BookingCandidate is a proposed (date, slot, class, lab) reservation.
type BookingCandidate struct {
	Date             time.Time
	SlotID           string
	ClassID          string
	LabID            string
	ExcludeBookingID string
}

// BookingKey is the critical-section key guarding a (date, slot, lab) cell.
func BookingKey(date time.Time, slotID, labID string) string {
	return "booking:" + date.Format(models.BookingDateLayout) + ":" + slotID + ":" + labID
}

// ScheduleKey is the critical-section key guarding a (day, slot, lab) cell of the weekly grid.
func ScheduleKey(day models.Weekday, slotID, labID string) string {
	return "schedule:" + string(day) + ":" + slotID + ":" + labID
}

// ConflictChecker decides whether a booking may occupy a slot. Callers must hold the
// booking key and pass their transaction so the check and the write commit together.
type ConflictChecker struct {
	recurring recurringLookup
	bookings  acceptedBookingLookup
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewConflictChecker constructs a ConflictChecker.
func NewConflictChecker(recurring recurringLookup, bookings acceptedBookingLookup, metrics *MetricsService, logger *zap.Logger) *ConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictChecker{recurring: recurring, bookings: bookings, metrics: metrics, logger: logger}
}

// CanBook returns nil when the candidate is free, otherwise RECURRING_CONFLICT or BOOKING_CONFLICT.
// The weekly grid is consulted first.
func (c *ConflictChecker) CanBook(ctx context.Context, exec sqlx.ExtContext, candidate BookingCandidate) error {
	day := models.WeekdayOf(candidate.Date)
	date := candidate.Date.Format(models.BookingDateLayout)

	entry, err := c.recurring.FindActiveConflict(ctx, exec, day, candidate.SlotID, candidate.ClassID, candidate.LabID, "")
	if err != nil {
		return err
	}
	if entry != nil {
		c.metrics.RecordBookingConflict("recurring")
		c.logger.Debug("booking blocked by weekly schedule", zap.String("schedule_type_id", entry.ID), zap.String("date", date), zap.String("slot_id", candidate.SlotID))
		return appErrors.WithDetails(appErrors.ErrRecurringConflict, map[string]interface{}{
			"schedule_type_id": entry.ID,
			"day_of_week":      string(day),
			"slot_id":          candidate.SlotID,
			"class_id":         entry.ClassID,
			"lab_id":           entry.LabID,
		})
	}

	booking, err := c.bookings.FindAccepted(ctx, exec, candidate.Date, candidate.SlotID, candidate.LabID, candidate.ExcludeBookingID)
	if err != nil {
		return err
	}
	if booking != nil {
		c.metrics.RecordBookingConflict("booking")
		c.logger.Debug("booking blocked by accepted booking", zap.String("booking_id", booking.ID), zap.String("date", date), zap.String("slot_id", candidate.SlotID))
		return appErrors.WithDetails(appErrors.ErrBookingConflict, map[string]interface{}{
			"booking_id": booking.ID,
			"date":       date,
			"slot_id":    candidate.SlotID,
			"lab_id":     candidate.LabID,
		})
	}
	return nil
}
