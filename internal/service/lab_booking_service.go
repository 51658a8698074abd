package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/dto"
	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

type labBookingRepository interface {
	acceptedBookingLookup
	List(ctx context.Context, filter models.LabBookingFilter) ([]models.LabBooking, int, error)
	FindByID(ctx context.Context, id string) (*models.LabBooking, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LabBooking, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error
	UpdateDecision(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error
}

type bookingChecker interface {
	CanBook(ctx context.Context, exec sqlx.ExtContext, candidate BookingCandidate) error
}

// LabBookingServiceDeps bundles collaborators of LabBookingService.
type LabBookingServiceDeps struct {
	Repo      labBookingRepository
	Slots     slotRepository
	Checker   bookingChecker
	Runner    transitionRunner
	Events    *EventRecorder
	Metrics   *MetricsService
	Location  *time.Location
	Validator *validator.Validate
	Logger    *zap.Logger
	Now       func() time.Time
}

// LabBookingService creates and decides ad-hoc lab bookings on top of the weekly grid.
type LabBookingService struct {
	repo      labBookingRepository
	slots     slotRepository
	checker   bookingChecker
	runner    transitionRunner
	events    *EventRecorder
	metrics   *MetricsService
	location  *time.Location
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewLabBookingService instantiates LabBookingService.
func NewLabBookingService(deps LabBookingServiceDeps) *LabBookingService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &LabBookingService{
		repo:      deps.Repo,
		slots:     deps.Slots,
		checker:   deps.Checker,
		runner:    deps.Runner,
		events:    deps.Events,
		metrics:   deps.Metrics,
		location:  deps.Location,
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// today returns the current lab calendar day as a UTC midnight date.
func (s *LabBookingService) today() time.Time {
	local := s.now().In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

const todayPageSize = 100

func bookingKeys(date time.Time, slotID, classID, labID string) []string {
	day := models.WeekdayOf(date)
	return []string{
		BookingKey(date, slotID, labID),
		ScheduleKey(day, slotID, labID),
		scheduleClassKey(day, slotID, classID),
	}
}

// Create records a PENDING booking for the calling lecturer when the slot is free.
// Admins may book on behalf of another lecturer.
func (s *LabBookingService) Create(ctx context.Context, actor models.Actor, req dto.CreateBookingRequest) (*models.LabBooking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	lecturerID := actor.UserID
	if req.LecturerID != "" && req.LecturerID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot book on behalf of another lecturer")
		}
		lecturerID = req.LecturerID
	}
	if lecturerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "lecturer is required")
	}

	date, err := time.Parse(models.BookingDateLayout, req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	if date.Before(s.today()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is in the past")
	}

	booking := &models.LabBooking{
		LecturerID:  lecturerID,
		ClassID:     req.ClassID,
		LabID:       req.LabID,
		SlotID:      req.SlotID,
		BookingDate: date,
		Status:      models.BookingStatusPending,
		Description: req.Description,
	}
	candidate := BookingCandidate{Date: date, SlotID: req.SlotID, ClassID: req.ClassID, LabID: req.LabID}
	err = s.runner.Run(ctx, "booking.create", bookingKeys(date, req.SlotID, req.ClassID, req.LabID), func(tx *sqlx.Tx) error {
		if err := requireActiveSlot(ctx, s.slots, tx, req.SlotID); err != nil {
			return err
		}
		if err := s.checker.CanBook(ctx, tx, candidate); err != nil {
			return err
		}
		return s.repo.Create(ctx, tx, booking)
	})
	if err != nil {
		return nil, err
	}

	booking.Decorate()
	s.metrics.RecordTransition(EventBookingCreated)
	s.events.Record(ctx, EventBookingCreated, "LAB_BOOKING", booking.ID, actor, map[string]interface{}{
		"date":    req.Date,
		"slot_id": booking.SlotID,
		"lab_id":  booking.LabID,
	})
	return booking, nil
}

// UpdateStatus decides a booking. PENDING may move to ACCEPT (after re-checking the slot) or
// REJECTED; rejecting a REJECTED booking succeeds without change; every other move fails.
func (s *LabBookingService) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateBookingStatusRequest) (*models.LabBooking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking status payload")
	}
	target := models.BookingStatus(req.Status)

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var booking *models.LabBooking
	changed := false
	keys := bookingKeys(current.BookingDate, current.SlotID, current.ClassID, current.LabID)
	err = s.runner.Run(ctx, "booking.decide", keys, func(tx *sqlx.Tx) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		booking = locked
		changed = false

		if locked.Status == models.BookingStatusRejected && target == models.BookingStatusRejected {
			return nil
		}
		if locked.Status != models.BookingStatusPending {
			return invalidTransition(s.logger, fmt.Sprintf("booking cannot move from %s to %s", locked.Status, target),
				zap.String("booking_id", id), zap.String("actor_id", actor.UserID))
		}
		if target == models.BookingStatusAccept {
			candidate := BookingCandidate{Date: locked.BookingDate, SlotID: locked.SlotID, ClassID: locked.ClassID, LabID: locked.LabID, ExcludeBookingID: locked.ID}
			if err := s.checker.CanBook(ctx, tx, candidate); err != nil {
				return err
			}
		}

		decidedAt := s.now().UTC()
		approver := actor.UserID
		locked.Status = target
		locked.ApprovedBy = &approver
		locked.DecidedAt = &decidedAt
		changed = true
		return s.repo.UpdateDecision(ctx, tx, locked)
	})
	if err != nil {
		return nil, err
	}

	booking.Decorate()
	if changed {
		action := EventBookingRejected
		if target == models.BookingStatusAccept {
			action = EventBookingAccepted
		}
		s.metrics.RecordTransition(action)
		s.events.Record(ctx, action, "LAB_BOOKING", booking.ID, actor, map[string]interface{}{"status": target})
	}
	return booking, nil
}

// Get returns a booking by id.
func (s *LabBookingService) Get(ctx context.Context, id string) (*models.LabBooking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, internalError(s.logger, err, "failed to load booking")
	}
	booking.Decorate()
	return booking, nil
}

// List returns bookings matching filters with pagination metadata.
func (s *LabBookingService) List(ctx context.Context, filter models.LabBookingFilter) ([]models.LabBooking, *models.Pagination, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	filter.Page, filter.PageSize = page, size
	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(s.logger, err, "failed to list bookings")
	}
	if bookings == nil {
		bookings = []models.LabBooking{}
	}
	for i := range bookings {
		bookings[i].Decorate()
	}
	return bookings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListToday returns every booking of the current lab calendar day, walking the pages of
// the underlying list.
func (s *LabBookingService) ListToday(ctx context.Context, labID string, status models.BookingStatus) ([]models.LabBooking, error) {
	today := s.today()
	filter := models.LabBookingFilter{
		LabID:     labID,
		Status:    status,
		DateFrom:  &today,
		DateTo:    &today,
		SortOrder: "ASC",
	}
	_, filter.PageSize = models.NormalizePage(1, todayPageSize)

	bookings := []models.LabBooking{}
	for filter.Page = 1; ; filter.Page++ {
		batch, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, internalError(s.logger, err, "failed to list today's bookings", zap.String("lab_id", labID))
		}
		for i := range batch {
			batch[i].Decorate()
		}
		bookings = append(bookings, batch...)
		if len(batch) < filter.PageSize || len(bookings) >= total {
			return bookings, nil
		}
	}
}

// requireActiveSlot share-locks the slot on the caller's transaction and rejects it unless
// it is ACTIVE.
func requireActiveSlot(ctx context.Context, slots slotRepository, tx sqlx.ExtContext, slotID string) error {
	slot, err := slots.FindByIDForShare(ctx, tx, slotID)
	if err != nil {
		if isNotFound(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return err
	}
	if slot.Status != models.SlotStatusActive {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "slot is not active"), map[string]interface{}{"slot_id": slotID})
	}
	return nil
}
