package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

const labBookingColumns = "id, lecturer_id, class_id, lab_id, slot_id, booking_date, status, description, approved_by, decided_at, created_at, updated_at"

// LabBookingRepository persists ad-hoc lab bookings.
type LabBookingRepository struct {
	db *sqlx.DB
}

// NewLabBookingRepository constructs a LabBookingRepository.
func NewLabBookingRepository(db *sqlx.DB) *LabBookingRepository {
	return &LabBookingRepository{db: db}
}

// List returns bookings matching filters along with total count.
func (r *LabBookingRepository) List(ctx context.Context, filter models.LabBookingFilter) ([]models.LabBooking, int, error) {
	base := "FROM lab_bookings WHERE 1=1"
	var conditions []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.LecturerID != "" {
		add("lecturer_id = $%d", filter.LecturerID)
	}
	if filter.ClassID != "" {
		add("class_id = $%d", filter.ClassID)
	}
	if filter.LabID != "" {
		add("lab_id = $%d", filter.LabID)
	}
	if filter.SlotID != "" {
		add("slot_id = $%d", filter.SlotID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.DateFrom != nil {
		add("booking_date >= $%d", filter.DateFrom.Format(models.BookingDateLayout))
	}
	if filter.DateTo != nil {
		add("booking_date <= $%d", filter.DateTo.Format(models.BookingDateLayout))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY booking_date %s, created_at %s%s", labBookingColumns, base, order, order, pageClause(filter.Page, filter.PageSize))
	var bookings []models.LabBooking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lab bookings: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count lab bookings: %w", err)
	}
	return bookings, total, nil
}

// FindByID fetches a booking by id.
func (r *LabBookingRepository) FindByID(ctx context.Context, id string) (*models.LabBooking, error) {
	const query = "SELECT " + labBookingColumns + " FROM lab_bookings WHERE id = $1"
	var booking models.LabBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate fetches and row-locks a booking inside exec's transaction.
func (r *LabBookingRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.LabBooking, error) {
	const query = "SELECT " + labBookingColumns + " FROM lab_bookings WHERE id = $1 FOR UPDATE"
	var booking models.LabBooking
	if err := sqlx.GetContext(ctx, exec, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindAccepted returns the accepted booking holding (date, slot, lab), or nil when free.
func (r *LabBookingRepository) FindAccepted(ctx context.Context, exec sqlx.ExtContext, date time.Time, slotID, labID, excludeID string) (*models.LabBooking, error) {
	query := "SELECT " + labBookingColumns + ` FROM lab_bookings
WHERE status = 'ACCEPT' AND booking_date = $1 AND slot_id = $2 AND lab_id = $3`
	args := []interface{}{date.Format(models.BookingDateLayout), slotID, labID}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var booking models.LabBooking
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &booking, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find accepted booking: %w", err)
	}
	return &booking, nil
}

// Create inserts a booking.
func (r *LabBookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	const query = `INSERT INTO lab_bookings (id, lecturer_id, class_id, lab_id, slot_id, booking_date, status, description, created_at, updated_at)
VALUES (:id, :lecturer_id, :class_id, :lab_id, :slot_id, :booking_date, :status, :description, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, booking); err != nil {
		return fmt.Errorf("create lab booking: %w", err)
	}
	return nil
}

// UpdateDecision stores the status, approver and decision time of a booking.
func (r *LabBookingRepository) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, booking *models.LabBooking) error {
	booking.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lab_bookings SET status = :status, approved_by = :approved_by, decided_at = :decided_at, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, booking); err != nil {
		return fmt.Errorf("update lab booking status: %w", err)
	}
	return nil
}
