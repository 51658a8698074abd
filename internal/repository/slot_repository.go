package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

const slotColumns = "id, name, start_time, end_time, status, created_at, updated_at"

// SlotRepository manages persistence for the slot catalog.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs a SlotRepository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// List returns slots ordered by start time.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, error) {
	query := "SELECT " + slotColumns + " FROM slots"
	var args []interface{}
	if filter.Status != "" {
		query += " WHERE status = $1"
		args = append(args, filter.Status)
	}
	query += " ORDER BY start_time ASC"

	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// FindByID fetches a slot by id. When exec is a transaction the read joins it.
func (r *SlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error) {
	const query = "SELECT " + slotColumns + " FROM slots WHERE id = $1"
	var slot models.Slot
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindByIDForShare reads a slot inside exec and holds a share lock on it until the
// transaction ends, so a concurrent status change waits for the booking to commit.
func (r *SlotRepository) FindByIDForShare(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Slot, error) {
	const query = "SELECT " + slotColumns + " FROM slots WHERE id = $1 FOR SHARE"
	var slot models.Slot
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a new slot.
func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	const query = `INSERT INTO slots (id, name, start_time, end_time, status, created_at, updated_at)
VALUES (:id, :name, :start_time, :end_time, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update changes the name and time window of a slot.
func (r *SlotRepository) Update(ctx context.Context, slot *models.Slot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE slots SET name = :name, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// UpdateStatus sets the slot status.
func (r *SlotRepository) UpdateStatus(ctx context.Context, id string, status models.SlotStatus) error {
	const query = `UPDATE slots SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return nil
}

// IsReferenced reports whether any schedule type or booking points at the slot.
func (r *SlotRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM schedule_types WHERE slot_id = $1)
OR EXISTS (SELECT 1 FROM lab_bookings WHERE slot_id = $1)`
	var referenced bool
	if err := r.db.GetContext(ctx, &referenced, query, id); err != nil {
		return false, fmt.Errorf("check slot references: %w", err)
	}
	return referenced, nil
}
