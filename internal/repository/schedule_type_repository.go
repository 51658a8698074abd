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

const scheduleTypeColumns = "id, day_of_week, slot_id, class_id, lab_id, name, color, status, created_at, updated_at"

// ScheduleTypeRepository manages the recurring weekly grid.
type ScheduleTypeRepository struct {
	db *sqlx.DB
}

// NewScheduleTypeRepository constructs a ScheduleTypeRepository.
func NewScheduleTypeRepository(db *sqlx.DB) *ScheduleTypeRepository {
	return &ScheduleTypeRepository{db: db}
}

// List returns schedule types matching filters along with total count.
func (r *ScheduleTypeRepository) List(ctx context.Context, filter models.ScheduleTypeFilter) ([]models.ScheduleType, int, error) {
	base := "FROM schedule_types WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.DayOfWeek != "" {
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.SlotID != "" {
		conditions = append(conditions, fmt.Sprintf("slot_id = $%d", len(args)+1))
		args = append(args, filter.SlotID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.LabID != "" {
		conditions = append(conditions, fmt.Sprintf("lab_id = $%d", len(args)+1))
		args = append(args, filter.LabID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY day_of_week ASC, slot_id ASC%s", scheduleTypeColumns, base, pageClause(filter.Page, filter.PageSize))
	var items []models.ScheduleType
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedule types: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedule types: %w", err)
	}
	return items, total, nil
}

// ListActive returns every VALID entry for a class or a lab, used to draw the weekly grid.
func (r *ScheduleTypeRepository) ListActive(ctx context.Context, classID, labID string) ([]models.ScheduleType, error) {
	query := "SELECT " + scheduleTypeColumns + " FROM schedule_types WHERE status = 'VALID'"
	var args []interface{}
	if classID != "" {
		args = append(args, classID)
		query += fmt.Sprintf(" AND class_id = $%d", len(args))
	}
	if labID != "" {
		args = append(args, labID)
		query += fmt.Sprintf(" AND lab_id = $%d", len(args))
	}
	var items []models.ScheduleType
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list active schedule types: %w", err)
	}
	return items, nil
}

// FindByID fetches a schedule type by id.
func (r *ScheduleTypeRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleType, error) {
	const query = "SELECT " + scheduleTypeColumns + " FROM schedule_types WHERE id = $1"
	var item models.ScheduleType
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindActiveConflict returns the VALID entry occupying (day, slot) for the same class or the
// same lab, or nil when the cell is free. excludeID skips one entry.
func (r *ScheduleTypeRepository) FindActiveConflict(ctx context.Context, exec sqlx.ExtContext, day models.Weekday, slotID, classID, labID, excludeID string) (*models.ScheduleType, error) {
	query := "SELECT " + scheduleTypeColumns + ` FROM schedule_types
WHERE status = 'VALID' AND day_of_week = $1 AND slot_id = $2 AND (class_id = $3 OR lab_id = $4)`
	args := []interface{}{day, slotID, classID, labID}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}
	var item models.ScheduleType
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &item, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find schedule type conflict: %w", err)
	}
	return &item, nil
}

// Create inserts a schedule type.
func (r *ScheduleTypeRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ScheduleType) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO schedule_types (id, day_of_week, slot_id, class_id, lab_id, name, color, status, created_at, updated_at)
VALUES (:id, :day_of_week, :slot_id, :class_id, :lab_id, :name, :color, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, item); err != nil {
		return fmt.Errorf("create schedule type: %w", err)
	}
	return nil
}

// UpdateStatus sets the status of a schedule type.
func (r *ScheduleTypeRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.ScheduleTypeStatus) error {
	const query = `UPDATE schedule_types SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := executor(r.db, exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update schedule type status: %w", err)
	}
	return nil
}
