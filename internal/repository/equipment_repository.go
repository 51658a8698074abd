package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

const equipmentColumns = "id, name, code, serial_number, status, description, created_at, updated_at"

// EquipmentRepository persists lab equipment.
type EquipmentRepository struct {
	db *sqlx.DB
}

// NewEquipmentRepository constructs an EquipmentRepository.
func NewEquipmentRepository(db *sqlx.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// Search returns equipment matching keyword and status along with total count.
func (r *EquipmentRepository) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Equipment, int, error) {
	base := "FROM equipment WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Keyword != "" {
		search := "%" + strings.ToLower(filter.Keyword) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d OR LOWER(serial_number) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC%s", equipmentColumns, base, pageClause(filter.Page, filter.PageSize))
	var items []models.Equipment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search equipment: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count equipment: %w", err)
	}
	return items, total, nil
}

// FindByID fetches equipment by id.
func (r *EquipmentRepository) FindByID(ctx context.Context, id string) (*models.Equipment, error) {
	const query = "SELECT " + equipmentColumns + " FROM equipment WHERE id = $1"
	var item models.Equipment
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDForUpdate fetches and row-locks equipment inside exec's transaction.
func (r *EquipmentRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	const query = "SELECT " + equipmentColumns + " FROM equipment WHERE id = $1 FOR UPDATE"
	var item models.Equipment
	if err := sqlx.GetContext(ctx, exec, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts equipment.
func (r *EquipmentRepository) Create(ctx context.Context, item *models.Equipment) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO equipment (id, name, code, serial_number, status, description, created_at, updated_at)
VALUES (:id, :name, :code, :serial_number, :status, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create equipment: %w", err)
	}
	return nil
}

// UpdateStatus sets the equipment status.
func (r *EquipmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EquipmentStatus) error {
	const query = `UPDATE equipment SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := executor(r.db, exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update equipment status: %w", err)
	}
	return nil
}
