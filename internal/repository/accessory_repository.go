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

const accessoryColumns = "id, name, value_code, category, status, created_at, updated_at"

// AccessoryRepository persists accessory types.
type AccessoryRepository struct {
	db *sqlx.DB
}

// NewAccessoryRepository constructs an AccessoryRepository.
func NewAccessoryRepository(db *sqlx.DB) *AccessoryRepository {
	return &AccessoryRepository{db: db}
}

// Search returns accessories matching keyword and status along with total count.
func (r *AccessoryRepository) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Accessory, int, error) {
	base := "FROM accessories WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Keyword != "" {
		search := "%" + strings.ToLower(filter.Keyword) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(value_code) LIKE $%d OR LOWER(category) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC%s", accessoryColumns, base, pageClause(filter.Page, filter.PageSize))
	var items []models.Accessory
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search accessories: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count accessories: %w", err)
	}
	return items, total, nil
}

// FindByID fetches an accessory by id.
func (r *AccessoryRepository) FindByID(ctx context.Context, id string) (*models.Accessory, error) {
	const query = "SELECT " + accessoryColumns + " FROM accessories WHERE id = $1"
	var item models.Accessory
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDs returns the accessories among ids that exist.
func (r *AccessoryRepository) FindByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Accessory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT "+accessoryColumns+" FROM accessories WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("build accessory lookup: %w", err)
	}
	target := executor(r.db, exec)
	var items []models.Accessory
	if err := sqlx.SelectContext(ctx, target, &items, target.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find accessories: %w", err)
	}
	return items, nil
}

// Create inserts an accessory.
func (r *AccessoryRepository) Create(ctx context.Context, item *models.Accessory) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO accessories (id, name, value_code, category, status, created_at, updated_at)
VALUES (:id, :name, :value_code, :category, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create accessory: %w", err)
	}
	return nil
}

// UpdateStatus sets the accessory status.
func (r *AccessoryRepository) UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error {
	const query = `UPDATE accessories SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update accessory status: %w", err)
	}
	return nil
}
