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

const kitColumns = "id, kit_template_id, name, status, created_at, updated_at"

// KitRepository persists physical kits.
type KitRepository struct {
	db *sqlx.DB
}

// NewKitRepository constructs a KitRepository.
func NewKitRepository(db *sqlx.DB) *KitRepository {
	return &KitRepository{db: db}
}

// Search returns kits matching keyword and status along with total count.
func (r *KitRepository) Search(ctx context.Context, filter models.InventoryFilter) ([]models.Kit, int, error) {
	base := "FROM kits WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Keyword != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Keyword)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC%s", kitColumns, base, pageClause(filter.Page, filter.PageSize))
	var items []models.Kit
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search kits: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count kits: %w", err)
	}
	return items, total, nil
}

// FindByID fetches a kit by id.
func (r *KitRepository) FindByID(ctx context.Context, id string) (*models.Kit, error) {
	const query = "SELECT " + kitColumns + " FROM kits WHERE id = $1"
	var item models.Kit
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDForUpdate fetches and row-locks a kit inside exec's transaction.
func (r *KitRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Kit, error) {
	const query = "SELECT " + kitColumns + " FROM kits WHERE id = $1 FOR UPDATE"
	var item models.Kit
	if err := sqlx.GetContext(ctx, exec, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a kit.
func (r *KitRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Kit) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO kits (id, kit_template_id, name, status, created_at, updated_at)
VALUES (:id, :kit_template_id, :name, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, item); err != nil {
		return fmt.Errorf("create kit: %w", err)
	}
	return nil
}

// UpdateStatus sets the kit status.
func (r *KitRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.KitStatus) error {
	const query = `UPDATE kits SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := executor(r.db, exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update kit status: %w", err)
	}
	return nil
}
