package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

// KitAccessoryRepository persists per-kit accessory counts.
type KitAccessoryRepository struct {
	db *sqlx.DB
}

// NewKitAccessoryRepository constructs a KitAccessoryRepository.
func NewKitAccessoryRepository(db *sqlx.DB) *KitAccessoryRepository {
	return &KitAccessoryRepository{db: db}
}

// CreateBatch inserts the accessory rows of a freshly built kit.
func (r *KitAccessoryRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.KitAccessory) error {
	if len(rows) == 0 {
		return nil
	}
	target := executor(r.db, exec)
	now := time.Now().UTC()

	const query = `INSERT INTO kit_accessories (id, kit_id, accessory_id, initial_quantity, current_quantity, valid_percent, status, updated_at)
VALUES (:id, :kit_id, :accessory_id, :initial_quantity, :current_quantity, :valid_percent, :status, :updated_at)`
	for i := range rows {
		row := &rows[i]
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("create kit accessory: %w", err)
		}
	}
	return nil
}

// ListByKit returns the accessory rows of a kit ordered by accessory name.
func (r *KitAccessoryRepository) ListByKit(ctx context.Context, exec sqlx.ExtContext, kitID string) ([]models.KitAccessory, error) {
	const query = `SELECT ka.id, ka.kit_id, ka.accessory_id, a.name AS accessory_name, ka.initial_quantity, ka.current_quantity, ka.valid_percent, ka.status, ka.updated_at
FROM kit_accessories ka
JOIN accessories a ON a.id = ka.accessory_id
WHERE ka.kit_id = $1 ORDER BY a.name ASC`
	var rows []models.KitAccessory
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &rows, query, kitID); err != nil {
		return nil, fmt.Errorf("list kit accessories: %w", err)
	}
	return rows, nil
}

// UpdateCount stores the reconciled count, percentage and status of one row.
func (r *KitAccessoryRepository) UpdateCount(ctx context.Context, exec sqlx.ExtContext, row *models.KitAccessory) error {
	row.UpdatedAt = time.Now().UTC()
	const query = `UPDATE kit_accessories SET current_quantity = :current_quantity, valid_percent = :valid_percent, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, row); err != nil {
		return fmt.Errorf("update kit accessory: %w", err)
	}
	return nil
}
