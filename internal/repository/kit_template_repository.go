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

const kitTemplateColumns = "id, name, quantity, status, created_at, updated_at"

// KitTemplateRepository persists kit templates and their accessory recipes.
type KitTemplateRepository struct {
	db *sqlx.DB
}

// NewKitTemplateRepository constructs a KitTemplateRepository.
func NewKitTemplateRepository(db *sqlx.DB) *KitTemplateRepository {
	return &KitTemplateRepository{db: db}
}

// Search returns templates matching keyword and status along with total count.
func (r *KitTemplateRepository) Search(ctx context.Context, filter models.InventoryFilter) ([]models.KitTemplate, int, error) {
	base := "FROM kit_templates WHERE 1=1"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC%s", kitTemplateColumns, base, pageClause(filter.Page, filter.PageSize))
	var items []models.KitTemplate
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search kit templates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count kit templates: %w", err)
	}
	return items, total, nil
}

// FindByID fetches a template by id without its recipe.
func (r *KitTemplateRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.KitTemplate, error) {
	const query = "SELECT " + kitTemplateColumns + " FROM kit_templates WHERE id = $1"
	var item models.KitTemplate
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a template.
func (r *KitTemplateRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.KitTemplate) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO kit_templates (id, name, quantity, status, created_at, updated_at)
VALUES (:id, :name, :quantity, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, item); err != nil {
		return fmt.Errorf("create kit template: %w", err)
	}
	return nil
}

// UpdateStatus sets the template status.
func (r *KitTemplateRepository) UpdateStatus(ctx context.Context, id string, status models.ValidityStatus) error {
	const query = `UPDATE kit_templates SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update kit template status: %w", err)
	}
	return nil
}

// UpsertRecipeItem sets the quantity of one accessory in a template recipe.
func (r *KitTemplateRepository) UpsertRecipeItem(ctx context.Context, exec sqlx.ExtContext, item *models.AccessoryKitTemplate) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	const query = `INSERT INTO accessory_kit_templates (id, kit_template_id, accessory_id, quantity)
VALUES (:id, :kit_template_id, :accessory_id, :quantity)
ON CONFLICT (kit_template_id, accessory_id) DO UPDATE SET quantity = EXCLUDED.quantity`
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, item); err != nil {
		return fmt.Errorf("upsert kit template recipe: %w", err)
	}
	return nil
}

// ListRecipe returns the accessory lines of a template.
func (r *KitTemplateRepository) ListRecipe(ctx context.Context, exec sqlx.ExtContext, templateID string) ([]models.AccessoryKitTemplate, error) {
	const query = `SELECT akt.id, akt.kit_template_id, akt.accessory_id, a.name AS accessory_name, akt.quantity
FROM accessory_kit_templates akt
JOIN accessories a ON a.id = akt.accessory_id
WHERE akt.kit_template_id = $1 ORDER BY a.name ASC`
	var items []models.AccessoryKitTemplate
	if err := sqlx.SelectContext(ctx, executor(r.db, exec), &items, query, templateID); err != nil {
		return nil, fmt.Errorf("list kit template recipe: %w", err)
	}
	return items, nil
}
