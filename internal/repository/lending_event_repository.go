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

// LendingEventRepository stores the audit trail of engine transitions.
type LendingEventRepository struct {
	db *sqlx.DB
}

// NewLendingEventRepository constructs a LendingEventRepository.
func NewLendingEventRepository(db *sqlx.DB) *LendingEventRepository {
	return &LendingEventRepository{db: db}
}

// Create persists an event.
func (r *LendingEventRepository) Create(ctx context.Context, event *models.LendingEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Payload) == 0 {
		event.Payload = []byte("{}")
	}
	const query = `INSERT INTO lending_events (id, action, entity_type, entity_id, actor_id, payload, created_at)
VALUES (:id, :action, :entity_type, :entity_id, :actor_id, :payload, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create lending event: %w", err)
	}
	return nil
}

// List returns events newest first along with total count.
func (r *LendingEventRepository) List(ctx context.Context, filter models.LendingEventFilter) ([]models.LendingEvent, int, error) {
	base := "FROM lending_events WHERE 1=1"
	var conditions []string
	var args []interface{}
	if filter.EntityType != "" {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, filter.EntityID)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf("SELECT id, action, entity_type, entity_id, actor_id, payload, created_at %s ORDER BY created_at DESC%s", base, pageClause(filter.Page, filter.PageSize))
	var events []models.LendingEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lending events: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count lending events: %w", err)
	}
	return events, total, nil
}
