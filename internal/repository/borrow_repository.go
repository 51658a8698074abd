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

type borrowTable struct {
	table          string
	resourceColumn string
	resourceTable  string
}

var borrowTables = map[models.ResourceKind]borrowTable{
	models.ResourceEquipment: {table: "team_equipments", resourceColumn: "equipment_id", resourceTable: "equipment"},
	models.ResourceKit:       {table: "team_kits", resourceColumn: "kit_id", resourceTable: "kits"},
}

// BorrowRepository persists the borrow ledger of one resource kind.
type BorrowRepository struct {
	db   *sqlx.DB
	kind models.ResourceKind
	t    borrowTable
}

// NewBorrowRepository constructs a ledger repository for equipment or kits.
func NewBorrowRepository(db *sqlx.DB, kind models.ResourceKind) *BorrowRepository {
	t, ok := borrowTables[kind]
	if !ok {
		panic(fmt.Sprintf("unknown resource kind %q", kind))
	}
	return &BorrowRepository{db: db, kind: kind, t: t}
}

// Kind returns the resource kind the repository serves.
func (r *BorrowRepository) Kind() models.ResourceKind {
	return r.kind
}

func (r *BorrowRepository) columns(alias string) string {
	return fmt.Sprintf("%[1]s.id, %[1]s.team_id, %[1]s.class_id, %[1]s.%[2]s AS resource_id, %[1]s.name, %[1]s.description, %[1]s.borrow_date, %[1]s.return_date, %[1]s.status, %[1]s.created_by, %[1]s.returned_by",
		alias, r.t.resourceColumn)
}

func (r *BorrowRepository) tag(records []models.BorrowRecord) {
	for i := range records {
		records[i].Kind = r.kind
	}
}

// FindOpenByResource returns the open record of a resource, or nil when none exists.
func (r *BorrowRepository) FindOpenByResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) (*models.BorrowRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s b WHERE b.%s = $1 AND b.status = 'ARE_BORROWING' LIMIT 1",
		r.columns("b"), r.t.table, r.t.resourceColumn)
	var record models.BorrowRecord
	if err := sqlx.GetContext(ctx, executor(r.db, exec), &record, query, resourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open %s borrow: %w", strings.ToLower(string(r.kind)), err)
	}
	record.Kind = r.kind
	return &record, nil
}

// FindByID fetches a record with its resource name.
func (r *BorrowRepository) FindByID(ctx context.Context, id string) (*models.BorrowRecord, error) {
	query := fmt.Sprintf("SELECT %s, COALESCE(res.name, '') AS resource_name FROM %s b LEFT JOIN %s res ON res.id = b.%s WHERE b.id = $1",
		r.columns("b"), r.t.table, r.t.resourceTable, r.t.resourceColumn)
	var record models.BorrowRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	record.Kind = r.kind
	return &record, nil
}

// FindByIDForUpdate fetches and row-locks a record inside exec's transaction.
func (r *BorrowRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.BorrowRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s b WHERE b.id = $1 FOR UPDATE", r.columns("b"), r.t.table)
	var record models.BorrowRecord
	if err := sqlx.GetContext(ctx, exec, &record, query, id); err != nil {
		return nil, err
	}
	record.Kind = r.kind
	return &record, nil
}

// Create opens a borrow record.
func (r *BorrowRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.BorrowDate.IsZero() {
		record.BorrowDate = time.Now().UTC()
	}
	record.Kind = r.kind

	query := fmt.Sprintf(`INSERT INTO %s (id, team_id, class_id, %s, name, description, borrow_date, status, created_by)
VALUES (:id, :team_id, :class_id, :resource_id, :name, :description, :borrow_date, :status, :created_by)`, r.t.table, r.t.resourceColumn)
	if _, err := sqlx.NamedExecContext(ctx, executor(r.db, exec), query, record); err != nil {
		return fmt.Errorf("create %s borrow: %w", strings.ToLower(string(r.kind)), err)
	}
	return nil
}

// Close marks an open record as returned. It reports false when the record was not open.
func (r *BorrowRepository) Close(ctx context.Context, exec sqlx.ExtContext, record *models.BorrowRecord) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, return_date = $3, returned_by = $4 WHERE id = $1 AND status = 'ARE_BORROWING'`, r.t.table)
	result, err := executor(r.db, exec).ExecContext(ctx, query, record.ID, models.BorrowStatusPaid, record.ReturnDate, record.ReturnedBy)
	if err != nil {
		return false, fmt.Errorf("close %s borrow: %w", strings.ToLower(string(r.kind)), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close %s borrow: %w", strings.ToLower(string(r.kind)), err)
	}
	if affected == 0 {
		return false, nil
	}
	record.Status = models.BorrowStatusPaid
	return true, nil
}

// History returns ledger records matching filters along with total count.
func (r *BorrowRepository) History(ctx context.Context, filter models.BorrowHistoryFilter) ([]models.BorrowRecord, int, error) {
	base := fmt.Sprintf("FROM %s b LEFT JOIN %s res ON res.id = b.%s WHERE 1=1", r.t.table, r.t.resourceTable, r.t.resourceColumn)
	var conditions []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(args))))
	}
	if filter.Keyword != "" {
		add("(LOWER(COALESCE(res.name, '')) LIKE ? OR LOWER(b.name) LIKE ? OR LOWER(b.description) LIKE ?)", "%"+strings.ToLower(filter.Keyword)+"%")
	}
	if filter.TeamID != "" {
		add("b.team_id = ?", filter.TeamID)
	}
	if filter.ClassID != "" {
		add("b.class_id = ?", filter.ClassID)
	}
	if filter.Status != "" {
		add("b.status = ?", filter.Status)
	}
	if filter.BorrowedFrom != nil {
		add("b.borrow_date >= ?", *filter.BorrowedFrom)
	}
	if filter.BorrowedBefore != nil {
		add("b.borrow_date < ?", *filter.BorrowedBefore)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"borrow_date": "b.borrow_date",
		"return_date": "b.return_date",
		"name":        "b.name",
		"resource":    "res.name",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "b.borrow_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	query := fmt.Sprintf("SELECT %s, COALESCE(res.name, '') AS resource_name %s ORDER BY %s %s%s",
		r.columns("b"), base, column, order, pageClause(filter.Page, filter.PageSize))
	var records []models.BorrowRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s borrow history: %w", strings.ToLower(string(r.kind)), err)
	}
	r.tag(records)

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count %s borrow history: %w", strings.ToLower(string(r.kind)), err)
	}
	return records, total, nil
}
