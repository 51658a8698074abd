package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/elab-api/internal/models"
)

// executor returns the caller's transaction when present, otherwise the pool.
func executor(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}

func pageClause(page, size int) string {
	page, size = models.NormalizePage(page, size)
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
}

// LockRepository takes transaction-scoped advisory locks keyed by strings.
type LockRepository struct{}

// NewLockRepository constructs a LockRepository.
func NewLockRepository() *LockRepository {
	return &LockRepository{}
}

// Lock blocks until the advisory lock for key is held by exec's transaction.
// The lock is released on commit or rollback.
func (r *LockRepository) Lock(ctx context.Context, exec sqlx.ExtContext, key string) error {
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %s: %w", key, err)
	}
	return nil
}
