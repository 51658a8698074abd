package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/pkg/database"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
	"github.com/noah-isme/elab-api/pkg/logger"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type advisoryLocker interface {
	Lock(ctx context.Context, exec sqlx.ExtContext, key string) error
}

// uniqueConflicts maps partial unique indexes to the conflict they backstop.
var uniqueConflicts = map[string]*appErrors.Error{
	"ux_schedule_types_class_slot": appErrors.ErrRecurringConflict,
	"ux_schedule_types_lab_slot":   appErrors.ErrRecurringConflict,
	"ux_lab_bookings_accepted":     appErrors.ErrBookingConflict,
	"ux_team_equipments_open":      appErrors.ErrAlreadyBorrowed,
	"ux_team_kits_open":            appErrors.ErrAlreadyBorrowed,
}

// keyedMutex serialises callers sharing a key inside one process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// TxRunner executes read-check-write transitions under per-key critical sections.
// Keys are locked in process first, then with transaction-scoped advisory locks,
// so concurrent requests for one key serialise across instances.
type TxRunner struct {
	db      txProvider
	locker  advisoryLocker
	keys    *keyedMutex
	retries int
	metrics *MetricsService
	logger  *zap.Logger
}

// NewTxRunner constructs a TxRunner. retries is the number of extra attempts after a transient failure.
func NewTxRunner(db txProvider, locker advisoryLocker, retries int, metrics *MetricsService, logger *zap.Logger) *TxRunner {
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxRunner{db: db, locker: locker, keys: newKeyedMutex(), retries: retries, metrics: metrics, logger: logger}
}

// Run executes fn inside one transaction holding every key. Domain errors returned by fn
// pass through unchanged; anything else rolls back and surfaces as an internal error
// carrying an incident id.
func (r *TxRunner) Run(ctx context.Context, operation string, keys []string, fn func(tx *sqlx.Tx) error) error {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)

	started := time.Now()
	for _, key := range ordered {
		release := r.keys.Lock(key)
		defer release()
	}

	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			r.metrics.RecordTransactionRetry(operation)
			r.logger.Warn("retrying transaction after transient failure", zap.String("operation", operation), zap.Int("attempt", attempt), zap.Error(err))
		}
		err = r.attempt(ctx, ordered, started, fn)
		if err == nil || !database.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	r.metrics.ObserveTransaction(operation, time.Since(started))
	if err == nil {
		return nil
	}
	return r.translate(operation, err)
}

func (r *TxRunner) attempt(ctx context.Context, keys []string, started time.Time, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, key := range keys {
		if err = r.locker.Lock(ctx, tx, key); err != nil {
			return err
		}
	}
	r.metrics.ObserveLockWait(time.Since(started))

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *TxRunner) translate(operation string, err error) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		if conflict, found := uniqueConflicts[constraint]; found {
			return appErrors.WithDetails(conflict, map[string]interface{}{"constraint": constraint})
		}
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code != appErrors.ErrInternal.Code {
		return appErr
	}
	return internalError(r.logger, err, operation+" failed", zap.String("operation", operation))
}

// internalError logs err as a server fault and returns the generic failure carrying its incident id.
// Values Postgres could not parse, such as a malformed id in a filter, are the caller's
// fault and come back as validation errors without an incident.
func internalError(l *zap.Logger, err error, message string, fields ...zap.Field) *appErrors.Error {
	if database.IsInvalidInput(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed identifier or value")
	}
	appErr := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	appErr.IncidentID = logger.Fault(l, err, message, fields...)
	return appErr
}

// invalidTransition logs an illegal lifecycle move as a server fault and returns it.
func invalidTransition(l *zap.Logger, message string, fields ...zap.Field) *appErrors.Error {
	appErr := appErrors.Clone(appErrors.ErrInvalidStateTransition, message)
	appErr.IncidentID = logger.Fault(l, appErr, message, fields...)
	return appErr
}

// isNotFound also covers ids that cannot be parsed as a key: no such row can exist.
func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || database.IsInvalidInput(err)
}
