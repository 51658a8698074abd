package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/repository"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

const advisoryLockQuery = "SELECT pg_advisory_xact_lock(hashtext($1))"

func newRunnerMock(t *testing.T, retries int) (*TxRunner, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	runner := NewTxRunner(sqlx.NewDb(db, "sqlmock"), repository.NewLockRepository(), retries, NewMetricsService(), zap.NewNop())
	return runner, mock, func() { db.Close() }
}

func expectLock(mock sqlmock.Sqlmock, key string) {
	mock.ExpectExec(regexp.QuoteMeta(advisoryLockQuery)).WithArgs(key).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestTxRunnerLocksSortedKeysAndCommits(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock, "booking:2026-03-04:slot-1:lab-1")
	expectLock(mock, "schedule:WED:slot-1:lab-1")
	mock.ExpectExec("UPDATE lab_bookings").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := runner.Run(context.Background(), "booking.decide", []string{"schedule:WED:slot-1:lab-1", "booking:2026-03-04:slot-1:lab-1"}, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(context.Background(), "UPDATE lab_bookings SET status = 'ACCEPT'")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerRetriesTransientFailureOnce(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock, "equipment:eq-1")
	mock.ExpectRollback()
	mock.ExpectBegin()
	expectLock(mock, "equipment:eq-1")
	mock.ExpectCommit()

	attempts := 0
	err := runner.Run(context.Background(), "equipment.checkout", []string{"equipment:eq-1"}, func(tx *sqlx.Tx) error {
		attempts++
		if attempts == 1 {
			return &pq.Error{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerGivesUpAfterRetries(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		expectLock(mock, "kit:kit-1")
		mock.ExpectRollback()
	}

	err := runner.Run(context.Background(), "kit.return", []string{"kit:kit-1"}, func(tx *sqlx.Tx) error {
		return &pq.Error{Code: "40P01", Message: "deadlock detected"}
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	assert.NotEmpty(t, appErr.IncidentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerMapsUniqueViolations(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock, "kit:kit-1")
	mock.ExpectRollback()

	err := runner.Run(context.Background(), "kit.checkout", []string{"kit:kit-1"}, func(tx *sqlx.Tx) error {
		return &pq.Error{Code: "23505", Constraint: "ux_team_kits_open"}
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAlreadyBorrowed.Code))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerMapsMalformedValuesToValidation(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock, "equipment:abc")
	mock.ExpectRollback()

	err := runner.Run(context.Background(), "equipment.checkout", []string{"equipment:abc"}, func(tx *sqlx.Tx) error {
		return fmt.Errorf("find open equipment borrow: %w", &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, appErr.IncidentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerPassesDomainErrorsThrough(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin()
	expectLock(mock, "equipment:eq-1")
	mock.ExpectRollback()

	domainErr := appErrors.WithDetails(appErrors.ErrNotBorrowing, map[string]interface{}{"record_id": "r-1"})
	err := runner.Run(context.Background(), "equipment.return", []string{"equipment:eq-1"}, func(tx *sqlx.Tx) error {
		return domainErr
	})
	assert.Same(t, domainErr, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxRunnerWrapsUnexpectedErrors(t *testing.T) {
	runner, mock, cleanup := newRunnerMock(t, 1)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := runner.Run(context.Background(), "booking.create", []string{"booking:x"}, func(tx *sqlx.Tx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
	assert.NotEmpty(t, appErr.IncidentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	locks := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		inside  int32
		overlap int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Lock("equipment:eq-1")
			defer release()
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlap))
	assert.Empty(t, locks.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := newKeyedMutex()
	releaseA := locks.Lock("kit:a")
	done := make(chan struct{})
	go func() {
		release := locks.Lock("kit:b")
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on an unrelated key blocked")
	}
	releaseA()
}
