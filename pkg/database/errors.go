package database

import (
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
)

const (
	codeUniqueViolation = "23505"
	codeInvalidText     = "22P02"
	classTxRollback     = "40"
)

// IsTransient reports whether err is worth retrying the whole transaction for:
// serialization failures, deadlocks and broken connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code.Class()) == classTxRollback
	}
	return false
}

// UniqueViolation returns the violated constraint name when err is a unique violation.
func UniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// IsInvalidInput reports whether Postgres rejected a parameter it could not parse into the
// column type, such as a malformed UUID.
func IsInvalidInput(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == codeInvalidText
}
