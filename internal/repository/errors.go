package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicate            = errors.New("duplicate record")
	ErrForeignKey           = errors.New("referenced record does not exist")
	ErrInsufficientQuantity = errors.New("quantity would become negative")
	// ErrLockTimeout covers lock waits, serialization failures and deadlocks;
	// the whole operation can be retried from scratch.
	ErrLockTimeout = errors.New("could not acquire row locks in time")
)

// PostgreSQL SQLSTATE codes translated by this package.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"
)

// translate maps driver errors onto this package's sentinels. Errors it does not
// recognise are returned untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrLockTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return errors.Join(ErrForeignKey, err)
		case pgUniqueViolation:
			return errors.Join(ErrDuplicate, err)
		case pgCheckViolation:
			return errors.Join(ErrInsufficientQuantity, err)
		case pgSerializationFail, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
			return errors.Join(ErrLockTimeout, err)
		}
	}
	return err
}
