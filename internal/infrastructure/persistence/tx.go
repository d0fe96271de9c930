// Package persistence - репозитории поверх PostgreSQL (sqlx + lib/pq).
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

type txKey struct{}

// Transactor кладёт *sqlx.Tx в ctx; репозитории пакета берут его через conn.
type Transactor struct {
	db *sqlx.DB
}

var _ repository.Transactor = (*Transactor)(nil)

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return dbError(err, "не удалось начать транзакцию")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError(err, "не удалось зафиксировать транзакцию")
	}
	return nil
}

// conn возвращает транзакцию из ctx или сам пул.
func conn(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// dbError переводит ошибку драйвера в AppError. Ошибки приложения проходят как есть.
func dbError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return apperror.Wrap(err, apperror.ErrCodeConflict, message)
		case pqCheckViolation:
			return apperror.Wrap(err, apperror.ErrCodePreconditionFailed, message)
		}
	}
	return apperror.Wrap(err, apperror.ErrCodeDatabaseError, message)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
