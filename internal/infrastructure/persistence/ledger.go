package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const (
	txTypeHold    = "swap_hold"
	txTypeRelease = "swap_release"
	txTypeRefund  = "swap_refund"
	txTypeSplit   = "swap_split"
)

type holdRow struct {
	SwapRequestID    uuid.UUID  `db:"swap_request_id"`
	FromUserID       uuid.UUID  `db:"from_user_id"`
	ToUserID         uuid.UUID  `db:"to_user_id"`
	Amount           int64      `db:"amount"`
	Status           string     `db:"status"`
	ProductID        uuid.UUID  `db:"product_id"`
	OfferedProductID *uuid.UUID `db:"offered_product_id"`
}

// Ledger ведёт балансы валоров, удержания по заявкам и смену владельцев товаров.
// Работает только внутри транзакции вызывающего.
type Ledger struct {
	db *sqlx.DB
}

var _ repository.Ledger = (*Ledger)(nil)

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Settle(ctx context.Context, s *entity.SwapRequest) error {
	q := conn(ctx, l.db)

	_, err := l.lockHold(ctx, q, s.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return dbError(err, "не удалось проверить удержание")
	}

	amount := s.SettlementAmount().Int64()
	var available int64
	err = sqlx.GetContext(ctx, q, &available,
		`SELECT available FROM valor_balances WHERE user_id = $1 FOR UPDATE`, s.RequesterID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return dbError(err, "не удалось получить баланс")
	}
	if available < amount {
		return apperror.New(apperror.ErrCodePreconditionFailed, "недостаточно валоров для завершения обмена")
	}

	if err := transferProduct(ctx, q, s.ProductID, s.OwnerID, s.RequesterID); err != nil {
		return err
	}
	if s.OfferedProductID != nil {
		if err := transferProduct(ctx, q, *s.OfferedProductID, s.RequesterID, s.OwnerID); err != nil {
			return err
		}
	}

	if amount > 0 {
		if _, err := q.ExecContext(ctx, `
			UPDATE valor_balances SET available = available - $2, held = held + $2, updated_at = NOW()
			WHERE user_id = $1
		`, s.RequesterID, amount); err != nil {
			return dbError(err, "не удалось списать валоры")
		}
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO valor_holds (swap_request_id, from_user_id, to_user_id, amount, status, product_id, offered_product_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.RequesterID, s.OwnerID, amount, string(entity.HoldStatusHeld), s.ProductID, s.OfferedProductID); err != nil {
		return dbError(err, "не удалось создать удержание")
	}
	return logTransaction(ctx, q, s.RequesterID, s.ID, txTypeHold, amount)
}

func (l *Ledger) FreezeHold(ctx context.Context, swapRequestID uuid.UUID) error {
	q := conn(ctx, l.db)

	h, err := l.lockHold(ctx, q, swapRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return dbError(err, "не удалось получить удержание")
	}
	switch entity.HoldStatus(h.Status) {
	case entity.HoldStatusFrozen:
		return nil
	case entity.HoldStatusHeld:
	default:
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}
	return setHoldStatus(ctx, q, swapRequestID, entity.HoldStatusFrozen)
}

func (l *Ledger) ReleaseHold(ctx context.Context, swapRequestID uuid.UUID) error {
	q := conn(ctx, l.db)

	h, err := l.lockHold(ctx, q, swapRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return dbError(err, "не удалось получить удержание")
	}
	switch entity.HoldStatus(h.Status) {
	case entity.HoldStatusReleased:
		return nil
	case entity.HoldStatusHeld:
	default:
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание заморожено или закрыто")
	}

	if err := unhold(ctx, q, h.FromUserID, h.Amount); err != nil {
		return err
	}
	if err := credit(ctx, q, h.ToUserID, h.Amount); err != nil {
		return err
	}
	if err := setHoldStatus(ctx, q, swapRequestID, entity.HoldStatusReleased); err != nil {
		return err
	}
	return logTransaction(ctx, q, h.ToUserID, swapRequestID, txTypeRelease, h.Amount)
}

func (l *Ledger) RefundHold(ctx context.Context, swapRequestID uuid.UUID, returnProducts bool) error {
	q := conn(ctx, l.db)

	h, err := l.lockHold(ctx, q, swapRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return dbError(err, "не удалось получить удержание")
	}
	status := entity.HoldStatus(h.Status)
	if status == entity.HoldStatusRefunded {
		return nil
	}
	if !status.IsOpen() {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}

	if returnProducts {
		if err := transferProduct(ctx, q, h.ProductID, h.FromUserID, h.ToUserID); err != nil {
			return err
		}
		if h.OfferedProductID != nil {
			if err := transferProduct(ctx, q, *h.OfferedProductID, h.ToUserID, h.FromUserID); err != nil {
				return err
			}
		}
	}
	if err := unhold(ctx, q, h.FromUserID, h.Amount); err != nil {
		return err
	}
	if err := credit(ctx, q, h.FromUserID, h.Amount); err != nil {
		return err
	}
	if err := setHoldStatus(ctx, q, swapRequestID, entity.HoldStatusRefunded); err != nil {
		return err
	}
	return logTransaction(ctx, q, h.FromUserID, swapRequestID, txTypeRefund, h.Amount)
}

func (l *Ledger) SplitHold(ctx context.Context, swapRequestID uuid.UUID) error {
	q := conn(ctx, l.db)

	h, err := l.lockHold(ctx, q, swapRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return dbError(err, "не удалось получить удержание")
	}
	status := entity.HoldStatus(h.Status)
	if status == entity.HoldStatusSplit {
		return nil
	}
	if !status.IsOpen() {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}

	// нечётный остаток уходит заявителю
	toOwner := h.Amount / 2
	toRequester := h.Amount - toOwner
	if err := unhold(ctx, q, h.FromUserID, h.Amount); err != nil {
		return err
	}
	if err := credit(ctx, q, h.ToUserID, toOwner); err != nil {
		return err
	}
	if err := credit(ctx, q, h.FromUserID, toRequester); err != nil {
		return err
	}
	if err := setHoldStatus(ctx, q, swapRequestID, entity.HoldStatusSplit); err != nil {
		return err
	}
	if err := logTransaction(ctx, q, h.ToUserID, swapRequestID, txTypeSplit, toOwner); err != nil {
		return err
	}
	return logTransaction(ctx, q, h.FromUserID, swapRequestID, txTypeSplit, toRequester)
}

// Balance - доступный остаток пользователя.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var available int64
	err := sqlx.GetContext(ctx, conn(ctx, l.db), &available,
		`SELECT available FROM valor_balances WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, dbError(err, "не удалось получить баланс")
	}
	return available, nil
}

// Deposit пополняет доступный остаток.
func (l *Ledger) Deposit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма пополнения должна быть положительной")
	}
	return credit(ctx, conn(ctx, l.db), userID, amount)
}

func (l *Ledger) lockHold(ctx context.Context, q sqlx.QueryerContext, swapRequestID uuid.UUID) (*holdRow, error) {
	var h holdRow
	err := sqlx.GetContext(ctx, q, &h, `
		SELECT swap_request_id, from_user_id, to_user_id, amount, status, product_id, offered_product_id
		FROM valor_holds WHERE swap_request_id = $1 FOR UPDATE
	`, swapRequestID)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func transferProduct(ctx context.Context, q sqlx.ExtContext, productID, from, to uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE products SET owner_id = $3, updated_at = NOW() WHERE id = $1 AND owner_id = $2`,
		productID, from, to)
	if err != nil {
		return dbError(err, "не удалось передать товар")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return dbError(err, "не удалось проверить передачу товара")
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID); err != nil {
		return dbError(err, "не удалось проверить товар")
	}
	if !exists {
		return apperror.ErrProductNotFound
	}
	return apperror.New(apperror.ErrCodeConflict, "владелец товара изменился")
}

func credit(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID, amount int64) error {
	if amount == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO valor_balances (user_id, available, held)
		VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO UPDATE SET available = valor_balances.available + $2, updated_at = NOW()
	`, userID, amount)
	return dbError(err, "не удалось начислить валоры")
}

func unhold(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID, amount int64) error {
	if amount == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`UPDATE valor_balances SET held = held - $2, updated_at = NOW() WHERE user_id = $1`, userID, amount)
	return dbError(err, "не удалось снять удержание")
}

func setHoldStatus(ctx context.Context, q sqlx.ExecerContext, swapRequestID uuid.UUID, status entity.HoldStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE valor_holds SET status = $2, updated_at = NOW() WHERE swap_request_id = $1`, swapRequestID, string(status))
	return dbError(err, "не удалось обновить удержание")
}

func logTransaction(ctx context.Context, q sqlx.ExecerContext, userID, swapRequestID uuid.UUID, txType string, amount int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO valor_transactions (user_id, swap_request_id, type, amount)
		VALUES ($1, $2, $3, $4)
	`, userID, swapRequestID, txType, amount)
	return dbError(err, "не удалось записать операцию")
}
