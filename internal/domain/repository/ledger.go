package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

// Ledger - учёт валоров и владения товарами. Все методы идемпотентны по заявке
// и выполняются в транзакции вызывающего (см. Transactor).
type Ledger interface {
	// Settle переводит согласованную сумму заявителя владельцу в удержание
	// и меняет владельцев товаров.
	Settle(ctx context.Context, s *entity.SwapRequest) error
	FreezeHold(ctx context.Context, swapRequestID uuid.UUID) error
	ReleaseHold(ctx context.Context, swapRequestID uuid.UUID) error
	// RefundHold возвращает удержание заявителю; returnProducts откатывает смену владельцев.
	RefundHold(ctx context.Context, swapRequestID uuid.UUID, returnProducts bool) error
	SplitHold(ctx context.Context, swapRequestID uuid.UUID) error
}

// Transactor выполняет fn в одной транзакции; репозитории берут её из ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
