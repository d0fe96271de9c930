package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type Ledger struct {
	store *Store
}

var _ repository.Ledger = (*Ledger)(nil)

// SetBalance задаёт доступный остаток пользователя.
func (l *Ledger) SetBalance(ctx context.Context, userID uuid.UUID, amount int64) {
	defer l.store.lock(ctx)()
	l.store.st.balances[userID] = amount
}

func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) int64 {
	defer l.store.lock(ctx)()
	return l.store.st.balances[userID]
}

// Hold возвращает копию удержания или nil.
func (l *Ledger) Hold(ctx context.Context, swapRequestID uuid.UUID) *entity.ValorHold {
	defer l.store.lock(ctx)()
	h, ok := l.store.st.holds[swapRequestID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

func (l *Ledger) Settle(ctx context.Context, s *entity.SwapRequest) error {
	defer l.store.lock(ctx)()
	st := l.store.st

	if _, exists := st.holds[s.ID]; exists {
		return nil
	}

	amount := s.SettlementAmount().Int64()
	if st.balances[s.RequesterID] < amount {
		return apperror.New(apperror.ErrCodePreconditionFailed, "недостаточно валоров для завершения обмена")
	}
	if err := transferProduct(st, s.ProductID, s.OwnerID, s.RequesterID); err != nil {
		return err
	}
	if s.OfferedProductID != nil {
		if err := transferProduct(st, *s.OfferedProductID, s.RequesterID, s.OwnerID); err != nil {
			return err
		}
	}

	st.balances[s.RequesterID] -= amount
	now := time.Now()
	st.holds[s.ID] = &entity.ValorHold{
		SwapRequestID:    s.ID,
		FromUserID:       s.RequesterID,
		ToUserID:         s.OwnerID,
		Amount:           s.SettlementAmount(),
		Status:           entity.HoldStatusHeld,
		ProductID:        s.ProductID,
		OfferedProductID: s.OfferedProductID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return nil
}

func transferProduct(st *state, productID, from, to uuid.UUID) error {
	p, ok := st.products[productID]
	if !ok {
		return apperror.ErrProductNotFound
	}
	if p.OwnerID != from {
		return apperror.New(apperror.ErrCodeConflict, "владелец товара изменился")
	}
	p.OwnerID = to
	p.UpdatedAt = time.Now()
	return nil
}

func (l *Ledger) FreezeHold(ctx context.Context, swapRequestID uuid.UUID) error {
	defer l.store.lock(ctx)()

	h, ok := l.store.st.holds[swapRequestID]
	if !ok || h.Status == entity.HoldStatusFrozen {
		return nil
	}
	if h.Status != entity.HoldStatusHeld {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}
	h.Status = entity.HoldStatusFrozen
	h.UpdatedAt = time.Now()
	return nil
}

func (l *Ledger) ReleaseHold(ctx context.Context, swapRequestID uuid.UUID) error {
	defer l.store.lock(ctx)()
	st := l.store.st

	h, ok := st.holds[swapRequestID]
	if !ok || h.Status == entity.HoldStatusReleased {
		return nil
	}
	if h.Status != entity.HoldStatusHeld {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание заморожено или закрыто")
	}
	st.balances[h.ToUserID] += h.Amount.Int64()
	h.Status = entity.HoldStatusReleased
	h.UpdatedAt = time.Now()
	return nil
}

func (l *Ledger) RefundHold(ctx context.Context, swapRequestID uuid.UUID, returnProducts bool) error {
	defer l.store.lock(ctx)()
	st := l.store.st

	h, ok := st.holds[swapRequestID]
	if !ok || h.Status == entity.HoldStatusRefunded {
		return nil
	}
	if !h.Status.IsOpen() {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}
	if returnProducts {
		if err := transferProduct(st, h.ProductID, h.FromUserID, h.ToUserID); err != nil {
			return err
		}
		if h.OfferedProductID != nil {
			if err := transferProduct(st, *h.OfferedProductID, h.ToUserID, h.FromUserID); err != nil {
				return err
			}
		}
	}
	st.balances[h.FromUserID] += h.Amount.Int64()
	h.Status = entity.HoldStatusRefunded
	h.UpdatedAt = time.Now()
	return nil
}

func (l *Ledger) SplitHold(ctx context.Context, swapRequestID uuid.UUID) error {
	defer l.store.lock(ctx)()
	st := l.store.st

	h, ok := st.holds[swapRequestID]
	if !ok || h.Status == entity.HoldStatusSplit {
		return nil
	}
	if !h.Status.IsOpen() {
		return apperror.New(apperror.ErrCodePreconditionFailed, "удержание уже закрыто")
	}
	toOwner := h.Amount.Int64() / 2
	st.balances[h.ToUserID] += toOwner
	st.balances[h.FromUserID] += h.Amount.Int64() - toOwner
	h.Status = entity.HoldStatusSplit
	h.UpdatedAt = time.Now()
	return nil
}
