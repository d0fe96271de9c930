package swap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/validation"
)

// UpdateRequestStatusUseCase - ответ на заявку: accepted или rejected.
type UpdateRequestStatusUseCase struct {
	m *mutator
}

func NewUpdateRequestStatusUseCase(d Deps) *UpdateRequestStatusUseCase {
	return &UpdateRequestStatusUseCase{m: newMutator(d)}
}

func (uc *UpdateRequestStatusUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, status valueobject.SwapStatus) (*entity.SwapRequest, error) {
	switch status {
	case valueobject.SwapStatusAccepted:
		return uc.m.apply(ctx, "accept", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
			return s.Accept(actorID, now)
		})
	case valueobject.SwapStatusRejected:
		return uc.m.apply(ctx, "reject", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
			return s.Reject(actorID, now)
		})
	}
	return nil, apperror.New(apperror.ErrCodeValidation, "статус должен быть accepted или rejected")
}

type ProposeOfferInput struct {
	SwapID           uuid.UUID
	ActorID          uuid.UUID
	OfferedProductID *uuid.UUID
	CurrencyAmount   *int64
}

// ProposeOfferUseCase - встречное предложение товара или суммы до принятия.
type ProposeOfferUseCase struct {
	m *mutator
}

func NewProposeOfferUseCase(d Deps) *ProposeOfferUseCase {
	return &ProposeOfferUseCase{m: newMutator(d)}
}

func (uc *ProposeOfferUseCase) Execute(ctx context.Context, in ProposeOfferInput) (*entity.SwapRequest, error) {
	var offer entity.Offer
	if in.CurrencyAmount != nil {
		v, err := valueobject.NewValor(*in.CurrencyAmount)
		if err != nil {
			return nil, err
		}
		offer.CurrencyAmount = &v
	}
	offer.OfferedProductID = in.OfferedProductID

	if in.OfferedProductID != nil {
		product, err := uc.m.d.Products.FindByID(ctx, *in.OfferedProductID)
		if err != nil {
			return nil, err
		}
		if err := product.EnsureAvailable(); err != nil {
			return nil, err
		}
	}

	return uc.m.apply(ctx, "propose_offer", in.SwapID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
		if in.OfferedProductID != nil {
			product, err := uc.m.d.Products.FindByID(ctx, *in.OfferedProductID)
			if err != nil {
				return err
			}
			// предлагаемый товар должен принадлежать заявителю
			if product.OwnerID != s.RequesterID {
				return apperror.New(apperror.ErrCodeValidation, "предложить можно только товар заявителя")
			}
		}
		return s.ProposeOffer(in.ActorID, offer, now)
	})
}

// CancelSwapRequestUseCase - отмена стороной до начала физической передачи.
type CancelSwapRequestUseCase struct {
	m *mutator
}

func NewCancelSwapRequestUseCase(d Deps) *CancelSwapRequestUseCase {
	return &CancelSwapRequestUseCase{m: newMutator(d)}
}

func (uc *CancelSwapRequestUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, reason string) (*entity.SwapRequest, error) {
	if err := validation.ValidateReason(&reason, validation.MaxCancelReasonLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	return uc.m.apply(ctx, "cancel", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.Cancel(actorID, reason, now)
	})
}
