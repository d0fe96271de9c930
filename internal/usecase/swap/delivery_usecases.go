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

type ProposeDeliveryInput struct {
	SwapID          uuid.UUID
	ActorID         uuid.UUID
	Type            valueobject.DeliveryType
	DeliveryPointID *uuid.UUID
	CustomLocation  *string
	At              *time.Time
}

// ProposeDeliveryUseCase - предложение или встречное предложение способа передачи.
type ProposeDeliveryUseCase struct {
	m *mutator
}

func NewProposeDeliveryUseCase(d Deps) *ProposeDeliveryUseCase {
	return &ProposeDeliveryUseCase{m: newMutator(d)}
}

func (uc *ProposeDeliveryUseCase) Execute(ctx context.Context, in ProposeDeliveryInput) (*entity.SwapRequest, error) {
	if err := validation.ValidateCustomLocation(in.CustomLocation); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	proposal := entity.DeliveryProposal{
		Type:            in.Type,
		DeliveryPointID: in.DeliveryPointID,
		CustomLocation:  in.CustomLocation,
		At:              in.At,
	}
	return uc.m.apply(ctx, "propose_delivery", in.SwapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.ProposeDelivery(in.ActorID, proposal, now)
	})
}

// AcceptDeliveryUseCase - согласие с предложением другой стороны; выпускает QR.
type AcceptDeliveryUseCase struct {
	m *mutator
}

func NewAcceptDeliveryUseCase(d Deps) *AcceptDeliveryUseCase {
	return &AcceptDeliveryUseCase{m: newMutator(d)}
}

func (uc *AcceptDeliveryUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID) (*entity.SwapRequest, error) {
	token, err := valueobject.NewQRToken()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить QR-код")
	}
	days := uc.m.d.Policy.DropOffBusinessDays
	return uc.m.apply(ctx, "accept_delivery", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.AcceptDelivery(actorID, token, days, now)
	})
}
