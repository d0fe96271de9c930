package swap

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/validation"
)

type CreateSwapRequestInput struct {
	RequesterID      uuid.UUID
	ProductID        uuid.UUID
	OfferedProductID *uuid.UUID
	CurrencyAmount   *int64
	Message          string
}

type CreateSwapRequestUseCase struct {
	m *mutator
}

func NewCreateSwapRequestUseCase(d Deps) *CreateSwapRequestUseCase {
	return &CreateSwapRequestUseCase{m: newMutator(d)}
}

func (uc *CreateSwapRequestUseCase) Execute(ctx context.Context, in CreateSwapRequestInput) (*entity.SwapRequest, error) {
	d := uc.m.d

	if err := validation.ValidateSwapMessage(in.Message); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	product, err := d.Products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if err := product.EnsureAvailable(); err != nil {
		return nil, err
	}
	if product.OwnerID == in.RequesterID {
		return nil, apperror.New(apperror.ErrCodeValidation, "нельзя предложить обмен на собственный товар")
	}

	offer, err := uc.buildOffer(ctx, in, product)
	if err != nil {
		return nil, err
	}

	existing, err := d.Swaps.FindActiveByRequesterAndProduct(ctx, in.RequesterID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "у вас уже есть активная заявка на этот товар").
			WithDetail(apperror.DetailCurrentStatus, string(existing.Status))
	}

	s, err := entity.NewSwapRequest(in.RequesterID, product.OwnerID, product.ID, offer, in.Message, d.Clock())
	if err != nil {
		return nil, err
	}
	transitions := append([]entity.StatusTransition(nil), s.PendingTransitions...)

	if err := d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return d.Swaps.Create(ctx, s)
	}); err != nil {
		d.Metrics.RecordRejected("create", string(apperror.CodeOf(err)))
		return nil, err
	}

	uc.m.afterCommit(ctx, s, transitions)
	return s, nil
}

// buildOffer: без товара и суммы предлагается оценка товара из каталога.
func (uc *CreateSwapRequestUseCase) buildOffer(ctx context.Context, in CreateSwapRequestInput, product *entity.Product) (entity.Offer, error) {
	if in.OfferedProductID != nil && in.CurrencyAmount != nil {
		return entity.Offer{}, apperror.New(apperror.ErrCodeValidation, "укажите либо товар, либо сумму, но не оба")
	}

	if in.OfferedProductID != nil {
		offered, err := uc.m.d.Products.FindByID(ctx, *in.OfferedProductID)
		if err != nil {
			return entity.Offer{}, err
		}
		if offered.OwnerID != in.RequesterID {
			return entity.Offer{}, apperror.New(apperror.ErrCodeForbidden, "можно предложить только свой товар")
		}
		if err := offered.EnsureAvailable(); err != nil {
			return entity.Offer{}, err
		}
		return entity.Offer{OfferedProductID: &offered.ID}, nil
	}

	amount := product.Value.Int64()
	if in.CurrencyAmount != nil {
		amount = *in.CurrencyAmount
	}
	v, err := valueobject.NewValor(amount)
	if err != nil {
		return entity.Offer{}, err
	}
	return entity.Offer{CurrencyAmount: &v}, nil
}
