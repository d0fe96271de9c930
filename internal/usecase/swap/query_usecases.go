package swap

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GetSwapRequestUseCase - карточка заявки, только для сторон.
type GetSwapRequestUseCase struct {
	swaps repository.SwapRequestRepository
}

func NewGetSwapRequestUseCase(swaps repository.SwapRequestRepository) *GetSwapRequestUseCase {
	return &GetSwapRequestUseCase{swaps: swaps}
}

func (uc *GetSwapRequestUseCase) Execute(ctx context.Context, swapID, userID uuid.UUID) (*entity.SwapRequest, error) {
	s, err := uc.swaps.FindByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !s.IsParty(userID) {
		return nil, apperror.ErrForbidden
	}
	return s, nil
}

type ListSwapRequestsInput struct {
	UserID   uuid.UUID
	Role     entity.PartyRole
	Statuses []valueobject.SwapStatus
	Limit    int
	Offset   int
}

type ListSwapRequestsResult struct {
	Items []*entity.SwapRequest
	Total int
}

type ListMySwapRequestsUseCase struct {
	swaps repository.SwapRequestRepository
}

func NewListMySwapRequestsUseCase(swaps repository.SwapRequestRepository) *ListMySwapRequestsUseCase {
	return &ListMySwapRequestsUseCase{swaps: swaps}
}

func (uc *ListMySwapRequestsUseCase) Execute(ctx context.Context, in ListSwapRequestsInput) (*ListSwapRequestsResult, error) {
	switch in.Role {
	case "", entity.RoleRequester, entity.RoleOwner:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "роль должна быть requester или owner")
	}
	for _, st := range in.Statuses {
		if !st.IsValid() {
			return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестный статус: %s", st)
		}
	}
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	if in.Limit > maxListLimit {
		in.Limit = maxListLimit
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	items, total, err := uc.swaps.List(ctx, repository.SwapRequestFilter{
		UserID:   in.UserID,
		Role:     in.Role,
		Statuses: in.Statuses,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &ListSwapRequestsResult{Items: items, Total: total}, nil
}

// HistoryUseCase - журнал переходов статуса заявки.
type HistoryUseCase struct {
	swaps repository.SwapRequestRepository
}

func NewHistoryUseCase(swaps repository.SwapRequestRepository) *HistoryUseCase {
	return &HistoryUseCase{swaps: swaps}
}

func (uc *HistoryUseCase) Execute(ctx context.Context, swapID, userID uuid.UUID) ([]entity.StatusTransition, error) {
	s, err := uc.swaps.FindByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !s.IsParty(userID) {
		return nil, apperror.ErrForbidden
	}
	return uc.swaps.History(ctx, swapID)
}
