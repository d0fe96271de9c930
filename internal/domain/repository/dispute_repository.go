package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

type DisputeRepository interface {
	Create(ctx context.Context, d *entity.Dispute) error
	Update(ctx context.Context, d *entity.Dispute) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error)
	// FindOpenBySwapRequest возвращает nil, nil, если открытого спора нет.
	FindOpenBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) (*entity.Dispute, error)
	ListBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) ([]*entity.Dispute, error)
}
