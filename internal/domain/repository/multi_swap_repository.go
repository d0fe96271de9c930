package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

type MultiSwapRepository interface {
	// Create - вторая ожидающая цепочка с тем же ChainKey даёт Conflict.
	Create(ctx context.Context, m *entity.MultiSwap) error
	// Update пересчитывает подтверждения атомарно: запись проходит только при expectedVersion.
	Update(ctx context.Context, m *entity.MultiSwap, expectedVersion int64) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.MultiSwap, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.MultiSwap, int, error)
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.MultiSwap, error)
}
