package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
)

// SwapRequestRepository хранит заявки с оптимистичной блокировкой по Version.
type SwapRequestRepository interface {
	// Create сохраняет новую заявку вместе с PendingTransitions. Вторая активная
	// заявка того же заявителя на тот же товар - Conflict.
	Create(ctx context.Context, s *entity.SwapRequest) error
	// Update записывает заявку, только если в хранилище всё ещё expectedVersion.
	// Иначе возвращает apperror.ErrStaleVersion. При успехе Version увеличивается.
	Update(ctx context.Context, s *entity.SwapRequest, expectedVersion int64) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.SwapRequest, error)
	FindActiveByRequesterAndProduct(ctx context.Context, requesterID, productID uuid.UUID) (*entity.SwapRequest, error)
	List(ctx context.Context, filter SwapRequestFilter) ([]*entity.SwapRequest, int, error)
	History(ctx context.Context, id uuid.UUID) ([]entity.StatusTransition, error)

	FindDropOffsPastDeadline(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error)
	FindReleasableHolds(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error)
}

type SwapRequestFilter struct {
	UserID   uuid.UUID
	Role     entity.PartyRole
	Statuses []valueobject.SwapStatus
	Limit    int
	Offset   int
}
