package swap

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/validation"
)

// AddEvidenceUseCase дописывает ссылки на снимки к набору этапа.
type AddEvidenceUseCase struct {
	m *mutator
}

func NewAddEvidenceUseCase(d Deps) *AddEvidenceUseCase {
	return &AddEvidenceUseCase{m: newMutator(d)}
}

func (uc *AddEvidenceUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, step valueobject.EvidenceStep, photos []string) (*entity.SwapRequest, error) {
	if err := validation.ValidatePhotoRefs(photos); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	s, err := uc.m.apply(ctx, "add_evidence", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.AddEvidence(actorID, step, photos, now)
	})
	if err != nil {
		return nil, err
	}

	uc.m.publish(ctx, repository.Event{
		Type:        repository.EventSwapEvidenceAdded,
		AggregateID: s.ID,
		Recipients:  []uuid.UUID{s.Counterpart(actorID)},
		Status:      string(s.Status),
		ActorID:     &actorID,
		Data:        map[string]string{"step": string(step), "count": strconv.Itoa(len(photos))},
		OccurredAt:  s.UpdatedAt,
	})
	return s, nil
}
