package swap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type SubmitDisputeInput struct {
	SwapID      uuid.UUID
	ReporterID  uuid.UUID
	Type        valueobject.DisputeType
	Description string
	Photos      []string
}

type DisputeResult struct {
	Swap    *entity.SwapRequest
	Dispute *entity.Dispute
}

// SubmitDisputeUseCase открывает спор и замораживает удержание по заявке.
type SubmitDisputeUseCase struct {
	m *mutator
}

func NewSubmitDisputeUseCase(d Deps) *SubmitDisputeUseCase {
	return &SubmitDisputeUseCase{m: newMutator(d)}
}

func (uc *SubmitDisputeUseCase) Execute(ctx context.Context, in SubmitDisputeInput) (*DisputeResult, error) {
	dispute, err := entity.NewDispute(in.SwapID, in.ReporterID, in.Type, in.Description, in.Photos,
		uc.m.d.Policy.DisputeMinDescription, uc.m.d.Clock())
	if err != nil {
		return nil, err
	}

	s, err := uc.m.apply(ctx, "submit_dispute", in.SwapID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
		previous, err := uc.m.d.Disputes.ListBySwapRequest(ctx, s.ID)
		if err != nil {
			return err
		}
		if len(previous) > 0 {
			return apperror.New(apperror.ErrCodePreconditionFailed, "спор по этой заявке уже подавался").
				WithDetail(apperror.DetailCurrentStatus, string(s.Status))
		}
		if err := s.OpenDispute(in.ReporterID, now); err != nil {
			return err
		}
		dispute.CreatedAt, dispute.UpdatedAt = now, now
		if err := uc.m.d.Disputes.Create(ctx, dispute); err != nil {
			return err
		}
		return uc.m.d.Ledger.FreezeHold(ctx, s.ID)
	})
	if err != nil {
		return nil, err
	}

	uc.m.publish(ctx, repository.Event{
		Type:        repository.EventDisputeOpened,
		AggregateID: s.ID,
		Recipients:  []uuid.UUID{s.Counterpart(in.ReporterID)},
		Status:      string(s.Status),
		ActorID:     &in.ReporterID,
		Data:        map[string]string{"dispute_id": dispute.ID.String(), "type": string(dispute.Type)},
		OccurredAt:  dispute.CreatedAt,
	})
	return &DisputeResult{Swap: s, Dispute: dispute}, nil
}

type ResolveDisputeInput struct {
	DisputeID uuid.UUID
	AdminID   uuid.UUID
	Outcome   valueobject.ResolutionOutcome
	Note      string
}

// ResolveDisputeUseCase записывает решение арбитра и закрывает удержание по исходу.
type ResolveDisputeUseCase struct {
	m *mutator
}

func NewResolveDisputeUseCase(d Deps) *ResolveDisputeUseCase {
	return &ResolveDisputeUseCase{m: newMutator(d)}
}

func (uc *ResolveDisputeUseCase) Execute(ctx context.Context, in ResolveDisputeInput) (*DisputeResult, error) {
	if !in.Outcome.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "некорректный исход спора")
	}
	found, err := uc.m.d.Disputes.FindByID(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}

	var dispute *entity.Dispute
	s, err := uc.m.apply(ctx, "resolve_dispute", found.SwapRequestID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
		d, err := uc.m.d.Disputes.FindByID(ctx, in.DisputeID)
		if err != nil {
			return err
		}
		if err := d.Resolve(in.AdminID, in.Outcome, in.Note, now); err != nil {
			return err
		}
		if err := s.ResolveDispute(in.AdminID, in.Outcome, now); err != nil {
			return err
		}
		if err := uc.settleOutcome(ctx, s, in.Outcome, now); err != nil {
			return err
		}
		if err := uc.m.d.Disputes.Update(ctx, d); err != nil {
			return err
		}
		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"swap_id":    s.ID,
		"dispute_id": dispute.ID,
		"outcome":    in.Outcome,
		"admin_id":   in.AdminID,
	}).Info("Спор разрешён")

	uc.m.publish(ctx, repository.Event{
		Type:        repository.EventDisputeResolved,
		AggregateID: s.ID,
		Recipients:  []uuid.UUID{s.RequesterID, s.OwnerID},
		Status:      string(s.Status),
		ActorID:     &in.AdminID,
		Data:        map[string]string{"dispute_id": dispute.ID.String(), "outcome": string(in.Outcome)},
		OccurredAt:  s.UpdatedAt,
	})
	return &DisputeResult{Swap: s, Dispute: dispute}, nil
}

// settleOutcome закрывает удержание. Спор из осмотра до расчёта не доходил,
// заявка уже отменена без движения по учёту.
func (uc *ResolveDisputeUseCase) settleOutcome(ctx context.Context, s *entity.SwapRequest, outcome valueobject.ResolutionOutcome, now time.Time) error {
	if s.SettledAt == nil {
		return nil
	}
	var err error
	switch outcome {
	case valueobject.ResolutionEqualSplit:
		err = uc.m.d.Ledger.SplitHold(ctx, s.ID)
	case valueobject.ResolutionFavorRequester:
		err = uc.m.d.Ledger.RefundHold(ctx, s.ID, false)
	case valueobject.ResolutionFullRefund, valueobject.ResolutionNoFault:
		err = uc.m.d.Ledger.RefundHold(ctx, s.ID, true)
	}
	if err != nil {
		return err
	}
	s.MarkHoldReleased(now)
	return nil
}

// ListDisputesUseCase - споры по заявке, видны только сторонам.
type ListDisputesUseCase struct {
	d Deps
}

func NewListDisputesUseCase(d Deps) *ListDisputesUseCase {
	return &ListDisputesUseCase{d: d.withDefaults()}
}

func (uc *ListDisputesUseCase) Execute(ctx context.Context, swapID, userID uuid.UUID, isAdmin bool) ([]*entity.Dispute, error) {
	s, err := uc.d.Swaps.FindByID(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !s.IsParty(userID) {
		return nil, apperror.ErrForbidden
	}
	return uc.d.Disputes.ListBySwapRequest(ctx, swapID)
}
