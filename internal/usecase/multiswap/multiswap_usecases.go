package multiswap

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
	"github.com/ignatzorin/barter-backend/internal/validation"
)

const (
	DefaultTTL        = 48 * time.Hour
	defaultMaxRetries = 3
	expireBatchSize   = 100

	SweepTaskExpiry = "multiswap_expiry"
)

// Deps - зависимости сценариев многостороннего обмена. Events и Metrics необязательны.
type Deps struct {
	MultiSwaps repository.MultiSwapRepository
	Engine     *chain.Engine
	Tx         repository.Transactor
	Events     repository.EventPublisher
	Metrics    *metrics.SwapMetrics
	Clock      func() time.Time
	TTL        time.Duration
	MaxRetries int
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.TTL <= 0 {
		d.TTL = DefaultTTL
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = defaultMaxRetries
	}
	return d
}

type service struct {
	d Deps
}

// mutate перечитывает цепочку и повторяет fn после конфликта версий, чтобы
// подсчёт подтверждений всегда шёл по свежему состоянию.
func (s *service) mutate(ctx context.Context, op string, id uuid.UUID, fn func(m *entity.MultiSwap, now time.Time) (bool, error)) (*entity.MultiSwap, bool, error) {
	for attempt := 0; ; attempt++ {
		var (
			result  *entity.MultiSwap
			changed bool
		)
		now := s.d.Clock()
		err := s.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
			m, err := s.d.MultiSwaps.FindByID(ctx, id)
			if err != nil {
				return err
			}
			version := m.Version
			ok, err := fn(m, now)
			if err != nil {
				return err
			}
			result, changed = m, ok
			if !ok {
				return nil
			}
			return s.d.MultiSwaps.Update(ctx, m, version)
		})
		if err == nil {
			return result, changed, nil
		}
		if errors.Is(err, apperror.ErrStaleVersion) && attempt < s.d.MaxRetries {
			s.d.Metrics.RecordConflictRetry("multi_swap")
			logger.Log.WithFields(logrus.Fields{
				"multi_swap_id": id,
				"operation":     op,
				"attempt":       attempt + 1,
			}).Debug("Конфликт версий цепочки, повторяем")
			continue
		}
		s.d.Metrics.RecordRejected("multiswap_"+op, string(apperror.CodeOf(err)))
		return nil, false, err
	}
}

func (s *service) publish(ctx context.Context, event repository.Event) {
	if s.d.Events == nil {
		return
	}
	if err := s.d.Events.Publish(ctx, event); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"event":        event.Type,
			"aggregate_id": event.AggregateID,
		}).Warn("Не удалось опубликовать событие")
	}
}

func (s *service) statusChanged(ctx context.Context, m *entity.MultiSwap, actor *uuid.UUID) {
	s.d.Metrics.RecordMultiSwapStatus(string(m.Status))
	fields := logrus.Fields{"multi_swap_id": m.ID, "status": m.Status}
	if actor != nil {
		fields["actor_id"] = *actor
	}
	logger.Log.WithFields(fields).Info("Статус цепочки изменён")

	s.publish(ctx, repository.Event{
		Type:        repository.EventMultiSwapStatus,
		AggregateID: m.ID,
		Recipients:  participantIDs(m),
		Status:      string(m.Status),
		ActorID:     actor,
		OccurredAt:  m.UpdatedAt,
	})
}

func participantIDs(m *entity.MultiSwap) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

type CreateMultiSwapInput struct {
	InitiatorID uuid.UUID
	Steps       []chain.Step
}

// CreateMultiSwapUseCase переводит найденную цепочку в исполнение.
type CreateMultiSwapUseCase struct {
	s *service
}

func NewCreateMultiSwapUseCase(d Deps) *CreateMultiSwapUseCase {
	return &CreateMultiSwapUseCase{s: &service{d: d.withDefaults()}}
}

func (uc *CreateMultiSwapUseCase) Execute(ctx context.Context, in CreateMultiSwapInput) (*entity.MultiSwap, error) {
	d := uc.s.d

	c, err := d.Engine.Build(ctx, in.Steps)
	if err != nil {
		return nil, err
	}
	m, err := entity.NewMultiSwap(in.InitiatorID, c, d.TTL, d.Clock())
	if err != nil {
		return nil, err
	}
	if err := d.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return d.MultiSwaps.Create(ctx, m)
	}); err != nil {
		d.Metrics.RecordRejected("multiswap_create", string(apperror.CodeOf(err)))
		return nil, err
	}

	d.Metrics.RecordMultiSwapStatus(string(m.Status))
	logger.Log.WithFields(logrus.Fields{
		"multi_swap_id": m.ID,
		"initiator_id":  in.InitiatorID,
		"participants":  len(m.Participants),
		"total_score":   m.TotalScore,
	}).Info("Цепочка обмена создана")

	uc.s.publish(ctx, repository.Event{
		Type:        repository.EventMultiSwapCreated,
		AggregateID: m.ID,
		Recipients:  participantIDs(m),
		Status:      string(m.Status),
		ActorID:     &in.InitiatorID,
		Data:        map[string]string{"expires_at": m.ExpiresAt.Format(time.RFC3339)},
		OccurredAt:  m.CreatedAt,
	})
	return m, nil
}

// ConfirmMultiSwapUseCase - подтверждение участника; последнее переводит цепочку в confirmed.
type ConfirmMultiSwapUseCase struct {
	s *service
}

func NewConfirmMultiSwapUseCase(d Deps) *ConfirmMultiSwapUseCase {
	return &ConfirmMultiSwapUseCase{s: &service{d: d.withDefaults()}}
}

func (uc *ConfirmMultiSwapUseCase) Execute(ctx context.Context, id, userID uuid.UUID) (*entity.MultiSwap, error) {
	m, changed, err := uc.s.mutate(ctx, "confirm", id, func(m *entity.MultiSwap, now time.Time) (bool, error) {
		return m.Confirm(userID, now)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}

	uc.s.publish(ctx, repository.Event{
		Type:        repository.EventMultiSwapConfirmed,
		AggregateID: m.ID,
		Recipients:  participantIDs(m),
		Status:      string(m.Status),
		ActorID:     &userID,
		Data: map[string]string{
			"confirmed": strconv.Itoa(m.ConfirmedCount()),
			"total":     strconv.Itoa(len(m.Participants)),
		},
		OccurredAt: m.UpdatedAt,
	})
	if m.Status == valueobject.MultiSwapStatusConfirmed {
		uc.s.statusChanged(ctx, m, &userID)
	}
	return m, nil
}

// RejectMultiSwapUseCase - отказ одного участника отменяет цепочку для всех.
type RejectMultiSwapUseCase struct {
	s *service
}

func NewRejectMultiSwapUseCase(d Deps) *RejectMultiSwapUseCase {
	return &RejectMultiSwapUseCase{s: &service{d: d.withDefaults()}}
}

func (uc *RejectMultiSwapUseCase) Execute(ctx context.Context, id, userID uuid.UUID, reason string) (*entity.MultiSwap, error) {
	if err := validation.ValidateReason(&reason, validation.MaxMultiSwapReasonLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	m, _, err := uc.s.mutate(ctx, "reject", id, func(m *entity.MultiSwap, now time.Time) (bool, error) {
		if err := m.Reject(userID, reason, now); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	uc.s.statusChanged(ctx, m, &userID)
	return m, nil
}

// GetMultiSwapUseCase - цепочка видна только участникам.
type GetMultiSwapUseCase struct {
	repo repository.MultiSwapRepository
}

func NewGetMultiSwapUseCase(repo repository.MultiSwapRepository) *GetMultiSwapUseCase {
	return &GetMultiSwapUseCase{repo: repo}
}

func (uc *GetMultiSwapUseCase) Execute(ctx context.Context, id, userID uuid.UUID) (*entity.MultiSwap, error) {
	m, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.IsParticipant(userID) {
		return nil, apperror.ErrForbidden
	}
	return m, nil
}

type ListMyMultiSwapsUseCase struct {
	repo repository.MultiSwapRepository
}

func NewListMyMultiSwapsUseCase(repo repository.MultiSwapRepository) *ListMyMultiSwapsUseCase {
	return &ListMyMultiSwapsUseCase{repo: repo}
}

func (uc *ListMyMultiSwapsUseCase) Execute(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.MultiSwap, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.repo.ListByUser(ctx, userID, limit, offset)
}

// ExpireMultiSwapsUseCase переводит просроченные ожидающие цепочки в expired.
type ExpireMultiSwapsUseCase struct {
	s *service
}

func NewExpireMultiSwapsUseCase(d Deps) *ExpireMultiSwapsUseCase {
	return &ExpireMultiSwapsUseCase{s: &service{d: d.withDefaults()}}
}

func (uc *ExpireMultiSwapsUseCase) Execute(ctx context.Context) (int, error) {
	processed, err := uc.expire(ctx)
	uc.s.d.Metrics.RecordSweep(SweepTaskExpiry, processed, err)
	return processed, err
}

func (uc *ExpireMultiSwapsUseCase) expire(ctx context.Context) (int, error) {
	candidates, err := uc.s.d.MultiSwaps.FindExpiredPending(ctx, uc.s.d.Clock(), expireBatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, c := range candidates {
		m, changed, err := uc.s.mutate(ctx, "expire", c.ID, func(m *entity.MultiSwap, now time.Time) (bool, error) {
			if m.Status != valueobject.MultiSwapStatusPending {
				return false, nil
			}
			if err := m.Expire(now); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			logger.Log.WithError(err).WithField("multi_swap_id", c.ID).Error("Не удалось закрыть просроченную цепочку")
			return processed, err
		}
		if changed {
			processed++
			uc.s.statusChanged(ctx, m, nil)
		}
	}
	return processed, nil
}
