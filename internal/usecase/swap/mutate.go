package swap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// errUnchanged - операция идемпотентна и ничего не изменила, записывать нечего.
var errUnchanged = errors.New("swap: без изменений")

type mutateFunc func(ctx context.Context, s *entity.SwapRequest, now time.Time) error

type mutator struct {
	d Deps
}

func newMutator(d Deps) *mutator {
	return &mutator{d: d.withDefaults()}
}

// apply читает заявку, применяет fn и пишет её с проверкой версии в одной транзакции.
// После конфликта версий fn повторяется на свежем состоянии, поэтому проверки
// внутри fn всегда видят актуальные флаги и статус.
func (m *mutator) apply(ctx context.Context, op string, id uuid.UUID, fn mutateFunc) (*entity.SwapRequest, error) {
	var (
		result    *entity.SwapRequest
		committed []entity.StatusTransition
	)

	for attempt := 0; ; attempt++ {
		now := m.d.Clock()
		result, committed = nil, nil

		err := m.d.Tx.WithinTx(ctx, func(ctx context.Context) error {
			s, err := m.d.Swaps.FindByID(ctx, id)
			if err != nil {
				return err
			}
			version := s.Version
			if err := fn(ctx, s, now); err != nil {
				if errors.Is(err, errUnchanged) {
					result = s
					return nil
				}
				return err
			}
			transitions := append([]entity.StatusTransition(nil), s.PendingTransitions...)
			if err := m.d.Swaps.Update(ctx, s, version); err != nil {
				return err
			}
			result, committed = s, transitions
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, apperror.ErrStaleVersion) && attempt < m.d.Policy.MaxRetries {
			m.d.Metrics.RecordConflictRetry("swap_request")
			logger.Log.WithFields(logrus.Fields{
				"swap_id":   id,
				"operation": op,
				"attempt":   attempt + 1,
			}).Debug("Конфликт версий заявки, повторяем")
			continue
		}
		m.d.Metrics.RecordRejected(op, string(apperror.CodeOf(err)))
		return nil, err
	}

	m.afterCommit(ctx, result, committed)
	return result, nil
}

// afterCommit пишет журнал, метрики и уведомления по зафиксированным переходам.
func (m *mutator) afterCommit(ctx context.Context, s *entity.SwapRequest, transitions []entity.StatusTransition) {
	for _, tr := range transitions {
		fields := logrus.Fields{
			"swap_id": s.ID,
			"from":    tr.From,
			"to":      tr.To,
		}
		if tr.ActorID != nil {
			fields["actor_id"] = *tr.ActorID
		}
		logger.Log.WithFields(fields).Info("Статус заявки изменён")
		m.d.Metrics.RecordTransition(string(tr.From), string(tr.To), string(s.DeliveryType))

		m.publish(ctx, repository.Event{
			Type:        repository.EventSwapStatusChanged,
			AggregateID: s.ID,
			Recipients:  []uuid.UUID{s.RequesterID, s.OwnerID},
			Status:      string(tr.To),
			ActorID:     tr.ActorID,
			Data:        map[string]string{"from": string(tr.From)},
			OccurredAt:  tr.At,
		})
	}
}

func (m *mutator) publish(ctx context.Context, event repository.Event) {
	if m.d.Events == nil {
		return
	}
	if err := m.d.Events.Publish(ctx, event); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"event":        event.Type,
			"aggregate_id": event.AggregateID,
		}).Warn("Не удалось опубликовать событие")
	}
}

// allowAttempt проверяет лимит попыток ввода секрета для пары (пользователь, заявка).
func (m *mutator) allowAttempt(ctx context.Context, swapID, userID uuid.UUID) error {
	if m.d.Limiter == nil {
		return nil
	}
	ok, err := m.d.Limiter.Allow(ctx, "secret:"+swapID.String()+":"+userID.String())
	if err != nil {
		logger.Log.WithError(err).WithField("swap_id", swapID).Warn("Лимитер попыток недоступен")
		return nil
	}
	if !ok {
		m.d.Metrics.RecordRejected("secret_attempt", string(apperror.ErrCodeTooManyRequests))
		return apperror.ErrTooManyAttempts
	}
	return nil
}
