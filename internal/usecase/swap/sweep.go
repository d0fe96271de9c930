package swap

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const sweepBatchSize = 100

const (
	SweepTaskDropOffExpiry = "drop_off_expiry"
	SweepTaskHoldRelease   = "hold_release"
)

type SweepResult struct {
	ExpiredDropOffs int
	ReleasedHolds   int
}

// SweepUseCase отменяет просроченные сдачи в пункт и снимает удержания после окна спора.
type SweepUseCase struct {
	m *mutator
}

func NewSweepUseCase(d Deps) *SweepUseCase {
	return &SweepUseCase{m: newMutator(d)}
}

func (uc *SweepUseCase) Execute(ctx context.Context) (*SweepResult, error) {
	var res SweepResult
	var errs []error

	expired, err := uc.expireDropOffs(ctx)
	uc.m.d.Metrics.RecordSweep(SweepTaskDropOffExpiry, expired, err)
	res.ExpiredDropOffs = expired
	if err != nil {
		errs = append(errs, err)
	}

	released, err := uc.releaseHolds(ctx)
	uc.m.d.Metrics.RecordSweep(SweepTaskHoldRelease, released, err)
	res.ReleasedHolds = released
	if err != nil {
		errs = append(errs, err)
	}

	return &res, errors.Join(errs...)
}

func (uc *SweepUseCase) expireDropOffs(ctx context.Context) (int, error) {
	candidates, err := uc.m.d.Swaps.FindDropOffsPastDeadline(ctx, uc.m.d.Clock(), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, c := range candidates {
		_, err := uc.m.apply(ctx, "expire_drop_off", c.ID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
			return s.ExpireDropOff(now)
		})
		if err != nil {
			if skippable(err) {
				continue
			}
			logger.Log.WithError(err).WithField("swap_id", c.ID).Error("Не удалось отменить просроченную сдачу в пункт")
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (uc *SweepUseCase) releaseHolds(ctx context.Context) (int, error) {
	candidates, err := uc.m.d.Swaps.FindReleasableHolds(ctx, uc.m.d.Clock(), sweepBatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, c := range candidates {
		var released bool
		_, err := uc.m.apply(ctx, "release_hold", c.ID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
			released = false
			if !s.HoldReleasable(now) {
				return errUnchanged
			}
			if err := uc.m.d.Ledger.ReleaseHold(ctx, s.ID); err != nil {
				return err
			}
			s.MarkHoldReleased(now)
			released = true
			return nil
		})
		if err != nil {
			if skippable(err) {
				continue
			}
			logger.Log.WithError(err).WithField("swap_id", c.ID).Error("Не удалось снять удержание")
			return processed, err
		}
		if released {
			processed++
		}
	}
	if processed > 0 {
		logger.Log.WithFields(logrus.Fields{"released": processed}).Info("Удержания сняты")
	}
	return processed, nil
}

// skippable - состояние успело измениться с момента выборки кандидатов.
func skippable(err error) bool {
	return apperror.IsInvalidTransition(err) || apperror.IsPreconditionFailed(err) || errors.Is(err, apperror.ErrStaleVersion)
}
