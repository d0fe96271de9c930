package swap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// SetArrivedUseCase - отметка прибытия своей стороны при личной встрече.
type SetArrivedUseCase struct {
	m *mutator
}

func NewSetArrivedUseCase(d Deps) *SetArrivedUseCase {
	return &SetArrivedUseCase{m: newMutator(d)}
}

func (uc *SetArrivedUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID) (*entity.SwapRequest, error) {
	var marked bool
	s, err := uc.m.apply(ctx, "set_arrived", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		changed, err := s.SetArrived(actorID, now)
		marked = changed
		if err != nil {
			return err
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if marked && s.Status == valueobject.SwapStatusQRGenerated {
		uc.m.publish(ctx, repository.Event{
			Type:        repository.EventSwapArrivalMarked,
			AggregateID: s.ID,
			Recipients:  []uuid.UUID{s.Counterpart(actorID)},
			Status:      string(s.Status),
			ActorID:     &actorID,
			OccurredAt:  s.UpdatedAt,
		})
	}
	return s, nil
}

// ScanQRUseCase - заявитель предъявляет расшифрованный QR владельца.
type ScanQRUseCase struct {
	m *mutator
}

func NewScanQRUseCase(d Deps) *ScanQRUseCase {
	return &ScanQRUseCase{m: newMutator(d)}
}

func (uc *ScanQRUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, code string) (*entity.SwapRequest, error) {
	if err := uc.m.allowAttempt(ctx, swapID, actorID); err != nil {
		return nil, err
	}
	return uc.m.apply(ctx, "scan_qr", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.ScanQR(actorID, code, now)
	})
}

type StartInspectionUseCase struct {
	m *mutator
}

func NewStartInspectionUseCase(d Deps) *StartInspectionUseCase {
	return &StartInspectionUseCase{m: newMutator(d)}
}

func (uc *StartInspectionUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID) (*entity.SwapRequest, error) {
	return uc.m.apply(ctx, "start_inspection", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.StartInspection(actorID, now)
	})
}

// CodeResult - заявка и выпущенный код. Код в открытом виде существует только здесь.
type CodeResult struct {
	Swap *entity.SwapRequest
	Code string
}

// ApproveProductUseCase - заявитель доволен товаром и получает код для владельца.
type ApproveProductUseCase struct {
	m *mutator
}

func NewApproveProductUseCase(d Deps) *ApproveProductUseCase {
	return &ApproveProductUseCase{m: newMutator(d)}
}

func (uc *ApproveProductUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID) (*CodeResult, error) {
	code, hash, err := issueCode()
	if err != nil {
		return nil, err
	}
	s, err := uc.m.apply(ctx, "approve", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.Approve(actorID, hash, now)
	})
	if err != nil {
		return nil, err
	}
	return &CodeResult{Swap: s, Code: code}, nil
}

// VerifyCodeUseCase - владелец вводит код заявителя; обмен завершается и проводится в учёте.
type VerifyCodeUseCase struct {
	m *mutator
}

func NewVerifyCodeUseCase(d Deps) *VerifyCodeUseCase {
	return &VerifyCodeUseCase{m: newMutator(d)}
}

func (uc *VerifyCodeUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, code string) (*entity.SwapRequest, error) {
	if err := uc.m.allowAttempt(ctx, swapID, actorID); err != nil {
		return nil, err
	}
	window := uc.m.d.Policy.DisputeWindow
	return uc.m.apply(ctx, "verify_code", swapID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
		if err := s.VerifyCode(actorID, code, window, now); err != nil {
			return err
		}
		return uc.m.settle(ctx, s, now)
	})
}

// DropOffUseCase - владелец сдал товар в пункт; код уходит заявителю уведомлением.
type DropOffUseCase struct {
	m *mutator
}

func NewDropOffUseCase(d Deps) *DropOffUseCase {
	return &DropOffUseCase{m: newMutator(d)}
}

func (uc *DropOffUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID) (*entity.SwapRequest, error) {
	code, hash, err := issueCode()
	if err != nil {
		return nil, err
	}
	s, err := uc.m.apply(ctx, "drop_off", swapID, func(_ context.Context, s *entity.SwapRequest, now time.Time) error {
		return s.DropOff(actorID, hash, now)
	})
	if err != nil {
		return nil, err
	}

	uc.m.publish(ctx, repository.Event{
		Type:        repository.EventSwapCodeIssued,
		AggregateID: s.ID,
		Recipients:  []uuid.UUID{s.RequesterID},
		Status:      string(s.Status),
		ActorID:     &actorID,
		Data:        map[string]string{"code": code},
		OccurredAt:  s.UpdatedAt,
	})
	return s, nil
}

// PickUpUseCase - заявитель забрал товар из пункта и ввёл код.
type PickUpUseCase struct {
	m *mutator
}

func NewPickUpUseCase(d Deps) *PickUpUseCase {
	return &PickUpUseCase{m: newMutator(d)}
}

func (uc *PickUpUseCase) Execute(ctx context.Context, swapID, actorID uuid.UUID, code string) (*entity.SwapRequest, error) {
	if err := uc.m.allowAttempt(ctx, swapID, actorID); err != nil {
		return nil, err
	}
	window := uc.m.d.Policy.DisputeWindow
	return uc.m.apply(ctx, "pick_up", swapID, func(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
		if err := s.PickUp(actorID, code, window, now); err != nil {
			return err
		}
		return uc.m.settle(ctx, s, now)
	})
}

// settle проводит завершённый обмен в учёте в той же транзакции.
func (m *mutator) settle(ctx context.Context, s *entity.SwapRequest, now time.Time) error {
	if s.SettledAt != nil {
		return nil
	}
	if err := m.d.Ledger.Settle(ctx, s); err != nil {
		return err
	}
	s.MarkSettled(now)
	return nil
}

func issueCode() (string, string, error) {
	code, err := valueobject.NewVerificationCode()
	if err != nil {
		return "", "", apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить код")
	}
	hash, err := valueobject.HashVerificationCode(code)
	if err != nil {
		return "", "", apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось выпустить код")
	}
	return code, hash, nil
}
