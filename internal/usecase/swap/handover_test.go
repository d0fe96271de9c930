package swap_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
)

func TestFaceToFaceHandover_EndToEnd(t *testing.T) {
	f := newFixture(t)
	start := f.clock.Now()

	s, code := f.approved(t)
	assert.Equal(t, valueobject.SwapStatusCodeSent, s.Status)
	assert.True(t, len(s.QRCode) > len(valueobject.QRPrefix))
	assert.Nil(t, s.DropOffDeadline)
	assert.Len(t, code, valueobject.VerificationCodeDigits)
	assert.NotEqual(t, code, s.VerificationCodeHash)

	// verifyCode с кодом, отличающимся на одну цифру
	_, err := swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, wrongCode(code))
	require.Error(t, err)
	assert.True(t, apperror.IsPreconditionFailed(err))
	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCodeSent, stored.Status)

	s, err = swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
	require.NotNil(t, s.DisputeWindowEndsAt)
	assert.Equal(t, start.Add(24*time.Hour), *s.DisputeWindowEndsAt)
	assert.NotNil(t, s.SettledAt)

	_, err = swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	assert.True(t, apperror.IsPreconditionFailed(err), "код одноразовый")

	history, err := swap.NewHistoryUseCase(f.deps.Swaps).Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)
	assert.Equal(t, []valueobject.SwapStatus{
		valueobject.SwapStatusPending,
		valueobject.SwapStatusAccepted,
		valueobject.SwapStatusDeliveryProposed,
		valueobject.SwapStatusQRGenerated,
		valueobject.SwapStatusArrived,
		valueobject.SwapStatusQRScanned,
		valueobject.SwapStatusInspection,
		valueobject.SwapStatusCodeSent,
		valueobject.SwapStatusCompleted,
	}, statuses(history))

	// расчёт: сумма ушла в удержание, товар сменил владельца
	assert.Equal(t, int64(400), f.store.Ledger().Balance(f.ctx, f.requester))
	hold := f.store.Ledger().Hold(f.ctx, s.ID)
	require.NotNil(t, hold)
	assert.Equal(t, entity.HoldStatusHeld, hold.Status)
	product, err := f.store.Products().FindByID(f.ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, f.requester, product.OwnerID)
}

func TestScanQR_SingleUse(t *testing.T) {
	f := newFixture(t)
	s := f.inInspection(t)

	_, err := swap.NewScanQRUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, s.QRCode)
	require.Error(t, err)
	assert.True(t, apperror.IsPreconditionFailed(err))
}

func TestScanQR_WrongToken(t *testing.T) {
	f := newFixture(t)
	s := f.agreed(t, valueobject.DeliveryTypeFaceToFace)
	arrive := swap.NewSetArrivedUseCase(f.deps)

	_, err := arrive.Execute(f.ctx, s.ID, f.owner)
	assert.True(t, apperror.IsPreconditionFailed(err), "владелец без фото упаковки")

	_, err = swap.NewAddEvidenceUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.EvidencePackaging, []string{"p.jpg"})
	require.NoError(t, err)
	_, err = arrive.Execute(f.ctx, s.ID, f.owner)
	require.NoError(t, err)
	_, err = arrive.Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)

	_, err = swap.NewScanQRUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, valueobject.QRPrefix+"forged")
	assert.True(t, apperror.IsPreconditionFailed(err))

	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusArrived, stored.Status)
	assert.Nil(t, stored.QRUsedAt)
}

func TestDropOffHandover_EndToEnd(t *testing.T) {
	f := newFixture(t)

	s := f.agreed(t, valueobject.DeliveryTypeDropOff)
	require.NotNil(t, s.DropOffDeadline)
	// среда 14.10 + 3 рабочих дня = понедельник 19.10
	assert.Equal(t, time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC), *s.DropOffDeadline)

	_, err := swap.NewDropOffUseCase(f.deps).Execute(f.ctx, s.ID, f.owner)
	assert.True(t, apperror.IsPreconditionFailed(err), "без фото упаковки")

	_, err = swap.NewAddEvidenceUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.EvidencePackaging, []string{"pack.jpg"})
	require.NoError(t, err)

	s, err = swap.NewDropOffUseCase(f.deps).Execute(f.ctx, s.ID, f.owner)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusDroppedOff, s.Status)
	assert.True(t, s.PackagingEvidence.IsSealed())

	issued := f.events.ofType(repository.EventSwapCodeIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, []uuid.UUID{f.requester}, issued[0].Recipients)
	code := issued[0].Data["code"]
	require.Len(t, code, valueobject.VerificationCodeDigits)

	_, err = swap.NewPickUpUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	assert.True(t, apperror.IsForbidden(err) || apperror.IsInvalidTransition(err))

	s, err = swap.NewPickUpUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, code)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
	assert.NotNil(t, s.PickedUpAt)
	assert.NotNil(t, s.DisputeWindowEndsAt)

	history, err := f.store.SwapRequests().History(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []valueobject.SwapStatus{
		valueobject.SwapStatusPending,
		valueobject.SwapStatusAccepted,
		valueobject.SwapStatusDeliveryProposed,
		valueobject.SwapStatusQRGenerated,
		valueobject.SwapStatusDroppedOff,
		valueobject.SwapStatusCompleted,
	}, statuses(history))

	// код одноразовый: повтор после завершения отклоняется
	_, err = swap.NewPickUpUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, code)
	require.Error(t, err)
	assert.True(t, apperror.IsPreconditionFailed(err))
	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCompleted, stored.Status)
	assert.Equal(t, s.Version, stored.Version)
}

func TestSetArrived_ConcurrentCallsTransitionOnce(t *testing.T) {
	f := newFixture(t)
	s := f.agreed(t, valueobject.DeliveryTypeFaceToFace)
	_, err := swap.NewAddEvidenceUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.EvidencePackaging, []string{"p.jpg"})
	require.NoError(t, err)

	uc := swap.NewSetArrivedUseCase(f.deps)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		actor := f.owner
		if i%2 == 1 {
			actor = f.requester
		}
		wg.Add(1)
		go func(actor uuid.UUID) {
			defer wg.Done()
			if _, err := uc.Execute(f.ctx, s.ID, actor); err != nil {
				errs <- err
			}
		}(actor)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusArrived, stored.Status)
	assert.True(t, stored.OwnerArrived)
	assert.True(t, stored.RequesterArrived)

	history, err := f.store.SwapRequests().History(f.ctx, s.ID)
	require.NoError(t, err)
	arrived := 0
	for _, h := range history {
		if h.To == valueobject.SwapStatusArrived {
			arrived++
		}
	}
	assert.Equal(t, 1, arrived)
	assert.Len(t, f.events.ofType(repository.EventSwapArrivalMarked), 1)
}

func TestAcceptDelivery_ConcurrentAcceptsOneWins(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	_, err := swap.NewUpdateRequestStatusUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.SwapStatusAccepted)
	require.NoError(t, err)
	place := "Кафе у метро"
	_, err = swap.NewProposeDeliveryUseCase(f.deps).Execute(f.ctx, swap.ProposeDeliveryInput{
		SwapID: s.ID, ActorID: f.owner, Type: valueobject.DeliveryTypeFaceToFace, CustomLocation: &place,
	})
	require.NoError(t, err)

	uc := swap.NewAcceptDeliveryUseCase(f.deps)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		rejected int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Execute(f.ctx, s.ID, f.requester)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
			} else if apperror.IsInvalidTransition(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, 3, rejected)
}

func TestAcceptDelivery_ProposerCannotAccept(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	_, err := swap.NewUpdateRequestStatusUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.SwapStatusAccepted)
	require.NoError(t, err)
	place := "Библиотека"
	_, err = swap.NewProposeDeliveryUseCase(f.deps).Execute(f.ctx, swap.ProposeDeliveryInput{
		SwapID: s.ID, ActorID: f.requester, Type: valueobject.DeliveryTypeFaceToFace, CustomLocation: &place,
	})
	require.NoError(t, err)

	_, err = swap.NewAcceptDeliveryUseCase(f.deps).Execute(f.ctx, s.ID, f.requester)
	require.Error(t, err)
	assert.True(t, apperror.IsInvalidTransition(err))
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, f.requester.String(), appErr.Details[apperror.DetailLastProposedBy])
	assert.Equal(t, string(valueobject.SwapStatusDeliveryProposed), appErr.Details[apperror.DetailCurrentStatus])
}

func TestVerifyCode_AttemptLimit(t *testing.T) {
	f := newFixture(t)
	s, code := f.approved(t)

	limiter := &mockLimiter{}
	key := "secret:" + s.ID.String() + ":" + f.owner.String()
	limiter.On("Allow", mock.Anything, key).Return(false, nil)
	f.deps.Limiter = limiter

	_, err := swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.Error(t, err)
	assert.Equal(t, apperror.ErrCodeTooManyRequests, apperror.CodeOf(err))
	limiter.AssertExpectations(t)

	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCodeSent, stored.Status)
	assert.Nil(t, stored.CodeUsedAt)
}

func TestVerifyCode_LimiterUnavailableFailsOpen(t *testing.T) {
	f := newFixture(t)
	s, code := f.approved(t)

	limiter := &mockLimiter{}
	limiter.On("Allow", mock.Anything, mock.Anything).Return(false, errors.New("store down"))
	f.deps.Limiter = limiter

	s, err := swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
}

func TestVerifyCode_InsufficientBalanceKeepsCode(t *testing.T) {
	f := newFixture(t)
	s, code := f.approved(t)
	f.store.Ledger().SetBalance(f.ctx, f.requester, 10)

	_, err := swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.Error(t, err)
	assert.True(t, apperror.IsPreconditionFailed(err))

	stored, err := f.store.SwapRequests().FindByID(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCodeSent, stored.Status)
	assert.Nil(t, stored.CodeUsedAt)
	assert.Nil(t, f.store.Ledger().Hold(f.ctx, s.ID))

	f.store.Ledger().SetBalance(f.ctx, f.requester, 100)
	s, err = swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
}

func TestStatusChangedEvents_NotifyBothParties(t *testing.T) {
	f := newFixture(t)
	f.agreed(t, valueobject.DeliveryTypeFaceToFace)

	changed := f.events.ofType(repository.EventSwapStatusChanged)
	require.Len(t, changed, 4)
	for _, e := range changed {
		assert.ElementsMatch(t, []uuid.UUID{f.requester, f.owner}, e.Recipients)
	}
	assert.Equal(t, string(valueobject.SwapStatusQRGenerated), changed[3].Status)
	assert.Equal(t, string(valueobject.SwapStatusDeliveryProposed), changed[3].Data["from"])
}
