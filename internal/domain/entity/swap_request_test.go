package entity

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const testQR = "SWQR-V1StGXR8_Z5jdHi6B-myT"

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func init() {
	valueobject.SetCodeHashCost(bcrypt.MinCost)
}

func valor(v int64) *valueobject.Valor {
	x := valueobject.Valor(v)
	return &x
}

func strPtr(s string) *string { return &s }

func newAccepted(t *testing.T, delivery valueobject.DeliveryType) (*SwapRequest, uuid.UUID, uuid.UUID) {
	t.Helper()
	requester, owner := uuid.New(), uuid.New()
	s, err := NewSwapRequest(requester, owner, uuid.New(), Offer{CurrencyAmount: valor(100)}, "хочу обменяться", testNow)
	require.NoError(t, err)
	require.NoError(t, s.Accept(owner, testNow))

	at := testNow.Add(24 * time.Hour)
	proposal := DeliveryProposal{Type: delivery, At: &at}
	if delivery == valueobject.DeliveryTypeDropOff {
		point := uuid.New()
		proposal.DeliveryPointID = &point
	} else {
		proposal.CustomLocation = strPtr("Парк Горького, главный вход")
	}
	require.NoError(t, s.ProposeDelivery(owner, proposal, testNow))
	return s, requester, owner
}

func statuses(s *SwapRequest) []valueobject.SwapStatus {
	out := make([]valueobject.SwapStatus, 0, len(s.PendingTransitions))
	for _, tr := range s.PendingTransitions {
		out = append(out, tr.To)
	}
	return out
}

func mustHash(t *testing.T, code string) string {
	t.Helper()
	h, err := valueobject.HashVerificationCode(code)
	require.NoError(t, err)
	return h
}

func TestNewSwapRequest_Validation(t *testing.T) {
	user := uuid.New()
	_, err := NewSwapRequest(user, user, uuid.New(), Offer{CurrencyAmount: valor(10)}, "", testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewSwapRequest(uuid.New(), uuid.New(), uuid.New(), Offer{}, "", testNow)
	assert.True(t, apperror.IsValidation(err))

	product := uuid.New()
	_, err = NewSwapRequest(uuid.New(), uuid.New(), uuid.New(), Offer{OfferedProductID: &product, CurrencyAmount: valor(5)}, "", testNow)
	assert.True(t, apperror.IsValidation(err))
}

func TestSwapRequest_OnlyOwnerAcceptsPending(t *testing.T) {
	requester, owner := uuid.New(), uuid.New()
	s, err := NewSwapRequest(requester, owner, uuid.New(), Offer{CurrencyAmount: valor(100)}, "", testNow)
	require.NoError(t, err)

	err = s.Accept(requester, testNow)
	require.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, valueobject.SwapStatusPending, s.Status)

	err = s.Accept(uuid.New(), testNow)
	assert.True(t, apperror.IsForbidden(err))

	require.NoError(t, s.Accept(owner, testNow))
	assert.Equal(t, valueobject.SwapStatusAccepted, s.Status)
}

func TestSwapRequest_NegotiationTurns(t *testing.T) {
	requester, owner := uuid.New(), uuid.New()
	offered := uuid.New()
	s, err := NewSwapRequest(requester, owner, uuid.New(), Offer{OfferedProductID: &offered}, "", testNow)
	require.NoError(t, err)

	require.NoError(t, s.ProposeOffer(owner, Offer{CurrencyAmount: valor(150)}, testNow))
	assert.Equal(t, valueobject.SwapStatusNegotiating, s.Status)
	assert.Nil(t, s.OfferedProductID)
	assert.Equal(t, valueobject.Valor(150), *s.PendingCurrencyAmount)

	err = s.Accept(owner, testNow)
	assert.True(t, apperror.IsInvalidTransition(err))

	require.NoError(t, s.Accept(requester, testNow))
	assert.Equal(t, valueobject.SwapStatusAccepted, s.Status)
	assert.Equal(t, valueobject.NegotiationStatusAgreed, s.NegotiationStatus)
	assert.Equal(t, valueobject.Valor(150), *s.AgreedPriceRequester)
	assert.Equal(t, valueobject.Valor(150), *s.AgreedPriceOwner)
}

func TestSwapRequest_CancelRules(t *testing.T) {
	requester, owner := uuid.New(), uuid.New()
	s, err := NewSwapRequest(requester, owner, uuid.New(), Offer{CurrencyAmount: valor(100)}, "", testNow)
	require.NoError(t, err)

	assert.True(t, apperror.IsInvalidTransition(s.Cancel(owner, "", testNow)))
	require.NoError(t, s.Cancel(requester, "передумал", testNow))
	assert.Equal(t, valueobject.SwapStatusCancelled, s.Status)
	assert.Equal(t, requester, *s.CancelledBy)

	err = s.Reject(owner, testNow)
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestSwapRequest_ProposerCannotAcceptOwnDelivery(t *testing.T) {
	s, requester, owner := newAccepted(t, valueobject.DeliveryTypeFaceToFace)

	err := s.AcceptDelivery(owner, testQR, 3, testNow)
	require.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, valueobject.SwapStatusDeliveryProposed, s.Status)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, string(valueobject.SwapStatusDeliveryProposed), appErr.Details[apperror.DetailCurrentStatus])
	assert.Equal(t, owner.String(), appErr.Details[apperror.DetailLastProposedBy])

	// встречное предложение передаёт ход, статус прежний
	require.NoError(t, s.ProposeDelivery(requester, DeliveryProposal{
		Type:           valueobject.DeliveryTypeFaceToFace,
		CustomLocation: strPtr("ТЦ Европейский"),
	}, testNow))
	assert.Equal(t, valueobject.SwapStatusDeliveryProposed, s.Status)
	assert.Equal(t, requester, *s.LastProposedBy)

	assert.True(t, apperror.IsInvalidTransition(s.AcceptDelivery(requester, testQR, 3, testNow)))
	require.NoError(t, s.AcceptDelivery(owner, testQR, 3, testNow))
	assert.Equal(t, valueobject.SwapStatusQRGenerated, s.Status)
	assert.Nil(t, s.DropOffDeadline)
}

func TestDeliveryProposal_Validation(t *testing.T) {
	s, requester, _ := newAccepted(t, valueobject.DeliveryTypeFaceToFace)
	point := uuid.New()
	past := testNow.Add(-time.Hour)

	cases := []DeliveryProposal{
		{Type: valueobject.DeliveryTypeUnset, CustomLocation: strPtr("x")},
		{Type: valueobject.DeliveryTypeFaceToFace},
		{Type: valueobject.DeliveryTypeFaceToFace, CustomLocation: strPtr("x"), DeliveryPointID: &point},
		{Type: valueobject.DeliveryTypeDropOff, CustomLocation: strPtr("x")},
		{Type: valueobject.DeliveryTypeFaceToFace, CustomLocation: strPtr("x"), At: &past},
	}
	for _, p := range cases {
		assert.True(t, apperror.IsValidation(s.ProposeDelivery(requester, p, testNow)), "%+v", p)
	}
}

func TestSwapRequest_FaceToFaceHandover(t *testing.T) {
	s, requester, owner := newAccepted(t, valueobject.DeliveryTypeFaceToFace)
	require.NoError(t, s.AcceptDelivery(requester, testQR, 3, testNow))

	_, err := s.SetArrived(owner, testNow)
	require.True(t, apperror.IsPreconditionFailed(err), "без фото упаковки прибытие не отмечается")

	require.NoError(t, s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"https://cdn/pack-1.jpg"}, testNow))

	changed, err := s.SetArrived(owner, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, valueobject.SwapStatusQRGenerated, s.Status)

	changed, err = s.SetArrived(owner, testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.SetArrived(requester, testNow)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, valueobject.SwapStatusArrived, s.Status)
	assert.True(t, s.PackagingEvidence.IsSealed())

	changed, err = s.SetArrived(requester, testNow)
	require.NoError(t, err)
	assert.False(t, changed)

	err = s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"https://cdn/pack-2.jpg"}, testNow)
	assert.Error(t, err)

	assert.True(t, apperror.IsPreconditionFailed(s.ScanQR(requester, "SWQR-other", testNow)))
	require.NoError(t, s.ScanQR(requester, " "+testQR+" ", testNow))
	assert.Equal(t, valueobject.SwapStatusQRScanned, s.Status)
	assert.True(t, apperror.IsPreconditionFailed(s.ScanQR(requester, testQR, testNow)))

	require.NoError(t, s.StartInspection(requester, testNow))
	require.NoError(t, s.AddEvidence(owner, valueobject.EvidenceDelivery, []string{"https://cdn/handover.jpg"}, testNow))

	hash := mustHash(t, "482913")
	assert.True(t, apperror.IsPreconditionFailed(s.Approve(requester, hash, testNow)))
	require.NoError(t, s.AddEvidence(requester, valueobject.EvidenceReceiving, []string{"https://cdn/recv.jpg"}, testNow))
	require.NoError(t, s.Approve(requester, hash, testNow))
	assert.Equal(t, valueobject.SwapStatusCodeSent, s.Status)
	assert.True(t, s.ReceivingEvidence.IsSealed())

	err = s.VerifyCode(owner, "482914", 24*time.Hour, testNow)
	assert.True(t, apperror.IsPreconditionFailed(err))
	assert.Equal(t, valueobject.SwapStatusCodeSent, s.Status)

	done := testNow.Add(time.Minute)
	require.NoError(t, s.VerifyCode(owner, "482-913", 24*time.Hour, done))
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
	require.NotNil(t, s.DisputeWindowEndsAt)
	assert.Equal(t, done.Add(24*time.Hour), *s.DisputeWindowEndsAt)

	assert.True(t, apperror.IsPreconditionFailed(s.VerifyCode(owner, "482913", 24*time.Hour, done)))

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
	}, statuses(s))
}

func TestSwapRequest_DropOffHandover(t *testing.T) {
	s, requester, owner := newAccepted(t, valueobject.DeliveryTypeDropOff)
	friday := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.AcceptDelivery(requester, testQR, 3, friday))
	require.NotNil(t, s.DropOffDeadline)
	assert.Equal(t, time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC), *s.DropOffDeadline)

	_, err := s.SetArrived(owner, friday)
	assert.True(t, apperror.IsInvalidTransition(err))

	hash := mustHash(t, "000731")
	assert.True(t, apperror.IsPreconditionFailed(s.DropOff(owner, hash, friday)))
	require.NoError(t, s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"https://cdn/box.jpg"}, friday))
	assert.True(t, apperror.IsInvalidTransition(s.DropOff(requester, hash, friday)))
	assert.True(t, apperror.IsPreconditionFailed(s.DropOff(owner, hash, s.DropOffDeadline.Add(time.Second))))

	require.NoError(t, s.DropOff(owner, hash, friday.Add(time.Hour)))
	assert.Equal(t, valueobject.SwapStatusDroppedOff, s.Status)
	assert.True(t, s.PackagingEvidence.IsSealed())

	assert.True(t, apperror.IsPreconditionFailed(s.PickUp(requester, "000732", 24*time.Hour, friday)))
	pickup := friday.Add(48 * time.Hour)
	require.NoError(t, s.PickUp(requester, "000731", 24*time.Hour, pickup))
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)
	require.NotNil(t, s.PickedUpAt)
	assert.Equal(t, pickup, *s.PickedUpAt)
	assert.True(t, apperror.IsPreconditionFailed(s.PickUp(requester, "000731", 24*time.Hour, pickup)))
}

func TestSwapRequest_ExpireDropOff(t *testing.T) {
	s, requester, _ := newAccepted(t, valueobject.DeliveryTypeDropOff)
	require.NoError(t, s.AcceptDelivery(requester, testQR, 3, testNow))

	assert.True(t, apperror.IsPreconditionFailed(s.ExpireDropOff(testNow)))
	require.NoError(t, s.ExpireDropOff(s.DropOffDeadline.Add(time.Minute)))
	assert.Equal(t, valueobject.SwapStatusCancelled, s.Status)
	last := s.PendingTransitions[len(s.PendingTransitions)-1]
	assert.Nil(t, last.ActorID)
}

func completedFaceToFace(t *testing.T) (*SwapRequest, uuid.UUID, uuid.UUID) {
	t.Helper()
	s, requester, owner := newAccepted(t, valueobject.DeliveryTypeFaceToFace)
	require.NoError(t, s.AcceptDelivery(requester, testQR, 3, testNow))
	require.NoError(t, s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"p"}, testNow))
	_, err := s.SetArrived(owner, testNow)
	require.NoError(t, err)
	_, err = s.SetArrived(requester, testNow)
	require.NoError(t, err)
	require.NoError(t, s.ScanQR(requester, testQR, testNow))
	require.NoError(t, s.StartInspection(requester, testNow))
	require.NoError(t, s.AddEvidence(requester, valueobject.EvidenceReceiving, []string{"r"}, testNow))
	require.NoError(t, s.Approve(requester, mustHash(t, "111111"), testNow))
	require.NoError(t, s.VerifyCode(owner, "111111", 24*time.Hour, testNow))
	return s, requester, owner
}

func TestSwapRequest_DisputeWindow(t *testing.T) {
	s, requester, owner := completedFaceToFace(t)

	late := s.DisputeWindowEndsAt.Add(time.Second)
	err := s.OpenDispute(requester, late)
	assert.True(t, apperror.IsPreconditionFailed(err))
	assert.Equal(t, valueobject.SwapStatusCompleted, s.Status)

	s.MarkSettled(testNow)
	require.NoError(t, s.OpenDispute(owner, testNow.Add(time.Hour)))
	assert.Equal(t, valueobject.SwapStatusDisputed, s.Status)

	require.NoError(t, s.ResolveDispute(uuid.New(), valueobject.ResolutionFullRefund, testNow.Add(2*time.Hour)))
	assert.Equal(t, valueobject.SwapStatusRefunded, s.Status)
}

func TestSwapRequest_DisputeFromInspectionRequesterOnly(t *testing.T) {
	s, requester, owner := newAccepted(t, valueobject.DeliveryTypeFaceToFace)
	require.NoError(t, s.AcceptDelivery(requester, testQR, 3, testNow))
	require.NoError(t, s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"p"}, testNow))
	_, _ = s.SetArrived(owner, testNow)
	_, _ = s.SetArrived(requester, testNow)
	require.NoError(t, s.ScanQR(requester, testQR, testNow))
	require.NoError(t, s.StartInspection(requester, testNow))

	assert.True(t, apperror.IsInvalidTransition(s.OpenDispute(owner, testNow)))
	require.NoError(t, s.OpenDispute(requester, testNow))
	assert.Equal(t, valueobject.SwapStatusDisputed, s.Status)

	// расчёта не было: делить нечего, прочие исходы отменяют заявку
	err := s.ResolveDispute(uuid.New(), valueobject.ResolutionEqualSplit, testNow)
	assert.True(t, apperror.IsPreconditionFailed(err))
	assert.Equal(t, valueobject.SwapStatusDisputed, s.Status)

	require.NoError(t, s.ResolveDispute(uuid.New(), valueobject.ResolutionFavorRequester, testNow))
	assert.Equal(t, valueobject.SwapStatusCancelled, s.Status)
	assert.Nil(t, s.CompletedAt)
}

func TestSwapRequest_HoldReleasable(t *testing.T) {
	s, _, _ := completedFaceToFace(t)
	assert.False(t, s.HoldReleasable(s.DisputeWindowEndsAt.Add(time.Minute)), "расчёт ещё не проведён")

	s.MarkSettled(testNow)
	assert.False(t, s.HoldReleasable(testNow))
	assert.True(t, s.HoldReleasable(*s.DisputeWindowEndsAt))

	s.MarkHoldReleased(*s.DisputeWindowEndsAt)
	assert.False(t, s.HoldReleasable(s.DisputeWindowEndsAt.Add(time.Hour)))
}

func TestSwapRequest_CloneIsDeep(t *testing.T) {
	s, _, owner := newAccepted(t, valueobject.DeliveryTypeFaceToFace)
	require.NoError(t, s.AcceptDelivery(s.RequesterID, testQR, 3, testNow))
	require.NoError(t, s.AddEvidence(owner, valueobject.EvidencePackaging, []string{"a"}, testNow))

	cp := s.Clone()
	cp.PackagingEvidence.Photos[0] = "changed"
	cp.PendingTransitions[0].To = valueobject.SwapStatusRefunded

	assert.Equal(t, "a", s.PackagingEvidence.Photos[0])
	assert.Equal(t, valueobject.SwapStatusPending, s.PendingTransitions[0].To)
}
