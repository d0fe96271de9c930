package valueobject

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

func TestCanTransition_FaceToFacePath(t *testing.T) {
	path := []SwapStatus{
		SwapStatusPending, SwapStatusNegotiating, SwapStatusAccepted, SwapStatusDeliveryProposed,
		SwapStatusQRGenerated, SwapStatusArrived, SwapStatusQRScanned, SwapStatusInspection,
		SwapStatusCodeSent, SwapStatusCompleted, SwapStatusDisputed, SwapStatusRefunded,
	}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, CanTransition(DeliveryTypeFaceToFace, path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
}

func TestCanTransition_DropOffPath(t *testing.T) {
	assert.True(t, CanTransition(DeliveryTypeDropOff, SwapStatusQRGenerated, SwapStatusDroppedOff))
	assert.True(t, CanTransition(DeliveryTypeDropOff, SwapStatusDroppedOff, SwapStatusCompleted))
	assert.True(t, CanTransition(DeliveryTypeDropOff, SwapStatusDroppedOff, SwapStatusInspection))
	assert.True(t, CanTransition(DeliveryTypeDropOff, SwapStatusInspection, SwapStatusCompleted))
}

func TestCanTransition_CrossGraphRejected(t *testing.T) {
	assert.False(t, CanTransition(DeliveryTypeDropOff, SwapStatusQRGenerated, SwapStatusArrived))
	assert.False(t, CanTransition(DeliveryTypeFaceToFace, SwapStatusQRGenerated, SwapStatusDroppedOff))
	assert.False(t, CanTransition(DeliveryTypeDropOff, SwapStatusInspection, SwapStatusCodeSent))
	assert.False(t, CanTransition(DeliveryTypeUnset, SwapStatusQRGenerated, SwapStatusArrived))
	assert.False(t, CanTransition(DeliveryTypeFaceToFace, SwapStatusArrived, SwapStatusCancelled))
	assert.False(t, CanTransition(DeliveryTypeFaceToFace, SwapStatusPending, SwapStatusCompleted))
}

func TestEvidenceSet_AppendAndSeal(t *testing.T) {
	var set EvidenceSet
	set, err := set.Append([]string{"https://cdn/a.jpg", " https://cdn/b.jpg "})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, set.Photos)

	_, err = set.Append([]string{"1", "2", "3", "4"})
	assert.True(t, apperror.IsValidation(err))

	sealed := set.Seal(time.Now())
	assert.True(t, sealed.IsSealed())
	assert.False(t, set.IsSealed(), "исходный набор не должен меняться")

	_, err = sealed.Append([]string{"https://cdn/c.jpg"})
	assert.True(t, apperror.IsPreconditionFailed(err))
}

func TestEvidenceSet_EmptyRefRejected(t *testing.T) {
	_, err := EvidenceSet{}.Append([]string{"  "})
	assert.True(t, apperror.IsValidation(err))
	_, err = EvidenceSet{}.Append(nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestVerificationCode_RoundTrip(t *testing.T) {
	SetCodeHashCost(bcrypt.MinCost)
	code, err := NewVerificationCode()
	require.NoError(t, err)
	assert.Len(t, code, VerificationCodeDigits)

	hash, err := HashVerificationCode(code)
	require.NoError(t, err)
	assert.NotEqual(t, code, hash)

	assert.True(t, MatchVerificationCode(hash, code))
	assert.True(t, MatchVerificationCode(hash, code[:3]+"-"+code[3:]))
	assert.False(t, MatchVerificationCode(hash, "abcdef"))
	assert.False(t, MatchVerificationCode("", code))
}

func TestNormalizeVerificationCode(t *testing.T) {
	code, err := NormalizeVerificationCode(" 123 456 ")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	_, err = NormalizeVerificationCode("12345")
	assert.True(t, apperror.IsValidation(err))
	_, err = NormalizeVerificationCode("12345x")
	assert.True(t, apperror.IsValidation(err))
}

func TestQRToken(t *testing.T) {
	token, err := NewQRToken()
	require.NoError(t, err)
	assert.True(t, len(token) > len(QRPrefix))
	assert.True(t, MatchQRToken(token, " "+token+" "))
	assert.False(t, MatchQRToken(token, token+"x"))
	assert.False(t, MatchQRToken("", ""))
}

func TestAddBusinessDays(t *testing.T) {
	friday := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	got := AddBusinessDays(friday, 3)
	assert.Equal(t, time.Date(2026, 10, 21, 15, 0, 0, 0, time.UTC), got)

	monday := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), AddBusinessDays(monday, 3))
}

func TestLocation_DistanceKm(t *testing.T) {
	moscow := Location{Latitude: 55.7558, Longitude: 37.6173}
	assert.InDelta(t, 0, moscow.DistanceKm(moscow), 1e-9)

	spb := Location{Latitude: 59.9343, Longitude: 30.3351}
	assert.InDelta(t, 634, moscow.DistanceKm(spb), 10)
}

func TestResolutionOutcome_TargetStatus(t *testing.T) {
	assert.Equal(t, SwapStatusRefunded, ResolutionFullRefund.TargetStatus())
	assert.Equal(t, SwapStatusRefunded, ResolutionFavorRequester.TargetStatus())
	assert.Equal(t, SwapStatusCancelled, ResolutionNoFault.TargetStatus())
	assert.Equal(t, SwapStatusCompleted, ResolutionEqualSplit.TargetStatus())
}
