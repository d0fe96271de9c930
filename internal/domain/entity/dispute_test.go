package entity

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

func TestNewDispute_Validation(t *testing.T) {
	swapID, reporter := uuid.New(), uuid.New()
	desc := "Товар пришёл с трещиной"

	_, err := NewDispute(swapID, reporter, valueobject.DisputeTypeDamaged, "коротко", []string{"a"}, 20, testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewDispute(swapID, reporter, valueobject.DisputeTypeDamaged, desc, nil, 20, testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewDispute(swapID, reporter, valueobject.DisputeTypeDamaged, desc, strings.Split("a b c d e f", " "), 20, testNow)
	assert.True(t, apperror.IsValidation(err))

	_, err = NewDispute(swapID, reporter, valueobject.DisputeType("lost"), desc, []string{"a"}, 20, testNow)
	assert.True(t, apperror.IsValidation(err))

	d, err := NewDispute(swapID, reporter, valueobject.DisputeTypeDamaged, "  "+desc+"  ", []string{"a", "b"}, 20, testNow)
	require.NoError(t, err)
	assert.Equal(t, desc, d.Description)
	assert.Equal(t, DisputeStatusOpen, d.Status)
}

func TestDispute_ResolveOnce(t *testing.T) {
	d, err := NewDispute(uuid.New(), uuid.New(), valueobject.DisputeTypeDefect, "Не включается после зарядки", []string{"a"}, 20, testNow)
	require.NoError(t, err)

	admin := uuid.New()
	require.NoError(t, d.Resolve(admin, valueobject.ResolutionEqualSplit, "делим пополам", testNow))
	assert.Equal(t, DisputeStatusResolved, d.Status)
	assert.Equal(t, valueobject.ResolutionEqualSplit, *d.Outcome)

	assert.True(t, apperror.IsPreconditionFailed(d.Resolve(admin, valueobject.ResolutionFullRefund, "", testNow)))
}
