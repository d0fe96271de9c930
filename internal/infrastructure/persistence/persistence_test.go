package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func TestBatchInserter_FlushesByBatchSize(t *testing.T) {
	ex := &fakeExecer{}
	b := newBatchInserter(ex, "INSERT INTO t (a, b)", 2, 2)
	ctx := context.Background()

	require.NoError(t, b.add(ctx, 1, "x"))
	assert.Empty(t, ex.calls)
	require.NoError(t, b.add(ctx, 2, "y"))
	require.Len(t, ex.calls, 1)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4)", ex.calls[0].query)
	assert.Equal(t, []any{1, "x", 2, "y"}, ex.calls[0].args)

	require.NoError(t, b.add(ctx, 3, "z"))
	require.NoError(t, b.flush(ctx))
	require.Len(t, ex.calls, 2)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", ex.calls[1].query)

	require.NoError(t, b.flush(ctx), "пустой flush ничего не делает")
	assert.Len(t, ex.calls, 2)

	assert.Error(t, b.add(ctx, 1))
}

func TestBatchInserter_PropagatesError(t *testing.T) {
	ex := &fakeExecer{err: errors.New("boom")}
	b := newBatchInserter(ex, "INSERT INTO t (a)", 1, 10)
	require.NoError(t, b.add(context.Background(), 1))
	assert.ErrorContains(t, b.flush(context.Background()), "boom")
}

func TestDBError_Mapping(t *testing.T) {
	assert.NoError(t, dbError(nil, "x"))

	unique := &pq.Error{Code: pqUniqueViolation}
	assert.True(t, apperror.IsConflict(dbError(unique, "x")))
	assert.True(t, isUniqueViolation(dbError(unique, "x")))

	check := &pq.Error{Code: pqCheckViolation}
	assert.True(t, apperror.IsPreconditionFailed(dbError(check, "x")))

	assert.Equal(t, apperror.ErrCodeDatabaseError, apperror.CodeOf(dbError(errors.New("conn refused"), "x")))
	assert.Same(t, apperror.ErrStaleVersion, dbError(apperror.ErrStaleVersion, "x"))
	assert.ErrorIs(t, dbError(context.Canceled, "x"), context.Canceled)
}

func TestNamedParams(t *testing.T) {
	got := namedParams("id,\n\towner_id, title")
	assert.Equal(t, ":id, :owner_id, :title", got)

	cols := strings.Split(swapRequestColumns, ",")
	assert.Equal(t, len(cols), strings.Count(namedParams(swapRequestColumns), ":"))
}

func TestSwapRequestRow_RoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	amount := valueobject.Valor(150)
	actor := uuid.New()
	place := "Парк"

	s := &entity.SwapRequest{
		ID:                    uuid.New(),
		RequesterID:           uuid.New(),
		OwnerID:               uuid.New(),
		ProductID:             uuid.New(),
		PendingCurrencyAmount: &amount,
		NegotiationStatus:     valueobject.NegotiationStatusAgreed,
		Status:                valueobject.SwapStatusQRGenerated,
		DeliveryType:          valueobject.DeliveryTypeFaceToFace,
		CustomLocation:        &place,
		LastProposedBy:        &actor,
		QRCode:                "SWQR-abc",
		PackagingEvidence:     valueobject.EvidenceSet{Photos: []string{"a.jpg"}, SealedAt: &now},
		Version:               3,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	row := toSwapRequestRow(s)
	assert.Equal(t, pq.StringArray{}, row.DeliveryPhotos, "пустой набор пишется как '{}'")
	require.NotNil(t, row.PendingCurrencyAmount)
	assert.Equal(t, int64(150), *row.PendingCurrencyAmount)

	back := row.toEntity()
	assert.Equal(t, s.PendingCurrencyAmount, back.PendingCurrencyAmount)
	assert.Equal(t, s.Status, back.Status)
	assert.Equal(t, s.PackagingEvidence.Photos, back.PackagingEvidence.Photos)
	assert.True(t, back.PackagingEvidence.IsSealed())
	assert.False(t, back.DeliveryEvidence.IsSealed())
	assert.Equal(t, s.LastProposedBy, back.LastProposedBy)
	assert.Nil(t, back.AgreedPriceOwner)
}
