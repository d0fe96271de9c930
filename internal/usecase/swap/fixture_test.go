package swap_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
)

func init() {
	valueobject.SetCodeHashCost(4)
	logger.Silence()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []repository.Event
}

func (r *eventRecorder) Publish(_ context.Context, e repository.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(t repository.EventType) []repository.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	clock     *fakeClock
	events    *eventRecorder
	deps      swap.Deps
	owner     uuid.UUID
	requester uuid.UUID
	product   *entity.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)}
	events := &eventRecorder{}

	f := &fixture{
		ctx:       ctx,
		store:     store,
		clock:     clock,
		events:    events,
		owner:     uuid.New(),
		requester: uuid.New(),
	}
	f.product = &entity.Product{
		ID:        uuid.New(),
		OwnerID:   f.owner,
		Title:     "Велосипед",
		Value:     valueobject.Valor(100),
		Active:    true,
		CreatedAt: clock.Now(),
		UpdatedAt: clock.Now(),
	}
	store.Products().Save(ctx, f.product)
	store.Ledger().SetBalance(ctx, f.requester, 500)

	f.deps = swap.Deps{
		Swaps:    store.SwapRequests(),
		Disputes: store.Disputes(),
		Products: store.Products(),
		Ledger:   store.Ledger(),
		Tx:       store,
		Events:   events,
		Clock:    clock.Now,
		Policy:   swap.DefaultPolicy(),
	}
	return f
}

func (f *fixture) create(t *testing.T) *entity.SwapRequest {
	t.Helper()
	s, err := swap.NewCreateSwapRequestUseCase(f.deps).Execute(f.ctx, swap.CreateSwapRequestInput{
		RequesterID: f.requester,
		ProductID:   f.product.ID,
	})
	require.NoError(t, err)
	return s
}

// agreed доводит заявку до qr_generated с выбранным способом передачи.
func (f *fixture) agreed(t *testing.T, delivery valueobject.DeliveryType) *entity.SwapRequest {
	t.Helper()
	s := f.create(t)

	_, err := swap.NewUpdateRequestStatusUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.SwapStatusAccepted)
	require.NoError(t, err)

	in := swap.ProposeDeliveryInput{SwapID: s.ID, ActorID: f.owner, Type: delivery}
	if delivery == valueobject.DeliveryTypeDropOff {
		point := uuid.New()
		in.DeliveryPointID = &point
	} else {
		place := "Парк Горького, главный вход"
		in.CustomLocation = &place
	}
	_, err = swap.NewProposeDeliveryUseCase(f.deps).Execute(f.ctx, in)
	require.NoError(t, err)

	s, err = swap.NewAcceptDeliveryUseCase(f.deps).Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)
	return s
}

// inInspection доводит личную встречу до осмотра.
func (f *fixture) inInspection(t *testing.T) *entity.SwapRequest {
	t.Helper()
	s := f.agreed(t, valueobject.DeliveryTypeFaceToFace)

	_, err := swap.NewAddEvidenceUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, valueobject.EvidencePackaging, []string{"photos/pack-1.jpg"})
	require.NoError(t, err)
	arrive := swap.NewSetArrivedUseCase(f.deps)
	_, err = arrive.Execute(f.ctx, s.ID, f.owner)
	require.NoError(t, err)
	_, err = arrive.Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)
	_, err = swap.NewScanQRUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, s.QRCode)
	require.NoError(t, err)
	s, err = swap.NewStartInspectionUseCase(f.deps).Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)
	return s
}

// approved возвращает заявку в code_sent и выданный код.
func (f *fixture) approved(t *testing.T) (*entity.SwapRequest, string) {
	t.Helper()
	s := f.inInspection(t)
	_, err := swap.NewAddEvidenceUseCase(f.deps).Execute(f.ctx, s.ID, f.requester, valueobject.EvidenceReceiving, []string{"photos/recv-1.jpg"})
	require.NoError(t, err)
	res, err := swap.NewApproveProductUseCase(f.deps).Execute(f.ctx, s.ID, f.requester)
	require.NoError(t, err)
	return res.Swap, res.Code
}

func (f *fixture) completed(t *testing.T) *entity.SwapRequest {
	t.Helper()
	s, code := f.approved(t)
	s, err := swap.NewVerifyCodeUseCase(f.deps).Execute(f.ctx, s.ID, f.owner, code)
	require.NoError(t, err)
	return s
}

func statuses(history []entity.StatusTransition) []valueobject.SwapStatus {
	out := make([]valueobject.SwapStatus, 0, len(history))
	for _, h := range history {
		out = append(out, h.To)
	}
	return out
}

// wrongCode отличается от code ровно одной цифрой.
func wrongCode(code string) string {
	b := []byte(code)
	if b[5] == '9' {
		b[5] = '0'
	} else {
		b[5]++
	}
	return string(b)
}
