package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
	"github.com/ignatzorin/barter-backend/internal/usecase/interest"
)

func init() {
	logger.Silence()
}

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type market struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *chain.Engine
}

func newMarket(t *testing.T, cfg chain.Config) *market {
	store := memory.NewStore()
	m := metrics.NewSwapMetrics(prometheus.NewRegistry())
	return &market{
		t:      t,
		ctx:    context.Background(),
		store:  store,
		engine: chain.NewEngine(store.Interests(), store.Products(), m, cfg),
	}
}

func (m *market) product(owner uuid.UUID, value int64, loc *valueobject.Location) *entity.Product {
	p := &entity.Product{
		ID:        uuid.New(),
		OwnerID:   owner,
		Title:     "товар",
		Value:     valueobject.Valor(value),
		Location:  loc,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.store.Products().Save(m.ctx, p)
	return p
}

func (m *market) want(user uuid.UUID, p *entity.Product) {
	_, err := interest.NewExpressInterestUseCase(m.store.Interests(), m.store.Products(), func() time.Time { return now }).
		Execute(m.ctx, user, p.ID)
	require.NoError(m.t, err)
}

// ring строит цикл: пользователь i хочет товар пользователя i+1.
func (m *market) ring(values []int64, locs []*valueobject.Location) ([]uuid.UUID, []*entity.Product) {
	users := make([]uuid.UUID, len(values))
	products := make([]*entity.Product, len(values))
	for i, v := range values {
		users[i] = uuid.New()
		var loc *valueobject.Location
		if locs != nil {
			loc = locs[i]
		}
		products[i] = m.product(users[i], v, loc)
	}
	for i := range users {
		m.want(users[i], products[(i+1)%len(users)])
	}
	return users, products
}

func (m *market) query(q chain.OpportunitiesQuery) *chain.OpportunitiesResult {
	res, err := chain.NewQueryOpportunitiesUseCase(m.engine).Execute(m.ctx, q)
	require.NoError(m.t, err)
	return res
}

func TestOpportunities_TwoWayEqualValues(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	users, products := m.ring([]int64{100, 100}, nil)

	res := m.query(chain.OpportunitiesQuery{})
	require.Equal(t, 1, res.Total)
	c := res.Chains[0]
	assert.Equal(t, 2, c.ChainLength)
	assert.Equal(t, 100.0, c.ValueBalanceScore)
	assert.True(t, c.IsValueBalanced)
	assert.Equal(t, 25.0, c.LocationScore)
	assert.Equal(t, 62.5, c.TotalScore)

	for _, p := range c.Participants {
		switch p.UserID {
		case users[0]:
			assert.Equal(t, products[0].ID, p.GivesProductID)
			assert.Equal(t, products[1].ID, p.WantsProductID)
			assert.Equal(t, users[1], p.WantsProductOwnerID)
		case users[1]:
			assert.Equal(t, products[1].ID, p.GivesProductID)
			assert.Equal(t, products[0].ID, p.WantsProductID)
		default:
			t.Fatalf("unexpected participant %s", p.UserID)
		}
	}
}

func TestOpportunities_UnbalancedAt25Percent(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	m.ring([]int64{125, 100, 75}, nil)

	res := m.query(chain.OpportunitiesQuery{})
	require.Equal(t, 1, res.Total)
	c := res.Chains[0]
	assert.Equal(t, 3, c.ChainLength)
	assert.False(t, c.IsValueBalanced)
	assert.Equal(t, 75.0, c.ValueBalanceScore)

	res = m.query(chain.OpportunitiesQuery{BalancedOnly: true})
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Chains)
}

func TestOpportunities_BalancedAt20Percent(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	m.ring([]int64{120, 100, 80}, nil)

	res := m.query(chain.OpportunitiesQuery{BalancedOnly: true})
	require.Equal(t, 1, res.Total)
	assert.True(t, res.Chains[0].IsValueBalanced)
	assert.Equal(t, 80.0, res.Chains[0].ValueBalanceScore)
}

func TestOpportunities_LocationScore(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	moscow := &valueobject.Location{Latitude: 55.7558, Longitude: 37.6173}
	m.ring([]int64{100, 100, 100}, []*valueobject.Location{moscow, moscow, moscow})

	far := &valueobject.Location{Latitude: 59.9343, Longitude: 30.3351}
	m.ring([]int64{100, 100}, []*valueobject.Location{moscow, far})

	res := m.query(chain.OpportunitiesQuery{})
	require.Equal(t, 2, res.Total)
	assert.Equal(t, 100.0, res.Chains[0].LocationScore)
	assert.Equal(t, 100.0, res.Chains[0].TotalScore)
	assert.Equal(t, 0.0, res.Chains[1].LocationScore, "дальше порога")
	assert.Equal(t, 50.0, res.Chains[1].TotalScore)

	res = m.query(chain.OpportunitiesQuery{MinScore: 60})
	require.Equal(t, 1, res.Total)
	assert.Equal(t, 3, res.Chains[0].ChainLength)
}

func TestOpportunities_SortedAndPaginated(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	m.ring([]int64{100, 100}, nil)
	m.ring([]int64{100, 150}, nil)
	m.ring([]int64{100, 110, 90}, nil)

	res := m.query(chain.OpportunitiesQuery{})
	require.Equal(t, 3, res.Total)
	for i := 1; i < len(res.Chains); i++ {
		assert.GreaterOrEqual(t, res.Chains[i-1].TotalScore, res.Chains[i].TotalScore)
	}

	page := m.query(chain.OpportunitiesQuery{Limit: 1, Offset: 1})
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Chains, 1)
	assert.Equal(t, res.Chains[1].Key(), page.Chains[0].Key())

	empty := m.query(chain.OpportunitiesQuery{Offset: 10})
	assert.Equal(t, 3, empty.Total)
	assert.Empty(t, empty.Chains)
}

func TestOpportunities_EachCycleOnceAndUserFilter(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	users, _ := m.ring([]int64{100, 100, 100, 100}, nil)
	m.ring([]int64{100, 100}, nil)

	all := m.query(chain.OpportunitiesQuery{})
	assert.Equal(t, 2, all.Total)

	mine := m.query(chain.OpportunitiesQuery{UserID: &users[2]})
	require.Equal(t, 1, mine.Total)
	assert.True(t, mine.Chains[0].HasUser(users[2]))
	assert.Equal(t, 4, mine.Chains[0].ChainLength)

	keys := map[string]bool{}
	for _, c := range all.Chains {
		assert.False(t, keys[c.Key()], "цикл найден дважды")
		keys[c.Key()] = true
	}
	assert.True(t, keys[mine.Chains[0].Key()])
}

func TestOpportunities_RespectsMaxLength(t *testing.T) {
	cfg := chain.DefaultConfig()
	cfg.MaxLength = 3
	m := newMarket(t, cfg)
	m.ring([]int64{100, 100, 100, 100}, nil)

	res := m.query(chain.OpportunitiesQuery{})
	assert.Equal(t, 0, res.Total)
}

func TestOpportunities_InactiveProductBreaksCycle(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	_, products := m.ring([]int64{100, 100, 100}, nil)

	p := *products[1]
	p.Active = false
	m.store.Products().Save(m.ctx, &p)

	res := m.query(chain.OpportunitiesQuery{})
	assert.Equal(t, 0, res.Total)
}

func TestOpportunities_InvalidMinScore(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	_, err := chain.NewQueryOpportunitiesUseCase(m.engine).Execute(m.ctx, chain.OpportunitiesQuery{MinScore: 101})
	assert.True(t, apperror.IsValidation(err))
}

func TestBuild_RevalidatesLiveData(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	users, products := m.ring([]int64{100, 100, 100}, nil)
	steps := []chain.Step{
		{UserID: users[1], GivesProductID: products[1].ID},
		{UserID: users[2], GivesProductID: products[2].ID},
		{UserID: users[0], GivesProductID: products[0].ID},
	}

	c, err := m.engine.Build(m.ctx, steps)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ChainLength)
	assert.True(t, c.IsValueBalanced)

	require.NoError(t, interest.NewWithdrawInterestUseCase(m.store.Interests()).Execute(m.ctx, users[2], products[0].ID))
	_, err = m.engine.Build(m.ctx, steps)
	assert.True(t, apperror.IsPreconditionFailed(err))

	_, err = m.engine.Build(m.ctx, []chain.Step{{UserID: users[0], GivesProductID: products[0].ID}})
	assert.True(t, apperror.IsValidation(err))

	_, err = m.engine.Build(m.ctx, []chain.Step{
		{UserID: users[0], GivesProductID: products[1].ID},
		{UserID: users[1], GivesProductID: products[0].ID},
	})
	assert.True(t, apperror.IsPreconditionFailed(err), "чужие товары")
}

func TestExpressInterest_OwnProductRejected(t *testing.T) {
	m := newMarket(t, chain.DefaultConfig())
	owner := uuid.New()
	p := m.product(owner, 10, nil)

	_, err := interest.NewExpressInterestUseCase(m.store.Interests(), m.store.Products(), nil).Execute(m.ctx, owner, p.ID)
	assert.True(t, apperror.IsValidation(err))
}
