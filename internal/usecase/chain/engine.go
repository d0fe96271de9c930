package chain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

// Config - параметры поиска и оценки цепочек.
type Config struct {
	MinLength      int
	MaxLength      int
	ValueWeight    float64
	LocationWeight float64
	MaxDistanceKm  float64
	DefaultLimit   int
	// MaxCandidates ограничивает число циклов, перебираемых за один запрос.
	MaxCandidates int
	MaxEdges      int
}

func DefaultConfig() Config {
	return Config{
		MinLength:      2,
		MaxLength:      5,
		ValueWeight:    0.5,
		LocationWeight: 0.5,
		MaxDistanceKm:  50,
		DefaultLimit:   10,
		MaxCandidates:  1000,
		MaxEdges:       10000,
	}
}

// hardMaxLength - верхняя граница длины цикла независимо от настроек.
const hardMaxLength = 6

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinLength < 2 {
		c.MinLength = def.MinLength
	}
	if c.MaxLength <= 0 {
		c.MaxLength = def.MaxLength
	}
	if c.MaxLength > hardMaxLength {
		c.MaxLength = hardMaxLength
	}
	if c.MinLength > c.MaxLength {
		c.MinLength = c.MaxLength
	}
	if c.ValueWeight < 0 || c.LocationWeight < 0 || c.ValueWeight+c.LocationWeight == 0 {
		c.ValueWeight, c.LocationWeight = def.ValueWeight, def.LocationWeight
	}
	if c.MaxDistanceKm <= 0 {
		c.MaxDistanceKm = def.MaxDistanceKm
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.MaxEdges <= 0 {
		c.MaxEdges = def.MaxEdges
	}
	return c
}

// Engine ищет циклы в графе интересов. Состояния не хранит: каждый вызов
// строит граф заново из актуальных данных.
type Engine struct {
	interests repository.InterestRepository
	products  repository.ProductRepository
	metrics   *metrics.SwapMetrics
	cfg       Config
}

func NewEngine(interests repository.InterestRepository, products repository.ProductRepository, m *metrics.SwapMetrics, cfg Config) *Engine {
	return &Engine{
		interests: interests,
		products:  products,
		metrics:   m,
		cfg:       cfg.withDefaults(),
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// edge - пользователь хочет товар, владелец которого - Product.OwnerID.
type edge struct {
	product entity.Product
}

type graph map[uuid.UUID][]edge

func buildGraph(edges []entity.InterestEdge) graph {
	g := make(graph)
	for _, ie := range edges {
		g[ie.UserID] = append(g[ie.UserID], edge{product: ie.Product})
	}
	for user := range g {
		out := g[user]
		sort.Slice(out, func(i, j int) bool {
			return out[i].product.ID.String() < out[j].product.ID.String()
		})
	}
	return g
}

// Enumerate перечисляет все циклы длины MinLength..MaxLength. Если задан
// userID, перебор идёт только от него, иначе каждый цикл стартует с
// минимального по ID участника, чтобы не повторяться при поворотах.
func (e *Engine) Enumerate(ctx context.Context, userID *uuid.UUID) ([]entity.Chain, error) {
	started := time.Now()

	edges, err := e.interests.ListEdges(ctx, e.cfg.MaxEdges)
	if err != nil {
		return nil, err
	}
	g := buildGraph(edges)

	var starts []uuid.UUID
	if userID != nil {
		starts = []uuid.UUID{*userID}
	} else {
		for user := range g {
			starts = append(starts, user)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].String() < starts[j].String() })
	}

	w := &walker{g: g, cfg: e.cfg, canonical: userID == nil}
	for _, start := range starts {
		if w.full() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.walk(start)
	}

	chains := make([]entity.Chain, 0, len(w.cycles))
	for _, cycle := range w.cycles {
		chains = append(chains, e.score(cycle))
	}

	e.metrics.RecordChainSearch(len(chains), time.Since(started).Seconds())
	if w.full() {
		logger.Log.WithFields(logrus.Fields{
			"max_candidates": e.cfg.MaxCandidates,
			"edges":          len(edges),
		}).Warn("Поиск цепочек остановлен по лимиту кандидатов")
	}
	return chains, nil
}

type walker struct {
	g         graph
	cfg       Config
	canonical bool

	start  uuid.UUID
	path   []edge
	users  []uuid.UUID
	onPath map[uuid.UUID]bool
	cycles [][]entity.ChainParticipant
}

func (w *walker) full() bool {
	return len(w.cycles) >= w.cfg.MaxCandidates
}

func (w *walker) walk(start uuid.UUID) {
	w.start = start
	w.path = w.path[:0]
	w.users = append(w.users[:0], start)
	w.onPath = map[uuid.UUID]bool{start: true}
	w.dfs(start)
}

func (w *walker) dfs(user uuid.UUID) {
	for _, e := range w.g[user] {
		if w.full() {
			return
		}
		next := e.product.OwnerID
		switch {
		case next == w.start:
			if n := len(w.path) + 1; n >= w.cfg.MinLength && n <= w.cfg.MaxLength {
				w.emit(append(w.path, e))
			}
		case w.onPath[next]:
		case w.canonical && next.String() < w.start.String():
		case len(w.path)+1 >= w.cfg.MaxLength:
		default:
			w.path = append(w.path, e)
			w.users = append(w.users, next)
			w.onPath[next] = true
			w.dfs(next)
			delete(w.onPath, next)
			w.users = w.users[:len(w.users)-1]
			w.path = w.path[:len(w.path)-1]
		}
	}
}

// emit превращает путь рёбер в участников: i-й участник хочет товар ребра i
// и отдаёт товар ребра i-1, который хочет его предшественник.
func (w *walker) emit(path []edge) {
	n := len(path)
	participants := make([]entity.ChainParticipant, n)
	for i := 0; i < n; i++ {
		gives := path[(i-1+n)%n].product
		wants := path[i].product
		participants[i] = entity.ChainParticipant{
			UserID:              w.users[i],
			GivesProductID:      gives.ID,
			WantsProductID:      wants.ID,
			WantsProductOwnerID: wants.OwnerID,
			Value:               gives.Value,
			Location:            gives.Location,
		}
	}
	w.cycles = append(w.cycles, participants)
}

// Step - звено цепочки, которую пользователь хочет запустить.
type Step struct {
	UserID         uuid.UUID
	GivesProductID uuid.UUID
}

// Build проверяет, что цепочка всё ещё существует в живых данных, и оценивает её.
func (e *Engine) Build(ctx context.Context, steps []Step) (*entity.Chain, error) {
	n := len(steps)
	if n < e.cfg.MinLength || n > e.cfg.MaxLength {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "в цепочке должно быть от %d до %d участников", e.cfg.MinLength, e.cfg.MaxLength)
	}

	ids := make([]uuid.UUID, 0, n)
	seen := make(map[uuid.UUID]struct{}, n)
	for _, s := range steps {
		if _, dup := seen[s.UserID]; dup {
			return nil, apperror.New(apperror.ErrCodeValidation, "участник не может входить в цепочку дважды")
		}
		seen[s.UserID] = struct{}{}
		ids = append(ids, s.GivesProductID)
	}
	products, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, s := range steps {
		gives, ok := products[s.GivesProductID]
		if !ok {
			return nil, apperror.ErrProductNotFound
		}
		if gives.OwnerID != s.UserID || !gives.Active {
			return nil, stale("товар участника больше не доступен для обмена")
		}
	}

	participants := make([]entity.ChainParticipant, n)
	for i, s := range steps {
		gives := products[s.GivesProductID]
		wants := products[steps[(i+1)%n].GivesProductID]
		ok, err := e.interests.Has(ctx, s.UserID, wants.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, stale("участник больше не заинтересован в товаре следующего")
		}
		participants[i] = entity.ChainParticipant{
			UserID:              s.UserID,
			GivesProductID:      gives.ID,
			WantsProductID:      wants.ID,
			WantsProductOwnerID: wants.OwnerID,
			Value:               gives.Value,
			Location:            gives.Location,
		}
	}

	c := e.score(participants)
	return &c, nil
}

func stale(msg string) error {
	return apperror.New(apperror.ErrCodePreconditionFailed, "цепочка устарела: "+msg)
}
