// Package memory - хранилище в памяти с теми же гарантиями, что и Postgres:
// сравнение версии при записи и откат транзакции при ошибке.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
)

type interestKey struct {
	userID    uuid.UUID
	productID uuid.UUID
}

type state struct {
	swaps      map[uuid.UUID]*entity.SwapRequest
	events     map[uuid.UUID][]entity.StatusTransition
	disputes   map[uuid.UUID]*entity.Dispute
	multiSwaps map[uuid.UUID]*entity.MultiSwap
	products   map[uuid.UUID]*entity.Product
	interests  map[interestKey]*entity.Interest
	balances   map[uuid.UUID]int64
	holds      map[uuid.UUID]*entity.ValorHold
}

func newState() *state {
	return &state{
		swaps:      make(map[uuid.UUID]*entity.SwapRequest),
		events:     make(map[uuid.UUID][]entity.StatusTransition),
		disputes:   make(map[uuid.UUID]*entity.Dispute),
		multiSwaps: make(map[uuid.UUID]*entity.MultiSwap),
		products:   make(map[uuid.UUID]*entity.Product),
		interests:  make(map[interestKey]*entity.Interest),
		balances:   make(map[uuid.UUID]int64),
		holds:      make(map[uuid.UUID]*entity.ValorHold),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for id, v := range s.swaps {
		cp.swaps[id] = v.Clone()
	}
	for id, v := range s.events {
		cp.events[id] = append([]entity.StatusTransition(nil), v...)
	}
	for id, v := range s.disputes {
		cp.disputes[id] = v.Clone()
	}
	for id, v := range s.multiSwaps {
		cp.multiSwaps[id] = v.Clone()
	}
	for id, v := range s.products {
		p := *v
		cp.products[id] = &p
	}
	for k, v := range s.interests {
		i := *v
		cp.interests[k] = &i
	}
	for id, v := range s.balances {
		cp.balances[id] = v
	}
	for id, v := range s.holds {
		h := *v
		cp.holds[id] = &h
	}
	return cp
}

type txKey struct{}

// Store - общий владелец состояния. Репозитории - его представления.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx держит блокировку на всё время fn и восстанавливает снимок при ошибке.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock берёт мьютекс, если вызов не внутри WithinTx.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) SwapRequests() *SwapRequestRepository {
	return &SwapRequestRepository{store: s}
}

func (s *Store) Disputes() *DisputeRepository {
	return &DisputeRepository{store: s}
}

func (s *Store) MultiSwaps() *MultiSwapRepository {
	return &MultiSwapRepository{store: s}
}

func (s *Store) Products() *ProductRepository {
	return &ProductRepository{store: s}
}

func (s *Store) Interests() *InterestRepository {
	return &InterestRepository{store: s}
}

func (s *Store) Ledger() *Ledger {
	return &Ledger{store: s}
}
