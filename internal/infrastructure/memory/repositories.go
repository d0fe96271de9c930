package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

type DisputeRepository struct {
	store *Store
}

var _ repository.DisputeRepository = (*DisputeRepository)(nil)

func (r *DisputeRepository) Create(ctx context.Context, d *entity.Dispute) error {
	defer r.store.lock(ctx)()
	st := r.store.st

	for _, existing := range st.disputes {
		if existing.SwapRequestID == d.SwapRequestID && existing.Status == entity.DisputeStatusOpen {
			return apperror.New(apperror.ErrCodeConflict, "по заявке уже открыт спор")
		}
	}
	st.disputes[d.ID] = d.Clone()
	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, d *entity.Dispute) error {
	defer r.store.lock(ctx)()

	if _, ok := r.store.st.disputes[d.ID]; !ok {
		return apperror.ErrDisputeNotFound
	}
	r.store.st.disputes[d.ID] = d.Clone()
	return nil
}

func (r *DisputeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Dispute, error) {
	defer r.store.lock(ctx)()

	d, ok := r.store.st.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return d.Clone(), nil
}

func (r *DisputeRepository) FindOpenBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) (*entity.Dispute, error) {
	defer r.store.lock(ctx)()

	for _, d := range r.store.st.disputes {
		if d.SwapRequestID == swapRequestID && d.Status == entity.DisputeStatusOpen {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (r *DisputeRepository) ListBySwapRequest(ctx context.Context, swapRequestID uuid.UUID) ([]*entity.Dispute, error) {
	defer r.store.lock(ctx)()

	var out []*entity.Dispute
	for _, d := range r.store.st.disputes {
		if d.SwapRequestID == swapRequestID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type MultiSwapRepository struct {
	store *Store
}

var _ repository.MultiSwapRepository = (*MultiSwapRepository)(nil)

func (r *MultiSwapRepository) Create(ctx context.Context, m *entity.MultiSwap) error {
	defer r.store.lock(ctx)()
	st := r.store.st

	for id, existing := range st.multiSwaps {
		if existing.ChainKey != m.ChainKey || existing.Status != valueobject.MultiSwapStatusPending {
			continue
		}
		if !existing.IsExpired(m.CreatedAt) {
			return apperror.New(apperror.ErrCodeConflict, "эта цепочка уже ожидает подтверждения")
		}
		// просроченная, но ещё не закрытая цепочка не должна держать ключ
		expired := existing.Clone()
		expired.Status = valueobject.MultiSwapStatusExpired
		expired.UpdatedAt = m.CreatedAt
		expired.Version++
		st.multiSwaps[id] = expired
	}
	m.Version = 1
	st.multiSwaps[m.ID] = m.Clone()
	return nil
}

func (r *MultiSwapRepository) Update(ctx context.Context, m *entity.MultiSwap, expectedVersion int64) error {
	defer r.store.lock(ctx)()

	current, ok := r.store.st.multiSwaps[m.ID]
	if !ok {
		return apperror.ErrMultiSwapNotFound
	}
	if current.Version != expectedVersion {
		return apperror.ErrStaleVersion
	}
	m.Version = expectedVersion + 1
	r.store.st.multiSwaps[m.ID] = m.Clone()
	return nil
}

func (r *MultiSwapRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.MultiSwap, error) {
	defer r.store.lock(ctx)()

	m, ok := r.store.st.multiSwaps[id]
	if !ok {
		return nil, apperror.ErrMultiSwapNotFound
	}
	return m.Clone(), nil
}

func (r *MultiSwapRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.MultiSwap, int, error) {
	defer r.store.lock(ctx)()

	var matched []*entity.MultiSwap
	for _, m := range r.store.st.multiSwaps {
		if m.IsParticipant(userID) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	page := paginate(matched, limit, offset)
	out := make([]*entity.MultiSwap, 0, len(page))
	for _, m := range page {
		out = append(out, m.Clone())
	}
	return out, total, nil
}

func (r *MultiSwapRepository) FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.MultiSwap, error) {
	defer r.store.lock(ctx)()

	var out []*entity.MultiSwap
	for _, m := range r.store.st.multiSwaps {
		if m.Status == valueobject.MultiSwapStatusPending && m.IsExpired(now) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type ProductRepository struct {
	store *Store
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// Save добавляет или заменяет товар. Каталогом владеет внешний сервис,
// здесь это нужно для тестов и режима STORAGE_DRIVER=memory.
func (r *ProductRepository) Save(ctx context.Context, p *entity.Product) {
	defer r.store.lock(ctx)()
	cp := *p
	r.store.st.products[p.ID] = &cp
}

func (r *ProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	defer r.store.lock(ctx)()

	p, ok := r.store.st.products[id]
	if !ok {
		return nil, apperror.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*entity.Product, error) {
	defer r.store.lock(ctx)()

	out := make(map[uuid.UUID]*entity.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.store.st.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

type InterestRepository struct {
	store *Store
}

var _ repository.InterestRepository = (*InterestRepository)(nil)

func (r *InterestRepository) Add(ctx context.Context, interest *entity.Interest) error {
	defer r.store.lock(ctx)()

	key := interestKey{userID: interest.UserID, productID: interest.ProductID}
	if _, exists := r.store.st.interests[key]; exists {
		return nil
	}
	cp := *interest
	r.store.st.interests[key] = &cp
	return nil
}

func (r *InterestRepository) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	defer r.store.lock(ctx)()

	delete(r.store.st.interests, interestKey{userID: userID, productID: productID})
	return nil
}

func (r *InterestRepository) Has(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	defer r.store.lock(ctx)()

	_, ok := r.store.st.interests[interestKey{userID: userID, productID: productID}]
	return ok, nil
}

func (r *InterestRepository) ListEdges(ctx context.Context, limit int) ([]entity.InterestEdge, error) {
	defer r.store.lock(ctx)()
	st := r.store.st

	interests := make([]*entity.Interest, 0, len(st.interests))
	for _, i := range st.interests {
		interests = append(interests, i)
	}
	sort.Slice(interests, func(i, j int) bool {
		if interests[i].CreatedAt.Equal(interests[j].CreatedAt) {
			if interests[i].UserID == interests[j].UserID {
				return interests[i].ProductID.String() < interests[j].ProductID.String()
			}
			return interests[i].UserID.String() < interests[j].UserID.String()
		}
		return interests[i].CreatedAt.Before(interests[j].CreatedAt)
	})

	var edges []entity.InterestEdge
	for _, i := range interests {
		p, ok := st.products[i.ProductID]
		if !ok || !p.Active || p.OwnerID == i.UserID {
			continue
		}
		edges = append(edges, entity.InterestEdge{UserID: i.UserID, Product: *p})
		if limit > 0 && len(edges) >= limit {
			break
		}
	}
	return edges, nil
}
