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

type SwapRequestRepository struct {
	store *Store
}

var _ repository.SwapRequestRepository = (*SwapRequestRepository)(nil)

func (r *SwapRequestRepository) Create(ctx context.Context, s *entity.SwapRequest) error {
	defer r.store.lock(ctx)()
	st := r.store.st

	if _, exists := st.swaps[s.ID]; exists {
		return apperror.New(apperror.ErrCodeConflict, "заявка уже существует")
	}
	for _, existing := range st.swaps {
		if existing.RequesterID == s.RequesterID && existing.ProductID == s.ProductID && existing.Status.IsActive() {
			return apperror.New(apperror.ErrCodeConflict, "у вас уже есть активная заявка на этот товар")
		}
	}

	s.Version = 1
	st.events[s.ID] = append(st.events[s.ID], s.PendingTransitions...)
	s.ClearPendingTransitions()
	st.swaps[s.ID] = s.Clone()
	return nil
}

func (r *SwapRequestRepository) Update(ctx context.Context, s *entity.SwapRequest, expectedVersion int64) error {
	defer r.store.lock(ctx)()
	st := r.store.st

	current, ok := st.swaps[s.ID]
	if !ok {
		return apperror.ErrSwapRequestNotFound
	}
	if current.Version != expectedVersion {
		return apperror.ErrStaleVersion
	}

	s.Version = expectedVersion + 1
	st.events[s.ID] = append(st.events[s.ID], s.PendingTransitions...)
	s.ClearPendingTransitions()
	st.swaps[s.ID] = s.Clone()
	return nil
}

func (r *SwapRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.SwapRequest, error) {
	defer r.store.lock(ctx)()

	s, ok := r.store.st.swaps[id]
	if !ok {
		return nil, apperror.ErrSwapRequestNotFound
	}
	return s.Clone(), nil
}

func (r *SwapRequestRepository) FindActiveByRequesterAndProduct(ctx context.Context, requesterID, productID uuid.UUID) (*entity.SwapRequest, error) {
	defer r.store.lock(ctx)()

	for _, s := range r.store.st.swaps {
		if s.RequesterID == requesterID && s.ProductID == productID && s.Status.IsActive() {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (r *SwapRequestRepository) List(ctx context.Context, filter repository.SwapRequestFilter) ([]*entity.SwapRequest, int, error) {
	defer r.store.lock(ctx)()

	var matched []*entity.SwapRequest
	for _, s := range r.store.st.swaps {
		if !matchesFilter(s, filter) {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page := paginate(matched, filter.Limit, filter.Offset)
	out := make([]*entity.SwapRequest, 0, len(page))
	for _, s := range page {
		out = append(out, s.Clone())
	}
	return out, total, nil
}

func matchesFilter(s *entity.SwapRequest, f repository.SwapRequestFilter) bool {
	if f.UserID != uuid.Nil {
		switch f.Role {
		case entity.RoleRequester:
			if s.RequesterID != f.UserID {
				return false
			}
		case entity.RoleOwner:
			if s.OwnerID != f.UserID {
				return false
			}
		default:
			if !s.IsParty(f.UserID) {
				return false
			}
		}
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, s.Status) {
		return false
	}
	return true
}

func containsStatus(list []valueobject.SwapStatus, s valueobject.SwapStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *SwapRequestRepository) History(ctx context.Context, id uuid.UUID) ([]entity.StatusTransition, error) {
	defer r.store.lock(ctx)()

	if _, ok := r.store.st.swaps[id]; !ok {
		return nil, apperror.ErrSwapRequestNotFound
	}
	return append([]entity.StatusTransition(nil), r.store.st.events[id]...), nil
}

func (r *SwapRequestRepository) FindDropOffsPastDeadline(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error) {
	return r.collect(ctx, limit, func(s *entity.SwapRequest) bool {
		return s.Status == valueobject.SwapStatusQRGenerated &&
			s.DeliveryType == valueobject.DeliveryTypeDropOff &&
			s.DropOffDeadline != nil && now.After(*s.DropOffDeadline)
	})
}

func (r *SwapRequestRepository) FindReleasableHolds(ctx context.Context, now time.Time, limit int) ([]*entity.SwapRequest, error) {
	return r.collect(ctx, limit, func(s *entity.SwapRequest) bool {
		return s.HoldReleasable(now)
	})
}

func (r *SwapRequestRepository) collect(ctx context.Context, limit int, keep func(*entity.SwapRequest) bool) ([]*entity.SwapRequest, error) {
	defer r.store.lock(ctx)()

	var out []*entity.SwapRequest
	for _, s := range r.store.st.swaps {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
