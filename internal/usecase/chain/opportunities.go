package chain

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ignatzorin/barter-backend/internal/domain/entity"
	"github.com/ignatzorin/barter-backend/internal/pkg/apperror"
)

const maxOpportunitiesLimit = 50

type OpportunitiesQuery struct {
	// UserID - только цепочки с участием пользователя.
	UserID       *uuid.UUID
	MinScore     float64
	BalancedOnly bool
	Limit        int
	Offset       int
}

type OpportunitiesResult struct {
	Chains []entity.Chain
	Total  int
	// Limit и Offset - применённые значения после нормализации.
	Limit  int
	Offset int
}

// QueryOpportunitiesUseCase - ранжированный список возможных цепочек обмена.
type QueryOpportunitiesUseCase struct {
	engine *Engine
}

func NewQueryOpportunitiesUseCase(engine *Engine) *QueryOpportunitiesUseCase {
	return &QueryOpportunitiesUseCase{engine: engine}
}

func (uc *QueryOpportunitiesUseCase) Execute(ctx context.Context, q OpportunitiesQuery) (*OpportunitiesResult, error) {
	if q.MinScore < 0 || q.MinScore > maxScore {
		return nil, apperror.New(apperror.ErrCodeValidation, "minScore должен быть от 0 до 100")
	}
	if q.Limit <= 0 {
		q.Limit = uc.engine.cfg.DefaultLimit
	}
	if q.Limit > maxOpportunitiesLimit {
		q.Limit = maxOpportunitiesLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	chains, err := uc.engine.Enumerate(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	filtered := chains[:0]
	for _, c := range chains {
		if c.TotalScore < q.MinScore {
			continue
		}
		if q.BalancedOnly && !c.IsValueBalanced {
			continue
		}
		filtered = append(filtered, c)
	}
	sortChains(filtered)

	total := len(filtered)
	if q.Offset >= total {
		return &OpportunitiesResult{Chains: []entity.Chain{}, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return &OpportunitiesResult{Chains: filtered[q.Offset:end], Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// sortChains: по убыванию TotalScore, при равенстве короче и по ключу.
func sortChains(chains []entity.Chain) {
	sort.SliceStable(chains, func(i, j int) bool {
		a, b := chains[i], chains[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.ChainLength != b.ChainLength {
			return a.ChainLength < b.ChainLength
		}
		return a.Key() < b.Key()
	})
}
