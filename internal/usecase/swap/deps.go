package swap

import (
	"context"
	"time"

	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
)

// Policy - настраиваемые параметры жизненного цикла заявки.
type Policy struct {
	DisputeWindow         time.Duration
	DropOffBusinessDays   int
	DisputeMinDescription int
	// MaxRetries - сколько раз перечитывать заявку после конфликта версий.
	MaxRetries int
}

func DefaultPolicy() Policy {
	return Policy{
		DisputeWindow:         24 * time.Hour,
		DropOffBusinessDays:   3,
		DisputeMinDescription: 20,
		MaxRetries:            3,
	}
}

// AttemptLimiter ограничивает ввод QR и кодов подтверждения.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Deps - зависимости сценариев заявки. Events, Metrics и Limiter необязательны.
type Deps struct {
	Swaps    repository.SwapRequestRepository
	Disputes repository.DisputeRepository
	Products repository.ProductRepository
	Ledger   repository.Ledger
	Tx       repository.Transactor
	Events   repository.EventPublisher
	Limiter  AttemptLimiter
	Metrics  *metrics.SwapMetrics
	Clock    func() time.Time
	Policy   Policy
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	def := DefaultPolicy()
	if d.Policy.DisputeWindow <= 0 {
		d.Policy.DisputeWindow = def.DisputeWindow
	}
	if d.Policy.DropOffBusinessDays <= 0 {
		d.Policy.DropOffBusinessDays = def.DropOffBusinessDays
	}
	if d.Policy.DisputeMinDescription <= 0 {
		d.Policy.DisputeMinDescription = def.DisputeMinDescription
	}
	if d.Policy.MaxRetries <= 0 {
		d.Policy.MaxRetries = def.MaxRetries
	}
	return d
}
