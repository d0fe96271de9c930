// Package app собирает зависимости сервиса из конфигурации: хранилище,
// публикацию событий, метрики и сценарии. Используется сервером и swapctl.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/db"
	"github.com/ignatzorin/barter-backend/internal/domain/repository"
	"github.com/ignatzorin/barter-backend/internal/domain/valueobject"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/events"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/ratelimit"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/usecase/chain"
	"github.com/ignatzorin/barter-backend/internal/usecase/multiswap"
	"github.com/ignatzorin/barter-backend/internal/usecase/swap"
	"github.com/ignatzorin/barter-backend/internal/ws"
)

// Storage - репозитории выбранного драйвера.
type Storage struct {
	Swaps      repository.SwapRequestRepository
	Disputes   repository.DisputeRepository
	Products   repository.ProductRepository
	Interests  repository.InterestRepository
	MultiSwaps repository.MultiSwapRepository
	Ledger     repository.Ledger
	Tx         repository.Transactor

	// DB заполнен только для postgres.
	DB *sqlx.DB
	// Memory заполнен только для memory.
	Memory *memory.Store
}

// App - собранное приложение.
type App struct {
	Config   *config.Config
	Storage  Storage
	Registry *prometheus.Registry
	Metrics  *metrics.SwapMetrics
	HTTP     *metrics.HTTPMetrics
	Hub      *ws.Hub
	Events   repository.EventPublisher
	Engine   *chain.Engine
	Swap     swap.Deps
	Multi    multiswap.Deps

	kafka *events.KafkaPublisher
}

// Options управляет необязательными частями сборки.
type Options struct {
	// Migrate применяет миграции при подключении к postgres.
	Migrate bool
	// Realtime включает WebSocket хаб, нужен только серверу.
	Realtime bool
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	valueobject.SetCodeHashCost(cfg.Swap.CodeHashCost)

	storage, err := openStorage(ctx, cfg, opts.Migrate)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if storage.DB != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(storage.DB.DB, "barter"))
	}
	swapMetrics := metrics.NewSwapMetrics(reg)

	a := &App{
		Config:   cfg,
		Storage:  storage,
		Registry: reg,
		Metrics:  swapMetrics,
		HTTP:     metrics.NewHTTPMetrics(reg),
	}

	var publishers []repository.EventPublisher
	if opts.Realtime {
		a.Hub = ws.NewHub()
		publishers = append(publishers, ws.NewNotifier(a.Hub))
	}
	if len(cfg.KafkaBrokers) > 0 {
		a.kafka = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, a.kafka)
		logger.Log.WithFields(logrus.Fields{
			"brokers": cfg.KafkaBrokers,
			"topic":   cfg.KafkaTopic,
		}).Info("Публикация событий в Kafka включена")
	}
	a.Events = events.NewFanout(publishers...)

	a.Engine = chain.NewEngine(storage.Interests, storage.Products, swapMetrics, chain.Config{
		MinLength:      cfg.Chain.MinLength,
		MaxLength:      cfg.Chain.MaxLength,
		ValueWeight:    cfg.Chain.ValueWeight,
		LocationWeight: cfg.Chain.LocationWeight,
		MaxDistanceKm:  cfg.Chain.MaxDistanceKm,
		DefaultLimit:   cfg.Chain.DefaultLimit,
		MaxCandidates:  cfg.Chain.MaxCandidates,
	})

	a.Swap = swap.Deps{
		Swaps:    storage.Swaps,
		Disputes: storage.Disputes,
		Products: storage.Products,
		Ledger:   storage.Ledger,
		Tx:       storage.Tx,
		Events:   a.Events,
		Limiter:  ratelimit.NewAttemptLimiter(cfg.Swap.CodeAttemptLimit, cfg.Swap.CodeAttemptPeriod),
		Metrics:  swapMetrics,
		Policy: swap.Policy{
			DisputeWindow:         cfg.Swap.DisputeWindow,
			DropOffBusinessDays:   cfg.Swap.DropOffBusinessDays,
			DisputeMinDescription: cfg.Swap.DisputeMinDescription,
		},
	}
	a.Multi = multiswap.Deps{
		MultiSwaps: storage.MultiSwaps,
		Engine:     a.Engine,
		Tx:         storage.Tx,
		Events:     a.Events,
		Metrics:    swapMetrics,
		TTL:        cfg.MultiSwap.TTL,
	}
	return a, nil
}

func openStorage(ctx context.Context, cfg *config.Config, migrate bool) (Storage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		store := memory.NewStore()
		logger.Log.Warn("Используется in-memory хранилище, данные не сохраняются между запусками")
		return Storage{
			Swaps:      store.SwapRequests(),
			Disputes:   store.Disputes(),
			Products:   store.Products(),
			Interests:  store.Interests(),
			MultiSwaps: store.MultiSwaps(),
			Ledger:     store.Ledger(),
			Tx:         store,
			Memory:     store,
		}, nil
	}

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return Storage{}, fmt.Errorf("app: подключение к базе: %w", err)
	}
	if migrate {
		if _, err := db.RunMigrations(ctx, conn, cfg.MigrationsPath); err != nil {
			_ = conn.Close()
			return Storage{}, fmt.Errorf("app: миграции: %w", err)
		}
	}
	return Storage{
		Swaps:      persistence.NewSwapRequestRepository(conn),
		Disputes:   persistence.NewDisputeRepository(conn),
		Products:   persistence.NewProductRepository(conn),
		Interests:  persistence.NewInterestRepository(conn),
		MultiSwaps: persistence.NewMultiSwapRepository(conn),
		Ledger:     persistence.NewLedger(conn),
		Tx:         persistence.NewTransactor(conn),
		DB:         conn,
	}, nil
}

// Sweep выполняет один проход фоновых задач: просроченные сдачи в пункт,
// снятие удержаний и истечение многосторонних обменов.
func (a *App) Sweep(ctx context.Context) (*swap.SweepResult, int, error) {
	res, swapErr := swap.NewSweepUseCase(a.Swap).Execute(ctx)
	expired, multiErr := multiswap.NewExpireMultiSwapsUseCase(a.Multi).Execute(ctx)
	return res, expired, errors.Join(swapErr, multiErr)
}

func (a *App) Close() error {
	var errs []error
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.Storage.DB != nil {
		errs = append(errs, a.Storage.DB.Close())
	}
	return errors.Join(errs...)
}
