package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/barter-backend/internal/app"
	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/goroutine"
	httpRouter "github.com/ignatzorin/barter-backend/internal/http/router"
	"github.com/ignatzorin/barter-backend/internal/interface/http/handler"
	"github.com/ignatzorin/barter-backend/internal/logger"
	"github.com/ignatzorin/barter-backend/internal/service"
	"github.com/ignatzorin/barter-backend/internal/usecase/interest"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if cfg.Env == "development" {
		logger.SetTextFormatter()
	}

	a, err := app.New(ctx, cfg, app.Options{Migrate: true, Realtime: true})
	if err != nil {
		logger.Log.Fatalf("main: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Log.WithError(err).Warn("main: ошибка закрытия ресурсов")
		}
	}()

	// Фоновые задачи останавливаются по ctx. Ждём их до закрытия хранилища.
	var background goroutine.Group
	defer background.Wait()
	background.GoWithContext(ctx, "ws.hub", a.Hub.Run)
	background.GoWithContext(ctx, "sweeper", func(ctx context.Context) {
		runSweeper(ctx, a, cfg.Swap.SweepInterval)
	})

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	var health *handler.HealthHandler
	if a.Storage.DB != nil {
		health = handler.NewHealthHandler(a.Storage.DB, cfg.StorageDriver)
	} else {
		health = handler.NewHealthHandler(nil, cfg.StorageDriver)
	}

	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Swap:    handler.NewSwapHandler(a.Swap),
		Dispute: handler.NewDisputeHandler(a.Swap),
		Chain:   handler.NewChainHandler(a.Engine, a.Multi),
		Interest: handler.NewInterestHandler(
			interest.NewExpressInterestUseCase(a.Storage.Interests, a.Storage.Products, nil),
			interest.NewWithdrawInterestUseCase(a.Storage.Interests),
		),
		WS:     handler.NewWSHandler(a.Hub, tokenManager, cfg.AllowedOrigins),
		Health: health,
	}, httpRouter.Options{
		Tokens:      tokenManager,
		Gatherer:    a.Registry,
		HTTPMetrics: a.HTTP,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo("http.shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	})

	logger.Log.WithFields(logrus.Fields{
		"port":    cfg.HTTPPort,
		"storage": cfg.StorageDriver,
		"env":     cfg.Env,
	}).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// runSweeper периодически запускает фоновые задачи до отмены ctx.
func runSweeper(ctx context.Context, a *app.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, expired, err := a.Sweep(ctx)
			entry := logger.Log.WithFields(logrus.Fields{
				"expired_drop_offs":   res.ExpiredDropOffs,
				"released_holds":      res.ReleasedHolds,
				"expired_multi_swaps": expired,
			})
			if err != nil {
				entry.WithError(err).Warn("sweep: проход завершился с ошибками")
				continue
			}
			if res.ExpiredDropOffs+res.ReleasedHolds+expired > 0 {
				entry.Info("sweep: проход завершён")
			}
		}
	}
}
