package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/barter-backend/internal/config"
	"github.com/ignatzorin/barter-backend/internal/http/middleware"
	"github.com/ignatzorin/barter-backend/internal/infrastructure/metrics"
	"github.com/ignatzorin/barter-backend/internal/interface/http/handler"
	"github.com/ignatzorin/barter-backend/internal/service"
)

// Handlers - все HTTP хэндлеры сервиса. WS и Health могут быть nil.
type Handlers struct {
	Swap     *handler.SwapHandler
	Dispute  *handler.DisputeHandler
	Chain    *handler.ChainHandler
	Interest *handler.InterestHandler
	WS       *handler.WSHandler
	Health   *handler.HealthHandler
}

// Options - общая инфраструктура роутера.
type Options struct {
	Tokens      *service.TokenManager
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func SetupRouter(cfg *config.Config, h Handlers, opts Options) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger(opts.HTTPMetrics))
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(middleware.NewOriginPolicy(cfg.AllowedOrigins)))

	if h.Health != nil {
		r.GET("/health", h.Health.Health)
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(opts.Tokens))
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		// Заявки на обмен
		protected.POST("/swap-requests", h.Swap.CreateSwapRequest)
		protected.GET("/swap-requests/my", h.Swap.ListMySwapRequests)
		protected.GET("/swap-requests/:id", middleware.UUIDValidator("id"), h.Swap.GetSwapRequest)
		protected.GET("/swap-requests/:id/history", middleware.UUIDValidator("id"), h.Swap.History)
		protected.PUT("/swap-requests/:id/status", middleware.UUIDValidator("id"), h.Swap.UpdateRequestStatus)
		protected.POST("/swap-requests/:id/offer", middleware.UUIDValidator("id"), h.Swap.ProposeOffer)
		protected.POST("/swap-requests/:id/cancel", middleware.UUIDValidator("id"), h.Swap.Cancel)

		// Доставка и передача
		protected.POST("/swap-requests/:id/delivery", middleware.UUIDValidator("id"), h.Swap.ProposeDelivery)
		protected.POST("/swap-requests/:id/delivery/accept", middleware.UUIDValidator("id"), h.Swap.AcceptDelivery)
		protected.POST("/swap-requests/:id/evidence/:step", middleware.UUIDValidator("id"), h.Swap.AddEvidence)
		protected.POST("/swap-requests/:id/arrived", middleware.UUIDValidator("id"), h.Swap.SetArrived)
		protected.POST("/swap-requests/:id/scan-qr", middleware.UUIDValidator("id"), h.Swap.ScanQR)
		protected.POST("/swap-requests/:id/inspection", middleware.UUIDValidator("id"), h.Swap.StartInspection)
		protected.POST("/swap-requests/:id/approve", middleware.UUIDValidator("id"), h.Swap.ApproveProduct)
		protected.POST("/swap-requests/:id/verify-code", middleware.UUIDValidator("id"), h.Swap.VerifyCode)
		protected.POST("/swap-requests/:id/drop-off", middleware.UUIDValidator("id"), h.Swap.DropOff)
		protected.POST("/swap-requests/:id/pick-up", middleware.UUIDValidator("id"), h.Swap.PickUp)

		// Споры
		protected.POST("/swap-requests/:id/disputes", middleware.UUIDValidator("id"), h.Dispute.SubmitDispute)
		protected.GET("/swap-requests/:id/disputes", middleware.UUIDValidator("id"), h.Dispute.ListDisputes)

		// Интерес к товарам
		protected.PUT("/products/:id/interest", middleware.UUIDValidator("id"), h.Interest.ExpressInterest)
		protected.DELETE("/products/:id/interest", middleware.UUIDValidator("id"), h.Interest.WithdrawInterest)

		// Цепочки и многосторонние обмены
		protected.GET("/chains/opportunities", h.Chain.Opportunities)
		protected.POST("/multi-swaps", h.Chain.CreateMultiSwap)
		protected.GET("/multi-swaps/my", h.Chain.ListMyMultiSwaps)
		protected.GET("/multi-swaps/:id", middleware.UUIDValidator("id"), h.Chain.GetMultiSwap)
		protected.POST("/multi-swaps/:id/confirm", middleware.UUIDValidator("id"), h.Chain.ConfirmMultiSwap)
		protected.POST("/multi-swaps/:id/reject", middleware.UUIDValidator("id"), h.Chain.RejectMultiSwap)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(opts.Tokens), middleware.RequireRole(service.RoleAdmin))
	{
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), h.Dispute.ResolveDispute)
	}

	return r
}
