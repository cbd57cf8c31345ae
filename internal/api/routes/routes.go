package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custody-service/custody_service/internal/api/handlers"
	"github.com/custody-service/custody_service/internal/api/middleware"
	"github.com/custody-service/custody_service/internal/infrastructure/di"
	"github.com/custody-service/custody_service/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()

	// Global middleware - order matters
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.Config.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	healthHandlers := handlers.NewHealthHandlers(container.DB, container.Redis)
	walletHandlers := handlers.NewWalletHandlers(
		container.AddressService,
		container.WithdrawalService,
		container.TenantRepo,
		container.LedgerRepo,
		container.PendingRepo,
		container.Config,
		container.Logger,
	)
	webhookHandlers := handlers.NewWebhookHandler(
		container.AddressService,
		container.CreditingService,
		container.PendingRepo,
		container.Config.Chain.Asset,
		container.Config.Chain.WebhookSecret,
		container.Logger.Zap(),
	)

	var monitorReporter handlers.MonitorStatusReporter
	if container.Monitor != nil {
		monitorReporter = container.Monitor
	}
	adminHandlers := handlers.NewAdminHandlers(
		container.FeeProfitRepo,
		monitorReporter,
		container.AddressService,
		container.ChainProvider,
		container.Logger,
	)

	// Health checks and metrics (no auth required)
	router.GET("/health", healthHandlers.Health)
	router.GET("/ready", healthHandlers.Ready)
	router.GET("/live", healthHandlers.Live)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks (HMAC-verified, no JWT)
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/transfers", webhookHandlers.HandleTransfer)
	}

	// Client API (JWT-authenticated)
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Authentication(container.Config, container.Logger))
	{
		v1.GET("/deposit-address", walletHandlers.GetDepositAddress)
		v1.GET("/balance", walletHandlers.GetBalance)
		v1.GET("/transactions", walletHandlers.ListTransactions)
		v1.POST("/deposits", walletHandlers.InitiateDeposit)
		v1.GET("/deposits/:order_id", walletHandlers.GetDepositStatus)
		v1.POST("/withdraw", walletHandlers.Withdraw)
	}

	// Operator API (JWT + admin role)
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.Authentication(container.Config, container.Logger))
	admin.Use(middleware.AdminAuth())
	{
		admin.GET("/fee-profits", adminHandlers.ListFeeProfits)
		admin.GET("/fee-profits/stats", adminHandlers.FeeProfitStats)
		admin.GET("/monitor/status", adminHandlers.MonitorStatus)
		admin.GET("/addresses/:address/balance", adminHandlers.AddressBalance)
	}

	return router
}
