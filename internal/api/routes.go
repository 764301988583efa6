package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"expertresume/internal/api/middleware"
	"expertresume/internal/auth"
	"expertresume/internal/config"
	"expertresume/internal/hosting"
	"expertresume/internal/quota"
	"expertresume/internal/storage"
)

// RegisterRoutes wires every API route. Handlers receive their
// dependencies here; nothing reads global state.
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	controller *hosting.Controller,
	ledger *quota.Ledger,
	authService *auth.AuthService,
	storageClient *storage.Client,
	asynqClient *asynq.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
) {
	hostedHandler := NewHostedHandler(controller, storageClient, asynqClient, redisClient, logger, cfg.API.OrderRateLimitPerMinute)
	adminHandler := NewAdminHandler(controller, cfg.App.FrontendBaseURL)
	quotaHandler := NewQuotaHandler(ledger)
	authHandler := NewAuthHandler(db, authService, redisClient, logger)
	uploadHandler := NewUploadHandler(db, storageClient, ledger, logger, cfg.Upload.ClamdAddr, cfg.Upload.MaxBytes)
	wsHandler := NewWsHandler(redisClient, logger)

	authMiddleware := middleware.AuthMiddleware(authService)
	adminMiddleware := middleware.AdminMiddleware(db)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		hostedGroup := v1.Group("/hosted-resume")
		{
			hostedGroup.POST("", authMiddleware, hostedHandler.Host)
			hostedGroup.POST("/create-payment-order", hostedHandler.CreatePaymentOrder)
			hostedGroup.POST("/verify-payment", hostedHandler.VerifyPayment)
			hostedGroup.POST("/log-payment", hostedHandler.LogPayment)
			hostedGroup.GET("/:id", hostedHandler.View)
			hostedGroup.POST("/:id/update", hostedHandler.UpdateSnapshot)
			hostedGroup.GET("/:id/download-link", hostedHandler.DownloadLink)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(authMiddleware, adminMiddleware)
		{
			adminGroup.GET("/hosted-resumes", adminHandler.List)
			adminGroup.GET("/hosted-resume/:id", adminHandler.Get)
			adminGroup.PATCH("/hosted-resume/:id", adminHandler.SetFlags)
		}

		quotaGroup := v1.Group("/quota")
		{
			quotaGroup.POST("/decrement-quota", authMiddleware, quotaHandler.Decrement)
			quotaGroup.POST("/initialize-user-quotas", authMiddleware, quotaHandler.Initialize)
			quotaGroup.POST("/sync-quotas", authMiddleware, quotaHandler.Sync)
			quotaGroup.GET("/usage", authMiddleware, quotaHandler.Usage)
		}

		uploadGroup := v1.Group("/uploads")
		uploadGroup.Use(authMiddleware)
		{
			uploadGroup.POST("/resume", uploadHandler.Upload)
			uploadGroup.GET("/history", uploadHandler.History)
		}
	}
}
