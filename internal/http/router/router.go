package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/devmarket-backend/internal/config"
	"github.com/ignatzorin/devmarket-backend/internal/http/handlers"
	"github.com/ignatzorin/devmarket-backend/internal/http/middleware"
	"github.com/ignatzorin/devmarket-backend/internal/service"
)

// SetupRouter собирает все маршруты приложения.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	catalogHandler *handlers.CatalogHandler,
	proposalHandler *handlers.ProposalHandler,
	chatHandler *handlers.ChatHandler,
	milestoneHandler *handlers.MilestoneHandler,
	paymentHandler *handlers.PaymentHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/services", catalogHandler.ListServices)
	api.GET("/services/:id", middleware.UUIDValidator("id"), catalogHandler.GetService)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.GET("/paypal/status", profileHandler.GetPayPalStatus)
		protected.POST("/paypal/connect", profileHandler.ConnectPayPal)
		protected.POST("/paypal/disconnect", profileHandler.DisconnectPayPal)

		protected.POST("/services", catalogHandler.CreateService)

		protected.POST("/proposals", proposalHandler.CreateProposal)
		protected.GET("/proposals/sent", proposalHandler.ListSent)
		protected.GET("/proposals/received", proposalHandler.ListReceived)
		protected.GET("/proposals/:id", middleware.UUIDValidator("id"), proposalHandler.GetProposal)
		protected.POST("/proposals/:id/accept", middleware.UUIDValidator("id"), proposalHandler.AcceptProposal)
		protected.POST("/proposals/:id/reject", middleware.UUIDValidator("id"), proposalHandler.RejectProposal)
		protected.GET("/proposals/:id/transactions", middleware.UUIDValidator("id"), paymentHandler.ListProposalTransactions)

		protected.GET("/chats/my", chatHandler.ListMyChats)
		protected.GET("/chats/:id", middleware.UUIDValidator("id"), chatHandler.GetChat)
		protected.POST("/chats/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.CreateMilestone)

		protected.GET("/milestones/:id", middleware.UUIDValidator("id"), milestoneHandler.GetMilestone)
		protected.POST("/milestones/:id/agree", middleware.UUIDValidator("id"), milestoneHandler.AgreeMilestone)
		protected.POST("/milestones/:id/disagree", middleware.UUIDValidator("id"), milestoneHandler.DisagreeMilestone)
		protected.POST("/milestones/:id/pay", middleware.UUIDValidator("id"), milestoneHandler.StartPayment)
		protected.POST("/milestones/:id/capture", middleware.UUIDValidator("id"), milestoneHandler.CapturePayment)
		protected.POST("/milestones/:id/complete", middleware.UUIDValidator("id"), milestoneHandler.CompleteMilestone)
		protected.POST("/milestones/:id/confirm", middleware.UUIDValidator("id"), milestoneHandler.ConfirmPayout)
		protected.POST("/milestones/:id/refund", middleware.UUIDValidator("id"), milestoneHandler.RefundMilestone)

		protected.GET("/payments/transactions", paymentHandler.ListMyTransactions)
		protected.GET("/payments/transactions/:id", middleware.UUIDValidator("id"), paymentHandler.GetTransaction)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	return r
}
