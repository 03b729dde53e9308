package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/devmarket-backend/internal/config"
	"github.com/ignatzorin/devmarket-backend/internal/db"
	"github.com/ignatzorin/devmarket-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/devmarket-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/devmarket-backend/internal/http/router"
	"github.com/ignatzorin/devmarket-backend/internal/logger"
	"github.com/ignatzorin/devmarket-backend/internal/paypal"
	"github.com/ignatzorin/devmarket-backend/internal/repository"
	"github.com/ignatzorin/devmarket-backend/internal/scheduler"
	"github.com/ignatzorin/devmarket-backend/internal/service"
	"github.com/ignatzorin/devmarket-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Вспомогательные сервисы.
	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	gateway := paypal.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.GatewayTimeout)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	serviceRepo := repository.NewServiceRepository(dbConn)
	proposalRepo := repository.NewProposalRepository(dbConn)
	chatRepo := repository.NewChatRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	transactionRepo := repository.NewTransactionRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	go hub.Run()

	// Сервисы.
	authService := service.NewAuthService(userRepo, tokenManager)
	accountService := service.NewAccountService(userRepo)
	catalogService := service.NewCatalogService(serviceRepo, cfg.Currency)
	proposalService := service.NewProposalService(proposalRepo, chatRepo, serviceRepo)
	chatService := service.NewChatService(chatRepo, milestoneRepo)
	notificationService := service.NewNotificationService(notificationRepo)
	ledgerService := service.NewLedgerService(transactionRepo, proposalRepo)
	milestoneService := service.NewMilestoneService(
		milestoneRepo, chatRepo, proposalRepo, transactionRepo, userRepo,
		gateway, hub,
		service.MilestoneConfig{
			FeeRate:   cfg.PlatformFeeRate,
			Currency:  cfg.Currency,
			ReturnURL: cfg.PaymentReturnURL,
			CancelURL: cfg.PaymentCancelURL,
		},
	)

	hub.SetNotificationSaver(ws.NewNotificationServiceAdapter(notificationService))

	// Фоновая проверка просроченных этапов.
	sweeper := scheduler.NewSweeper(milestoneService, cfg.SweepInterval)
	goroutine.SafeGoWithContext(ctx, sweeper.Run)

	// HTTP хэндлеры.
	authHandler := httpHandlers.NewAuthHandler(authService)
	profileHandler := httpHandlers.NewProfileHandler(accountService)
	catalogHandler := httpHandlers.NewCatalogHandler(catalogService)
	proposalHandler := httpHandlers.NewProposalHandler(proposalService)
	chatHandler := httpHandlers.NewChatHandler(chatService)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	paymentHandler := httpHandlers.NewPaymentHandler(ledgerService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, authHandler, profileHandler, catalogHandler,
		proposalHandler, chatHandler, milestoneHandler, paymentHandler,
		notificationHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
