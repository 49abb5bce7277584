package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fundingarb/internal/api"
	"fundingarb/internal/bot"
	"fundingarb/internal/config"
	"fundingarb/internal/exchange"
	"fundingarb/internal/lock"
	"fundingarb/internal/models"
	"fundingarb/internal/repository"
	"fundingarb/internal/service"
	"fundingarb/internal/websocket"
	"fundingarb/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	// Репозитории
	accountRepo := repository.NewExchangeAccountRepository(db)
	opportunityRepo := repository.NewOpportunityRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// WebSocket hub для push-обновлений фронтенду
	hub := websocket.NewHub()
	go hub.Run()

	// Сервисы
	exchangeService := service.NewExchangeService(accountRepo, cfg.Security.EncryptionKey)
	exchangeService.SetWebSocketHub(hub)

	notificationService := service.NewNotificationService(notificationRepo, settingsRepo)
	notificationService.SetWebSocketHub(hub)

	statsService := service.NewStatsService(statsRepo)
	statsService.SetWebSocketHub(hub)

	settingsService := service.NewSettingsService(settingsRepo)
	blacklistService := service.NewBlacklistService(blacklistRepo)

	// Биржевые клиенты движка: по одному на венью, используются Position
	// Coordinator-ом и Conditional-Order Monitor-ом для исполнения ордеров
	// и чтения публичных рыночных данных (funding rate, тикеры). Это
	// отдельный набор учетных данных от мультитенантных подключений
	// ExchangeService (используются для отображения балансов пользователя
	// в UI) - бот торгует от одного операторского аккаунта на биржу,
	// ключи которого берутся из переменных окружения <EXCH>_API_KEY/SECRET.
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelConnect()

	exchanges := make(map[models.Exchange]exchange.Exchange, len(models.AllExchanges))
	for _, name := range models.AllExchanges {
		client, err := exchange.NewExchange(string(name))
		if err != nil {
			logger.Fatal("failed to build exchange client", utils.Exchange(string(name)), utils.Err(err))
		}

		prefix := strings.ToUpper(string(name))
		apiKey := os.Getenv(prefix + "_API_KEY")
		apiSecret := os.Getenv(prefix + "_API_SECRET")
		passphrase := os.Getenv(prefix + "_API_PASSPHRASE")

		if apiKey == "" || apiSecret == "" {
			logger.Warn("no credentials configured, exchange available for public data only", utils.Exchange(string(name)))
		} else if err := client.Connect(connectCtx, apiKey, apiSecret, passphrase); err != nil {
			logger.Error("failed to connect exchange", utils.Exchange(string(name)), utils.Err(err))
		}

		exchanges[name] = client
	}

	locker := lock.NewInProcessLocker()

	engine := bot.NewEngine(
		cfg,
		exchanges,
		positionRepo,
		tradeRepo,
		tradeRepo,
		locker,
		positionRepo,
		notificationService,
		hub,
		opportunityRepo,
		logger.Logger,
	)

	arbitrageService := service.NewArbitrageService(engine, positionRepo, tradeRepo, opportunityRepo)

	deps := &api.Dependencies{
		ExchangeService:     exchangeService,
		ArbitrageService:    arbitrageService,
		StatsService:        statsService,
		SettingsService:     settingsService,
		NotificationService: notificationService,
		BlacklistService:    blacklistService,
		Hub:                 hub,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	go func() {
		if err := engine.Run(engineCtx); err != nil && err != context.Canceled {
			logger.Error("engine stopped", utils.Err(err))
		}
	}()

	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	cancelEngine()

	if err := exchangeService.Close(); err != nil {
		logger.Error("error closing exchange connections", utils.Err(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", utils.Err(err))
	}

	hub.Stop()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
