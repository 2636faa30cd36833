package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avdeyev/socialguard/internal/background"
	"github.com/avdeyev/socialguard/internal/channel/webhook"
	"github.com/avdeyev/socialguard/internal/config"
	"github.com/avdeyev/socialguard/internal/database"
	"github.com/avdeyev/socialguard/internal/dispatch"
	"github.com/avdeyev/socialguard/internal/game"
	"github.com/avdeyev/socialguard/internal/geo"
	"github.com/avdeyev/socialguard/internal/handlers"
	"github.com/avdeyev/socialguard/internal/identity"
	"github.com/avdeyev/socialguard/internal/messages"
	middlewareCustom "github.com/avdeyev/socialguard/internal/middleware"
	"github.com/avdeyev/socialguard/internal/repositories"
	"github.com/avdeyev/socialguard/internal/routes"
	"github.com/avdeyev/socialguard/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", "", "load environment from this file before reading config")
	skipMigrations := pflag.Bool("skip-migrations", false, "do not run database migrations on startup")
	migrationsDir := pflag.String("migrations-dir", "migrations", "directory with goose migrations")
	pflag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file", slog.String("path", *envFile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if !*skipMigrations {
		if err := runMigrations(cfg, *migrationsDir); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Load the reply catalog
	msgs, err := messages.Load(cfg.Messages.Path)
	if err != nil {
		logger.Error("failed to load messages catalog", slog.Any("error", err))
		os.Exit(1)
	}

	// Stores
	linkStore := repositories.NewPostgresLinkStore(db)
	identityStore := identity.NewPostgresStore(db)

	// Game server boundary
	var gameServer game.Server = game.NoopServer{}
	if cfg.Game.WebhookURL != "" {
		gameServer = game.NewWebhookServer(cfg.Game.WebhookURL, cfg.Game.WebhookSecret)
	}

	// Geo resolution for confirmation and notify messages
	var geoResolver geo.Resolver = geo.NoopResolver{}
	if cfg.Geo.Enabled {
		geoResolver = geo.NewHTTPResolver(cfg.Geo.URL)
	}

	// Channel dispatcher and backends
	dispatcher := dispatch.New(logger, msgs.GenericError)
	backendCtx, backendCancel := context.WithCancel(context.Background())
	defer backendCancel()
	for kind, channelCfg := range cfg.Channels {
		dispatcher.Register(backendCtx, webhook.NewBackend(kind, channelCfg, logger))
	}
	logger.Info("channel backends ready", slog.Any("kinds", dispatcher.ActiveKinds()))

	// Services
	linkingService, err := services.NewLinkingService(dispatcher, linkStore, identityStore,
		gameServer, msgs, cfg.Linking, logger)
	if err != nil {
		logger.Error("failed to initialize linking service", slog.Any("error", err))
		os.Exit(1)
	}
	confirmService := services.NewConfirmService(dispatcher, linkStore, gameServer,
		geoResolver, msgs, cfg.Linking, logger)
	panelService := services.NewPanelService(dispatcher, linkStore, identityStore,
		linkingService, gameServer, geoResolver, msgs, cfg.Linking, logger)

	// Event wiring
	dispatcher.OnMessage(linkingService.HandleMessage)
	confirmService.RegisterHandlers()
	panelService.RegisterHandlers()
	linkingService.SetKeyboard(panelService.Keyboard())

	// Purge manager for pending codes and registration counters
	purgeManager := background.NewPurgeManager(logger, cfg.Linking.PurgeInterval, linkingService)
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	defer purgeCancel()
	go purgeManager.Start(purgeCtx)

	// Handlers
	gameHandler := handlers.NewGameHandler(confirmService, linkingService, logger)
	adminHandler := handlers.NewAdminHandler(linkingService, logger)
	channelInbound := webhook.InboundHandler(dispatcher, cfg.Channels, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	routes.RegisterRoutes(router, routes.Deps{
		Config:         cfg,
		DB:             db,
		GameHandler:    gameHandler,
		AdminHandler:   adminHandler,
		ChannelInbound: channelInbound,
	})

	// The login gate holds requests open for up to the confirmation timeout,
	// so the write timeout must sit above it.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Linking.ConfirmWaitTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	purgeCancel()
	purgeManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	dispatcher.Stop(shutdownCtx)

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// runMigrations applies pending goose migrations over a short-lived
// database/sql connection.
func runMigrations(cfg *config.Config, dir string) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(sqlDB, dir)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
