// @title       Kanso Routines API
// @version     1.0
// @description Context aware routine templates and guided routine sessions.
// @BasePath    /api/v1
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	_ "github.com/comitanigiacomo/kanso-routines/docs"
	"github.com/comitanigiacomo/kanso-routines/internal/adapters/cache"
	adapterHTTP "github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-routines/internal/adapters/outbox"
	"github.com/comitanigiacomo/kanso-routines/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-routines/internal/adapters/sink"
	"github.com/comitanigiacomo/kanso-routines/internal/config"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
	"github.com/comitanigiacomo/kanso-routines/internal/core/workers"
	"github.com/comitanigiacomo/kanso-routines/migrations"

	_ "time/tzdata"
)

func exportConfig(cfg config.ExportConfig) workers.ExportConfig {
	out := workers.DefaultExportConfig()
	if cfg.QueueSize > 0 {
		out.QueueSize = cfg.QueueSize
	}
	if cfg.RetryInterval > 0 {
		out.RetryInterval = cfg.RetryInterval
	}
	if cfg.MaxAttempts > 0 {
		out.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetriesPerSecond > 0 {
		out.RetriesPerSecond = cfg.RetriesPerSecond
	}
	return out
}

func main() {
	startTime := time.Now()

	cfg, err := config.Load(os.Getenv("KANSO_CONFIG"))
	if err != nil {
		log.Fatalf("Critical: Invalid configuration: %v", err)
	}

	contextDefaults, err := cfg.ContextDefaults()
	if err != nil {
		log.Fatalf("Critical: Invalid context defaults: %v", err)
	}

	log.Println("Connecting to database...")

	db, err := sqlx.Connect("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Critical: Failed to connect to database: %v", err)
	}
	defer db.Close()

	maxConns := cfg.Database.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrations.Apply(migrateCtx, db); err != nil {
		cancelMigrate()
		log.Fatalf("Critical: Failed to apply migrations: %v", err)
	}
	cancelMigrate()

	log.Println("Database connected successfully.")

	userRepo := repository.NewPostgresUserRepository(db)
	sessionRepo := repository.NewPostgresSessionRepository(db)
	settingsRepo := repository.NewPostgresContextSettingsRepository(db)

	var templateRepo domain.TemplateRepository = repository.NewPostgresTemplateRepository(db)
	sinks := []domain.CompletionSink{sink.NewRepositorySink(domain.HistorySink, sessionRepo)}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("[CACHE] Redis unavailable, running without cache, rate limit and publisher: %v", err)
		} else {
			rdb = client
			defer rdb.Close()
			templateRepo = repository.NewCachedTemplateRepository(templateRepo, rdb)
			sinks = append(sinks, sink.NewRedisPublisher(rdb))
		}
	}

	deliveries, err := outbox.Open(cfg.Export.OutboxDir)
	if err != nil {
		log.Fatalf("Critical: Failed to open outbox: %v", err)
	}
	defer deliveries.Close()

	exportWorker := workers.NewExportWorker(deliveries, exportConfig(cfg.Export), sinks...)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	exportWorker.Start(workerCtx)

	tokenService := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, userRepo)
	authService := services.NewAuthService(userRepo)
	contextService := services.NewContextService(settingsRepo, userRepo, contextDefaults)
	templateService := services.NewTemplateService(templateRepo, contextService)
	sessionService := services.NewSessionService(templateService, sessionRepo, exportWorker)
	statsService := services.NewStatsService(sessionRepo)

	deps := adapterHTTP.RouterDependencies{
		AuthHandler:     adapterHTTP.NewAuthHandler(authService, tokenService),
		TemplateHandler: adapterHTTP.NewTemplateHandler(templateService),
		ContextHandler:  adapterHTTP.NewContextHandler(contextService),
		SessionHandler:  adapterHTTP.NewSessionHandler(sessionService),
		StatsHandler:    adapterHTTP.NewStatsHandler(statsService, userRepo),
		TokenService:    tokenService,
		DB:              db,
		Redis:           rdb,
		Outbox:          deliveries,
		StartTime:       startTime,
		RateLimit:       cfg.Server.RateLimit,
		RateWindow:      cfg.Server.RateWindow,
	}
	router := adapterHTTP.NewRouter(deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Kanso Routines running on http://localhost:%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Critical server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Stop signal received. Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown error: %v", err)
	}

	stopWorker()
	exportWorker.Wait()

	log.Println("Server stopped gracefully.")
}
