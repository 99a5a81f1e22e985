package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provider-sync/config"
	"provider-sync/internal/api"
	"provider-sync/internal/auth"
	"provider-sync/internal/broker"
	"provider-sync/internal/models"
	"provider-sync/internal/provider"
	"provider-sync/internal/redisclient"
	"provider-sync/internal/secrets"
	"provider-sync/internal/service"
	"provider-sync/internal/store"
	"provider-sync/internal/util"
	"provider-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting provider sync service", zap.String("sync_mode", cfg.Sync.Mode))

	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("JWT_SECRET must be set")
	}

	tp, err := util.InitTracer("provider-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(cfg.Database.MigrationsPath, logger); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	auditProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
	jobProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSyncJobs)
	eventPublisher := broker.NewEventPublisher(auditProducer, jobProducer)
	defer eventPublisher.Close()
	log.Println("Kafka producers initialized")

	sealer, err := newSealer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize credential sealer: %v", err)
	}

	allowUnsigned := cfg.Webhooks.AllowUnsigned && !cfg.Server.IsProduction()
	if allowUnsigned {
		logger.Warn("Unsigned webhooks are accepted for providers without a secret")
	}
	verifier := provider.NewSignatureVerifier(map[models.Provider]string{
		models.ProviderUberEats: cfg.Webhooks.UberEatsSecret,
		models.ProviderDoorDash: cfg.Webhooks.DoorDashSecret,
	}, allowUnsigned)

	normalizer, err := provider.NewNormalizer()
	if err != nil {
		log.Fatalf("Failed to load webhook schemas: %v", err)
	}

	clients, err := newProviderClients(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize provider clients: %v", err)
	}

	async := cfg.Sync.Mode == "async"

	audit := service.NewEventAuditLog(db, eventPublisher)
	authz := service.NewAuthorizer(db)
	registry := service.NewIntegrationRegistry(db, sealer)
	dispatcher := service.NewStatusSyncDispatcher(db, registry, clients, audit, eventPublisher, async)
	webhookService := service.NewWebhookService(verifier, normalizer, registry, service.NewOrderUpsertEngine(db, audit), audit)
	orderService := service.NewOrderService(db, authz, audit, dispatcher)
	lifecycle := service.NewIntegrationLifecycleManager(db, authz, sealer, audit)
	retryScheduler := service.NewRetryScheduler(db, dispatcher, redisClient, service.RetryPolicy{
		MaxRetries: cfg.Sync.MaxRetries,
		Window:     cfg.Sync.RetryWindow,
		ClaimLease: cfg.Sync.ClaimLease,
		BatchSize:  cfg.Sync.BatchSize,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var syncWorker *worker.SyncWorker
	if async {
		jobConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSyncJobs, cfg.Kafka.ConsumerGroup)
		syncWorker = worker.NewSyncWorker(jobConsumer, dispatcher, cfg.Sync.JobTimeout)
		go func() {
			if err := syncWorker.Start(workerCtx); err != nil {
				log.Printf("Sync worker error: %v", err)
			}
		}()
	}

	var retryWorker *worker.RetryWorker
	if cfg.Sync.RetrySchedule != "" {
		retryWorker, err = worker.NewRetryWorker(cfg.Sync.RetrySchedule, retryScheduler)
		if err != nil {
			log.Fatalf("Failed to schedule retry sweep: %v", err)
		}
		retryWorker.Start()
	}

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Webhooks:       webhookService,
		Orders:         orderService,
		Integrations:   lifecycle,
		Retry:          retryScheduler,
		Auth:           auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		SchedulerToken: cfg.Auth.SchedulerToken,
		Readiness: map[string]api.ReadinessCheck{
			"database": db.GetDB().PingContext,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if retryWorker != nil {
		retryWorker.Stop()
	}
	workerCancel()
	if syncWorker != nil {
		syncWorker.Stop()
	}

	log.Println("Server exited")
}

// newSealer uses the configured key. Without one, a passphrase derived key
// is allowed outside production only.
func newSealer(cfg *config.Config) (*secrets.Sealer, error) {
	if cfg.Credentials.Key != "" {
		return secrets.NewSealer(cfg.Credentials.KeyID, cfg.Credentials.Key)
	}
	if cfg.Server.IsProduction() {
		return nil, fmt.Errorf("CREDENTIALS_KEY must be set in production")
	}
	log.Println("CREDENTIALS_KEY not set, using development sealer")
	return secrets.NewDevelopmentSealer(cfg.Auth.JWTSecret), nil
}

func newProviderClients(cfg *config.Config) (service.ProviderClients, error) {
	endpoints := map[models.Provider]config.ProviderEndpoint{
		models.ProviderUberEats: cfg.Providers.UberEats,
		models.ProviderDoorDash: cfg.Providers.DoorDash,
	}

	clients := service.ProviderClients{}
	for p, e := range endpoints {
		c, err := provider.NewHTTPClient(p, provider.Endpoint{
			TokenURL:   e.TokenURL,
			APIBaseURL: e.APIBaseURL,
			Scope:      e.Scope,
		}, cfg.Providers.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("%s client: %w", p, err)
		}
		clients[p] = c
	}
	return clients, nil
}
