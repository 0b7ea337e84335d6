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

	"go.uber.org/zap"

	"labstate/internal/audit"
	auditrepo "labstate/internal/audit/repository"
	"labstate/internal/compress"
	"labstate/internal/config"
	"labstate/internal/db"
	"labstate/internal/distill"
	distillhandler "labstate/internal/distill/handler"
	distillrepo "labstate/internal/distill/repository"
	healthhandler "labstate/internal/health/handler"
	labhandler "labstate/internal/lab/handler"
	labrepo "labstate/internal/lab/repository"
	"labstate/internal/queue"
	runhandler "labstate/internal/run/handler"
	runrepo "labstate/internal/run/repository"
	"labstate/internal/security"
	"labstate/internal/server"
	signalhandler "labstate/internal/signal/handler"
	signalrepo "labstate/internal/signal/repository"
	statehandler "labstate/internal/state/handler"
	staterepo "labstate/internal/state/repository"
	"labstate/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "labstate-server", false)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}
	validator := security.NewValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	labs := labrepo.NewPostgresRepository(pool)
	signals := signalrepo.NewPostgresRepository(pool)
	states := staterepo.NewPostgresRepository(pool)
	runs := runrepo.NewPostgresRepository(pool)
	audits := auditrepo.NewPostgresRepository(pool)

	brokers := cfg.KafkaBrokersList()
	distillProducer := queue.NewProducer(brokers, cfg.DistillKafkaTopic)
	defer distillProducer.Close()
	auditProducer := queue.NewProducer(brokers, cfg.AuditKafkaTopic)
	defer auditProducer.Close()

	var auditPublisher audit.Publisher
	if auditProducer != nil {
		auditPublisher = auditProducer
	}
	auditLogger := audit.NewLogger(audits, auditPublisher, logger)

	compressor := compress.NewOpenAICompressor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, logger)
	store := distillrepo.NewPostgresStore(pool)
	meter := providers.MeterProvider.Meter("labstate/distill")
	orchestrator, err := distill.NewOrchestrator(store, compressor, meter, logger, cfg.DistillBatchSize, cfg.MaxStateTokens)
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}
	scheduler := distill.NewScheduler(orchestrator, logger, cfg.DistillMaxAttempts, cfg.RetryBase())

	var enqueuer distillhandler.Enqueuer
	if distillProducer != nil {
		enqueuer = distillProducer
	}

	router := server.New(server.Deps{
		Log:         logger,
		Validator:   validator,
		AuditLogger: auditLogger,
		Labs:        labs,
		Health:      healthhandler.NewHandler(pool),
		Lab:         labhandler.NewHandler(labs),
		Signal:      signalhandler.NewHandler(signals),
		State:       statehandler.NewHandler(states),
		Run:         runhandler.NewHandler(runs),
		Distill:     distillhandler.NewHandler(scheduler, enqueuer),
		Env:         cfg.Env,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
