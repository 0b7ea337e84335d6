// Worker consumes distillation jobs and audit events from Kafka.
// Set KAFKA_BROKERS, DATABASE_URL, and the OpenAI credentials; topics default to
// labstate-distill-jobs and labstate-audit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	auditdomain "labstate/internal/audit/domain"
	auditrepo "labstate/internal/audit/repository"
	"labstate/internal/compress"
	"labstate/internal/config"
	"labstate/internal/db"
	"labstate/internal/distill"
	distillrepo "labstate/internal/distill/repository"
	"labstate/internal/queue"
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

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "labstate-worker", false)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	compressor := compress.NewOpenAICompressor(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, logger)
	store := distillrepo.NewPostgresStore(pool)
	meter := providers.MeterProvider.Meter("labstate/distill")
	orchestrator, err := distill.NewOrchestrator(store, compressor, meter, logger, cfg.DistillBatchSize, cfg.MaxStateTokens)
	if err != nil {
		logger.Fatal("orchestrator", zap.Error(err))
	}
	scheduler := distill.NewScheduler(orchestrator, logger, cfg.DistillMaxAttempts, cfg.RetryBase())
	audits := auditrepo.NewPostgresRepository(pool)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reader := newReader(brokers, cfg.DistillKafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		consumeDistillJobs(ctx, logger, reader, scheduler)
	}()
	go func() {
		defer wg.Done()
		consumeAuditEvents(ctx, logger, newReader(brokers, cfg.AuditKafkaTopic, cfg.KafkaGroupID+"-audit"), audits)
	}()

	logger.Info("worker started",
		zap.Strings("brokers", brokers),
		zap.String("distill_topic", cfg.DistillKafkaTopic),
		zap.String("audit_topic", cfg.AuditKafkaTopic))
	wg.Wait()
	logger.Info("worker stopped")
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
}

// maxInflightJobs bounds how many distillation jobs run at once. Each job may
// sit in retry backoff for tens of seconds, so jobs must not run one at a time.
const maxInflightJobs = 4

// jobReader is the part of kafka.Reader the distill consumer reads from.
type jobReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// jobRunner runs one distillation with retries. Implemented by distill.Scheduler.
type jobRunner interface {
	Execute(ctx context.Context, labID string, signalIDs []string, actor string) (*distill.Result, error)
}

func consumeDistillJobs(ctx context.Context, logger *zap.Logger, reader jobReader, runner jobRunner) {
	sem := make(chan struct{}, maxInflightJobs)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("kafka read", zap.Error(err))
			continue
		}

		var job queue.DistillJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			logger.Error("malformed distill job", zap.Error(err))
			continue
		}
		actor := job.TriggeredBy
		if actor == "" {
			actor = "worker"
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := runner.Execute(ctx, job.LabID, job.SignalIDs, actor)
			switch {
			case err == nil:
			case errors.Is(err, distill.ErrNoSignals):
				logger.Info("nothing to distill", zap.String("lab_id", job.LabID))
			default:
				logger.Error("distillation failed", zap.String("lab_id", job.LabID), zap.Error(err))
			}
		}()
	}
}

func consumeAuditEvents(ctx context.Context, logger *zap.Logger, reader *kafka.Reader, audits auditrepo.Repository) {
	defer reader.Close()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("kafka read", zap.Error(err))
			continue
		}

		var entry auditdomain.Entry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			logger.Error("malformed audit event", zap.Error(err))
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := audits.Create(writeCtx, &entry); err != nil {
			logger.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
		}
		cancel()
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
