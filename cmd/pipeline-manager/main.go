// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gearbox-workers/internal/common/audit"
	"gearbox-workers/internal/common/broadcast"
	"gearbox-workers/internal/common/config"
	"gearbox-workers/internal/common/database"
	"gearbox-workers/internal/common/flags"
	"gearbox-workers/internal/common/httpclient"
	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/common/observability"
	"gearbox-workers/internal/common/queue"
	"gearbox-workers/internal/common/secrets"
	"gearbox-workers/internal/models"
	"gearbox-workers/internal/store"
	"gearbox-workers/internal/suggest"

	pricelookup "gearbox-workers/internal/workers/price-lookup"
	"gearbox-workers/internal/workers/price-lookup/search"
	vehiclelookup "gearbox-workers/internal/workers/vehicle-lookup"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// instrumentedHandler wraps a queue handler with the otel pipeline
// instruments: per-job duration and terminal case outcomes.
type instrumentedHandler struct {
	inner queue.Handler
	obs   *observability.Observability
	stage string
}

func (h *instrumentedHandler) Handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	err := h.inner.Handle(ctx, job)
	h.obs.RecordStageDuration(ctx, h.stage, time.Since(start))
	if err == nil {
		h.obs.RecordCaseProcessed(ctx, "completed")
	}
	return err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...")

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Audit Recorder ---
	var recorder audit.Recorder = audit.NoopRecorder{}
	if cfg.Audit.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		recorder = audit.NewElasticsearchRecorder(esClient, cfg.Database.Elasticsearch.AuditIndex, zapLog)
		zapLog.Info("Elasticsearch audit recorder enabled")
	}

	// --- Init Broadcaster ---
	var broadcaster broadcast.Broadcaster = broadcast.NoopBroadcaster{}
	if cfg.Broadcast.Enabled {
		sns, err := broadcast.NewSNSBroadcaster(ctx, cfg.Broadcast.Region, cfg.Broadcast.TopicARN, zapLog)
		if err != nil {
			zapLog.Fatal("sns broadcaster failed", zap.Error(err))
		}
		broadcaster = sns
		zapLog.Info("SNS suggestion broadcaster enabled")
	}

	// --- Shared Services ---
	secretStore := secrets.NewEnvStore()
	flagProvider := flags.NewConfigProvider(cfg.Flags)
	llmClient := llm.NewClient(cfg.APIs, log)

	caseStore := store.NewCaseStore(pg)
	lookupCacheStore := store.NewLookupCacheStore(pg)
	snapshotStore := store.NewSnapshotStore(pg)
	suggestionStore := store.NewSuggestionStore(pg)

	builder := suggest.NewBuilder(cfg.Suggestion)
	generator := suggest.NewGenerator(suggestionStore, recorder, broadcaster, flagProvider, cfg.Suggestion, log)

	// --- Queues ---
	vehicleQueue, err := queue.New(redis.Client, models.QueueVehicleLookup, models.VehicleLookupJobSchema)
	if err != nil {
		zapLog.Fatal("vehicle-lookup queue init failed", zap.Error(err))
	}
	priceQueue, err := queue.New(redis.Client, models.QueuePriceLookup, models.PriceLookupJobSchema)
	if err != nil {
		zapLog.Fatal("price-lookup queue init failed", zap.Error(err))
	}

	// Exhausted retries mark the owning case FAILED so the conversation
	// layer stops waiting on it.
	onExhausted := func(ctx context.Context, job *queue.Job, jobErr error) {
		var ref struct {
			CaseID         string `json:"caseId"`
			TenantID       string `json:"tenantId"`
			ConversationID string `json:"conversationId"`
		}
		if err := job.Bind(&ref); err != nil || ref.CaseID == "" {
			return
		}
		if err := caseStore.MarkFailed(ctx, ref.CaseID, jobErr.Error()); err != nil {
			zapLog.Error("failed to mark exhausted case", zap.String("caseId", ref.CaseID), zap.Error(err))
		}
		obs.RecordCaseProcessed(ctx, "failed")
		recorder.Record(ctx, audit.Event{
			Type:           audit.EventJobRetryExhausted,
			TenantID:       ref.TenantID,
			CaseID:         ref.CaseID,
			ConversationID: ref.ConversationID,
			Detail: map[string]interface{}{
				"queue": job.Queue,
				"error": jobErr.Error(),
			},
		})
	}

	// --- Vehicle Lookup Worker ---
	vlCfg := vehiclelookup.LoadConfig(cfg)
	resolver := vehiclelookup.NewResolver(
		vehiclelookup.NewCatalogClient(vlCfg.CatalogBaseURL, httpclient.NewClient(vlCfg.CatalogTimeout), log),
		vehiclelookup.NewVinDecodeClient(vlCfg, log),
		vehiclelookup.NewLLMClassifier(llmClient, log),
		log,
	)
	vlHandler := vehiclelookup.NewHandler(vlCfg, caseStore, lookupCacheStore, resolver,
		builder, generator, priceQueue, recorder, log)
	vehicleWorker := queue.NewWorker(vehicleQueue,
		&instrumentedHandler{inner: vlHandler, obs: obs, stage: models.QueueVehicleLookup},
		config.GetQueueConfig(cfg, models.QueueVehicleLookup), zapLog, onExhausted)

	// --- Price Lookup Worker ---
	engine := search.NewEngine(
		search.NewRegionalSearcher(cfg.APIs.RegionalSearch, cfg.Search, secretStore, log),
		search.NewAISearcher(llmClient, log),
		search.NewInternationalSearcher(
			search.NewAISearcher(llmClient, log),
			search.NewFXClient(cfg.APIs.FX, log),
			log,
		),
		search.NewEstimator(llmClient, log),
		flagProvider,
		cfg.Search,
		log,
	)
	plHandler := pricelookup.NewHandler(snapshotStore, engine,
		pricelookup.NewIdentifier(llmClient, log), builder, generator, recorder, log)
	priceWorker := queue.NewWorker(priceQueue,
		&instrumentedHandler{inner: plHandler, obs: obs, stage: models.QueuePriceLookup},
		config.GetQueueConfig(cfg, models.QueuePriceLookup), zapLog, onExhausted)

	go vehicleWorker.Start(ctx)
	go priceWorker.Start(ctx)
	zapLog.Info("Both pipeline workers started")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		zapLog.Info("Health/Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	vehicleWorker.Stop(shutdownCtx)
	priceWorker.Stop(shutdownCtx)

	zapLog.Info("Pipeline manager stopped gracefully")
}
