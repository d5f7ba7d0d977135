package slotopened

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduling/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/clinic-scheduling/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Run starts the slot opened dispatch worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("slot opened worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("slot opened worker cannot run when USE_MEMORY_QUEUE=true; the API process dispatches inline instead")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("slot opened worker requires DATABASE_URL")
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker failed to connect to postgres: %w", err)
	}
	defer dbPool.Close()
	sqlDB := stdlib.OpenDBFromPool(dbPool)
	defer sqlDB.Close()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	queues, err := appbootstrap.BuildQueues(cfg, sqs.NewFromConfig(awsConfig))
	if err != nil {
		return err
	}

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	repos := appbootstrap.BuildRepositories(dbPool, sqlDB)
	recorder, deliverer := appbootstrap.BuildEventRecorder(dbPool, queues.DeliveryHandler(), cfg, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatcher := slots.NewSlotOpenedDispatcher(repos.Waitlist, logger,
		slots.WithDispatchSettings(appbootstrap.BuildClinicStore(redisClient, cfg)),
		slots.WithDispatchRecorder(recorder),
		slots.WithDispatchMetrics(metrics.NewSchedulingMetrics(reg)),
		slots.WithDispatchLocation(cfg.Location()),
	)

	worker := NewWorker(queues.SlotOpened, dispatcher, logger,
		WithWorkerCount(cfg.WorkerCount),
		WithProcessedEventsStore(events.NewProcessedStore(dbPool)),
	)

	metricsSrv := newMetricsServer(cfg.WorkerMetricsPort, reg)
	if metricsSrv != nil {
		go func() {
			logger.Info("worker metrics listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server error", "error", err)
			}
		}()
	}

	if deliverer != nil {
		go deliverer.Start(ctx)
	}
	worker.Start(ctx)
	logger.Info("slot opened worker started",
		"workers", cfg.WorkerCount,
		"queue", cfg.SlotOpenedQueueURL,
	)

	<-ctx.Done()
	logger.Info("shutting down slot opened worker...")

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(doneCtx); err != nil {
			logger.Warn("worker metrics server shutdown failed", "error", err)
		}
	}

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("slot opened worker stopped")
	case <-doneCtx.Done():
		logger.Error("slot opened worker shutdown timed out", "error", doneCtx.Err())
	}
	return nil
}

// newMetricsServer serves /metrics and /health for the worker. An empty port
// disables it.
func newMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	if port == "" {
		return nil
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
