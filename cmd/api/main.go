package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduling/cmd/mainconfig"
	"github.com/wolfman30/clinic-scheduling/internal/api/router"
	appbootstrap "github.com/wolfman30/clinic-scheduling/internal/app/bootstrap"
	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/events"
	"github.com/wolfman30/clinic-scheduling/internal/health"
	httpmiddleware "github.com/wolfman30/clinic-scheduling/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/internal/worker/slotopened"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.Location().String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	var sqlDB *sql.DB
	if dbPool != nil {
		defer dbPool.Close()
		sqlDB = stdlib.OpenDBFromPool(dbPool)
		defer sqlDB.Close()
	}

	redisClient := appbootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	queues, err := setupQueues(ctx, cfg)
	if err != nil {
		logger.Error("failed to configure queues", "error", err)
		os.Exit(1)
	}

	metricsHandler, schedulingMetrics := setupMetrics()
	repos := appbootstrap.BuildRepositories(dbPool, sqlDB)
	if !repos.Persistent {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling stores")
	}
	clinicStore := appbootstrap.BuildClinicStore(redisClient, cfg)
	recorder, deliverer := appbootstrap.BuildEventRecorder(dbPool, queues.DeliveryHandler(), cfg, logger)

	svc := slots.NewService(repos.Availability, repos.Appointments, repos.Waitlist, logger.Component("slots"),
		slots.WithSettings(clinicStore),
		slots.WithCache(appbootstrap.BuildSlotCache(redisClient, cfg)),
		slots.WithEventRecorder(recorder),
		slots.WithMetrics(schedulingMetrics),
		slots.WithLocation(cfg.Location()),
	)
	dispatcher := slots.NewSlotOpenedDispatcher(repos.Waitlist, logger.Component("dispatcher"),
		slots.WithDispatchSettings(clinicStore),
		slots.WithDispatchRecorder(recorder),
		slots.WithDispatchMetrics(schedulingMetrics),
		slots.WithDispatchLocation(cfg.Location()),
	)

	if deliverer != nil {
		go deliverer.Start(ctx)
	}
	var processed *events.ProcessedStore
	if dbPool != nil {
		processed = events.NewProcessedStore(dbPool)
	}
	inlineWorker := setupInlineWorker(ctx, cfg, logger, queues, dispatcher, processed)

	checker := health.NewChecker(logger)
	checker.Register("postgres", health.Postgres(sqlDB))
	checker.Register("redis", health.Redis(redisClient))

	limiterDone := make(chan struct{})
	defer close(limiterDone)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunCleanup(limiterDone)

	r := router.New(&router.Config{
		Logger:             logger,
		SlotsHandler:       slots.NewHandler(svc, dispatcher, logger),
		ClinicHandler:      clinic.NewHandler(clinicStore, logger),
		Health:             checker,
		MetricsHandler:     metricsHandler,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(inlineWorker, logger)
	logger.Info("server stopped")
}

// setupMetrics registers scheduling collectors on a dedicated registry.
func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres not reachable", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func setupQueues(ctx context.Context, cfg *appconfig.Config) (appbootstrap.Queues, error) {
	if cfg.UseMemoryQueue {
		return appbootstrap.BuildQueues(cfg, nil)
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return appbootstrap.Queues{}, fmt.Errorf("load AWS config: %w", err)
	}
	return appbootstrap.BuildQueues(cfg, sqs.NewFromConfig(awsCfg))
}

// setupInlineWorker consumes the in-memory slot opened queue inside the API
// process. It returns nil when events go to SQS and the dispatch worker
// binary consumes them.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, queues appbootstrap.Queues, dispatcher *slots.SlotOpenedDispatcher, processed *events.ProcessedStore) *slotopened.Worker {
	if !queues.InMemory || queues.SlotOpened == nil || dispatcher == nil {
		return nil
	}
	opts := []slotopened.Option{
		slotopened.WithWorkerCount(cfg.WorkerCount),
		slotopened.WithReceiveWaitSeconds(1),
	}
	if processed != nil {
		opts = append(opts, slotopened.WithProcessedEventsStore(processed))
	}
	worker := slotopened.NewWorker(queues.SlotOpened, dispatcher, logger.Component("slot-opened-worker"), opts...)
	worker.Start(ctx)
	logger.Info("inline slot opened worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *slotopened.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline slot opened worker stopped")
	case <-time.After(10 * time.Second):
		logger.Warn("inline slot opened worker shutdown timed out")
	}
}
