package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/analytics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/api"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/articles"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/circuitbreaker"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/config"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/cron"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/leaderelection"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/metrics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/reaper"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/schedules"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/sites"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store/memory"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store/postgres"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/trigger"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/users"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/workflow"

	_ "github.com/lib/pq"
)

func runServe(parent context.Context, cfg config.Config) error {
	logConfigWarnings(cfg)

	st, db, err := openStore(cfg)
	if err != nil {
		return withCode(exitRuntimeError, err)
	}
	if db != nil {
		defer db.Close()
		if err := probeSchema(parent, db); err != nil {
			log.Warn().Err(err).Msg("compass: schema probe failed; run 'compass migrate'")
		}
	}

	// Initialize metrics sink (optional)
	var sink metrics.Sink = metrics.NewNoopSink()
	var promSink *metrics.PrometheusSink
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		promSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		sink = promSink

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("port", cfg.MetricsPort).Str("path", cfg.MetricsPath).Msg("compass: metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("compass: metrics server error")
			}
		}()
	}

	webhookBreaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	wpBreaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)

	wf := workflow.NewClient(cfg.N8NWebhookBaseURL, cfg.WebhookSecret, cfg.WebhookTimeout).
		WithMetrics(sink).
		WithCircuitBreaker(webhookBreaker)
	wp := wordpress.NewClient(cfg.WordPressTimeout, cfg.WordPressRateLimit).
		WithMetrics(sink).
		WithCircuitBreaker(wpBreaker)

	jobSvc := jobs.NewService(st, st).WithMetrics(sink)
	scheduleSvc := schedules.NewService(st, cfg.ScheduleLocation).WithMetrics(sink)

	var stats *analytics.RedisSink
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		stats = analytics.NewRedisSink(redisClient, analytics.DefaultRetention)
		jobSvc = jobSvc.WithStatusRecorder(stats)
		log.Info().Str("redis", cfg.RedisAddr).Msg("compass: job analytics enabled")
	}

	handler := api.NewHandler(api.Config{
		N8NAPIKey:   cfg.N8NAPIKey,
		AdminAPIKey: cfg.AdminAPIKey,
		RateLimit:   cfg.APIRateLimit,
		RateBurst:   cfg.APIRateBurst,
	}, api.Services{
		Jobs:      jobSvc,
		Schedules: scheduleSvc,
		Sites:     sites.NewService(st),
		Articles:  articles.NewService(st, wf),
		Users:     users.NewService(st),
	}, wp).
		WithMetrics(sink).
		WithHealthChecker("store", st).
		WithCircuitBreaker("webhook", webhookBreaker).
		WithCircuitBreaker("wordpress", wpBreaker)
	if stats != nil {
		handler = handler.WithJobStats(stats).WithHealthChecker("redis", stats)
	}

	runner, err := newRunner(cfg, st, scheduleSvc, jobSvc, wf, sink)
	if err != nil {
		return withCode(exitInvalidConfig, err)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("compass: http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("compass: http server error")
		}
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	var bgWg sync.WaitGroup
	if runner != nil {
		bgWg.Add(1)
		go func() {
			defer bgWg.Done()
			runBackground(bgCtx, cfg, db, runner, promSink)
		}()
	}

	log.Info().
		Str("store", cfg.StoreDriver).
		Bool("trigger", cfg.TriggerEnabled).
		Bool("reaper", cfg.ReaperEnabled).
		Msg("compass: started")

	<-ctx.Done()
	log.Info().Msg("compass: shutting down")

	// Phase 1: stop background duties so no new webhooks go out.
	cancelBackground()
	bgWg.Wait()
	log.Info().Msg("compass: background tasks stopped")

	// Phase 2: drain in-flight API requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("compass: http server shutdown error")
	}
	log.Info().Msg("compass: http server stopped")

	// Phase 3: metrics server.
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("compass: metrics server shutdown error")
		}
	}

	log.Info().Msg("compass: stopped")
	return nil
}

// openStore returns the configured store. db is nil for the memory store.
func openStore(cfg config.Config) (store.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Info().Msg("compass: using in-memory demo store")
		return memory.NewDemo(time.Now().UTC()), nil, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(db, cfg.DBOpTimeout), db, nil
}

func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Info().
		Int("max_open", cfg.DBMaxOpenConns).
		Int("max_idle", cfg.DBMaxIdleConns).
		Dur("max_lifetime", cfg.DBConnMaxLifetime).
		Dur("max_idle_time", cfg.DBConnMaxIdleTime).
		Msg("compass: db pool configured")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	return db, nil
}

// newRunner registers the enabled background tasks. It returns nil when
// none is enabled.
func newRunner(cfg config.Config, st store.Store, scheduleSvc *schedules.Service, jobSvc *jobs.Service, wf *workflow.Client, sink metrics.Sink) (*cron.Runner, error) {
	if !cfg.TriggerEnabled && !cfg.ReaperEnabled {
		return nil, nil
	}
	runner := cron.NewRunner(cfg.ScheduleLocation)

	if cfg.TriggerEnabled {
		t := trigger.New(scheduleSvc, wf, cfg.TriggerConcurrency).WithMetrics(sink)
		if err := runner.Add("trigger", cfg.TriggerSpec, t.Run); err != nil {
			return nil, errors.Wrap(err, "TRIGGER_SPEC")
		}
	}
	if cfg.ReaperEnabled {
		r := reaper.New(reaper.Config{
			Threshold: cfg.ReaperThreshold,
			BatchSize: cfg.ReaperBatchSize,
		}, st, jobSvc).WithMetrics(sink)
		if err := runner.Add("reaper", cfg.ReaperSpec, r.Run); err != nil {
			return nil, errors.Wrap(err, "REAPER_SPEC")
		}
	}
	return runner, nil
}

// runBackground runs the cron tasks until ctx is cancelled. With Postgres,
// only the instance holding the advisory lock runs them.
func runBackground(ctx context.Context, cfg config.Config, db *sql.DB, runner *cron.Runner, promSink *metrics.PrometheusSink) {
	if db == nil {
		runner.Run(ctx)
		return
	}

	elector := leaderelection.New(db, leaderelection.Options{
		LockKey:           cfg.LeaderLockKey,
		RetryInterval:     cfg.LeaderRetryInterval,
		HeartbeatInterval: cfg.LeaderHeartbeatInterval,
	}, runner.Run)
	if promSink != nil {
		elector = elector.WithMetrics(promSink)
	}
	elector.Run(ctx)
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return withCode(exitInvalidConfig, errors.New("migrate requires STORE_DRIVER=postgres"))
	}
	db, err := openDB(cfg)
	if err != nil {
		return withCode(exitRuntimeError, err)
	}
	defer db.Close()

	if err := postgres.New(db, 0).Migrate(ctx); err != nil {
		return withCode(exitRuntimeError, err)
	}
	log.Info().Msg("compass: schema applied")
	return nil
}
