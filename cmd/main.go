package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/okian/aqicast/internal/adapters/geo"
	"github.com/okian/aqicast/internal/adapters/http/api"
	"github.com/okian/aqicast/internal/adapters/http/swagger"
	"github.com/okian/aqicast/internal/adapters/model"
	service "github.com/okian/aqicast/internal/app"
	"github.com/okian/aqicast/internal/config"
	"github.com/okian/aqicast/internal/domain/estimator"
	"github.com/okian/aqicast/internal/scheduler"
	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "service exited", logger.Error(err))
		os.Exit(1)
	}
}

// app bundles everything run starts and stops.
type app struct {
	svc       *service.Service
	cache     *geo.Cache
	scheduler *scheduler.Scheduler
	mux       *http.ServeMux
}

// build wires the service graph from cfg without starting anything.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.Get()

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithBatchWorkers(cfg.BatchWorkers),
		service.WithMaxBatchSize(cfg.MaxBatchSize),
	}

	est, err := loadEstimator(cfg)
	switch {
	case err == nil:
		opts = append(opts, service.WithEstimator(est))
		log.Info(ctx, "models loaded",
			logger.String("dir", cfg.ModelsDir),
			logger.Int("window", est.Window()),
			logger.Float64("blend_weight", est.BlendWeight()),
			logger.String("negative_policy", string(est.Policy())),
		)
	case errors.Is(err, estimator.ErrMisconfigured):
		return nil, err
	default:
		// predictions answer 503 until models are provided
		log.Warn(ctx, "models not loaded; prediction endpoints disabled", logger.String("dir", cfg.ModelsDir), logger.Error(err))
	}

	a := &app{mux: http.NewServeMux()}
	if cfg.LocationURL != "" {
		client := geo.NewClient(
			geo.WithURL(cfg.LocationURL),
			geo.WithTimeout(cfg.LocationTimeout),
			geo.WithClientLogger(log.Named("geo")),
		)
		a.cache = geo.NewCache(client, geo.WithTTL(cfg.LocationTTL), geo.WithCacheLogger(log.Named("geo")))
		opts = append(opts, service.WithLocator(a.cache))
	}

	a.svc = service.New(opts...)

	metrics.SetRefreshInterval(cfg.MetricsInterval)
	schedOpts := []scheduler.Option{scheduler.WithLogger(log.Named("scheduler"))}
	if a.cache != nil {
		schedOpts = append(schedOpts, scheduler.WithLocationRefresh(a.cache, cfg.LocationTTL))
	}
	a.scheduler = scheduler.New(schedOpts...)

	swagger.Register(ctx, a.mux)
	api.NewServer(a.svc, api.WithLogger(log.Named("api"))).Register(ctx, a.mux)
	return a, nil
}

func loadEstimator(cfg *config.Config) (*estimator.Estimator, error) {
	bundle, err := model.Load(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	policy, err := estimator.ParseNegativePolicy(cfg.NegativePolicy)
	if err != nil {
		return nil, err
	}
	opts := []estimator.Option{
		estimator.WithBlendWeight(cfg.BlendWeight),
		estimator.WithNegativePolicy(policy),
	}
	if cfg.SequenceWindow > 0 {
		opts = append(opts, estimator.WithWindow(cfg.SequenceWindow))
	}
	return bundle.Estimator(opts...)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.svc.Stop()

	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}
