package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/meteomancer/weatheroracle/internal/cache"
	"github.com/meteomancer/weatheroracle/internal/geocode"
	"github.com/meteomancer/weatheroracle/internal/nwp"
	"github.com/meteomancer/weatheroracle/internal/pipeline"
	"github.com/meteomancer/weatheroracle/internal/store"
)

// Server owns the HTTP surface and the optional backends behind it. The
// cache falls back to process memory without REDIS_URL, and the location
// store is skipped entirely without DATABASE_URL.
type Server struct {
	cfg       Config
	pipeline  *pipeline.Pipeline
	db        *sql.DB
	queries   *store.Queries
	redis     *redis.Client
	scheduler *Scheduler
	logger    *slog.Logger
}

// New wires every component the configuration asks for. Unreachable
// backends fail construction; optional ones that are simply absent do
// not.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// The per-model fetch deadline comes from the request context, so the
	// shared client's own timeout only backstops connection leaks.
	httpClient := &http.Client{Timeout: 60 * time.Second}

	geocoder := geocode.NewClient(cfg.GeocodingURL, httpClient, logger)

	registry := nwp.DefaultRegistry()
	if cfg.ModelsFile != "" {
		if err := registry.LoadFile(cfg.ModelsFile); err != nil {
			return nil, err
		}
	}
	fetcher := nwp.NewClient(cfg.ForecastURL, httpClient, registry, logger)

	var backing cache.Store = cache.NewMemoryStore()
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		backing = cache.NewRedisStore(redisClient)
		logger.Info("cache backend: redis")
	}
	manager := cache.NewManager(backing, cache.ManagerOptions{
		TTL:      cfg.CacheTTL,
		Disabled: cfg.CacheDisabled,
		Logger:   logger,
	})

	resolver := geocode.Geocoder(geocoder)
	var db *sql.DB
	var queries *store.Queries
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := store.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		queries = store.New(db)
		resolver = newStoreResolver(geocoder, queries, logger)
		logger.Info("location store enabled")
	}

	p := pipeline.New(resolver, fetcher, manager, pipeline.Options{
		Models:         cfg.Models,
		MinSuccessRate: cfg.MinSuccessRate,
		Fetch: nwp.FetchOptions{
			ForecastDays: cfg.ForecastDays,
			RequestDelay: cfg.RequestDelay,
		},
	}, logger)

	s := &Server{
		cfg:      cfg,
		pipeline: p,
		db:       db,
		queries:  queries,
		redis:    redisClient,
		logger:   logger,
	}
	if cfg.RefreshInterval > 0 {
		if queries == nil {
			logger.Warn("REFRESH_INTERVAL set but no DATABASE_URL; scheduler disabled")
		} else {
			s.scheduler = NewScheduler(p, queries, cfg.RefreshInterval, logger)
		}
	}
	return s, nil
}

// Routes assembles the route surface behind the CORS and metrics
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/forecast", s.handlerForecast)
	mux.HandleFunc("/v1/search", s.handlerSearch)
	mux.HandleFunc("/v1/models", s.handlerModels)
	mux.HandleFunc("/healthz", s.handlerHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	if s.cfg.DevMode {
		s.logger.Debug("development mode enabled. Registering /dev/flush-cache endpoint.")
		mux.HandleFunc("/dev/flush-cache", s.handlerFlushCache)
	}
	return corsMiddleware(metricsMiddleware(mux))
}

// Run serves until the context is canceled, then shuts down gracefully:
// the scheduler first so no refresh outlives the pipeline, then the
// listener with a drain window for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	if s.scheduler != nil {
		s.logger.Info("starting refresh scheduler", "interval", s.cfg.RefreshInterval.String())
		s.scheduler.Start()
		defer s.scheduler.Stop()
	}

	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server startup failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

// Close releases the optional backends.
func (s *Server) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("closing database", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis client", "error", err)
		}
	}
}
