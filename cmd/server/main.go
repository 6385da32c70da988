package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/flightfinder/internal/airport"
	"github.com/neexbeast/flightfinder/internal/api"
	"github.com/neexbeast/flightfinder/internal/cache"
	"github.com/neexbeast/flightfinder/internal/config"
	"github.com/neexbeast/flightfinder/internal/finder"
	"github.com/neexbeast/flightfinder/internal/flight"
	"github.com/neexbeast/flightfinder/internal/geocode"
	"github.com/neexbeast/flightfinder/internal/llm"
	"github.com/neexbeast/flightfinder/internal/metrics"
	"github.com/neexbeast/flightfinder/internal/planner"
	"github.com/neexbeast/flightfinder/internal/ranker"
	"github.com/neexbeast/flightfinder/internal/storage"
	"github.com/neexbeast/flightfinder/migrations"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	health := map[string]api.Pinger{}

	// PostgreSQL is optional; without it search history is disabled.
	var repo api.SearchRepo
	if cfg.DatabaseURL != "" {
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		applied, err := storage.RunMigrations(ctx, pool, migrationsFS(cfg.MigrationsDir))
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied", "files", applied)

		repo = storage.NewRepository(pool)
		health["db"] = &pgxPoolPinger{pool: pool}
	} else {
		log.Warn("DATABASE_URL not set; search history disabled")
	}

	// Redis is optional; without it lookups are cached in process.
	var geocodeStore, airportStore cache.Store
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		geocodeStore = cache.NewRedisStore(redisClient, "geocode", cfg.CacheTTL)
		airportStore = cache.NewRedisStore(redisClient, "airports", cfg.CacheTTL)
		health["redis"] = &redisPingerAdapter{client: redisClient}
	} else {
		geocodeStore = cache.NewMemoryStore(cfg.CacheTTL, cfg.CacheMaxEntries)
		airportStore = cache.NewMemoryStore(cfg.CacheTTL, cfg.CacheMaxEntries)
	}

	var completer llm.Completer = llm.Disabled{}
	if cfg.OpenAIKey != "" {
		completer = llm.NewOpenAIWithURL(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel)
	} else {
		log.Warn("OPENAI_API_KEY not set; ranking falls back to price order")
	}

	dataset, err := loadAirports(cfg.AirportsCSV)
	if err != nil {
		return fmt.Errorf("loading airports: %w", err)
	}
	log.Info("airport dataset loaded", "airports", dataset.Len())

	// Wire dependencies.
	geocoder := geocode.NewClientWithURL(cfg.GeocoderURL, cfg.GeocoderUserAgent, geocodeStore, log).WithMetrics(m)
	resolver := airport.NewResolver(dataset, geocoder, airportStore, log).WithCompleter(completer)
	scraper := flight.NewScraper(cfg.SerpAPIKey, log)
	rk := ranker.New(completer, m, log).WithLimit(cfg.DropdownCount)

	flights := finder.New(resolver, scraper, rk, finder.Config{
		MinFlights:     cfg.MinFlights,
		CandidateCount: cfg.CandidateCount,
	}, m, log)
	trips := planner.New(resolver, flights, cfg.BudgetDivisor, log)

	handlers := api.NewHandlers(flights, trips, resolver, repo, log)
	router := api.NewRouter(handlers, api.RouterConfig{
		Token:              cfg.BearerToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Health:             health,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Metrics:            m,
	}, log)

	// A search may walk up to a dozen provider queries.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func loadAirports(path string) (*airport.Dataset, error) {
	if path == "" {
		return airport.LoadEmbedded(airport.DefaultPriorityRules())
	}
	return airport.LoadFile(path, airport.DefaultPriorityRules())
}

// pgxPoolPinger adapts pgxpool.Pool to api.Pinger.
type pgxPoolPinger struct {
	pool *pgxpool.Pool
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to api.Pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
