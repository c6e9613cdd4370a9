// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/tokenrank/adapters/clock"
	"github.com/artpar/tokenrank/adapters/hasher"
	tokhttp "github.com/artpar/tokenrank/adapters/http"
	"github.com/artpar/tokenrank/adapters/idgen"
	"github.com/artpar/tokenrank/adapters/memory"
	"github.com/artpar/tokenrank/adapters/metrics"
	"github.com/artpar/tokenrank/adapters/postgres"
	"github.com/artpar/tokenrank/adapters/redis"
	"github.com/artpar/tokenrank/app"
	"github.com/artpar/tokenrank/config"
	"github.com/artpar/tokenrank/ports"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Ingest *app.IngestService
	Rank   *app.RankService
	Device *app.DeviceService

	// Adapters (for cleanup and health checks)
	db    *postgres.DB
	cache *redis.RankCache
}

// New creates and initializes the application from a config file path.
// An empty path falls back to environment variables and defaults.
func New(configPath string) (*App, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg.Logging)

	a := &App{Logger: logger}

	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			holder, err := config.NewHolder(configPath, logger)
			if err != nil {
				return nil, err
			}
			a.Config = holder
			cfg = holder.Get()
		}
	}

	logger.Info().Msg("initializing tokenrank")

	profiles, usageLog, codes, dbCheck, err := a.initDurable(cfg)
	if err != nil {
		return nil, fmt.Errorf("init durable store: %w", err)
	}
	cache, cacheCheck := a.initVolatile(cfg)

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	if a.Config != nil && a.Metrics != nil {
		a.Config.OnChange(func(*config.Config) { a.Metrics.ConfigReloads.Inc() })
		a.Config.OnReloadError(func(error) { a.Metrics.ConfigReloadErrors.Inc() })
	}

	clk := clock.Real{}
	ids := idgen.UUID{}
	keyHasher := hasher.SHA256{}

	a.Ingest = app.NewIngestService(app.IngestDeps{
		Profiles:        profiles,
		Log:             usageLog,
		Cache:           cache,
		Hasher:          keyHasher,
		Clock:           clk,
		IDGen:           ids,
		Metrics:         a.Metrics,
		Logger:          logger,
		VolatileTimeout: cfg.Ingest.VolatileTimeout,
	})
	a.Rank = app.NewRankService(app.RankDeps{
		Profiles: profiles,
		Log:      usageLog,
		Cache:    cache,
		Clock:    clk,
		Logger:   logger,
	})
	a.Device = app.NewDeviceService(app.DeviceDeps{
		Profiles: profiles,
		Codes:    codes,
		Hasher:   keyHasher,
		Clock:    clk,
		Logger:   logger,
	})

	handler := tokhttp.NewHandler(a.Ingest, a.Rank, a.Device, logger, tokhttp.HandlerConfig{
		Metrics:      a.Metrics,
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
	})
	health := tokhttp.NewHealthHandler(dbCheck, cacheCheck)
	router := tokhttp.NewRouter(handler, health, logger, tokhttp.RouterConfig{
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// initDurable opens the configured durable store. The memory driver keeps
// everything in process, which is what the tests and local development use.
func (a *App) initDurable(cfg *config.Config) (ports.ProfileStore, ports.UsageLogStore, ports.DeviceCodeStore, tokhttp.HealthChecker, error) {
	switch cfg.Database.Driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		a.db = db
		a.Logger.Info().Msg("postgres store initialized")
		return postgres.NewProfileStore(db), postgres.NewUsageLogStore(db), postgres.NewDeviceCodeStore(db), db, nil

	default:
		a.Logger.Warn().Msg("using in-memory durable store; data is lost on restart")
		return memory.NewProfileStore(), memory.NewUsageLogStore(), memory.NewDeviceCodeStore(), nil, nil
	}
}

// initVolatile opens the rank cache. A Redis connection failure degrades to
// the in-memory cache rather than failing startup; the durable store stays
// authoritative either way.
func (a *App) initVolatile(cfg *config.Config) (ports.RankCache, tokhttp.HealthChecker) {
	if cfg.Cache.Mode != "redis" {
		return memory.NewRankCache(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cache, err := redis.Open(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	if err != nil {
		a.Logger.Warn().Err(err).Str("addr", cfg.Cache.Addr).
			Msg("redis unavailable, degrading to in-memory rank cache")
		return memory.NewRankCache(), nil
	}
	a.cache = cache
	a.Logger.Info().Str("addr", cfg.Cache.Addr).Msg("redis rank cache initialized")
	return cache, cache
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.Config != nil {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.Config.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("rank cache close error")
		}
	}

	if a.db != nil {
		a.db.Close()
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger from logging config.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
