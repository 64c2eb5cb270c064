package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/gregjones/httpcache"

	rediscacheadapter "github.com/tgrelay/tgrelay/internal/adapter/driven/rediscache"
	sqliteadapter "github.com/tgrelay/tgrelay/internal/adapter/driven/sqlite"
	"github.com/tgrelay/tgrelay/internal/adapter/driven/telegram"
	httphandler "github.com/tgrelay/tgrelay/internal/adapter/driving/http"
	"github.com/tgrelay/tgrelay/internal/application"
	"github.com/tgrelay/tgrelay/internal/config"
	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing tokens or invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"credentials", len(cfg.BotTokens),
		"window_limit", cfg.WindowLimit,
		"window_length", cfg.WindowLength,
		"cache_backend", cfg.CacheBackend,
		"listen_addr", cfg.ListenAddr,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and run migrations.
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// 4. Pick the cache backend.
	var backend driven.ByteCache
	switch cfg.CacheBackend {
	case config.CacheBackendSQLite:
		backend = sqliteadapter.NewCacheRepo(db, slog.Default())
	case config.CacheBackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		backend = rediscacheadapter.New(rdb, cfg.CacheTTL, slog.Default())
	default:
		backend = httpcache.NewMemoryCache()
	}

	// 5. Build the coordination core.
	pool, err := application.NewPool(cfg.BotTokens, application.PoolOptions{
		WindowLimit:   cfg.WindowLimit,
		WindowLength:  cfg.WindowLength,
		MinSpacing:    cfg.MinSpacing,
		CooldownAfter: cfg.CooldownAfter,
	})
	if err != nil {
		return err
	}

	executor := application.NewExecutor(application.ExecutorOptions{
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay,
		RateLimitWait: cfg.RateLimitWait,
	}, slog.Default())

	cache := application.NewResultCache(backend, cfg.CacheTTL)
	dispatcher := application.NewDispatcher(pool, executor, cache, slog.Default())

	// 6. Restore quota accounting from the previous run, then keep
	// persisting it.
	stateStore := sqliteadapter.NewStateRepo(db)
	snapshotSvc := application.NewSnapshotService(pool, stateStore, cfg.SnapshotInterval, slog.Default())
	if err := snapshotSvc.Restore(ctx); err != nil {
		slog.Error("restore credential usage failed", "error", err)
	}
	go snapshotSvc.Start(ctx)

	// 7. Sweep expired cache entries periodically. Memory bounding only;
	// expiry itself is enforced on read.
	if cfg.CacheTTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.CacheTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if evicted := cache.EvictExpired(); evicted > 0 {
						slog.Info("cache sweep", "evicted", evicted)
					}
				}
			}
		}()
	}

	// 8. Serve the relay and diagnostics API.
	apiHandler := httphandler.NewHandler(dispatcher, telegram.NewClient(), stateStore, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("tgrelay started", "credentials", pool.Size())

	// 9. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
