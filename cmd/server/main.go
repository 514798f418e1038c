package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"oikos/lms/internal/cache"
	"oikos/lms/internal/catalog"
	"oikos/lms/internal/config"
	httpserver "oikos/lms/internal/http"
	"oikos/lms/internal/jobs"
	"oikos/lms/internal/logging"
	"oikos/lms/internal/reconcile"
	"oikos/lms/internal/session"
	"oikos/lms/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("schema setup failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	localCache, err := cache.Open(ctx, rdb, cfg.CacheNamespace, cfg.LegacyCacheNamespace, log)
	if err != nil {
		log.Fatal("cache setup failed", zap.Error(err))
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal("catalog load failed", zap.Error(err))
	}

	rec := reconcile.New(
		cat,
		store.NewRosterStore(pool),
		store.NewAttendanceStore(pool),
		store.NewResourceStore(pool),
		localCache,
		cfg.RosterDebounce,
		log,
	)
	rec.Boot(ctx)

	resolver := session.NewResolver(cat, rec, log)
	jobs.StartCacheSnapshotJob(ctx, cfg, rec, log)

	srv := httpserver.NewServer(cfg, rec, resolver, cat, localCache, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}

	// Let in-flight remote writes and the pending cache flush settle, then
	// take a final snapshot so the next boot starts warm.
	rec.Wait()
	rec.SnapshotToCache(shutdownCtx)
	log.Info("shutdown complete")
}
