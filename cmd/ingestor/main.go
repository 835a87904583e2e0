package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"clarus_vitae/internal/adapters/feed"
	"clarus_vitae/internal/adapters/observability"
	redisad "clarus_vitae/internal/adapters/redis"
	"clarus_vitae/internal/app"
	"clarus_vitae/internal/shared"
	mysqlrepo "clarus_vitae/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "ingestor")

	if len(cfg.IngestSlugs) == 0 {
		log.Fatal().Msg("INGEST_PROPERTY_SLUGS is empty; nothing to ingest")
	}
	log.Info().
		Str("base", cfg.FeedBase).
		Int("properties", len(cfg.IngestSlugs)).
		Int("workers", cfg.Workers).
		Int("reviews", cfg.ReviewCount).
		Msg("ingestor starting")

	observability.Serve(cfg.MetricsAddr, observability.InitRegistry())

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	client, err := feed.New(cfg.FeedBase, cfg.FeedKey, cfg.FeedRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feed client")
	}
	cache := redisad.NewCache(redisad.Connect(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB))
	ing := app.NewIngestionService(client, repo, cache)

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)

	for _, slug := range cfg.IngestSlugs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("ingestion interrupted")
			break
		}

		wg.Add(1)
		go func(slug string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := ing.IngestProperty(ctx, slug, cfg.ReviewCount); err != nil {
				failed.Add(1)
				log.Warn().Str("slug", slug).Err(err).Msg("ingest failed")
				return
			}
			log.Info().Str("slug", slug).Msg("ingest ok")
		}(slug)
	}

	wg.Wait()
	log.Info().Int64("failed", failed.Load()).Int("total", len(cfg.IngestSlugs)).Msg("ingestion completed")
}
