package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	server "clarus_vitae/internal/adapters/http_server"
	"clarus_vitae/internal/adapters/mailer"
	"clarus_vitae/internal/adapters/memory"
	"clarus_vitae/internal/adapters/observability"
	redisad "clarus_vitae/internal/adapters/redis"
	"clarus_vitae/internal/app"
	"clarus_vitae/internal/domain"
	"clarus_vitae/internal/shared"
	mysqlrepo "clarus_vitae/internal/storage/mysql"
)

const sweepInterval = time.Minute

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// redis is shared by the cache and, when selected, session and verification state
	rdb := redisad.Connect(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}

	// deps
	repo := mysqlrepo.New(db)
	q := app.NewQueryService(repo, redisad.NewCache(rdb), cfg.CacheTTL)

	cmp := app.NewComparisonService(sessionBackend(cfg, rdb), contextBus(ctx, cfg, rdb), cfg.SiteURL+"/compare").
		WithEvents(observability.ObserveComparison)

	verify := app.NewVerificationService(verificationStore(cfg, rdb), mailer.NewLogMailer(log.Logger, cfg.IsDev())).
		WithEvents(observability.ObserveVerification)
	go verify.RunSweeper(ctx, sweepInterval)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:             q,
		Compare:       cmp,
		Verify:        verify,
		SecureCookies: !cfg.IsDev(),
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("sessions", cfg.SessionBackend).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func sessionBackend(cfg shared.Config, rdb *redis.Client) domain.SessionBackend {
	if cfg.SessionBackend == "memory" {
		log.Warn().Msg("comparison sessions are process-local (SESSION_BACKEND=memory)")
		return memory.NewSessionStore()
	}
	return redisad.NewSessionStore(rdb, cfg.SessionTTL)
}

// contextBus relays same-context signals through redis so a tab's event
// stream refreshes even when its writes land on another instance.
func contextBus(ctx context.Context, cfg shared.Config, rdb *redis.Client) domain.ContextBus {
	local := app.NewLocalBus()
	if cfg.SessionBackend == "memory" {
		return local
	}
	bus, err := redisad.NewContextBus(ctx, rdb, local)
	if err != nil {
		log.Fatal().Err(err).Msg("context bus subscribe failed")
	}
	return bus
}

func verificationStore(cfg shared.Config, rdb *redis.Client) domain.TTLStore {
	if cfg.VerificationBackend == "memory" {
		log.Warn().Msg("verification state is process-local (VERIFICATION_BACKEND=memory)")
		return memory.NewTTLStore()
	}
	return redisad.NewTTLStore(rdb, "clarus:")
}
