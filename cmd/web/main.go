package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pritecards/internal/app"
	"pritecards/internal/app/observability"
	"pritecards/internal/auth"
	"pritecards/internal/db"
	"pritecards/internal/dedup"
	"pritecards/internal/importer"
	"pritecards/internal/platform/logger"
	"pritecards/internal/question"
	"pritecards/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := app.LoadConfig()

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg app.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dedupCfg := dedup.DefaultConfig()
	if cfg.DedupConfigFile != "" {
		fileCfg, err := dedup.LoadConfigFile(cfg.DedupConfigFile)
		if err != nil {
			return err
		}
		dedupCfg = fileCfg
	}
	dedupCfg, err := dedup.ConfigFromEnv(dedupCfg)
	if err != nil {
		return err
	}
	log.Info("dedup config loaded", "config", dedupCfg.String())

	keys, err := auth.ParseKeyRing(cfg.APIKeys)
	if err != nil {
		return err
	}
	if keys.Len() == 0 {
		log.Warn("API_KEYS is empty; every /api/v1 request will be rejected")
	}

	dbConn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbConn.Close()

	questions := question.NewService(dbConn)
	if err := questions.Migrate(ctx); err != nil {
		return err
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		rs, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		}, cfg.SessionTTL)
		if err != nil {
			return err
		}
		defer rs.Close()
		sessions = rs
		log.Info("session store ready", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		log.Warn("REDIS_ADDR is empty; import sessions are kept in memory")
	}

	metrics := observability.NewCollector(dbConn, log)
	imp := importer.NewService(questions, sessions, importer.ServiceConfig{
		Dedup:   dedupCfg,
		Metrics: metrics,
		Logger:  log,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: app.NewRouter(cfg, app.Deps{
			DB:        dbConn,
			Keys:      keys,
			Importer:  imp,
			Questions: questions,
			Metrics:   metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("pritecards web listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
