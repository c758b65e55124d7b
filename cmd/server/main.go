package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"rekapin/backend/internal/cache"
	"rekapin/backend/internal/config"
	"rekapin/backend/internal/httpapi"
	"rekapin/backend/internal/service"
	"rekapin/backend/internal/store"
	"rekapin/backend/internal/store/memory"
	pgstore "rekapin/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Error("invalid security configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	location, err := cfg.Location()
	if err != nil {
		logger.Error("invalid report timezone", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			applied, err := pgstore.Migrate(cfg.DatabaseURL)
			if err != nil {
				logger.Error("database migration failed", slog.String("error", err.Error()))
				os.Exit(1)
			}
			logger.Info("database migrations checked", slog.Bool("applied", applied))
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.New()
		logger.Warn("repository: in-memory, ledger is lost on restart")
	}

	recapCache := cache.RecapCache(cache.NoopRecapCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRecapCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", slog.String("error", err.Error()))
		} else {
			recapCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	svc := service.New(repo, service.Options{
		Location:          location,
		RecapCache:        recapCache,
		RecapCacheTTL:     cfg.RecapCacheTTL(),
		MaxRecordAttempts: cfg.RecordMaxAttempts,
		Logger:            logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		httpapi.ClientCredential{ClientID: cfg.BridgeClientID, SecretHash: cfg.BridgeSecretHash, Role: httpapi.RoleBridge},
		httpapi.ClientCredential{ClientID: cfg.ViewerClientID, SecretHash: cfg.ViewerSecretHash, Role: httpapi.RoleViewer},
	)
	api, err := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		TokenRate:     cfg.TokenRateLimit,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("invalid TOKEN_RATE_LIMIT", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("rekap backend listening",
			slog.String("addr", cfg.Address()),
			slog.String("timezone", location.String()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BridgeClientID == "" {
		return fmt.Errorf("BRIDGE_CLIENT_ID must be set")
	}
	if !httpapi.IsSecretHash(cfg.BridgeSecretHash) {
		return fmt.Errorf("BRIDGE_SECRET_HASH must be a bcrypt hash")
	}
	if cfg.ViewerSecretHash != "" && !httpapi.IsSecretHash(cfg.ViewerSecretHash) {
		return fmt.Errorf("VIEWER_SECRET_HASH must be a bcrypt hash when set")
	}
	return nil
}
