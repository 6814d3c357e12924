package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"foodforge/internal/attendance"
	"foodforge/internal/auth"
	"foodforge/internal/config"
	"foodforge/internal/httpapi"
	"foodforge/internal/httpmiddleware"
	"foodforge/internal/identity"
	"foodforge/internal/logging"
	"foodforge/internal/menu"
	"foodforge/internal/notify"
	"foodforge/internal/realtime"
	"foodforge/internal/report"
	"foodforge/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return err
	}
	defer func() { _ = db.Close() }()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = db.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return err
	}

	health := map[string]func(context.Context) bool{"db": db.Healthy}
	var bus notify.Notifier
	if cfg.NotifierBackend == "memory" {
		bus = notify.NewMemory(notify.DefaultBuffer)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer func() { _ = redisClient.Close() }()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable; realtime feed degraded", zap.String("addr", cfg.RedisAddr))
		}
		bus = notify.NewRedis(redisClient.Client, cfg.NotifyChannel, logger)
		health["redis"] = redisClient.Healthy
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	loc := cfg.Location()
	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL).
		WithRefreshStore(auth.NewSQLRefreshStore(db))
	identities := identity.NewProvider(identity.NewSQLStore(db), issuer, identity.ProviderOptions{
		Notifier: bus,
		Logger:   logger.Named("identity"),
	})
	ledger := attendance.NewSQLLedger(db)
	admissions := attendance.NewService(ledger, attendance.Options{
		Location: loc,
		Notifier: bus,
		Names:    identities,
		Logger:   logger.Named("admission"),
		Metrics:  attendance.NewMetrics(reg),
	})
	menus := menu.NewStore(db)

	h := httpapi.New(httpapi.Deps{
		Logger:       logger,
		Admissions:   admissions,
		Identities:   identities,
		Issuer:       issuer,
		Menu:         menus,
		Reports:      report.NewBuilder(report.CounterFunc(ledger.CountByMeal), report.CounterFunc(menus.OptedCounts), loc),
		Realtime:     realtime.NewGateway(bus, logger.Named("realtime"), cfg.CORSOrigins),
		Limiter:      httpmiddleware.NewKeyedLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Gatherer:     reg,
		Health:       health,
		CORSOrigins:  cfg.CORSOrigins,
		AdmitTimeout: cfg.AdmitTimeout,
		Production:   cfg.Production(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreBackend),
			zap.String("notifier", cfg.NotifierBackend),
			zap.String("timezone", loc.String()))
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
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}
