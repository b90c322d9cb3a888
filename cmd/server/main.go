// Command server runs the enquirydesk gateway: the dashboard HTTP API, the
// browser event stream and the upstream push-stream bridge.
//
// @title       enquirydesk API
// @version     1.0
// @description State-synchronisation gateway for the admissions dashboard.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/edulead/enquirydesk/docs"
	"github.com/edulead/enquirydesk/internal/apiclient"
	"github.com/edulead/enquirydesk/internal/config"
	httpapi "github.com/edulead/enquirydesk/internal/http"
	"github.com/edulead/enquirydesk/internal/livebridge"
	"github.com/edulead/enquirydesk/internal/observability"
	"github.com/edulead/enquirydesk/internal/realtime"
	"github.com/edulead/enquirydesk/internal/repo"
	"github.com/edulead/enquirydesk/internal/services"
	"github.com/edulead/enquirydesk/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	logger := sysutil.SetupLogging(sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Out:     os.Stderr,
		Service: cfg.OTEL.ServiceName,
		Version: appVersion,
	})

	if err := run(cfg, appVersion, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, appVersion string, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openLedgerDB(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	ledger := repo.NewLedger(db, cfg.IdempotencyTTL)

	tokens := apiclient.ContextTokens{Fallback: cfg.Upstream.Token}
	api, err := apiclient.New(apiclient.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Retry: apiclient.RetryPolicy{
			MaxAttempts: cfg.Upstream.RetryAttempts,
			Backoff:     cfg.Upstream.RetryBackoff,
		},
		Tokens: tokens,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.Events.Buffer, logger)
	defer hub.Close()

	stores := services.NewStores()
	stopWatch := stores.Watch(hub)
	defer stopWatch()

	coordinators := services.NewCoordinators(api, stores, services.Options{
		Notifier:     realtime.NewToaster(hub),
		Ledger:       ledger,
		Logger:       logger,
		DefaultLimit: cfg.DefaultPageLimit,
	})

	var wg sync.WaitGroup
	if cfg.Stream.Enabled {
		bridge := livebridge.New(livebridge.Options{
			URL:          cfg.Upstream.BaseURL + cfg.Stream.Path,
			Event:        cfg.Stream.Event,
			Tokens:       tokens,
			ReconnectMin: cfg.Stream.ReconnectMin,
			ReconnectMax: cfg.Stream.ReconnectMax,
			Logger:       logger,
		}, coordinators.Enquiries)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("live bridge stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeLedger(ctx, ledger, cfg.LedgerPurgeEvery, logger)
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{cfg.APIBasePath + "/events", "/metrics"}),
	))
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Coordinators: coordinators,
		Stores:       stores,
		Hub:          hub,
		LedgerDB:     db,
	}, cfg)
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// Zero keeps the event stream open; handlers bound their own work.
		WriteTimeout:   0,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", cfg.Upstream.BaseURL).
			Bool("stream", cfg.Stream.Enabled).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
	}

	// Close subscriber channels first so open event streams return.
	hub.Close()
	sctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	return nil
}

func openLedgerDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := observability.InstrumentDB(db, cfg.OTEL); err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// purgeLedger removes expired submission keys until ctx is done.
func purgeLedger(ctx context.Context, ledger *repo.Ledger, every time.Duration, logger zerolog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := ledger.Purge(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("ledger purge")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("ledger purged")
			}
		}
	}
}
