package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/climryk/hazard-data-service/internal/cache"
	"github.com/climryk/hazard-data-service/internal/config"
	"github.com/climryk/hazard-data-service/internal/floodapi"
	"github.com/climryk/hazard-data-service/internal/geocode"
	"github.com/climryk/hazard-data-service/internal/hazard"
	httphandler "github.com/climryk/hazard-data-service/internal/http"
	"github.com/climryk/hazard-data-service/internal/lifecycle"
	"github.com/climryk/hazard-data-service/internal/models"
	"github.com/climryk/hazard-data-service/internal/observability"
	"github.com/climryk/hazard-data-service/internal/raster"
	"github.com/climryk/hazard-data-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var closers []func() error

	var kv store.KV
	switch cfg.StoreBackend {
	case "badger":
		bkv, err := store.OpenBadgerKV(cfg.StorePath)
		if err != nil {
			logger.Fatal("raster store", zap.Error(err))
		}
		closers = append(closers, bkv.Close)
		kv = bkv
		logger.Info("store backend: badger", zap.String("path", cfg.StorePath))
	default:
		kv = store.NewMemoryKV()
		logger.Info("store backend: memory")
	}
	st, err := store.NewWithLevel(kv, cfg.CompressionLevel)
	if err != nil {
		logger.Fatal("raster store", zap.Error(err))
	}

	policy, err := raster.ParsePolicy(cfg.Interpolation)
	if err != nil {
		logger.Fatal("interpolation policy", zap.Error(err))
	}

	providers := make(map[models.HazardType]*hazard.DataProvider, len(cfg.Sources))
	for _, src := range cfg.Sources {
		providers[models.HazardType(src.HazardType)] = hazard.NewDataProvider(
			hazard.PatternSourcePath(src.Pattern), st, policy)
		logger.Info("raster source",
			zap.String("hazard_type", src.HazardType),
			zap.String("pattern", src.Pattern))
	}
	rasterModel := hazard.NewRasterModel(providers, cfg.Workers, logger)

	healthConfig := &httphandler.HealthConfig{StartTime: time.Now()}

	var remote hazard.Model
	var remoteTypes []models.HazardType
	if cfg.FloodAPIEnabled {
		var cacheStore cache.Store
		switch cfg.CacheBackend {
		case "memcached":
			mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
			if err != nil {
				logger.Fatal("memcached cache", zap.Error(err))
			}
			closers = append(closers, mc.Close)
			healthConfig.CachePing = mc.Ping
			cacheStore = mc
			logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		case "badger":
			bc, err := cache.OpenBadgerStore(cfg.CachePath)
			if err != nil {
				logger.Fatal("badger cache", zap.Error(err))
			}
			closers = append(closers, bc.Close)
			cacheStore = bc
			logger.Info("cache backend: badger", zap.String("path", cfg.CachePath))
		default:
			cacheStore = cache.NewMemoryStore()
			logger.Info("cache backend: memory")
		}

		var geocoder geocode.Geocoder
		if cfg.GeocoderBackend == "google" {
			geocoder = geocode.NewGoogleGeocoder(cfg.GoogleAPIKey)
		} else {
			geocoder = geocode.NewStaticGeocoder()
		}

		client, err := floodapi.NewClientWithRetry(
			cfg.FloodAPIURL,
			cfg.FloodAPIKey,
			cfg.FloodAPITimeout,
			cfg.RetryAttempts,
			cfg.RetryBaseDelay,
			cfg.RetryMaxDelay,
		)
		if err != nil {
			logger.Fatal("flood API client", zap.Error(err))
		}
		remote = floodapi.NewAdapter(client, cache.NewSpatialCache(cacheStore), geocoder, logger).
			WithLimits(cfg.FloodMaxRequests, cfg.FloodBatchSize, cfg.FloodConcurrency)
		for _, t := range cfg.RemoteHazardTypes {
			remoteTypes = append(remoteTypes, models.HazardType(t))
		}
		logger.Info("flood API enabled",
			zap.Int("max_requests", cfg.FloodMaxRequests),
			zap.Strings("hazard_types", cfg.RemoteHazardTypes))
	}

	model := hazard.NewCompositeModel(rasterModel, remote, remoteTypes, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(model, healthConfig, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	apiRouter := router.PathPrefix("/v1").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/hazard-data", handler.PostHazardData).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed",
			zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
