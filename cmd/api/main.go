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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/adapter/colly_fetcher"
	"github.com/user/offer-image-service/internal/adapter/file_fetcher"
	"github.com/user/offer-image-service/internal/adapter/openai_classifier"
	"github.com/user/offer-image-service/internal/adapter/postgres"
	redis_adapter "github.com/user/offer-image-service/internal/adapter/redis"
	"github.com/user/offer-image-service/internal/delivery/http/handler"
	"github.com/user/offer-image-service/internal/delivery/http/router"
	"github.com/user/offer-image-service/internal/pipeline"
	"github.com/user/offer-image-service/internal/repository"
	"github.com/user/offer-image-service/internal/usecase"
	"github.com/user/offer-image-service/pkg/config"
	"github.com/user/offer-image-service/pkg/logger"
	"github.com/user/offer-image-service/pkg/metrics"
)

const (
	appName = "1688 Photos Organizer"
	version = "2.1.0"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// --- Metrics ---
	m := metrics.New(prometheus.DefaultRegisterer)

	ctx := context.Background()

	// --- Fetchers ---
	httpFetcher := colly_fetcher.New(colly_fetcher.Options{
		Timeout:       cfg.FetchTimeout(),
		MaxImageBytes: int(cfg.MaxImageBytes),
		Referer:       "https://www." + cfg.MarketplaceDomain + "/",
	}, log.Named("fetcher"))

	var pageFetcher repository.PageFetcher = httpFetcher
	if cfg.FetchMode == "file" {
		ff, err := file_fetcher.New(cfg.FixtureFile)
		if err != nil {
			log.Fatal("could not open fixture file", zap.Error(err))
		}
		pageFetcher = ff
		log.Info("serving product pages from fixture file", zap.String("path", cfg.FixtureFile))
	}

	// --- Pipeline ---
	rules := pipeline.DefaultRules()
	if cfg.RulesFile != "" {
		if rules, err = pipeline.LoadRules(cfg.RulesFile); err != nil {
			log.Fatal("could not load rules", zap.Error(err))
		}
	}
	p, err := pipeline.New(pageFetcher, rules, pipeline.Options{
		MarketplaceDomain: cfg.MarketplaceDomain,
		MaxImagesLimit:    cfg.MaxImagesLimit,
	}, m, log.Named("pipeline"))
	if err != nil {
		log.Fatal("invalid extraction rules", zap.Error(err))
	}

	deps := usecase.Dependencies{
		Pipeline: p,
		Images:   httpFetcher,
		Metrics:  m,
		Logger:   log.Named("extractor"),
	}
	checks := map[string]handler.Pinger{}

	// --- PostgreSQL (optional) ---
	if cfg.PostgresURL != "" {
		dbpool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatal("unable to connect to database", zap.Error(err))
		}
		defer dbpool.Close()

		history := postgres.NewExtractionRunRepo(dbpool)
		if err := history.EnsureSchema(ctx); err != nil {
			log.Fatal("unable to prepare database schema", zap.Error(err))
		}
		deps.History = history
		checks["postgres"] = history
		log.Info("extraction history enabled")
	}

	// --- Redis (optional) ---
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("unable to connect to redis", zap.Error(err))
		}
		cache := redis_adapter.NewResultCache(rdb)
		deps.Cache = cache
		checks["redis"] = cache
		log.Info("result cache enabled", zap.Duration("ttl", cfg.CacheTTL()))
	}

	// --- Classifier (optional) ---
	if cfg.OpenAIAPIKey != "" {
		classifier, err := openai_classifier.New(openai_classifier.Options{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			log.Fatal("unable to configure classifier", zap.Error(err))
		}
		deps.Classifier = classifier
	}

	// --- Use Cases ---
	extractor := usecase.NewImageExtractor(deps, usecase.Options{
		CacheTTL:         cfg.CacheTTL(),
		ClassifyWorkers:  cfg.ClassifyWorkers,
		ClassifyInterval: cfg.ClassifyInterval(),
	})
	log.Info("classifier", zap.Stringer("status", extractor.ClassifierStatus()))

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(extractor, handler.Options{
		DefaultMaxImages: cfg.DefaultMaxImages,
		AppName:          appName,
		Version:          version,
		HealthChecks:     checks,
	}, log.Named("http"))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, m, prometheus.DefaultGatherer, log.Named("http")),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: router.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful Shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not start server", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("port", cfg.ServerPort), zap.String("fetch_mode", cfg.FetchMode))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exiting")
}
