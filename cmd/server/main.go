// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server runs the recommendation service: it syncs content platform
// data into the cache in the background and serves recommendations, feedback
// submission, search and health over HTTP.
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

	"github.com/visey/recommender/internal/api"
	"github.com/visey/recommender/internal/cache"
	"github.com/visey/recommender/internal/config"
	"github.com/visey/recommender/internal/embeddings"
	"github.com/visey/recommender/internal/feedback"
	"github.com/visey/recommender/internal/logging"
	"github.com/visey/recommender/internal/platform"
	"github.com/visey/recommender/internal/recommend"
	"github.com/visey/recommender/internal/scheduler"
	"github.com/visey/recommender/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().
		Str("platform", cfg.Platform.BaseURL).
		Str("cache_backend", string(cfg.Cache.Backend)).
		Msg("starting visey recommender")

	// Cache layer.
	store, err := cache.NewStore(&cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("cache store close failed")
		}
	}()
	c := cache.New(store, &cfg.Cache)

	// Durable feedback store.
	fb, err := feedback.Open(cfg.Feedback.Path)
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	defer func() {
		if err := fb.Close(); err != nil {
			logging.Warn().Err(err).Msg("feedback store close failed")
		}
	}()

	// Platform client behind the circuit breaker.
	client, err := platform.NewClient(&cfg.Platform)
	if err != nil {
		return fmt.Errorf("build platform client: %w", err)
	}
	breaker := platform.NewBreaker(client)

	// Optional embeddings backend. A typed nil must not end up in the
	// interface, or the engine would treat embeddings as enabled.
	var encoder embeddings.Encoder
	if ec := embeddings.NewClient(&cfg.Embeddings); ec != nil {
		encoder = ec
	}

	engine := recommend.NewEngine(cfg.Scoring, encoder)
	service := recommend.NewService(breaker, c, fb, engine, cfg.Scoring)
	sched := scheduler.New(breaker, c, fb, cfg.Sync)

	handler := api.NewHandler(service, sched)
	mw := api.NewMiddleware(api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, mw),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.RequestTimeout,
		WriteTimeout:      cfg.Server.RequestTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.Slogger(), treeCfg)
	tree.AddBackgroundService(supervisor.NewSchedulerService(sched))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, treeCfg.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("shutdown complete")
	return nil
}
