// Package main runs the Jamef tracking HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/jamef_tracker/internal/cache"
	"github.com/R3E-Network/jamef_tracker/internal/config"
	"github.com/R3E-Network/jamef_tracker/internal/httpapi"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/middleware"
	"github.com/R3E-Network/jamef_tracker/internal/scraper"
	"github.com/R3E-Network/jamef_tracker/internal/storage"
	"github.com/R3E-Network/jamef_tracker/internal/storage/postgres"
	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const sweepSchedule = "@every 1m"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(httpapi.ServiceName, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Tracker API failed")
	}
}

// components holds everything the server needs plus what must be closed on
// shutdown.
type components struct {
	handler http.Handler
	limiter *middleware.RateLimiter
	memory  *cache.Memory
	closers []io.Closer
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i].Close()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	comps, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	sched := cron.New()
	if _, err := sched.AddFunc(sweepSchedule, func() {
		if removed := comps.limiter.Cleanup(); removed > 0 {
			logger.WithField("removed", removed).Debug("Pruned idle rate limiters")
		}
		if comps.memory != nil {
			if removed := comps.memory.Sweep(); removed > 0 {
				logger.WithField("removed", removed).Debug("Swept expired cache entries")
			}
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeps: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	server := newServer(cfg, comps.handler)
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Tracker API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Shutdown error")
	}
	logger.Info("Tracker API stopped")
	return nil
}

// newServer binds on BIND_ADDRESS:PORT. Write timeout leaves room for a full
// scrape.
func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ScrapeTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*components, error) {
	comps := &components{}
	checks := map[string]httpapi.HealthCheck{}

	profile, err := config.LoadSiteProfile(cfg.SiteProfilePath)
	if err != nil {
		return nil, err
	}

	var resultCache tracking.Cache
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, rc)
		checks["cache"] = rc.HealthCheck
		resultCache = rc
		logger.Info("Using Redis result cache")
	} else {
		comps.memory = cache.NewMemory()
		resultCache = comps.memory
	}

	var lookups storage.LookupStore
	if cfg.DatabaseURL != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			comps.Close()
			return nil, err
		}
		comps.closers = append(comps.closers, store)
		lookups = store
		logger.Info("Using PostgreSQL lookup log")
	} else {
		lookups = storage.NewMemoryStore(cfg.LookupLogSize)
	}
	checks["lookups"] = lookups.HealthCheck

	svc := tracking.NewService(tracking.Config{
		Scraper: scraper.New(scraper.Config{
			Profile:    profile,
			ChromePath: cfg.ChromePath,
			Headless:   cfg.Headless,
			Logger:     logging.New("scraper", cfg.LogLevel, cfg.LogFormat),
		}),
		Cache:         resultCache,
		CacheTTL:      cfg.CacheTTL,
		Lookups:       lookups,
		Logger:        logger,
		DefaultCNPJ:   cfg.DefaultCNPJ,
		MaxConcurrent: cfg.MaxConcurrentScrapes,
		Timeout:       cfg.ScrapeTimeout,
	})

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies())
	if err != nil {
		comps.Close()
		return nil, err
	}
	if proxies.Len() > 0 {
		logger.WithField("proxies", proxies.Len()).Info("Trusting forwarding headers from configured proxies")
	}

	comps.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	comps.handler = httpapi.NewRouter(httpapi.Options{
		Tracker:        svc,
		Lookups:        lookups,
		Checks:         checks,
		Logger:         logger,
		Limiter:        comps.limiter,
		TrustedProxies: proxies,
		CORSOrigins:    cfg.CORSOrigins(),
		Version:        version,
	})
	return comps, nil
}
