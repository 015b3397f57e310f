package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	svcerrors "github.com/R3E-Network/jamef_tracker/internal/errors"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/metrics"
	"github.com/R3E-Network/jamef_tracker/internal/storage"
)

// Scraper fetches a fresh result from the carrier website.
type Scraper interface {
	Scrape(ctx context.Context, q Query) (*Result, error)
}

// Cache stores results between lookups.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// Config configures a Service.
type Config struct {
	Scraper Scraper
	// Cache is optional; nil disables caching.
	Cache    Cache
	CacheTTL time.Duration
	// Lookups is optional; nil disables the lookup log.
	Lookups       storage.LookupStore
	Logger        *logging.Logger
	DefaultCNPJ   string
	MaxConcurrent int64
	Timeout       time.Duration
}

// Service answers tracking queries.
type Service struct {
	scraper     Scraper
	cache       Cache
	cacheTTL    time.Duration
	lookups     storage.LookupStore
	logger      *logging.Logger
	defaultCNPJ string
	timeout     time.Duration

	sem    *semaphore.Weighted
	flight singleflight.Group
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default("tracking")
	}
	return &Service{
		scraper:     cfg.Scraper,
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		lookups:     cfg.Lookups,
		logger:      cfg.Logger,
		defaultCNPJ: cfg.DefaultCNPJ,
		timeout:     cfg.Timeout,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Lookup normalizes the raw inputs and tracks the shipment.
func (s *Service) Lookup(ctx context.Context, nf, cnpj string) (*Result, error) {
	q, err := NormalizeQuery(nf, cnpj, s.defaultCNPJ)
	if err != nil {
		return nil, err
	}
	return s.Track(ctx, q)
}

// Track returns the current tracking result for q, served from the cache
// when a fresh copy exists.
func (s *Service) Track(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	log := s.logger.WithContext(ctx).WithField("nf", q.NF)

	if cached, ok := s.fromCache(ctx, q); ok {
		s.record(ctx, q, start, true, nil)
		log.Debug("Served tracking result from cache")
		return cached, nil
	}

	ch := s.flight.DoChan(q.CacheKey(), func() (interface{}, error) {
		return s.scrape(context.WithoutCancel(ctx), q)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			s.record(ctx, q, start, false, res.Err)
			log.WithError(res.Err).Warn("Tracking lookup failed")
			return nil, res.Err
		}
		s.record(ctx, q, start, false, nil)
		return res.Val.(*Result).Clone(), nil
	case <-ctx.Done():
		err := contextError("tracking", ctx.Err())
		s.record(ctx, q, start, false, err)
		return nil, err
	}
}

func (s *Service) fromCache(ctx context.Context, q Query) (*Result, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}
	cached, ok, err := s.cache.Get(ctx, q.CacheKey())
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		s.logger.WithContext(ctx).WithError(err).Warn("Cache lookup failed")
		return nil, false
	case !ok:
		metrics.RecordCacheLookup("miss")
		return nil, false
	default:
		metrics.RecordCacheLookup("hit")
		cached.Finalize()
		return cached, true
	}
}

// scrape runs a single browser session for q. It is shared by every caller
// waiting on the same key, so ctx carries no caller cancellation.
func (s *Service) scrape(ctx context.Context, q Query) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, svcerrors.Unavailable("all browser sessions are busy", err)
	}
	defer s.sem.Release(1)

	done := metrics.ScrapeStarted()
	start := time.Now()
	result, err := s.scraper.Scrape(ctx, q)
	done()

	if err != nil {
		if ctx.Err() != nil {
			metrics.RecordScrape(metrics.OutcomeTimeout, time.Since(start))
			return nil, svcerrors.Timeout("scrape", err)
		}
		metrics.RecordScrape(metrics.OutcomeError, time.Since(start))
		if se := svcerrors.GetServiceError(err); se != nil {
			return nil, se
		}
		return nil, svcerrors.ScrapeFailed(err)
	}
	metrics.RecordScrape(metrics.OutcomeSuccess, time.Since(start))

	if result == nil {
		result = &Result{NF: q.NF}
	}
	result.Finalize()

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, q.CacheKey(), result, s.cacheTTL); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Cache store failed")
		}
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, q Query, start time.Time, cached bool, err error) {
	if s.lookups == nil {
		return
	}
	entry := storage.Lookup{
		ID:         uuid.NewString(),
		NF:         q.NF,
		CNPJ:       q.CNPJ,
		Success:    err == nil,
		Cached:     cached,
		DurationMS: time.Since(start).Milliseconds(),
		TraceID:    logging.GetTraceID(ctx),
		CreatedAt:  time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
		entry.ErrorCode = string(svcerrors.CodeInternal)
		if se := svcerrors.GetServiceError(err); se != nil {
			entry.ErrorCode = string(se.Code)
		}
	}
	if rerr := s.lookups.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		s.logger.WithContext(ctx).WithError(rerr).Warn("Failed to record lookup")
	}
}

func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return svcerrors.Timeout(op, err)
	}
	return svcerrors.Unavailable("request cancelled", err)
}
