package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/jamef_tracker/internal/errors"
	"github.com/R3E-Network/jamef_tracker/internal/logging"
	"github.com/R3E-Network/jamef_tracker/internal/storage"
)

type fakeScraper struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	// holdPastDeadline keeps the session open until release even when ctx ends.
	holdPastDeadline bool
	result           *Result
	err              error
}

func (f *fakeScraper) Scrape(ctx context.Context, q Query) (*Result, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.release != nil && f.holdPastDeadline {
		<-f.release
	} else if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result.Clone(), nil
	}
	return &Result{NF: q.NF}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]*Result
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*Result)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	r, ok := c.entries[key]
	return r.Clone(), ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, r *Result, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r.Clone()
	return nil
}

func (c *fakeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func sampleResult() *Result {
	return &Result{
		NF:              "12345",
		Origem:          StringPtr("SAO PAULO - SP"),
		Destino:         StringPtr("BELO HORIZONTE - MG"),
		PrevisaoEntrega: StringPtr("20/10/2026"),
		Historico: []Event{
			{Data: StringPtr("17/10/2026 10:00"), Status: StringPtr("EM TRANSITO")},
			{Data: StringPtr("16/10/2026 08:00"), Status: StringPtr("COLETADO")},
		},
	}
}

func newTestService(scraper Scraper, cache Cache, lookups storage.LookupStore) *Service {
	return NewService(Config{
		Scraper:       scraper,
		Cache:         cache,
		CacheTTL:      time.Minute,
		Lookups:       lookups,
		Logger:        logging.New("tracking-test", "error", "text"),
		DefaultCNPJ:   "48775191000190",
		MaxConcurrent: 2,
		Timeout:       time.Second,
	})
}

var testQuery = Query{NF: "12345", CNPJ: "48775191000190"}

func TestTrack_ScrapesAndDerivesStatus(t *testing.T) {
	scraper := &fakeScraper{result: sampleResult()}
	svc := newTestService(scraper, nil, nil)

	got, err := svc.Track(context.Background(), testQuery)
	require.NoError(t, err)
	require.NotNil(t, got.StatusAtual)
	assert.Equal(t, "EM TRANSITO", *got.StatusAtual)
	assert.Len(t, got.Historico, 2)
}

func TestTrack_EmptyHistoryIsNotNull(t *testing.T) {
	svc := newTestService(&fakeScraper{}, nil, nil)

	got, err := svc.Track(context.Background(), testQuery)
	require.NoError(t, err)
	assert.NotNil(t, got.Historico)
	assert.Empty(t, got.Historico)
	assert.Nil(t, got.StatusAtual)
}

func TestTrack_CacheHit(t *testing.T) {
	scraper := &fakeScraper{result: sampleResult()}
	cache := newFakeCache()
	lookups := storage.NewMemoryStore(10)
	svc := newTestService(scraper, cache, lookups)
	ctx := context.Background()

	_, err := svc.Track(ctx, testQuery)
	require.NoError(t, err)
	_, err = svc.Track(ctx, testQuery)
	require.NoError(t, err)

	assert.Equal(t, int32(1), scraper.calls.Load())
	entries, err := lookups.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Cached)
	assert.True(t, entries[1].Cached)
	assert.True(t, entries[1].Success)
}

func TestTrack_CacheErrorFallsThrough(t *testing.T) {
	scraper := &fakeScraper{result: sampleResult()}
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	svc := newTestService(scraper, cache, nil)

	_, err := svc.Track(context.Background(), testQuery)
	require.NoError(t, err)
	assert.Equal(t, int32(1), scraper.calls.Load())
}

func TestTrack_FailureIsNotCached(t *testing.T) {
	scraper := &fakeScraper{err: errors.New("element not found")}
	cache := newFakeCache()
	lookups := storage.NewMemoryStore(10)
	svc := newTestService(scraper, cache, lookups)
	ctx := context.Background()

	_, err := svc.Track(ctx, testQuery)
	require.Error(t, err)
	se := svcerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, svcerrors.CodeScrapeFailed, se.Code)
	assert.Equal(t, 500, se.HTTPStatus)
	assert.Equal(t, "Erro no scraping: element not found", se.Message)
	assert.Equal(t, 0, cache.len())

	entries, _ := lookups.Recent(ctx, 10)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "SCRAPE_FAILED", entries[0].ErrorCode)
}

func TestTrack_StepDeadlineIsScrapeFailure(t *testing.T) {
	scraper := &fakeScraper{err: fmt.Errorf("open history: %w", context.DeadlineExceeded)}
	svc := newTestService(scraper, nil, nil)

	_, err := svc.Track(context.Background(), testQuery)
	require.Error(t, err)
	se := svcerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, svcerrors.CodeScrapeFailed, se.Code)
	assert.Equal(t, 500, se.HTTPStatus)
	assert.Contains(t, se.Message, "Erro no scraping: open history")
}

func TestTrack_Timeout(t *testing.T) {
	scraper := &fakeScraper{release: make(chan struct{})}
	svc := NewService(Config{
		Scraper: scraper,
		Logger:  logging.New("tracking-test", "error", "text"),
		Timeout: 50 * time.Millisecond,
	})

	_, err := svc.Track(context.Background(), testQuery)
	require.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeTimeout))
}

func TestTrack_CallerCancelled(t *testing.T) {
	scraper := &fakeScraper{started: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(scraper.release)
	svc := newTestService(scraper, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-scraper.started
		cancel()
	}()

	_, err := svc.Track(ctx, testQuery)
	require.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeUnavailable))
}

func TestTrack_SemaphoreBusy(t *testing.T) {
	scraper := &fakeScraper{started: make(chan struct{}, 1), release: make(chan struct{}), holdPastDeadline: true}
	defer close(scraper.release)
	svc := NewService(Config{
		Scraper:       scraper,
		Logger:        logging.New("tracking-test", "error", "text"),
		MaxConcurrent: 1,
		Timeout:       100 * time.Millisecond,
	})

	go svc.Track(context.Background(), Query{NF: "1", CNPJ: "2"})
	<-scraper.started

	_, err := svc.Track(context.Background(), Query{NF: "3", CNPJ: "2"})
	require.Error(t, err)
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeUnavailable))
	assert.Equal(t, int32(1), scraper.calls.Load())
}

func TestTrack_CollapsesConcurrentLookups(t *testing.T) {
	scraper := &fakeScraper{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  sampleResult(),
	}
	svc := newTestService(scraper, nil, nil)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Track(context.Background(), testQuery)
	}()
	<-scraper.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Track(context.Background(), testQuery)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(scraper.release)
	wg.Wait()

	assert.Equal(t, int32(1), scraper.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "EM TRANSITO", *results[i].StatusAtual)
	}
	*results[0].Origem = "changed"
	assert.Equal(t, "SAO PAULO - SP", *results[1].Origem)
}

func TestLookup_NormalizesInput(t *testing.T) {
	scraper := &fakeScraper{}
	svc := newTestService(scraper, nil, nil)

	got, err := svc.Lookup(context.Background(), " 999 ", "")
	require.NoError(t, err)
	assert.Equal(t, "999", got.NF)

	_, err = svc.Lookup(context.Background(), "  ", "")
	assert.True(t, svcerrors.IsCode(err, svcerrors.CodeInvalidInput))
	assert.Equal(t, int32(1), scraper.calls.Load())
}

func TestTrack_RecordsTraceID(t *testing.T) {
	lookups := storage.NewMemoryStore(10)
	svc := newTestService(&fakeScraper{}, nil, lookups)
	ctx := logging.WithTraceID(context.Background(), "trace-abc")

	_, err := svc.Track(ctx, testQuery)
	require.NoError(t, err)

	entries, _ := lookups.Recent(ctx, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, "trace-abc", entries[0].TraceID)
	assert.NotEmpty(t, entries[0].ID)
}
