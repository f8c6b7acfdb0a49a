package pricing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shillz96/solsim-sub007/internal/domain"
)

const testMint = "Mint1111111111111111111111111111111111111111"

// fakeCache is an in-memory stand-in for the shared Redis cache. Setting
// unreachable makes every call fail the way a downed Redis would.
type fakeCache struct {
	mu          sync.Mutex
	prices      map[string]domain.TokenPrice
	negatives   map[string]bool
	unreachable bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		prices:    make(map[string]domain.TokenPrice),
		negatives: make(map[string]bool),
	}
}

var errUnreachable = errors.New("cache unreachable")

func (c *fakeCache) SetPrice(_ context.Context, p domain.TokenPrice, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return errUnreachable
	}
	c.prices[p.Mint] = p
	return nil
}

func (c *fakeCache) GetPrice(_ context.Context, mint string) (domain.TokenPrice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return domain.TokenPrice{}, errUnreachable
	}
	p, ok := c.prices[mint]
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *fakeCache) GetPrices(_ context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return nil, errUnreachable
	}
	out := make(map[string]domain.TokenPrice)
	for _, m := range mints {
		if p, ok := c.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

func (c *fakeCache) SetNegative(_ context.Context, mint string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return errUnreachable
	}
	c.negatives[mint] = true
	return nil
}

func (c *fakeCache) IsNegative(_ context.Context, mint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unreachable {
		return false, errUnreachable
	}
	return c.negatives[mint], nil
}

// fakeStore is an in-memory last-known-good store.
type fakeStore struct {
	mu     sync.Mutex
	prices map[string]domain.TokenPrice
}

func newFakeStore() *fakeStore {
	return &fakeStore{prices: make(map[string]domain.TokenPrice)}
}

func (s *fakeStore) Upsert(_ context.Context, p domain.TokenPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[p.Mint] = p
	return nil
}

func (s *fakeStore) GetLatest(_ context.Context, mint string) (domain.TokenPrice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[mint]
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

// fakeSource counts fetches and serves a fixed price table.
type fakeSource struct {
	name    string
	mu      sync.Mutex
	calls   int
	prices  map[string]domain.TokenPrice
	err     error
	latency time.Duration
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, mint string) (domain.TokenPrice, error) {
	got, err := f.FetchBatch(ctx, []string{mint})
	if err != nil {
		return domain.TokenPrice{}, err
	}
	p, ok := got[mint]
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) FetchBatch(_ context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.TokenPrice)
	for _, m := range mints {
		if p, ok := f.prices[m]; ok {
			out[m] = p
		}
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quote(mint, usd string) domain.TokenPrice {
	return domain.TokenPrice{
		Mint:      mint,
		PriceUSD:  decimal.RequireFromString(usd),
		Source:    "fake",
		FetchedAt: time.Now().UTC(),
	}
}

func newService(cache *fakeCache, store *fakeStore, sources ...domain.PriceSource) *Service {
	cfg := DefaultConfig()
	cfg.FetchTimeout = time.Second
	return New(cache, store, sources, cfg, testLogger())
}

func TestGetPriceCacheHitSkipsSources(t *testing.T) {
	cache := newFakeCache()
	cache.prices[testMint] = quote(testMint, "1.23")
	src := &fakeSource{name: "primary"}

	svc := newService(cache, newFakeStore(), src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("1.23")))
	assert.Equal(t, 0, src.callCount())
}

func TestGetPriceLiveFetchPopulatesCaches(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "0.5")},
	}

	svc := newService(cache, store, src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 1, src.callCount())

	// Shared cache and persisted last-known-good were both written.
	_, ok := cache.prices[testMint]
	assert.True(t, ok)
	_, err = store.GetLatest(context.Background(), testMint)
	assert.NoError(t, err)
}

func TestGetPriceStampedeProtection(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{
		name:    "primary",
		prices:  map[string]domain.TokenPrice{testMint: quote(testMint, "2")},
		latency: 200 * time.Millisecond,
	}
	svc := newService(cache, newFakeStore(), src)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p, err := svc.GetPrice(context.Background(), testMint)
			assert.NoError(t, err)
			assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("2")))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, src.callCount(), "concurrent misses must share one live fetch")
}

func TestNegativeCacheSuppressesRefetch(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{name: "primary", prices: map[string]domain.TokenPrice{}}
	svc := newService(cache, newFakeStore(), src)

	_, err := svc.GetPrice(context.Background(), testMint)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Equal(t, 1, src.callCount())
	assert.True(t, cache.negatives[testMint], "clean miss must be negative-cached")

	// Within the negative TTL the source must not be consulted again.
	_, err = svc.GetPrice(context.Background(), testMint)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.Equal(t, 1, src.callCount())
}

func TestSourceFailureIsNotNegativeCached(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{name: "primary", err: errors.New("connection refused")}
	svc := newService(cache, newFakeStore(), src)

	_, err := svc.GetPrice(context.Background(), testMint)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	assert.False(t, cache.negatives[testMint],
		"transport failure must not poison the mint for the negative TTL")
}

func TestFallbackToSecondarySource(t *testing.T) {
	cache := newFakeCache()
	primary := &fakeSource{name: "primary", err: errors.New("boom")}
	secondary := &fakeSource{
		name:   "secondary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "7")},
	}
	svc := newService(cache, newFakeStore(), primary, secondary)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("7")))
	assert.Equal(t, 1, primary.callCount())
	assert.Equal(t, 1, secondary.callCount())
}

func TestPersistedFallbackWithinFreshnessBound(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	stale := quote(testMint, "3")
	stale.FetchedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Upsert(context.Background(), stale))

	src := &fakeSource{name: "primary", err: errors.New("down")}
	svc := newService(cache, store, src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("3")))
}

func TestPersistedFallbackRespectsFreshnessBound(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	ancient := quote(testMint, "3")
	ancient.FetchedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Upsert(context.Background(), ancient))

	src := &fakeSource{name: "primary", err: errors.New("down")}
	svc := newService(cache, store, src)

	_, err := svc.GetPrice(context.Background(), testMint)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestLocalCacheServesWhenSharedUnreachable(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "4")},
	}
	svc := newService(cache, newFakeStore(), src)

	// Warm every layer, then kill the shared cache.
	_, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	cache.mu.Lock()
	cache.unreachable = true
	cache.mu.Unlock()

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("4")))
	assert.Equal(t, 1, src.callCount(), "local cache must absorb the read")
}

func TestSOLPriceConversion(t *testing.T) {
	cache := newFakeCache()
	sol := quote(SOLMint, "100")
	cache.prices[SOLMint] = sol

	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "2.5")},
	}
	svc := newService(cache, newFakeStore(), src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, p.PriceSOL.Equal(decimal.RequireFromString("0.025")),
		"USD-only quote must be converted at the cached SOL price, got %s", p.PriceSOL)
}

func TestGetSOLPriceLastKnownGoodWithoutBound(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	old := quote(SOLMint, "95")
	old.FetchedAt = time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, store.Upsert(context.Background(), old))

	src := &fakeSource{name: "primary", err: errors.New("down")}
	svc := newService(cache, store, src)

	p, err := svc.GetSOLPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, p.PriceUSD.Equal(decimal.RequireFromString("95")))
}

func TestGetPricesBatch(t *testing.T) {
	mintB := "Mint2222222222222222222222222222222222222222"
	mintC := "Mint3333333333333333333333333333333333333333"

	cache := newFakeCache()
	cache.prices[testMint] = quote(testMint, "1")
	cache.negatives[mintC] = true

	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{mintB: quote(mintB, "2")},
	}
	svc := newService(cache, newFakeStore(), src)

	prices, err := svc.GetPrices(context.Background(), []string{testMint, mintB, mintC, mintB})
	require.NoError(t, err)

	assert.Len(t, prices, 2)
	assert.True(t, prices[testMint].PriceUSD.Equal(decimal.RequireFromString("1")))
	assert.True(t, prices[mintB].PriceUSD.Equal(decimal.RequireFromString("2")))
	_, ok := prices[mintC]
	assert.False(t, ok, "negative-cached mint must be omitted without a fetch")
	assert.Equal(t, 1, src.callCount())
}

func TestGetPricesBatchCoalescing(t *testing.T) {
	mintB := "Mint2222222222222222222222222222222222222222"
	cache := newFakeCache()
	src := &fakeSource{
		name: "primary",
		prices: map[string]domain.TokenPrice{
			testMint: quote(testMint, "1"),
			mintB:    quote(mintB, "2"),
		},
		latency: 200 * time.Millisecond,
	}
	svc := newService(cache, newFakeStore(), src)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			prices, err := svc.GetPrices(context.Background(), []string{mintB, testMint})
			assert.NoError(t, err)
			assert.Len(t, prices, 2)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, src.callCount(), "identical uncached batches must coalesce")
}

func TestCleanNotFoundKeepsBreakerClosed(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{name: "primary", err: fmt.Errorf("fetch tokens: %w", domain.ErrNotFound)}

	cfg := DefaultConfig()
	cfg.FetchTimeout = time.Second
	cfg.DefaultBreaker = BreakerSettings{FailureThreshold: 2, Cooldown: time.Minute}
	svc := New(cache, newFakeStore(), []domain.PriceSource{src}, cfg, testLogger())

	mints := []string{
		"MintA111111111111111111111111111111111111111",
		"MintB222222222222222222222222222222222222222",
		"MintC333333333333333333333333333333333333333",
		"MintD444444444444444444444444444444444444444",
	}
	for _, m := range mints {
		_, err := svc.GetPrice(context.Background(), m)
		assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	}

	// Every lookup reached the source; a clean miss never counts as a failure.
	assert.Equal(t, len(mints), src.callCount())
	assert.Equal(t, map[string]string{"primary": "closed"}, svc.SourceStates())
	for _, m := range mints {
		assert.True(t, cache.negatives[m], "clean miss for %s must be negative-cached", m)
	}
}

func TestUSDOnlyQuoteNeverTriggersSecondFetch(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "2.5")},
	}
	svc := newService(cache, newFakeStore(), src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount(), "numeraire conversion must not issue a second fetch")
	assert.True(t, p.PriceSOL.IsZero(), "unknown numeraire leaves the SOL leg unset")
	assert.False(t, cache.negatives[SOLMint],
		"base currency must never be negative-cached as a conversion side effect")
}

func TestConversionFallsBackToPersistedSOLPrice(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	require.NoError(t, store.Upsert(context.Background(), quote(SOLMint, "80")))

	src := &fakeSource{
		name:   "primary",
		prices: map[string]domain.TokenPrice{testMint: quote(testMint, "4")},
	}
	svc := newService(cache, store, src)

	p, err := svc.GetPrice(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, 1, src.callCount())
	assert.True(t, p.PriceSOL.Equal(decimal.RequireFromString("0.05")), "got %s", p.PriceSOL)
}

func TestBatchConversionUsesSOLQuoteFromSamePass(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{
		name: "primary",
		prices: map[string]domain.TokenPrice{
			testMint: quote(testMint, "2"),
			SOLMint:  quote(SOLMint, "100"),
		},
	}
	svc := newService(cache, newFakeStore(), src)

	prices, err := svc.GetPrices(context.Background(), []string{testMint, SOLMint})
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, 1, src.callCount())
	assert.True(t, prices[SOLMint].PriceSOL.Equal(decimal.NewFromInt(1)))
	assert.True(t, prices[testMint].PriceSOL.Equal(decimal.RequireFromString("0.02")),
		"got %s", prices[testMint].PriceSOL)
}

// slowSource honors context cancellation while serving a fixed price after a
// delay.
type slowSource struct {
	name  string
	price domain.TokenPrice
	delay time.Duration
}

func (s *slowSource) Name() string { return s.name }

func (s *slowSource) Fetch(ctx context.Context, mint string) (domain.TokenPrice, error) {
	got, err := s.FetchBatch(ctx, []string{mint})
	if err != nil {
		return domain.TokenPrice{}, err
	}
	p, ok := got[mint]
	if !ok {
		return domain.TokenPrice{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *slowSource) FetchBatch(ctx context.Context, _ []string) (map[string]domain.TokenPrice, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return map[string]domain.TokenPrice{s.price.Mint: s.price}, nil
}

func TestCoalescedFetchSurvivesFirstCallerCancellation(t *testing.T) {
	cache := newFakeCache()
	src := &slowSource{name: "primary", price: quote(testMint, "6"), delay: 150 * time.Millisecond}
	svc := newService(cache, newFakeStore(), src)

	firstCtx, cancel := context.WithCancel(context.Background())
	results := make(chan error, 2)

	go func() {
		_, err := svc.GetPrice(firstCtx, testMint)
		results <- err
	}()
	time.Sleep(30 * time.Millisecond) // first caller owns the in-flight fetch
	go func() {
		_, err := svc.GetPrice(context.Background(), testMint)
		results <- err
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		assert.NoError(t, <-results, "cancelling one coalesced caller must not fail the fetch")
	}
}

func TestBreakerShortCircuitsAfterRepeatedFailures(t *testing.T) {
	cache := newFakeCache()
	src := &fakeSource{name: "primary", err: errors.New("down")}

	cfg := DefaultConfig()
	cfg.FetchTimeout = time.Second
	cfg.DefaultBreaker = BreakerSettings{FailureThreshold: 2, Cooldown: time.Minute}
	svc := New(cache, newFakeStore(), []domain.PriceSource{src}, cfg, testLogger())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = svc.GetPrice(ctx, testMint)
	}

	// Two failures trip the breaker; subsequent lookups never reach the source.
	assert.Equal(t, 2, src.callCount())
}
