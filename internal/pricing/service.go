// Package pricing acquires freshness-bounded token prices from a prioritized
// chain of external sources, layered behind a shared cache, an in-process
// fallback cache, a negative cache, and per-source circuit breakers.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Shillz96/solsim-sub007/internal/cache/memory"
	"github.com/Shillz96/solsim-sub007/internal/domain"
)

// SOLMint is the wrapped-SOL mint address, the platform's base currency.
const SOLMint = "So11111111111111111111111111111111111111112"

// BreakerSettings configures circuit breaking for one source.
type BreakerSettings struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// Config tunes the cache and fetch behavior of the Service.
type Config struct {
	SharedTTL      time.Duration // shared cache entry lifetime
	LocalTTL       time.Duration // in-process fallback entry lifetime
	NegativeTTL    time.Duration // failed-lookup suppression window
	FallbackMaxAge time.Duration // freshness bound for persisted prices
	FetchTimeout   time.Duration // budget for one live fetch pass
	SOLMint        string

	DefaultBreaker BreakerSettings
	// Breakers overrides breaker settings per source name.
	Breakers map[string]BreakerSettings
}

// DefaultConfig returns production defaults: 30s shared TTL, 10s local TTL,
// 5m negative TTL, 5m persisted-fallback freshness, 3s fetch budget, and a
// 5-failure/30s-cooldown breaker.
func DefaultConfig() Config {
	return Config{
		SharedTTL:      30 * time.Second,
		LocalTTL:       10 * time.Second,
		NegativeTTL:    5 * time.Minute,
		FallbackMaxAge: 5 * time.Minute,
		FetchTimeout:   3 * time.Second,
		SOLMint:        SOLMint,
		DefaultBreaker: BreakerSettings{FailureThreshold: 5, Cooldown: 30 * time.Second},
	}
}

type guardedSource struct {
	src     domain.PriceSource
	breaker *CircuitBreaker
}

// Service is the price acquisition layer. Lookup order: negative cache,
// shared cache, in-process cache (only when the shared cache is unreachable),
// coalesced live fetch over the source chain, persisted last-known-good
// within the freshness bound.
type Service struct {
	shared  domain.PriceCache
	local   *memory.PriceCache
	store   domain.PriceStore
	sources []guardedSource
	group   singleflight.Group
	cfg     Config
	logger  *slog.Logger
}

// New creates a Service. Sources are tried in the order given; each is
// wrapped in its own circuit breaker.
func New(
	shared domain.PriceCache,
	store domain.PriceStore,
	sources []domain.PriceSource,
	cfg Config,
	logger *slog.Logger,
) *Service {
	logger = logger.With(slog.String("component", "pricing"))

	guarded := make([]guardedSource, 0, len(sources))
	for _, src := range sources {
		settings, ok := cfg.Breakers[src.Name()]
		if !ok {
			settings = cfg.DefaultBreaker
		}
		guarded = append(guarded, guardedSource{
			src:     src,
			breaker: NewCircuitBreaker(src.Name(), settings.FailureThreshold, settings.Cooldown, logger),
		})
	}

	return &Service{
		shared:  shared,
		local:   memory.NewPriceCache(cfg.LocalTTL),
		store:   store,
		sources: guarded,
		cfg:     cfg,
		logger:  logger,
	}
}

// GetPrice returns the best-known price for a token mint.
// It returns domain.ErrPriceUnavailable when every layer is exhausted; a
// missing price is an explicit result, never a panic or a generic error.
func (s *Service) GetPrice(ctx context.Context, mint string) (domain.TokenPrice, error) {
	if neg, err := s.shared.IsNegative(ctx, mint); err == nil && neg {
		return domain.TokenPrice{}, domain.ErrPriceUnavailable
	}

	price, err := s.shared.GetPrice(ctx, mint)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		// Shared cache unreachable; the in-process copy is the fallback.
		if p, ok := s.local.Get(mint); ok {
			return p, nil
		}
		s.logger.WarnContext(ctx, "shared price cache unreachable",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
	}

	// Coalesce concurrent misses for the same mint into one live fetch. The
	// fetch is detached from the first caller's context so its cancellation
	// cannot fail every coalesced waiter; FetchTimeout still bounds it.
	v, err, _ := s.group.Do("mint:"+mint, func() (any, error) {
		return s.fetchOne(context.WithoutCancel(ctx), mint)
	})
	if err != nil {
		return domain.TokenPrice{}, err
	}
	return v.(domain.TokenPrice), nil
}

// GetPrices returns best-known prices for a set of mints. Mints that cannot
// be priced are omitted from the result; a partial map is not an error.
// Concurrent callers requesting an identical uncached set share one live
// fetch batch.
func (s *Service) GetPrices(ctx context.Context, mints []string) (map[string]domain.TokenPrice, error) {
	uniq := sortedUnique(mints)
	out := make(map[string]domain.TokenPrice, len(uniq))

	var wanted []string
	for _, mint := range uniq {
		if neg, err := s.shared.IsNegative(ctx, mint); err == nil && neg {
			continue
		}
		wanted = append(wanted, mint)
	}
	if len(wanted) == 0 {
		return out, nil
	}

	cached, err := s.shared.GetPrices(ctx, wanted)
	if err != nil {
		s.logger.WarnContext(ctx, "shared price cache unreachable for batch",
			slog.Int("mints", len(wanted)),
			slog.String("error", err.Error()),
		)
		cached = make(map[string]domain.TokenPrice)
		for _, mint := range wanted {
			if p, ok := s.local.Get(mint); ok {
				cached[mint] = p
			}
		}
	}

	var missing []string
	for _, mint := range wanted {
		if p, ok := cached[mint]; ok {
			out[mint] = p
		} else {
			missing = append(missing, mint)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	// Identical uncached sets coalesce on the sorted, deduplicated key. As
	// with single lookups, the fetch is detached from the first caller's
	// context.
	key := "batch:" + strings.Join(missing, ",")
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetchMany(context.WithoutCancel(ctx), missing), nil
	})
	if err != nil {
		return out, err
	}
	for mint, p := range v.(map[string]domain.TokenPrice) {
		out[mint] = p
	}

	return out, nil
}

// GetSOLPrice returns the base currency's own price. Unlike other mints it
// falls back to the last persisted value without a freshness bound, since
// numeraire conversion degrades more gracefully than it fails.
func (s *Service) GetSOLPrice(ctx context.Context) (domain.TokenPrice, error) {
	price, err := s.GetPrice(ctx, s.cfg.SOLMint)
	if err == nil {
		return price, nil
	}

	if lkg, serr := s.store.GetLatest(ctx, s.cfg.SOLMint); serr == nil {
		return lkg, nil
	}
	return domain.TokenPrice{}, err
}

// fetchOne runs the live source chain for a single mint.
func (s *Service) fetchOne(ctx context.Context, mint string) (domain.TokenPrice, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	found, served := s.fetchChain(fetchCtx, []string{mint})
	if p, ok := found[mint]; ok {
		s.finalize(ctx, &p, s.solUSDForPass(ctx, found))
		return p, nil
	}

	// A source answered and genuinely had no price: negative-cache the mint
	// so the next miss short-circuits. Pure transport failures are left to
	// the breakers instead, so a source outage does not poison lookups for
	// five minutes after recovery.
	if served {
		if err := s.shared.SetNegative(ctx, mint, s.cfg.NegativeTTL); err != nil {
			s.logger.WarnContext(ctx, "negative cache write failed",
				slog.String("mint", mint),
				slog.String("error", err.Error()),
			)
		}
	}

	if lkg, err := s.store.GetLatest(ctx, mint); err == nil &&
		time.Since(lkg.FetchedAt) <= s.cfg.FallbackMaxAge {
		return lkg, nil
	}

	return domain.TokenPrice{}, domain.ErrPriceUnavailable
}

// fetchMany runs the live source chain for a batch, finalizing hits and
// handling misses like fetchOne. It never fails the whole batch: callers get
// whatever subset could be priced.
func (s *Service) fetchMany(ctx context.Context, mints []string) map[string]domain.TokenPrice {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	found, served := s.fetchChain(fetchCtx, mints)
	out := make(map[string]domain.TokenPrice, len(found))
	solUSD := s.solUSDForPass(ctx, found)
	for mint, p := range found {
		s.finalize(ctx, &p, solUSD)
		out[mint] = p
	}

	for _, mint := range mints {
		if _, ok := out[mint]; ok {
			continue
		}
		if served {
			if err := s.shared.SetNegative(ctx, mint, s.cfg.NegativeTTL); err != nil {
				s.logger.WarnContext(ctx, "negative cache write failed",
					slog.String("mint", mint),
					slog.String("error", err.Error()),
				)
			}
		}
		if lkg, err := s.store.GetLatest(ctx, mint); err == nil &&
			time.Since(lkg.FetchedAt) <= s.cfg.FallbackMaxAge {
			out[mint] = lkg
		}
	}

	return out
}

// fetchChain tries each source in priority order, skipping sources whose
// breaker is open. It returns the prices found and whether at least one
// source answered.
func (s *Service) fetchChain(ctx context.Context, mints []string) (map[string]domain.TokenPrice, bool) {
	found := make(map[string]domain.TokenPrice, len(mints))
	remaining := mints
	served := false

	for _, gs := range s.sources {
		if len(remaining) == 0 {
			break
		}
		if !gs.breaker.Allow() {
			continue
		}

		got, err := gs.src.FetchBatch(ctx, remaining)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The source answered and simply has no price for these
				// mints. A clean miss keeps the breaker closed and feeds
				// the negative cache; only transport and decode errors
				// count as failures.
				gs.breaker.RecordSuccess()
				served = true
				continue
			}
			gs.breaker.RecordFailure()
			s.logger.WarnContext(ctx, "price source fetch failed",
				slog.String("source", gs.src.Name()),
				slog.Int("mints", len(remaining)),
				slog.String("error", err.Error()),
			)
			continue
		}
		gs.breaker.RecordSuccess()
		served = true

		var next []string
		for _, mint := range remaining {
			if p, ok := got[mint]; ok {
				found[mint] = p
			} else {
				next = append(next, mint)
			}
		}
		remaining = next
	}

	return found, served
}

// solUSDForPass resolves the base currency's USD price for one fetch pass
// without issuing another live fetch: a fresh quote in the pass itself wins,
// then the cache layers, then the persisted table. A zero result leaves
// SOL-denominated conversion to the next observation.
func (s *Service) solUSDForPass(ctx context.Context, found map[string]domain.TokenPrice) decimal.Decimal {
	if p, ok := found[s.cfg.SOLMint]; ok {
		return p.PriceUSD
	}
	if p, err := s.shared.GetPrice(ctx, s.cfg.SOLMint); err == nil {
		return p.PriceUSD
	}
	if p, ok := s.local.Get(s.cfg.SOLMint); ok {
		return p.PriceUSD
	}
	if p, err := s.store.GetLatest(ctx, s.cfg.SOLMint); err == nil {
		return p.PriceUSD
	}
	return decimal.Zero
}

// finalize fills the SOL-denominated price when the source only quoted USD,
// then writes the observation to every cache layer and the persisted
// last-known-good table. Cache write failures are logged, never fatal.
func (s *Service) finalize(ctx context.Context, p *domain.TokenPrice, solUSD decimal.Decimal) {
	if p.Mint == s.cfg.SOLMint {
		p.PriceSOL = decimal.NewFromInt(1)
	} else if p.PriceSOL.IsZero() && !solUSD.IsZero() {
		p.PriceSOL = p.PriceUSD.Div(solUSD)
	}

	if err := s.shared.SetPrice(ctx, *p, s.cfg.SharedTTL); err != nil {
		s.logger.WarnContext(ctx, "shared price cache write failed",
			slog.String("mint", p.Mint),
			slog.String("error", err.Error()),
		)
	}
	s.local.Set(*p)

	if err := s.store.Upsert(ctx, *p); err != nil {
		s.logger.WarnContext(ctx, "persist last-known-good price failed",
			slog.String("mint", p.Mint),
			slog.String("error", err.Error()),
		)
	}
}

func sortedUnique(mints []string) []string {
	seen := make(map[string]struct{}, len(mints))
	out := make([]string, 0, len(mints))
	for _, m := range mints {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// SourceStates reports the breaker state per source, for health inspection.
func (s *Service) SourceStates() map[string]string {
	states := make(map[string]string, len(s.sources))
	for _, gs := range s.sources {
		states[gs.src.Name()] = fmt.Sprintf("%v", gs.breaker.State())
	}
	return states
}
