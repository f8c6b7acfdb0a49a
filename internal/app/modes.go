package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Shillz96/solsim-sub007/internal/domain"
	"github.com/Shillz96/solsim-sub007/internal/engine"
	"github.com/Shillz96/solsim-sub007/internal/margin"
	"github.com/Shillz96/solsim-sub007/internal/platform/dexscreener"
	"github.com/Shillz96/solsim-sub007/internal/platform/jupiter"
	"github.com/Shillz96/solsim-sub007/internal/pricing"
	"github.com/Shillz96/solsim-sub007/internal/server"
	"github.com/Shillz96/solsim-sub007/internal/server/handler"
	"github.com/Shillz96/solsim-sub007/internal/service"
)

// buildPricing assembles the price acquisition service: source adapters in
// priority order, each behind its own circuit breaker, over the shared cache
// and persisted fallback.
func (a *App) buildPricing(deps *Dependencies) *pricing.Service {
	var sources []domain.PriceSource
	if a.cfg.Pricing.DexscreenerURL != "" {
		sources = append(sources, dexscreener.New(a.cfg.Pricing.DexscreenerURL, a.cfg.Pricing.FetchTimeout.Duration))
	}
	if a.cfg.Pricing.JupiterURL != "" {
		sources = append(sources, jupiter.New(a.cfg.Pricing.JupiterURL, a.cfg.Pricing.FetchTimeout.Duration))
	}

	breakers := make(map[string]pricing.BreakerSettings, len(a.cfg.Pricing.Breakers))
	for name, b := range a.cfg.Pricing.Breakers {
		breakers[name] = pricing.BreakerSettings{
			FailureThreshold: b.FailureThreshold,
			Cooldown:         b.Cooldown.Duration,
		}
	}

	return pricing.New(deps.PriceCache, deps.PriceStore, sources, pricing.Config{
		SharedTTL:      a.cfg.Pricing.SharedTTL.Duration,
		LocalTTL:       a.cfg.Pricing.LocalTTL.Duration,
		NegativeTTL:    a.cfg.Pricing.NegativeTTL.Duration,
		FallbackMaxAge: a.cfg.Pricing.FallbackMaxAge.Duration,
		FetchTimeout:   a.cfg.Pricing.FetchTimeout.Duration,
		SOLMint:        a.cfg.Pricing.SOLMint,
		DefaultBreaker: pricing.BreakerSettings{
			FailureThreshold: a.cfg.Pricing.Breaker.FailureThreshold,
			Cooldown:         a.cfg.Pricing.Breaker.Cooldown.Duration,
		},
		Breakers: breakers,
	}, a.logger)
}

func (a *App) marginParams() margin.Params {
	return margin.Params{
		MaintenanceMarginRatio: decimal.NewFromFloat(a.cfg.Trading.MaintenanceMarginRatio),
		OpenFeeRate:            decimal.NewFromFloat(a.cfg.Trading.OpenFeeRate),
		CloseFeeRate:           decimal.NewFromFloat(a.cfg.Trading.CloseFeeRate),
		LiquidationFeeRate:     decimal.NewFromFloat(a.cfg.Trading.LiquidationFeeRate),
	}
}

func (a *App) buildPerpService(deps *Dependencies, prices domain.PriceProvider) *service.PerpService {
	return service.NewPerpService(
		deps.PositionStore,
		deps.PerpStore,
		deps.WalletLedger,
		prices,
		deps.LockManager,
		deps.Notifier,
		a.cfg.Trading.WhitelistMints,
		a.marginParams(),
		service.Config{
			LockTTL:         a.cfg.Trading.LockTTL.Duration,
			LockWait:        a.cfg.Trading.LockWait.Duration,
			MinLiquidityUSD: decimal.NewFromFloat(a.cfg.Trading.MinLiquidityUSD),
		},
		a.logger,
	)
}

func (a *App) buildLiquidator(deps *Dependencies, prices domain.PriceProvider) *engine.Liquidator {
	return engine.New(
		deps.PositionStore,
		deps.PerpStore,
		prices,
		deps.LockManager,
		deps.Notifier,
		a.marginParams(),
		engine.Config{
			Interval:    a.cfg.Engine.Interval.Duration,
			BatchSize:   a.cfg.Engine.BatchSize,
			PassTimeout: a.cfg.Engine.PassTimeout.Duration,
			LockTTL:     a.cfg.Engine.LockTTL.Duration,
			LockWait:    a.cfg.Engine.LockWait.Duration,
		},
		a.logger,
	)
}

// warmPrices keeps the shared cache hot for the whitelisted tokens so user
// lookups are served from cache rather than paying a live fetch. Runs until
// the context is cancelled.
func (a *App) warmPrices(ctx context.Context, prices *pricing.Service) error {
	mints := a.cfg.Trading.WhitelistMints
	if len(mints) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	// Refresh slightly inside the shared TTL so entries rarely expire.
	interval := a.cfg.Pricing.SharedTTL.Duration * 4 / 5
	if interval < time.Second {
		interval = time.Second
	}

	warm := func() {
		got, err := prices.GetPrices(ctx, mints)
		if err != nil {
			a.logger.Warn("price warm pass failed", slog.String("error", err.Error()))
			return
		}
		a.logger.Debug("price warm pass complete",
			slog.Int("requested", len(mints)),
			slog.Int("priced", len(got)),
		)
	}
	warm()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			warm()
		}
	}
}

// buildServer assembles the HTTP API over the given service and price layer.
func (a *App) buildServer(deps *Dependencies, perps *service.PerpService, prices *pricing.Service) *server.Server {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(perps, deps.TradeStore, a.logger),
		Wallet:    handler.NewWalletHandler(deps.WalletLedger, a.logger),
		Prices:    handler.NewPriceHandler(prices, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, prices, deps.LiquidationStore),
	}
	return server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)
}

// runServer supervises the HTTP server under the group, shutting it down
// gracefully when the context is cancelled.
func (a *App) runServer(ctx context.Context, g *errgroup.Group, srv *server.Server) {
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// TradeMode runs the API and trade service without background liquidation
// scans, for deployments where a dedicated engine instance handles them.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	prices := a.buildPricing(deps)
	perps := a.buildPerpService(deps, prices)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.warmPrices(ctx, prices) })
	if a.cfg.Server.Enabled {
		a.runServer(ctx, g, a.buildServer(deps, perps, prices))
	}
	return g.Wait()
}

// EngineMode runs only the liquidation engine.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	prices := a.buildPricing(deps)
	liquidator := a.buildLiquidator(deps, prices)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return liquidator.RunLoop(ctx) })
	return g.Wait()
}

// FullMode runs the API, trade service, and liquidation engine in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	prices := a.buildPricing(deps)
	perps := a.buildPerpService(deps, prices)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.warmPrices(ctx, prices) })
	if a.cfg.Server.Enabled {
		a.runServer(ctx, g, a.buildServer(deps, perps, prices))
	}
	if a.cfg.Engine.Enabled {
		liquidator := a.buildLiquidator(deps, prices)
		g.Go(func() error { return liquidator.RunLoop(ctx) })
	}
	return g.Wait()
}
