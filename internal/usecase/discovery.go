package usecase

import (
	"context"
	"fmt"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/signals"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
)

// Discovery scans the universe for RSI extremes and stages a signal for each touch.
type Discovery struct {
	env      Env
	strategy config.Strategy
	bars     drepo.BarStore
	store    drepo.SignalStore
	ref      drepo.ReferenceData
}

func NewDiscovery(env Env, strategy config.Strategy, bars drepo.BarStore, store drepo.SignalStore, ref drepo.ReferenceData) *Discovery {
	return &Discovery{env: env, strategy: strategy, bars: bars, store: store, ref: ref}
}

// Run only fails when the universe cannot be listed; per-symbol failures are logged.
func (d *Discovery) Run(ctx context.Context) error {
	universe, err := d.ref.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("discovery: list universe: %w", err)
	}
	res := runBatch(ctx, d.env, "discovery", universe, d.scan)
	d.env.Log.Info("discovery complete",
		applogger.Int("universe", len(universe)),
		applogger.Int("staged", count(res, outcomeDone)),
		applogger.Int("failed", len(res.Failed)),
	)
	return nil
}

func (d *Discovery) scan(ctx context.Context, symbol string) (outcome, error) {
	bars, err := d.bars.LatestBars(ctx, symbol, models.TF1d, signals.DiscoveryBars)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	touch, ok := signals.DetectTouch(bars, d.strategy)
	if !ok {
		return outcomeSkipped, nil
	}
	existing, err := d.store.Get(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("load signal: %w", err)
	}
	sig, ok := signals.ApplyTouch(existing, symbol, touch, d.strategy, d.env.Now())
	if !ok {
		d.env.Log.Debug("touch ignored for open position", applogger.Symbol(symbol))
		return outcomeSkipped, nil
	}
	if err := d.store.Upsert(ctx, sig); err != nil {
		return "", fmt.Errorf("upsert signal: %w", err)
	}
	extreme, _ := sig.ExtremePrice.Get()
	d.env.Log.Info("rsi extreme staged",
		applogger.Symbol(symbol),
		applogger.String("direction", string(sig.Direction)),
		applogger.Float64("rsi", sig.RSITouchValue),
		applogger.Float64("extreme", extreme),
	)
	publish(ctx, d.env, models.NewSignalEvent(models.EventDiscovered, symbol, sig.Direction, d.env.Now()).
		With("rsi", sig.RSITouchValue).
		With("extreme_price", extreme))
	return outcomeDone, nil
}
