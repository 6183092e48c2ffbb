package usecase

import (
	"context"
	"fmt"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/signals"
	"sidbot/pkg/util"
)

// ExtremeTracker folds each day's bar into the adverse extreme of every staged or ready signal.
type ExtremeTracker struct {
	env   Env
	bars  drepo.BarStore
	store drepo.SignalStore
}

func NewExtremeTracker(env Env, bars drepo.BarStore, store drepo.SignalStore) *ExtremeTracker {
	return &ExtremeTracker{env: env, bars: bars, store: store}
}

func (x *ExtremeTracker) Run(ctx context.Context) error {
	sigs, err := x.store.List(ctx, models.SignalFilter{Active: util.Some(false)})
	if err != nil {
		return fmt.Errorf("extremes: list signals: %w", err)
	}
	byID := bySymbol(sigs)
	runBatch(ctx, x.env, "extremes", symbolsOf(sigs), func(ctx context.Context, symbol string) (outcome, error) {
		return x.track(ctx, byID[symbol])
	})
	return nil
}

func (x *ExtremeTracker) track(ctx context.Context, sig models.Signal) (outcome, error) {
	o, err := sig.Direction.Orientation()
	if err != nil {
		return "", err
	}
	bars, err := x.bars.LatestBars(ctx, sig.Symbol, models.TF1d, 1)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return outcomeSkipped, nil
	}
	next, changed := signals.TrackExtreme(o, sig.ExtremePrice, bars[len(bars)-1])
	if !changed {
		return outcomeSkipped, nil
	}
	if err := x.store.Update(ctx, sig.Symbol, models.NewSignalUpdate().ExtremePrice(next)); err != nil {
		return "", fmt.Errorf("update extreme: %w", err)
	}
	publish(ctx, x.env, models.NewSignalEvent(models.EventExtremeUpdated, sig.Symbol, sig.Direction, x.env.Now()).
		With("extreme_price", next))
	return outcomeDone, nil
}
