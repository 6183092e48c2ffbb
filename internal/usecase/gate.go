package usecase

import (
	"context"
	"fmt"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/signals"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

// Gate promotes staged signals to ready once daily RSI, weekly RSI and the MACD line all
// turn toward the exit target outside an earnings blackout.
type Gate struct {
	env      Env
	strategy config.Strategy
	bars     drepo.BarStore
	store    drepo.SignalStore
	ref      drepo.ReferenceData
}

func NewGate(env Env, strategy config.Strategy, bars drepo.BarStore, store drepo.SignalStore, ref drepo.ReferenceData) *Gate {
	return &Gate{env: env, strategy: strategy, bars: bars, store: store, ref: ref}
}

func (g *Gate) Run(ctx context.Context) error {
	sigs, err := g.store.List(ctx, models.SignalFilter{Ready: util.Some(false), Active: util.Some(false)})
	if err != nil {
		return fmt.Errorf("gate: list signals: %w", err)
	}
	byID := bySymbol(sigs)
	res := runBatch(ctx, g.env, "gate", symbolsOf(sigs), func(ctx context.Context, symbol string) (outcome, error) {
		return g.validate(ctx, byID[symbol])
	})
	g.env.Log.Info("validation gate complete",
		applogger.Int("candidates", len(sigs)),
		applogger.Int("ready", count(res, outcomeDone)),
		applogger.Int("invalidated", count(res, outcomeDeleted)),
	)
	return nil
}

func (g *Gate) validate(ctx context.Context, sig models.Signal) (outcome, error) {
	o, err := sig.Direction.Orientation()
	if err != nil {
		return "", err
	}
	now := g.env.Now()
	next, err := g.ref.NextEarnings(ctx, sig.Symbol, now)
	if err != nil {
		return "", fmt.Errorf("next earnings: %w", err)
	}
	if blackout, days := signals.EarningsBlackout(next, now, g.strategy.EarningsBlackoutDays); blackout {
		g.env.Log.Info("earnings blackout, skipping",
			applogger.Symbol(sig.Symbol),
			applogger.Int("days_to_earnings", days.OrElse(0)),
		)
		return outcomeSkipped, nil
	}

	bars, err := g.bars.LatestBars(ctx, sig.Symbol, models.TF1d, signals.GateBars)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	if len(bars) < signals.MinGateBars {
		g.env.Log.Debug("not enough history for gate", applogger.Symbol(sig.Symbol), applogger.Int("bars", len(bars)))
		return outcomeSkipped, nil
	}

	if rsi, ok := signals.CurrentRSI(bars, g.strategy); ok && signals.MomentumExhausted(o, rsi, g.strategy) {
		if err := invalidate(ctx, g.env, g.store, sig, rsi, "gate"); err != nil {
			return "", err
		}
		return outcomeDeleted, nil
	}

	a := signals.EvaluateAlignment(bars, o, g.strategy)
	if !a.All() {
		g.env.Log.Debug("alignment incomplete",
			applogger.Symbol(sig.Symbol),
			applogger.Bool("daily_rsi", a.DailyRSI),
			applogger.Bool("weekly_rsi", a.WeeklyRSI),
			applogger.Bool("macd", a.MACD),
		)
		return outcomeSkipped, nil
	}
	u := models.NewSignalUpdate().Ready(true).NextEarnings(next).Trail(a.Trail())
	if err := g.store.Update(ctx, sig.Symbol, u); err != nil {
		return "", fmt.Errorf("mark ready: %w", err)
	}
	g.env.Log.Info("signal ready", applogger.Symbol(sig.Symbol), applogger.String("direction", string(sig.Direction)))
	publish(ctx, g.env, models.NewSignalEvent(models.EventReady, sig.Symbol, sig.Direction, now))
	return outcomeDone, nil
}

// invalidate deletes a setup whose RSI has already run most of the way to the exit target.
func invalidate(ctx context.Context, env Env, store drepo.SignalStore, sig models.Signal, rsi float64, stage string) error {
	if err := store.Delete(ctx, sig.Symbol); err != nil {
		return fmt.Errorf("delete exhausted signal: %w", err)
	}
	env.Log.Info("momentum exhausted, signal removed",
		applogger.Symbol(sig.Symbol),
		applogger.String("stage", stage),
		applogger.Float64("rsi", rsi),
	)
	publish(ctx, env, models.NewSignalEvent(models.EventInvalidated, sig.Symbol, sig.Direction, env.Now()).
		With("rsi", rsi).
		With("stage", stage))
	return nil
}
