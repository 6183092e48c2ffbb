package usecase

import (
	"context"
	"fmt"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

// Maintenance expires setups that touched an extreme too long ago to still be tradable.
type Maintenance struct {
	env      Env
	strategy config.Strategy
	store    drepo.SignalStore
}

func NewMaintenance(env Env, strategy config.Strategy, store drepo.SignalStore) *Maintenance {
	return &Maintenance{env: env, strategy: strategy, store: store}
}

func (m *Maintenance) Run(ctx context.Context) error {
	sigs, err := m.store.List(ctx, models.SignalFilter{Active: util.Some(false)})
	if err != nil {
		return fmt.Errorf("maintenance: list signals: %w", err)
	}
	now := m.env.Now()
	cutoff := util.StartOfDay(now).AddDate(0, 0, -m.strategy.StaleAfterDays)
	var stale []string
	for _, s := range sigs {
		if s.RSITouchDate.Before(cutoff) {
			stale = append(stale, s.Symbol)
		}
	}
	byID := bySymbol(sigs)
	res := runBatch(ctx, m.env, "maintenance", stale, func(ctx context.Context, symbol string) (outcome, error) {
		if err := m.store.Delete(ctx, symbol); err != nil {
			return "", fmt.Errorf("delete stale signal: %w", err)
		}
		sig := byID[symbol]
		publish(ctx, m.env, models.NewSignalEvent(models.EventExpired, symbol, sig.Direction, now).
			With("touched_at", sig.RSITouchDate.Format(util.DateLayout)))
		return outcomeDeleted, nil
	})
	m.env.Log.Info("stale sweep complete",
		applogger.Int("expired", count(res, outcomeDeleted)),
		applogger.Time("cutoff", cutoff),
	)
	return nil
}
