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

// Scorer rates the conviction of every tracked signal.
type Scorer struct {
	env      Env
	strategy config.Strategy
	bars     drepo.BarStore
	store    drepo.SignalStore
	ref      drepo.ReferenceData
}

func NewScorer(env Env, strategy config.Strategy, bars drepo.BarStore, store drepo.SignalStore, ref drepo.ReferenceData) *Scorer {
	return &Scorer{env: env, strategy: strategy, bars: bars, store: store, ref: ref}
}

func (s *Scorer) Run(ctx context.Context) error {
	sigs, err := s.store.List(ctx, models.SignalFilter{})
	if err != nil {
		return fmt.Errorf("scoring: list signals: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}
	index, err := s.closes(ctx, s.strategy.MarketIndex)
	if err != nil {
		// Without the index every signal simply misses that point.
		s.env.Log.Warn("index closes unavailable", applogger.String("index", s.strategy.MarketIndex), applogger.Error(err))
	}
	byID := bySymbol(sigs)
	runBatch(ctx, s.env, "scoring", symbolsOf(sigs), func(ctx context.Context, symbol string) (outcome, error) {
		return s.score(ctx, byID[symbol], index)
	})
	return nil
}

func (s *Scorer) score(ctx context.Context, sig models.Signal, index []float64) (outcome, error) {
	o, err := sig.Direction.Orientation()
	if err != nil {
		return "", err
	}
	bars, err := s.bars.LatestBars(ctx, sig.Symbol, models.TF1d, signals.ScoringBars)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return outcomeSkipped, nil
	}
	in := signals.ScoreInput{
		Symbol:       sig.Symbol,
		Orientation:  o,
		Bars:         bars,
		IndexCloses:  index,
		SectorCloses: util.None[[]float64](),
	}
	proxy, err := s.ref.SectorProxy(ctx, sig.Symbol)
	if err != nil {
		return "", fmt.Errorf("sector proxy: %w", err)
	}
	if etf, ok := proxy.Get(); ok {
		closes, err := s.closes(ctx, etf)
		if err != nil {
			return "", fmt.Errorf("sector closes: %w", err)
		}
		in.SectorCloses = util.Some(closes)
	}
	total, flags := signals.Score(in, s.strategy)
	if err := s.store.Update(ctx, sig.Symbol, models.NewSignalUpdate().Score(total, flags)); err != nil {
		return "", fmt.Errorf("persist score: %w", err)
	}
	s.env.Log.Debug("signal scored", applogger.Symbol(sig.Symbol), applogger.Int("score", total))
	publish(ctx, s.env, models.NewSignalEvent(models.EventScored, sig.Symbol, sig.Direction, s.env.Now()).
		With("score", total).
		With("flags", flags))
	return outcomeDone, nil
}

func (s *Scorer) closes(ctx context.Context, symbol string) ([]float64, error) {
	bars, err := s.bars.LatestBars(ctx, symbol, models.TF1d, signals.ScoringBars)
	if err != nil {
		return nil, err
	}
	return models.Closes(bars), nil
}
