package usecase

import (
	"context"
	"fmt"
	"math"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/indicators"
	"sidbot/pkg/config"
	"sidbot/pkg/util"
)

// Queries serves read-only views of the signal book and bar history.
type Queries struct {
	strategy config.Strategy
	store    drepo.SignalStore
	bars     drepo.BarStore
}

func NewQueries(strategy config.Strategy, store drepo.SignalStore, bars drepo.BarStore) *Queries {
	return &Queries{strategy: strategy, store: store, bars: bars}
}

type ListSignalsParams struct {
	State string // all, staged, ready or active
	Limit int
}

func (q *Queries) ListSignals(ctx context.Context, p ListSignalsParams) ([]models.Signal, error) {
	f := models.SignalFilter{OrderByScore: true}
	switch p.State {
	case "", "all":
	case "staged":
		f.Ready, f.Active = util.Some(false), util.Some(false)
	case "ready":
		f.Ready, f.Active = util.Some(true), util.Some(false)
	case "active":
		f.Active = util.Some(true)
	default:
		return nil, fmt.Errorf("unknown state %q", p.State)
	}
	sigs, err := q.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	if p.Limit > 0 && len(sigs) > p.Limit {
		sigs = sigs[:p.Limit]
	}
	return sigs, nil
}

// Signal returns drepo.ErrNotFound for untracked symbols.
func (q *Queries) Signal(ctx context.Context, symbol string) (models.Signal, error) {
	got, err := q.store.Get(ctx, util.NormalizeSymbol(symbol))
	if err != nil {
		return models.Signal{}, fmt.Errorf("get signal: %w", err)
	}
	sig, ok := got.Get()
	if !ok {
		return models.Signal{}, fmt.Errorf("signal %s: %w", symbol, drepo.ErrNotFound)
	}
	return sig, nil
}

type GetBarsParams struct {
	Symbol string
	Limit  int
}

type BarPoint struct {
	models.Bar
	RSI util.Optional[float64] `json:"rsi"`
}

type GetBarsResult struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"timeframe"`
	Count     int        `json:"count"`
	Bars      []BarPoint `json:"bars"`
}

// Bars returns recent daily bars annotated with the strategy's RSI.
func (q *Queries) Bars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Limit <= 0 {
		p.Limit = 60
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	sym := util.NormalizeSymbol(p.Symbol)
	bars, err := q.bars.LatestBars(ctx, sym, models.TF1d, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	rsi := indicators.RSI(models.Closes(bars), q.strategy.RSIPeriod)
	points := make([]BarPoint, len(bars))
	for i, b := range bars {
		points[i] = BarPoint{Bar: b, RSI: util.None[float64]()}
		if !math.IsNaN(rsi[i]) {
			points[i].RSI = util.Some(math.Round(rsi[i]*100) / 100)
		}
	}
	return &GetBarsResult{
		Symbol:    sym,
		Timeframe: string(models.TF1d),
		Count:     len(points),
		Bars:      points,
	}, nil
}
