package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/risk"
	"sidbot/internal/services/signals"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

const EventPositionOpened = "Position Opened"

var errNoStop = errors.New("no protective stop")

// Entry opens positions for ready signals, best score first, until the position cap is hit.
type Entry struct {
	env      Env
	strategy config.Strategy
	bars     drepo.BarStore
	store    drepo.SignalStore
	account  drepo.AccountOracle
	orders   drepo.OrderGateway
	market   drepo.MarketData
}

func NewEntry(env Env, strategy config.Strategy, bars drepo.BarStore, store drepo.SignalStore,
	account drepo.AccountOracle, orders drepo.OrderGateway, market drepo.MarketData) *Entry {
	return &Entry{
		env:      env,
		strategy: strategy,
		bars:     bars,
		store:    store,
		account:  account,
		orders:   orders,
		market:   market,
	}
}

// entryPass is the mutable state of one execution pass.
type entryPass struct {
	equity   float64
	canShort bool
	open     int
	held     map[string]bool
}

func (e *Entry) Run(ctx context.Context) error {
	acct, err := e.account.Account(ctx)
	if err != nil {
		return fmt.Errorf("entry: read account: %w", err)
	}
	positions, err := e.account.Positions(ctx)
	if err != nil {
		return fmt.Errorf("entry: read positions: %w", err)
	}
	pass := &entryPass{
		equity:   acct.Equity,
		canShort: e.strategy.AllowShort && acct.ShortingEnabled && acct.Equity >= e.strategy.ShortMinEquity,
		open:     len(positions),
		held:     make(map[string]bool, len(positions)),
	}
	for _, p := range positions {
		pass.held[p.Symbol] = true
	}
	if pass.open >= e.strategy.MaxOpenPositions {
		e.env.Log.Info("position cap reached, no entries", applogger.Int("open", pass.open))
		return nil
	}

	ready, err := e.store.List(ctx, models.SignalFilter{
		Ready:        util.Some(true),
		Active:       util.Some(false),
		OrderByScore: true,
	})
	if err != nil {
		return fmt.Errorf("entry: list ready signals: %w", err)
	}
	byID := bySymbol(ready)
	res := runBatch(ctx, e.env, "entry", symbolsOf(ready), func(ctx context.Context, symbol string) (outcome, error) {
		return e.enter(ctx, pass, byID[symbol])
	})
	e.env.Log.Info("entry pass complete",
		applogger.Int("candidates", len(ready)),
		applogger.Int("entered", count(res, outcomeDone)),
		applogger.Int("open", pass.open),
		applogger.Bool("can_short", pass.canShort),
	)
	return nil
}

func (e *Entry) enter(ctx context.Context, pass *entryPass, sig models.Signal) (outcome, error) {
	if pass.open >= e.strategy.MaxOpenPositions {
		return outcomeSkipped, nil
	}
	o, err := sig.Direction.Orientation()
	if err != nil {
		return "", err
	}
	if o == models.OrientShort && !pass.canShort {
		e.env.Log.Debug("shorting not allowed", applogger.Symbol(sig.Symbol))
		return outcomeSkipped, nil
	}
	if pass.held[sig.Symbol] {
		return outcomeSkipped, nil
	}

	bars, err := e.bars.LatestBars(ctx, sig.Symbol, models.TF1d, signals.EntryBars)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	if len(bars) < signals.MinEntryBars {
		return outcomeSkipped, nil
	}
	if rsi, ok := signals.CurrentRSI(bars, e.strategy); ok && signals.MomentumExhausted(o, rsi, e.strategy) {
		if err := invalidate(ctx, e.env, e.store, sig, rsi, "entry"); err != nil {
			return "", err
		}
		return outcomeDeleted, nil
	}

	stop, err := e.stopFor(sig, o, bars)
	if errors.Is(err, errNoStop) {
		e.env.Log.Error("cannot place stop, skipping entry", applogger.Symbol(sig.Symbol), applogger.Error(err))
		return outcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	u := models.NewSignalUpdate().Strategies(e.strategy.StopLossStrategy, e.strategy.ExitStrategy).StopLoss(stop)
	if err := e.store.Update(ctx, sig.Symbol, u); err != nil {
		return "", fmt.Errorf("persist stop: %w", err)
	}

	price, err := e.market.LatestPrice(ctx, sig.Symbol)
	if err != nil {
		return "", fmt.Errorf("latest price: %w", err)
	}
	if !o.Against(stop - price) {
		e.env.Log.Warn("stop is not beyond the entry price",
			applogger.Symbol(sig.Symbol),
			applogger.Float64("entry", price),
			applogger.Float64("stop", stop),
		)
		return outcomeSkipped, nil
	}
	qty := risk.PositionSize(pass.equity, e.strategy.RiskPerTrade, price, stop)
	if qty <= 0 {
		e.env.Log.Info("position size is zero", applogger.Symbol(sig.Symbol), applogger.Float64("equity", pass.equity))
		return outcomeSkipped, nil
	}

	side := o.EntrySide()
	order, err := e.orders.SubmitMarketOrder(ctx, models.OrderRequest{
		Symbol:        sig.Symbol,
		Side:          side,
		Qty:           qty,
		TimeInForce:   models.TIFGTC,
		StopLoss:      util.Some(stop),
		ClientOrderID: clientOrderID("entry"),
	})
	if err != nil {
		return "", fmt.Errorf("submit entry: %w", err)
	}
	pass.open++
	pass.held[sig.Symbol] = true
	e.env.Metrics.RecordOrder(sig.Symbol, side, "entry")

	opened := models.NewSignalUpdate().
		Active(true).
		FillPrice(price).
		PartialExitDone(false).
		Trail(models.LogicTrail{
			"event":       EventPositionOpened,
			"entry_price": price,
			"stop_loss":   stop,
			"qty":         qty,
			"order_id":    order.ID,
		})
	if err := e.store.Update(ctx, sig.Symbol, opened); err != nil {
		return "", fmt.Errorf("mark active: %w", err)
	}
	e.env.Log.Info("position opened",
		applogger.Symbol(sig.Symbol),
		applogger.String("side", string(side)),
		applogger.Int64("qty", qty),
		applogger.Float64("entry", price),
		applogger.Float64("stop", stop),
	)
	publish(ctx, e.env, models.NewSignalEvent(models.EventEntered, sig.Symbol, sig.Direction, e.env.Now()).
		With("qty", qty).
		With("entry_price", price).
		With("stop_loss", stop))
	return outcomeDone, nil
}

func (e *Entry) stopFor(sig models.Signal, o models.Orientation, bars []models.Bar) (float64, error) {
	switch e.strategy.StopLossStrategy {
	case models.StopFixedWhole:
		extreme, ok := sig.ExtremePrice.Get()
		if !ok {
			return 0, fmt.Errorf("%w: no extreme price tracked", errNoStop)
		}
		stop, err := risk.FixedWholeStop(extreme, o)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", errNoStop, err)
		}
		return stop, nil
	case models.StopATRTrail:
		return risk.ATRTrailStop(bars, o, e.strategy.ATRPeriod, e.strategy.ATRMultiplier)
	default:
		return 0, fmt.Errorf("%w: unknown strategy %q", errNoStop, e.strategy.StopLossStrategy)
	}
}

func clientOrderID(kind string) string {
	return "sid-" + kind + "-" + uuid.NewString()
}
