package usecase

import (
	"context"
	"fmt"
	"math"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/services/exits"
	"sidbot/internal/services/indicators"
	"sidbot/internal/services/risk"
	"sidbot/internal/services/signals"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

const (
	EventPositionClosed   = "Position Closed"
	EventPartialExit      = "Partial Exit"
	EventClosedExternally = "Position Closed Externally"
)

// ExitMonitor walks every open broker position through the exit rules and trails its stop.
type ExitMonitor struct {
	env      Env
	strategy config.Strategy
	bars     drepo.BarStore
	store    drepo.SignalStore
	account  drepo.AccountOracle
	orders   drepo.OrderGateway
}

func NewExitMonitor(env Env, strategy config.Strategy, bars drepo.BarStore, store drepo.SignalStore,
	account drepo.AccountOracle, orders drepo.OrderGateway) *ExitMonitor {
	return &ExitMonitor{
		env:      env,
		strategy: strategy,
		bars:     bars,
		store:    store,
		account:  account,
		orders:   orders,
	}
}

func (m *ExitMonitor) Run(ctx context.Context) error {
	positions, err := m.account.Positions(ctx)
	if err != nil {
		return fmt.Errorf("exits: read positions: %w", err)
	}
	m.env.Metrics.RecordOpenPositions(len(positions))

	byID := make(map[string]models.Position, len(positions))
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		byID[p.Symbol] = p
		ids = append(ids, p.Symbol)
	}
	res := runBatch(ctx, m.env, "exits", ids, func(ctx context.Context, symbol string) (outcome, error) {
		return m.manage(ctx, byID[symbol])
	})
	m.env.Log.Debug("exit monitor pass",
		applogger.Int("positions", len(positions)),
		applogger.Int("acted", count(res, outcomeDone)),
	)
	return m.reconcile(ctx, byID)
}

func (m *ExitMonitor) manage(ctx context.Context, pos models.Position) (outcome, error) {
	o := models.OrientLong
	if pos.Side == models.PositionShort {
		o = models.OrientShort
	}
	bars, err := m.bars.LatestBars(ctx, pos.Symbol, models.TF1d, signals.ExitBars)
	if err != nil {
		return "", fmt.Errorf("load bars: %w", err)
	}
	if len(bars) < signals.MinExitBars {
		return outcomeSkipped, nil
	}
	tail, ok := indicators.Tail(indicators.RSI(models.Closes(bars), m.strategy.RSIPeriod), 3)
	if !ok {
		return outcomeSkipped, nil
	}
	stored, err := m.store.Get(ctx, pos.Symbol)
	if err != nil {
		return "", fmt.Errorf("load signal: %w", err)
	}

	in := exits.Input{
		Orientation: o,
		Qty:         pos.Qty,
		RSI:         [3]float64{tail[0], tail[1], tail[2]},
		Target:      m.strategy.RSIExitTarget,
		EarlyExit:   m.strategy.EarlyExitOnReversal,
	}
	sig, tracked := stored.Get()
	if tracked {
		in.HasSignal = true
		in.Exit = sig.ExitStrategy
		in.Stop = sig.StopLossStrategy
		in.StoredStop = sig.StopLoss
		in.FillPrice = sig.FillPrice
		in.Partial = sig.PartialExitDone
	} else {
		m.env.Log.Warn("position has no signal record, managing as FIXED", applogger.Symbol(pos.Symbol))
	}

	d, err := exits.Evaluate(in)
	if err != nil {
		return "", err
	}
	acted := false
	switch d.Action {
	case exits.CloseAll:
		return outcomeDone, m.closeAll(ctx, pos, o, stored, d, tail[2])
	case exits.ClosePartial:
		be, err := m.closePartial(ctx, pos, o, sig, d, tail[2])
		if err != nil {
			return "", err
		}
		if v, ok := be.Get(); ok {
			in.StoredStop = util.Some(v)
		}
		pos.Qty -= d.Qty
		acted = true
	}
	moved := false
	if d.Ratchet {
		moved, err = m.ratchet(ctx, pos, sig, o, bars, in.StoredStop)
		if err != nil {
			return "", err
		}
	}
	if d.Action == exits.Hold && !moved && tracked {
		if stop, ok := sig.StopLoss.Get(); ok {
			placed, err := m.ensureStop(ctx, pos, o, stop)
			if err != nil {
				return "", err
			}
			moved = placed
		}
	}
	if acted || moved {
		return outcomeDone, nil
	}
	return outcomeSkipped, nil
}

// closeAll cancels resting stops first: Alpaca reserves the shares an open stop covers and
// rejects a market exit for them. When the exit itself is then rejected the stop is put back.
func (m *ExitMonitor) closeAll(ctx context.Context, pos models.Position, o models.Orientation,
	stored util.Optional[models.Signal], d exits.Decision, rsi float64) error {
	cancelled, err := m.cancelStops(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	side := o.ExitSide()
	if _, err := m.orders.SubmitMarketOrder(ctx, models.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          side,
		Qty:           d.Qty,
		TimeInForce:   models.TIFGTC,
		ClientOrderID: clientOrderID("exit"),
	}); err != nil {
		storedStop := util.None[float64]()
		if sig, ok := stored.Get(); ok {
			storedStop = sig.StopLoss
		}
		m.restoreStop(ctx, pos.Symbol, side, pos.Qty, storedStop.Or(cancelled))
		return fmt.Errorf("submit close: %w", err)
	}
	m.env.Metrics.RecordOrder(pos.Symbol, side, "exit")
	m.env.Log.Info("position closed",
		applogger.Symbol(pos.Symbol),
		applogger.String("reason", string(d.Reason)),
		applogger.Int64("qty", d.Qty),
		applogger.Float64("rsi", rsi),
	)
	if sig, ok := stored.Get(); ok {
		u := closedUpdate(models.LogicTrail{
			"event":  EventPositionClosed,
			"reason": string(d.Reason),
			"rsi":    rsi,
			"qty":    d.Qty,
		})
		if err := m.store.Update(ctx, sig.Symbol, u); err != nil {
			return fmt.Errorf("mark closed: %w", err)
		}
	}
	publish(ctx, m.env, models.NewSignalEvent(models.EventClosed, pos.Symbol, o.Direction(), m.env.Now()).
		With("reason", string(d.Reason)).
		With("qty", d.Qty))
	return nil
}

// closePartial banks half the position and re-protects the rest at break-even. The resting
// stop covers the whole position, so it is cancelled before the sell and a new stop for the
// remaining shares is placed after it. Once the sell is accepted the partial is recorded
// before any stop work; stop failures are left to the next pass. It returns the new stop
// when one applies.
func (m *ExitMonitor) closePartial(ctx context.Context, pos models.Position, o models.Orientation,
	sig models.Signal, d exits.Decision, rsi float64) (util.Optional[float64], error) {
	side := o.ExitSide()
	prior := sig.StopLoss
	if d.Qty > 0 {
		cancelled, err := m.cancelStops(ctx, pos.Symbol)
		if err != nil {
			return util.None[float64](), err
		}
		prior = prior.Or(cancelled)
		if _, err := m.orders.SubmitMarketOrder(ctx, models.OrderRequest{
			Symbol:        pos.Symbol,
			Side:          side,
			Qty:           d.Qty,
			TimeInForce:   models.TIFGTC,
			ClientOrderID: clientOrderID("partial"),
		}); err != nil {
			m.restoreStop(ctx, pos.Symbol, side, pos.Qty, prior)
			return util.None[float64](), fmt.Errorf("submit partial: %w", err)
		}
		m.env.Metrics.RecordOrder(pos.Symbol, side, "partial")
	}

	u := models.NewSignalUpdate().PartialExitDone(true)
	trail := models.LogicTrail{"event": EventPartialExit, "qty": d.Qty, "rsi": rsi}
	be, hasBE := d.BreakEven.Get()
	if hasBE {
		u.StopLoss(be)
		trail["break_even"] = be
	}
	persistErr := m.store.Update(ctx, sig.Symbol, u.Trail(trail))

	next := prior
	if hasBE {
		next = util.Some(be)
	}
	switch price, ok := next.Get(); {
	case !ok:
		m.env.Log.Warn("no stop price known, remaining shares unprotected", applogger.Symbol(pos.Symbol))
	case d.Qty > 0:
		m.restoreStop(ctx, pos.Symbol, side, pos.Qty-d.Qty, next)
	case hasBE:
		if _, err := m.moveStops(ctx, pos, o, price); err != nil {
			m.env.Log.Warn("stop not moved to break-even, retrying next pass",
				applogger.Symbol(pos.Symbol),
				applogger.Float64("stop", price),
				applogger.Error(err),
			)
		}
	default:
		m.env.Log.Warn("no fill price recorded, stop left in place", applogger.Symbol(pos.Symbol))
	}
	if persistErr != nil {
		return util.None[float64](), fmt.Errorf("mark partial: %w", persistErr)
	}

	m.env.Log.Info("partial exit",
		applogger.Symbol(pos.Symbol),
		applogger.Int64("qty", d.Qty),
		applogger.Bool("break_even", hasBE),
	)
	publish(ctx, m.env, models.NewSignalEvent(models.EventPartialExit, pos.Symbol, o.Direction(), m.env.Now()).
		With("qty", d.Qty).
		With("break_even", d.BreakEven))
	return d.BreakEven, nil
}

// ratchet trails the stop by ATR, only ever in the trade's favor.
func (m *ExitMonitor) ratchet(ctx context.Context, pos models.Position, sig models.Signal, o models.Orientation,
	bars []models.Bar, stored util.Optional[float64]) (bool, error) {
	cur, ok := stored.Get()
	if !ok {
		return false, nil
	}
	candidate, err := risk.ATRTrailStop(bars, o, m.strategy.ATRPeriod, m.strategy.ATRMultiplier)
	if err != nil {
		return false, fmt.Errorf("ratchet: %w", err)
	}
	next := risk.Ratchet(o, cur, candidate)
	if next == cur {
		return false, nil
	}
	if err := m.store.Update(ctx, sig.Symbol, models.NewSignalUpdate().StopLoss(next)); err != nil {
		return false, fmt.Errorf("persist ratchet: %w", err)
	}
	if _, err := m.moveStops(ctx, pos, o, next); err != nil {
		return false, err
	}
	m.env.Log.Info("stop ratcheted",
		applogger.Symbol(sig.Symbol),
		applogger.Float64("from", cur),
		applogger.Float64("to", next),
	)
	publish(ctx, m.env, models.NewSignalEvent(models.EventStopRatcheted, sig.Symbol, sig.Direction, m.env.Now()).
		With("from", cur).
		With("to", next))
	return true, nil
}

// reconcile closes out active signals whose position is gone, usually stopped out at the broker.
func (m *ExitMonitor) reconcile(ctx context.Context, held map[string]models.Position) error {
	active, err := m.store.List(ctx, models.SignalFilter{Active: util.Some(true)})
	if err != nil {
		return fmt.Errorf("exits: list active signals: %w", err)
	}
	var orphaned []string
	for _, s := range active {
		if _, ok := held[s.Symbol]; !ok {
			orphaned = append(orphaned, s.Symbol)
		}
	}
	if len(orphaned) == 0 {
		return nil
	}
	byID := bySymbol(active)
	runBatch(ctx, m.env, "reconcile", orphaned, func(ctx context.Context, symbol string) (outcome, error) {
		sig := byID[symbol]
		if err := m.store.Update(ctx, symbol, closedUpdate(models.LogicTrail{"event": EventClosedExternally})); err != nil {
			return "", fmt.Errorf("mark closed: %w", err)
		}
		m.env.Log.Info("signal closed without broker position", applogger.Symbol(symbol))
		publish(ctx, m.env, models.NewSignalEvent(models.EventReconciled, symbol, sig.Direction, m.env.Now()))
		return outcomeDone, nil
	})
	return nil
}

// cancelStops cancels every resting stop on symbol and returns the stop price they carried.
func (m *ExitMonitor) cancelStops(ctx context.Context, symbol string) (util.Optional[float64], error) {
	open, err := m.orders.OpenOrders(ctx, symbol)
	if err != nil {
		return util.None[float64](), fmt.Errorf("list open orders: %w", err)
	}
	price := util.None[float64]()
	for _, o := range open {
		if !o.IsStop() {
			continue
		}
		if err := m.orders.CancelOrder(ctx, o.ID); err != nil {
			return price, fmt.Errorf("cancel stop %s: %w", o.ID, err)
		}
		price = price.Or(o.StopPrice)
	}
	return price, nil
}

// restoreStop places a fresh stop after the one covering the position was cancelled. A
// failure is logged only; the next pass re-places it from the stored stop.
func (m *ExitMonitor) restoreStop(ctx context.Context, symbol string, side models.Side, qty int64,
	price util.Optional[float64]) {
	p, ok := price.Get()
	if !ok || qty <= 0 {
		m.env.Log.Warn("no stop to restore", applogger.Symbol(symbol), applogger.Int64("qty", qty))
		return
	}
	if _, err := m.orders.SubmitStopOrder(ctx, models.StopOrderRequest{
		Symbol:        symbol,
		Side:          side,
		Qty:           qty,
		StopPrice:     p,
		ClientOrderID: clientOrderID("stop"),
	}); err != nil {
		m.env.Log.Warn("stop not placed, retrying next pass",
			applogger.Symbol(symbol),
			applogger.Int64("qty", qty),
			applogger.Float64("stop", p),
			applogger.Error(err),
		)
	}
}

// moveStops moves every resting stop on the position to price. With none resting it places
// one for the whole position. It reports whether a new stop order was placed.
func (m *ExitMonitor) moveStops(ctx context.Context, pos models.Position, o models.Orientation, price float64) (bool, error) {
	open, err := m.orders.OpenOrders(ctx, pos.Symbol)
	if err != nil {
		return false, fmt.Errorf("list open orders: %w", err)
	}
	replaced := 0
	for _, ord := range open {
		if !ord.IsStop() {
			continue
		}
		if err := m.orders.ReplaceStopPrice(ctx, ord.ID, price); err != nil {
			return false, fmt.Errorf("replace stop %s: %w", ord.ID, err)
		}
		replaced++
	}
	if replaced > 0 {
		return false, nil
	}
	return true, m.placeStop(ctx, pos, o, price)
}

// ensureStop brings the broker in line with the stored stop: a resting stop at another price
// is moved, and a missing one is placed for the whole position.
func (m *ExitMonitor) ensureStop(ctx context.Context, pos models.Position, o models.Orientation, price float64) (bool, error) {
	open, err := m.orders.OpenOrders(ctx, pos.Symbol)
	if err != nil {
		return false, fmt.Errorf("list open orders: %w", err)
	}
	resting := false
	for _, ord := range open {
		if !ord.IsStop() {
			continue
		}
		resting = true
		if cur, ok := ord.StopPrice.Get(); ok && math.Abs(cur-price) >= 0.005 {
			if err := m.orders.ReplaceStopPrice(ctx, ord.ID, price); err != nil {
				return false, fmt.Errorf("replace stop %s: %w", ord.ID, err)
			}
			m.env.Log.Info("stop resynced", applogger.Symbol(pos.Symbol), applogger.Float64("from", cur), applogger.Float64("to", price))
		}
	}
	if resting {
		return false, nil
	}
	if err := m.placeStop(ctx, pos, o, price); err != nil {
		return false, err
	}
	return true, nil
}

func (m *ExitMonitor) placeStop(ctx context.Context, pos models.Position, o models.Orientation, price float64) error {
	if _, err := m.orders.SubmitStopOrder(ctx, models.StopOrderRequest{
		Symbol:        pos.Symbol,
		Side:          o.ExitSide(),
		Qty:           pos.Qty,
		StopPrice:     price,
		ClientOrderID: clientOrderID("stop"),
	}); err != nil {
		return fmt.Errorf("place stop: %w", err)
	}
	m.env.Log.Info("stop placed",
		applogger.Symbol(pos.Symbol),
		applogger.Int64("qty", pos.Qty),
		applogger.Float64("stop", price),
	)
	return nil
}

func closedUpdate(trail models.LogicTrail) *models.SignalUpdate {
	return models.NewSignalUpdate().Active(false).Ready(false).PartialExitDone(false).Trail(trail)
}
