package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/internal/repository"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/metrics"
	"sidbot/pkg/util"
)

var testNow = time.Date(2024, 6, 5, 15, 30, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Parse([]byte("alpaca:\n  key_id: k\n  secret_key: s\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return c
}

func testEnv() (Env, *repository.RecordingPublisher) {
	pub := &repository.RecordingPublisher{}
	return Env{
		Log:     applogger.Nop(),
		Metrics: metrics.Nop{},
		Events:  pub,
		Now:     func() time.Time { return testNow },
	}, pub
}

// weekdays builds one bar per weekday starting Tuesday 2024-01-02, so every five bars fill
// one Tuesday-to-Monday week. High and low sit one point either side of the close.
func weekdays(symbol string, closes []float64) []models.Bar {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		for !isWeekday(day) {
			day = day.AddDate(0, 0, 1)
		}
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timestamp: day,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
			Timeframe: models.TF1d,
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

func isWeekday(t time.Time) bool { return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday }

// trend returns n closes starting at from and moving by step each bar.
func trend(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

func seedBars(t *testing.T, store *repository.MemoryBarStore, symbol string, closes []float64) {
	t.Helper()
	if err := store.UpsertBars(context.Background(), weekdays(symbol, closes)); err != nil {
		t.Fatalf("seed bars: %v", err)
	}
}

func seedSignal(t *testing.T, store *repository.MemorySignalStore, sig models.Signal) {
	t.Helper()
	if err := store.Upsert(context.Background(), sig); err != nil {
		t.Fatalf("seed signal: %v", err)
	}
}

func mustSignal(t *testing.T, store *repository.MemorySignalStore, symbol string) models.Signal {
	t.Helper()
	got, err := store.Get(context.Background(), symbol)
	if err != nil {
		t.Fatalf("get %s: %v", symbol, err)
	}
	sig, ok := got.Get()
	if !ok {
		t.Fatalf("signal %s missing", symbol)
	}
	return sig
}

func assertGone(t *testing.T, store *repository.MemorySignalStore, symbol string) {
	t.Helper()
	got, _ := store.Get(context.Background(), symbol)
	if got.IsPresent() {
		t.Fatalf("signal %s should have been removed", symbol)
	}
}

func countType(pub *repository.RecordingPublisher, typ models.EventType) int {
	n := 0
	for _, tt := range pub.Types() {
		if tt == typ {
			n++
		}
	}
	return n
}

// failingBars fails every read for one symbol.
type failingBars struct {
	*repository.MemoryBarStore
	symbol string
}

func (f failingBars) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	if symbol == f.symbol {
		return nil, errors.New("clickhouse unavailable")
	}
	return f.MemoryBarStore.LatestBars(ctx, symbol, tf, limit)
}

var (
	errInsufficientQty = errors.New("insufficient qty available for order")
	errBrokerDown      = errors.New("broker unavailable")
)

// fakeBroker is account, order and market-data port in one. Like Alpaca it reserves the
// shares covered by open exit-side orders, so a sell beyond the unreserved quantity of a
// held position is rejected. Accepted exit orders fill at once against the position.
type fakeBroker struct {
	mu        sync.Mutex
	account   models.Account
	positions []models.Position
	prices    map[string]float64
	snapshots map[string]models.Bar
	open      []models.Order
	submitted []models.OrderRequest
	stops     []models.StopOrderRequest
	replaced  map[string]float64
	cancelled []string
	seq       int

	rejectMarket error
	failStops    int
	failReplace  int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		account:   models.Account{Equity: 100000, ShortingEnabled: true},
		prices:    map[string]float64{},
		snapshots: map[string]models.Bar{},
		replaced:  map[string]float64{},
	}
}

func (b *fakeBroker) Account(context.Context) (models.Account, error) { return b.account, nil }

func (b *fakeBroker) Positions(context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Position(nil), b.positions...), nil
}

// free returns the unreserved shares of the held position that an order on side would
// reduce. ok is false when side does not reduce a held position.
func (b *fakeBroker) free(symbol string, side models.Side) (idx int, free int64, ok bool) {
	for i, p := range b.positions {
		if p.Symbol != symbol {
			continue
		}
		exit := models.SideSell
		if p.Side == models.PositionShort {
			exit = models.SideBuy
		}
		if side != exit {
			return i, 0, false
		}
		free = p.Qty
		for _, o := range b.open {
			if o.Symbol == symbol && o.Side == side {
				free -= o.Qty
			}
		}
		return i, free, true
	}
	return -1, 0, false
}

func (b *fakeBroker) SubmitMarketOrder(_ context.Context, req models.OrderRequest) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectMarket != nil {
		return models.Order{}, b.rejectMarket
	}
	idx, free, exit := b.free(req.Symbol, req.Side)
	if exit && req.Qty > free {
		return models.Order{}, fmt.Errorf("%s: %w", req.Symbol, errInsufficientQty)
	}
	b.seq++
	b.submitted = append(b.submitted, req)
	if exit {
		b.positions[idx].Qty -= req.Qty
		if b.positions[idx].Qty == 0 {
			b.positions = append(b.positions[:idx], b.positions[idx+1:]...)
		}
	}
	o := models.Order{
		ID:            fmt.Sprintf("ord-%d", b.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          models.OrderMarket,
		Status:        "accepted",
		Qty:           req.Qty,
	}
	if stop, ok := req.StopLoss.Get(); ok {
		b.open = append(b.open, models.Order{
			ID:        fmt.Sprintf("stop-%d", b.seq),
			Symbol:    req.Symbol,
			Side:      opposite(req.Side),
			Type:      models.OrderStop,
			Status:    "held",
			Qty:       req.Qty,
			StopPrice: util.Some(stop),
		})
	}
	return o, nil
}

func (b *fakeBroker) SubmitStopOrder(_ context.Context, req models.StopOrderRequest) (models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failStops > 0 {
		b.failStops--
		return models.Order{}, errBrokerDown
	}
	if _, free, exit := b.free(req.Symbol, req.Side); exit && req.Qty > free {
		return models.Order{}, fmt.Errorf("%s: %w", req.Symbol, errInsufficientQty)
	}
	b.seq++
	b.stops = append(b.stops, req)
	o := models.Order{
		ID:        fmt.Sprintf("stop-%d", b.seq),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      models.OrderStop,
		Status:    "new",
		Qty:       req.Qty,
		StopPrice: util.Some(req.StopPrice),
	}
	b.open = append(b.open, o)
	return o, nil
}

func opposite(s models.Side) models.Side {
	if s == models.SideBuy {
		return models.SideSell
	}
	return models.SideBuy
}

func (b *fakeBroker) OpenOrders(_ context.Context, symbol string) ([]models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Order
	for _, o := range b.open {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

// openStops returns the resting stops for symbol.
func (b *fakeBroker) openStops(symbol string) []models.Order {
	open, _ := b.OpenOrders(context.Background(), symbol)
	var out []models.Order
	for _, o := range open {
		if o.IsStop() {
			out = append(out, o)
		}
	}
	return out
}

func (b *fakeBroker) ReplaceStopPrice(_ context.Context, id string, price float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failReplace > 0 {
		b.failReplace--
		return errBrokerDown
	}
	for i := range b.open {
		if b.open[i].ID == id {
			b.open[i].StopPrice = util.Some(price)
			b.replaced[id] = price
			return nil
		}
	}
	return fmt.Errorf("order %s not open", id)
}

func (b *fakeBroker) CancelOrder(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, id)
	kept := b.open[:0]
	for _, o := range b.open {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	b.open = kept
	return nil
}

func (b *fakeBroker) LatestPrice(_ context.Context, symbol string) (float64, error) {
	p, ok := b.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no trade for %s", symbol)
	}
	return p, nil
}

func (b *fakeBroker) DailySnapshots(_ context.Context, symbols []string) (map[string]models.Bar, error) {
	out := make(map[string]models.Bar)
	for _, s := range symbols {
		if bar, ok := b.snapshots[s]; ok {
			out[s] = bar
		}
	}
	return out, nil
}
