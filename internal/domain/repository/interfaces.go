package repository

import (
	"context"
	"errors"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/pkg/util"
)

// ErrNotFound is returned by stores when the keyed row does not exist.
var ErrNotFound = errors.New("not found")

// BarStore reads and writes normalized OHLCV rows keyed by (symbol, timestamp, timeframe).
type BarStore interface {
	Init(ctx context.Context) error
	// LatestBars returns up to limit most recent bars, ordered by timestamp ascending.
	LatestBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
	UpsertBars(ctx context.Context, bars []models.Bar) error
}

// SignalStore holds exactly one Signal per symbol.
type SignalStore interface {
	Upsert(ctx context.Context, s models.Signal) error
	Get(ctx context.Context, symbol string) (util.Optional[models.Signal], error)
	List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error)
	// Update applies a partial field set. Missing rows return ErrNotFound.
	Update(ctx context.Context, symbol string, u *models.SignalUpdate) error
	Delete(ctx context.Context, symbol string) error
}

type AccountOracle interface {
	Account(ctx context.Context) (models.Account, error)
	Positions(ctx context.Context) ([]models.Position, error)
}

type OrderGateway interface {
	SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	// OpenOrders lists open orders, optionally restricted to one symbol ("" = all).
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	// SubmitStopOrder places a GTC stop for shares already held, e.g. re-protecting what is left
	// after a partial exit.
	SubmitStopOrder(ctx context.Context, req models.StopOrderRequest) (models.Order, error)
	ReplaceStopPrice(ctx context.Context, orderID string, price float64) error
	CancelOrder(ctx context.Context, orderID string) error
}

type MarketData interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	// DailySnapshots returns the current daily bar per symbol. Symbols without data are omitted.
	DailySnapshots(ctx context.Context, symbols []string) (map[string]models.Bar, error)
}

type ReferenceData interface {
	Symbols(ctx context.Context) ([]string, error)
	SectorProxy(ctx context.Context, symbol string) (util.Optional[string], error)
	Exchange(ctx context.Context, symbol string) (util.Optional[string], error)
	NextEarnings(ctx context.Context, symbol string, from time.Time) (util.Optional[time.Time], error)
}

// EventPublisher fans lifecycle events out to consumers. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.SignalEvent) error
	Close() error
}

type Metrics interface {
	RecordJob(job string, seconds float64, err error)
	RecordBatch(op string, succeeded, failed int)
	RecordOrder(symbol string, side models.Side, kind string)
	RecordEvent(eventType models.EventType)
	RecordOpenPositions(n int)
	RecordError(kind string)
}
