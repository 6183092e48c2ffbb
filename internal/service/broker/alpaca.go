package broker

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"sidbot/internal/domain/models"
	domrepo "sidbot/internal/domain/repository"
	"sidbot/internal/service/ratelimit"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

// tradingAPI is the subset of *alpaca.Client the gateway calls.
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	ReplaceOrder(orderID string, req alpaca.ReplaceOrderRequest) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

// dataAPI is the subset of *marketdata.Client the gateway calls.
type dataAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
	GetSnapshots(symbols []string, req marketdata.GetSnapshotRequest) (map[string]*marketdata.Snapshot, error)
}

const limiterKey = "alpaca"

// Gateway is the single broker adapter: account, orders and market data. Every call waits
// on the shared rate limiter first because the SDK itself takes no context.
type Gateway struct {
	trading tradingAPI
	data    dataAPI
	limiter *ratelimit.Limiter
	l       *applogger.Logger
}

func NewGateway(cfg config.Alpaca, limiter *ratelimit.Limiter, l *applogger.Logger) *Gateway {
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.KeyID,
		APISecret: cfg.SecretKey,
		BaseURL:   cfg.BaseURL(),
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.KeyID,
		APISecret: cfg.SecretKey,
	})
	return newGateway(trading, data, limiter, l)
}

func newGateway(trading tradingAPI, data dataAPI, limiter *ratelimit.Limiter, l *applogger.Logger) *Gateway {
	return &Gateway{trading: trading, data: data, limiter: limiter, l: l.With(applogger.String("component", "alpaca"))}
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}
	return g.limiter.Wait(ctx, limiterKey)
}

func (g *Gateway) Account(ctx context.Context) (models.Account, error) {
	if err := g.wait(ctx); err != nil {
		return models.Account{}, err
	}
	acct, err := g.trading.GetAccount()
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return models.Account{
		Equity:          acct.Equity.InexactFloat64(),
		ShortingEnabled: acct.ShortingEnabled,
	}, nil
}

func (g *Gateway) Positions(ctx context.Context) ([]models.Position, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	raw, err := g.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	out := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		side := models.PositionLong
		if p.Side == string(models.PositionShort) || p.Qty.IsNegative() {
			side = models.PositionShort
		}
		out = append(out, models.Position{
			Symbol:        p.Symbol,
			Side:          side,
			Qty:           p.Qty.Abs().IntPart(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// SubmitMarketOrder places a market order. With a stop present it is sent as a one-triggers-other
// order whose child is the protective stop.
func (g *Gateway) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	if req.Qty <= 0 {
		return models.Order{}, fmt.Errorf("submit %s: non-positive qty %d", req.Symbol, req.Qty)
	}
	if err := g.wait(ctx); err != nil {
		return models.Order{}, err
	}
	qty := decimal.NewFromInt(req.Qty)
	tif := alpaca.Day
	if req.TimeInForce == models.TIFGTC {
		tif = alpaca.GTC
	}
	pr := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.Market,
		TimeInForce:   tif,
		ClientOrderID: req.ClientOrderID,
	}
	if stop, ok := req.StopLoss.Get(); ok {
		sp := decimal.NewFromFloat(stop).Round(2)
		pr.OrderClass = alpaca.OTO
		pr.StopLoss = &alpaca.StopLoss{StopPrice: &sp}
	}

	o, err := g.trading.PlaceOrder(pr)
	if err != nil {
		g.l.Error("place order failed",
			applogger.Symbol(req.Symbol),
			applogger.String("side", string(req.Side)),
			applogger.Int64("qty", req.Qty),
			applogger.Error(err),
		)
		return models.Order{}, fmt.Errorf("place order %s: %w", req.Symbol, err)
	}
	g.l.Info("order submitted",
		applogger.Symbol(req.Symbol),
		applogger.String("side", string(req.Side)),
		applogger.Int64("qty", req.Qty),
		applogger.String("order_id", o.ID),
	)
	return toOrder(*o), nil
}

func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	req := alpaca.GetOrdersRequest{Status: "open", Limit: 500}
	if symbol != "" {
		req.Symbols = []string{symbol}
	}
	raw, err := g.trading.GetOrders(req)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	out := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		out = append(out, toOrder(o))
	}
	return out, nil
}

// SubmitStopOrder places a simple GTC stop order. Alpaca reserves the shares it covers, so the
// qty must not exceed what other open orders leave available.
func (g *Gateway) SubmitStopOrder(ctx context.Context, req models.StopOrderRequest) (models.Order, error) {
	if req.Qty <= 0 {
		return models.Order{}, fmt.Errorf("stop %s: non-positive qty %d", req.Symbol, req.Qty)
	}
	if err := g.wait(ctx); err != nil {
		return models.Order{}, err
	}
	qty := decimal.NewFromInt(req.Qty)
	sp := decimal.NewFromFloat(req.StopPrice).Round(2)
	o, err := g.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.Stop,
		TimeInForce:   alpaca.GTC,
		StopPrice:     &sp,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		g.l.Error("place stop failed",
			applogger.Symbol(req.Symbol),
			applogger.Int64("qty", req.Qty),
			applogger.Float64("stop", req.StopPrice),
			applogger.Error(err),
		)
		return models.Order{}, fmt.Errorf("place stop %s: %w", req.Symbol, err)
	}
	g.l.Info("stop submitted",
		applogger.Symbol(req.Symbol),
		applogger.Int64("qty", req.Qty),
		applogger.Float64("stop", req.StopPrice),
		applogger.String("order_id", o.ID),
	)
	return toOrder(*o), nil
}

func (g *Gateway) ReplaceStopPrice(ctx context.Context, orderID string, price float64) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	sp := decimal.NewFromFloat(price).Round(2)
	if _, err := g.trading.ReplaceOrder(orderID, alpaca.ReplaceOrderRequest{StopPrice: &sp}); err != nil {
		return fmt.Errorf("replace order %s: %w", orderID, err)
	}
	return nil
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	if err := g.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

func (g *Gateway) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := g.wait(ctx); err != nil {
		return 0, err
	}
	t, err := g.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("latest trade %s: %w", symbol, err)
	}
	if t == nil || t.Price <= 0 {
		return 0, fmt.Errorf("latest trade %s: no price", symbol)
	}
	return t.Price, nil
}

// DailySnapshots maps each symbol's current daily bar. Symbols the feed does not know are left out.
func (g *Gateway) DailySnapshots(ctx context.Context, symbols []string) (map[string]models.Bar, error) {
	if len(symbols) == 0 {
		return map[string]models.Bar{}, nil
	}
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	snaps, err := g.data.GetSnapshots(symbols, marketdata.GetSnapshotRequest{})
	if err != nil {
		return nil, fmt.Errorf("snapshots: %w", err)
	}
	out := make(map[string]models.Bar, len(snaps))
	for sym, s := range snaps {
		if s == nil || s.DailyBar == nil {
			continue
		}
		b := s.DailyBar
		out[sym] = models.Bar{
			Symbol:    sym,
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Timeframe: models.TF1d,
		}
	}
	return out, nil
}

func toOrder(o alpaca.Order) models.Order {
	out := models.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          models.Side(o.Side),
		Type:          models.OrderType(o.Type),
		Status:        o.Status,
		SubmittedAt:   o.SubmittedAt,
	}
	if o.Qty != nil {
		out.Qty = o.Qty.IntPart()
	}
	if o.StopPrice != nil {
		out.StopPrice = util.Some(o.StopPrice.InexactFloat64())
	}
	return out
}

var (
	_ domrepo.AccountOracle = (*Gateway)(nil)
	_ domrepo.OrderGateway  = (*Gateway)(nil)
	_ domrepo.MarketData    = (*Gateway)(nil)
)
