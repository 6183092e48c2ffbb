package models

import (
	"time"

	"sidbot/pkg/util"
)

// Side is an order or position side as the broker names it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PositionSide is the broker's label for an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

type Account struct {
	Equity          float64 `json:"equity"`
	ShortingEnabled bool    `json:"shorting_enabled"`
}

// Position is broker-owned ground truth. Qty is always positive; Side carries the sign.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Qty           int64        `json:"qty"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
}

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderStop   OrderType = "stop"
)

type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
)

type Order struct {
	ID            string                 `json:"id"`
	ClientOrderID string                 `json:"client_order_id"`
	Symbol        string                 `json:"symbol"`
	Side          Side                   `json:"side"`
	Type          OrderType              `json:"type"`
	Status        string                 `json:"status"`
	Qty           int64                  `json:"qty"`
	StopPrice     util.Optional[float64] `json:"stop_price"`
	SubmittedAt   time.Time              `json:"submitted_at"`
}

// IsStop reports whether the order is a protective stop.
func (o Order) IsStop() bool { return o.Type == OrderStop }

// OrderRequest is a market order, optionally carrying a protective stop leg.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Qty           int64
	TimeInForce   TimeInForce
	StopLoss      util.Optional[float64]
	ClientOrderID string
}

// StopOrderRequest is a standalone protective stop for shares already held.
type StopOrderRequest struct {
	Symbol        string
	Side          Side
	Qty           int64
	StopPrice     float64
	ClientOrderID string
}
