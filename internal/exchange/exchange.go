package exchange

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// FlatEpsilon is the size below which a venue-reported position is treated
// as absent (dust left over from rounding).
const FlatEpsilon = 1e-5

// ErrRejected marks a venue-side order rejection (bad size/price), as
// opposed to a transport failure. Rejections are not retried blindly.
var ErrRejected = errors.New("order rejected by venue")

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

const TifIOC = "IOC"

// Position is the single normalized form of a venue-reported position.
// Produced once at the REST boundary; everything downstream reads this.
type Position struct {
	Market        string
	Size          float64
	Side          Side
	MarkPrice     float64
	UnrealizedPnl float64
	Leverage      float64
}

// Notional is the dollar-equivalent exposure of the position.
func (p Position) Notional() float64 {
	return math.Abs(p.Size) * p.MarkPrice
}

// Flat reports whether the position is too small to matter.
func (p Position) Flat() bool {
	return math.Abs(p.Size) <= FlatEpsilon
}

// Orderbook carries the top of book only; depth is out of scope.
type Orderbook struct {
	BestBid float64
	BestAsk float64
}

// MarketPrecision holds the venue's per-market increments. Fetched fresh
// every cycle; the venue may change them between cycles.
type MarketPrecision struct {
	MinOrderSize       decimal.Decimal
	MinOrderSizeChange decimal.Decimal
	MinPriceChange     decimal.Decimal
	AssetPrecision     int
}

// Valid reports whether every increment is a usable positive step.
func (m MarketPrecision) Valid() bool {
	return m.MinOrderSize.IsPositive() &&
		m.MinOrderSizeChange.IsPositive() &&
		m.MinPriceChange.IsPositive()
}

// Order is an immediate-or-cancel limit order as the venue accepts it.
// Qty and Price are already quantized strings.
type Order struct {
	Market        string
	Side          OrderSide
	Qty           string
	Price         string
	TimeInForce   string
	ClientOrderID string
}
