package basket

import "github.com/Investmeows/extendedbot/internal/exchange"

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Side maps the leg direction onto the venue's position side.
func (d Direction) Side() exchange.Side {
	if d == Short {
		return exchange.SideShort
	}
	return exchange.SideLong
}

// OpenSide is the order side that opens a leg in this direction.
func (d Direction) OpenSide() exchange.OrderSide {
	if d == Short {
		return exchange.Sell
	}
	return exchange.Buy
}

// PairTarget is one leg of the basket: a market, the dollar exposure to hold
// there, and the direction.
type PairTarget struct {
	Pair           string
	TargetNotional float64
	Direction      Direction
}

// Basket is the externally supplied list of legs. Order is irrelevant.
type Basket []PairTarget

// Pairs lists every market in the basket, in configuration order.
func (b Basket) Pairs() []string {
	pairs := make([]string, 0, len(b))
	for _, leg := range b {
		pairs = append(pairs, leg.Pair)
	}
	return pairs
}
