package basket

import (
	"fmt"
	"math"

	"github.com/Investmeows/extendedbot/internal/exchange"
)

// Tolerance is the accepted relative deviation between a leg's actual
// notional and its target.
const Tolerance = 0.01

// LegDetail records how one leg compared against its target.
type LegDetail struct {
	Pair           string
	TargetNotional float64
	ActualNotional float64
	Deviation      float64
	Valid          bool
	Reason         string
}

// Validate compares the live position snapshot against the basket. A leg is
// valid when a position exists for its pair, the side matches the direction,
// and the notional is within Tolerance of the target. An empty basket is
// invalid: there is nothing to converge to.
func Validate(positions []exchange.Position, targets Basket) (bool, []LegDetail) {
	if len(targets) == 0 {
		return false, nil
	}
	byMarket := make(map[string]exchange.Position, len(positions))
	for _, pos := range positions {
		if pos.Flat() {
			continue
		}
		byMarket[pos.Market] = pos
	}
	details := make([]LegDetail, 0, len(targets))
	allValid := true
	for _, target := range targets {
		detail := LegDetail{
			Pair:           target.Pair,
			TargetNotional: target.TargetNotional,
		}
		pos, ok := byMarket[target.Pair]
		switch {
		case !ok:
			detail.Reason = "no position"
		case pos.Side != target.Direction.Side():
			detail.ActualNotional = pos.Notional()
			detail.Reason = fmt.Sprintf("side %s, want %s", pos.Side, target.Direction.Side())
		default:
			detail.ActualNotional = pos.Notional()
			detail.Deviation = math.Abs(detail.ActualNotional-target.TargetNotional) / target.TargetNotional
			if detail.Deviation <= Tolerance {
				detail.Valid = true
			} else {
				detail.Reason = fmt.Sprintf("deviation %.2f%% exceeds %.0f%%", detail.Deviation*100, Tolerance*100)
			}
		}
		if !detail.Valid {
			allValid = false
		}
		details = append(details, detail)
	}
	return allValid, details
}
