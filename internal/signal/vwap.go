package signal

import (
	"github.com/shopspring/decimal"
)

// DefaultVWAPWindow is the number of completed candles averaged for the
// "current price" reference (spec.md §3, §6).
const DefaultVWAPWindow = 5

// VWAP computes the volume-weighted average price over candles, falling
// back to the arithmetic mean of closes when total volume is zero. Callers
// are responsible for passing only completed candles strictly earlier than
// the current logical "now" and for limiting the slice to the configured
// window; VWAP itself does no time filtering.
func VWAP(candles []Candle) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.Zero
	}

	totalVolume := decimal.Zero
	weighted := decimal.Zero
	sumClose := decimal.Zero

	for _, c := range candles {
		typical := c.High.Add(c.Low).Add(c.Close).Div(decimal.NewFromInt(3))
		weighted = weighted.Add(typical.Mul(c.Volume))
		totalVolume = totalVolume.Add(c.Volume)
		sumClose = sumClose.Add(c.Close)
	}

	if totalVolume.IsZero() {
		return sumClose.Div(decimal.NewFromInt(int64(len(candles))))
	}

	return weighted.Div(totalVolume)
}
