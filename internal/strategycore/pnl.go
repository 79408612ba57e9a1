package strategycore

import (
	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

var hundred = decimal.NewFromInt(100)

// ComputePnL implements the cost-adjusted profit/loss formulas of spec.md
// §6: slippage and fees are folded into the entry and exit prices before
// the percentage change is taken, so a closed signal's PnL always reflects
// what a real fill would have cost.
func ComputePnL(position signal.Position, priceOpen, priceClose, slippagePct, feePct decimal.Decimal) signal.PnL {
	slip := slippagePct.Div(hundred)
	fee := feePct.Div(hundred)
	one := decimal.NewFromInt(1)

	var entryCosted, exitCosted decimal.Decimal
	switch position {
	case signal.Long:
		entryCosted = priceOpen.Mul(one.Add(slip).Add(fee))
		exitCosted = priceClose.Mul(one.Sub(slip).Sub(fee))
	case signal.Short:
		entryCosted = priceOpen.Mul(one.Sub(slip).Add(fee))
		exitCosted = priceClose.Mul(one.Add(slip).Add(fee))
	}

	var pnlPct decimal.Decimal
	if !entryCosted.IsZero() {
		switch position {
		case signal.Long:
			pnlPct = exitCosted.Sub(entryCosted).Div(entryCosted).Mul(hundred)
		case signal.Short:
			pnlPct = entryCosted.Sub(exitCosted).Div(entryCosted).Mul(hundred)
		}
	}

	return signal.PnL{
		PriceOpenWithCosts:  entryCosted,
		PriceCloseWithCosts: exitCosted,
		PnLPercentage:       pnlPct,
	}
}
