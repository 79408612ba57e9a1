package strategycore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/logger"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// CancelScheduled cancels the held scheduled signal, if any, and returns
// the resulting cancellation tick for the caller to emit. Returns nil if
// nothing was scheduled.
func (c *Core) CancelScheduled(ctx context.Context) *signal.TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduledSignal == nil {
		return nil
	}
	sig := c.scheduledSignal
	c.scheduledSignal = nil
	c.deleteScheduled(ctx)
	result := signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, Signal: sig, CancelReason: signal.CancelManual}
	return &result
}

// PartialProfit records a partial-profit milestone for observability;
// spec.md §4.6 treats this as informational only, with no effect on the
// signal's TP/SL or lifetime.
func (c *Core) PartialProfit(pct decimal.Decimal) {
	c.logMilestone("partial_profit", pct)
}

// PartialLoss records a partial-loss milestone, observability-only like
// PartialProfit.
func (c *Core) PartialLoss(pct decimal.Decimal) {
	c.logMilestone("partial_loss", pct)
}

func (c *Core) logMilestone(kind string, pct decimal.Decimal) {
	c.mu.Lock()
	sig := c.activeSignal
	c.mu.Unlock()
	if sig == nil {
		return
	}
	logger.Default().Strategy(c.strategyName).Symbol(c.symbol).Lifecycle(kind, map[string]any{
		"signalId": sig.ID,
		"percent":  pct.String(),
	})
}

// TrailingStop moves the active signal's stop-loss by deltaPct of its
// current open-to-stop distance (measured after any earlier moves; the
// distance at opening is not kept), only ever toward the current price
// (spec.md §4.6's monotonicity constraint: a trailing stop never gives
// back ground it has already gained).
func (c *Core) TrailingStop(deltaPct decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig := c.activeSignal
	if sig == nil {
		return fmt.Errorf("strategycore: no active signal to trail a stop-loss on")
	}

	distance := sig.PriceOpen.Sub(sig.PriceStopLoss).Abs()
	delta := distance.Mul(deltaPct.Abs()).Div(hundred)

	switch sig.Position {
	case signal.Long:
		proposed := sig.PriceStopLoss.Add(delta)
		if proposed.GreaterThan(sig.PriceStopLoss) {
			sig.PriceStopLoss = proposed
		}
	case signal.Short:
		proposed := sig.PriceStopLoss.Sub(delta)
		if proposed.LessThan(sig.PriceStopLoss) {
			sig.PriceStopLoss = proposed
		}
	}
	return nil
}

// TrailingProfit moves the active signal's take-profit by deltaPct of its
// current open-to-target distance (measured after any earlier moves; the
// distance at opening is not kept). Once a direction (extend the target
// further out, or retract it closer) is established by the sign of the
// first call's deltaPct, subsequent calls must continue in that same
// direction (spec.md §4.6).
func (c *Core) TrailingProfit(deltaPct decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig := c.activeSignal
	if sig == nil {
		return fmt.Errorf("strategycore: no active signal to trail a take-profit on")
	}

	sign := 1
	if deltaPct.IsNegative() {
		sign = -1
	}
	if c.tpTrailSign != 0 && c.tpTrailSign != sign {
		return fmt.Errorf("strategycore: trailing take-profit direction is already locked")
	}
	c.tpTrailSign = sign

	distance := sig.PriceTakeProfit.Sub(sig.PriceOpen).Abs()
	delta := distance.Mul(deltaPct.Abs()).Div(hundred)

	extend := sign > 0
	switch sig.Position {
	case signal.Long:
		if extend {
			sig.PriceTakeProfit = sig.PriceTakeProfit.Add(delta)
		} else {
			sig.PriceTakeProfit = sig.PriceTakeProfit.Sub(delta)
		}
	case signal.Short:
		if extend {
			sig.PriceTakeProfit = sig.PriceTakeProfit.Sub(delta)
		} else {
			sig.PriceTakeProfit = sig.PriceTakeProfit.Add(delta)
		}
	}
	return nil
}

// Breakeven moves the active signal's stop-loss to its entry price once
// currentPrice has moved favorably by at least 2x (slippage+fee), so a
// reversal back to entry no longer costs more than it would have cost to
// never have opened the position (spec.md §9, Open Question decision).
// Reports whether the move was applied.
func (c *Core) Breakeven(currentPrice decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sig := c.activeSignal
	if sig == nil {
		return false
	}

	threshold := c.cfg.SlippagePct.Add(c.cfg.FeePct).Mul(decimal.NewFromInt(2)).Div(hundred)

	switch sig.Position {
	case signal.Long:
		gain := currentPrice.Sub(sig.PriceOpen).Div(sig.PriceOpen)
		if gain.GreaterThanOrEqual(threshold) && sig.PriceStopLoss.LessThan(sig.PriceOpen) {
			sig.PriceStopLoss = sig.PriceOpen
			return true
		}
	case signal.Short:
		gain := sig.PriceOpen.Sub(currentPrice).Div(sig.PriceOpen)
		if gain.GreaterThanOrEqual(threshold) && sig.PriceStopLoss.GreaterThan(sig.PriceOpen) {
			sig.PriceStopLoss = sig.PriceOpen
			return true
		}
	}
	return false
}
