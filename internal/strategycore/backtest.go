package strategycore

import (
	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/telemetry"
)

// Backtest fast-forwards an already opened/scheduled signal through
// candles (ascending order, all with Timestamp at or after the tick that
// created it) until it resolves, without waiting for one driver frame
// step per candle (spec.md §4.8's "fast-path"). It returns the resolving
// TickResult and the timestamp the driver should skip its frame iterator
// past; if candles runs out before resolution, it returns the current
// in-flight status and the last candle's timestamp so the driver can
// resume normal tick-by-tick evaluation from there.
//
// Backtest must only be called while either a scheduled or an active
// signal is held; it does not generate new signals.
func (c *Core) Backtest(candles []signal.Candle) (signal.TickResult, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, candle := range candles {
		if c.scheduledSignal != nil {
			if result, resolved := c.backtestScheduled(candle); resolved {
				recordLifecycleMetrics(c.symbol, result, c.activeSignal != nil)
				return result, candle.Timestamp
			}
			// Whether still waiting or just activated, pendingAt for a
			// freshly-activated signal is pinned to the next candle
			// boundary (spec.md §3's closeTimestamp >= pendingAt
			// invariant); evaluating this same candle against
			// backtestActive would violate that, so always move on.
			continue
		}

		if c.activeSignal != nil {
			if result, resolved := c.backtestActive(candle); resolved {
				recordLifecycleMetrics(c.symbol, result, c.activeSignal != nil)
				return result, candle.Timestamp
			}
		}
	}

	result, ts := c.inFlightStatus(candles)
	telemetry.SetActiveSignalGauge(c.symbol, c.activeSignal != nil)
	return result, ts
}

func (c *Core) backtestScheduled(candle signal.Candle) (signal.TickResult, bool) {
	sig := c.scheduledSignal
	timeoutMs := int64(c.cfg.ScheduleAwaitMinutes) * 60_000

	if timeoutMs > 0 && candle.Timestamp-sig.ScheduledAt >= timeoutMs {
		c.scheduledSignal = nil
		return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: candle.Close, Signal: sig, CancelReason: signal.CancelTimeout}, true
	}

	if candleCrossesStopLoss(sig, candle) {
		c.scheduledSignal = nil
		return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: candle.Close, Signal: sig, CancelReason: signal.CancelPreActivationStop}, true
	}

	if !candleCrossesActivation(sig, candle) {
		return signal.TickResult{}, false
	}

	checkArgs := riskgate.CheckArgs{
		PendingSignal:   draftFromSignal(sig),
		Symbol:          c.symbol,
		StrategyName:    c.strategyName,
		CurrentPrice:    candle.Close,
		Timestamp:       candle.Timestamp,
		ActivePositions: c.activePositionsCount(),
	}
	if err := c.gate.CheckSignal(checkArgs); err != nil {
		c.scheduledSignal = nil
		return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: candle.Close, Signal: sig, CancelReason: signal.CancelRiskRejected}, true
	}

	// Activation lands mid-candle; pendingAt is pinned to the next
	// minute boundary after this candle closes rather than the candle's
	// own open timestamp (spec.md §4.6's backtest convention).
	sig.PendingAt = candle.Timestamp + 60_000
	sig.IsScheduled = false
	sig.UpdatedAt = candle.Timestamp
	c.scheduledSignal = nil
	c.activeSignal = sig
	c.gate.AddSignal(c.strategyName, c.symbol)
	return signal.TickResult{}, false
}

func (c *Core) backtestActive(candle signal.Candle) (signal.TickResult, bool) {
	sig := c.activeSignal
	lifetimeMs := int64(sig.MinuteEstimatedTime) * 60_000

	hitsTP := candleCrossesTakeProfit(sig, candle)
	hitsSL := candleCrossesStopLoss(sig, candle)
	expired := lifetimeMs > 0 && candle.Timestamp-sig.PendingAt >= lifetimeMs

	var reason signal.CloseReason
	var closePrice decimal.Decimal
	switch {
	case hitsTP:
		// Take-profit wins a same-candle TP/SL tie (spec.md §4.6).
		reason, closePrice = signal.CloseTakeProfit, sig.PriceTakeProfit
	case hitsSL:
		reason, closePrice = signal.CloseStopLoss, sig.PriceStopLoss
	case expired:
		reason, closePrice = signal.CloseTimeExpired, candle.Close
	default:
		return signal.TickResult{}, false
	}

	pnl := ComputePnL(sig.Position, sig.PriceOpen, closePrice, c.cfg.SlippagePct, c.cfg.FeePct)
	c.gate.RemoveSignal(c.strategyName, c.symbol)
	c.activeSignal = nil
	return signal.TickResult{
		Kind:           signal.KindClosed,
		Symbol:         c.symbol,
		CurrentPrice:   closePrice,
		Signal:         sig,
		PriceClose:     closePrice,
		CloseReason:    reason,
		CloseTimestamp: candle.Timestamp,
		PnL:            pnl,
	}, true
}

func (c *Core) inFlightStatus(candles []signal.Candle) (signal.TickResult, int64) {
	var lastTs int64
	lastClose := decimal.Zero
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		lastTs = last.Timestamp
		lastClose = last.Close
	}

	switch {
	case c.activeSignal != nil:
		return signal.TickResult{Kind: signal.KindActive, Symbol: c.symbol, CurrentPrice: lastClose, Signal: c.activeSignal}, lastTs
	case c.scheduledSignal != nil:
		return signal.TickResult{Kind: signal.KindScheduled, Symbol: c.symbol, CurrentPrice: lastClose, Signal: c.scheduledSignal}, lastTs
	default:
		return signal.Idle(c.symbol, lastClose), lastTs
	}
}

func candleCrossesStopLoss(sig *signal.Signal, candle signal.Candle) bool {
	switch sig.Position {
	case signal.Long:
		return candle.Low.LessThanOrEqual(sig.PriceStopLoss)
	case signal.Short:
		return candle.High.GreaterThanOrEqual(sig.PriceStopLoss)
	default:
		return false
	}
}

func candleCrossesTakeProfit(sig *signal.Signal, candle signal.Candle) bool {
	switch sig.Position {
	case signal.Long:
		return candle.High.GreaterThanOrEqual(sig.PriceTakeProfit)
	case signal.Short:
		return candle.Low.LessThanOrEqual(sig.PriceTakeProfit)
	default:
		return false
	}
}

func candleCrossesActivation(sig *signal.Signal, candle signal.Candle) bool {
	switch sig.Position {
	case signal.Long:
		return candle.Low.LessThanOrEqual(sig.PriceOpen)
	case signal.Short:
		return candle.High.GreaterThanOrEqual(sig.PriceOpen)
	default:
		return false
	}
}
