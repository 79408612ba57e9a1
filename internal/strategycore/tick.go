package strategycore

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engctx"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/telemetry"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/validator"
)

// Tick evaluates this Core once, for the ExecutionContext/MethodContext
// currently bound on ctx (spec.md §4.6). It never returns an error: any
// failure from the current-price lookup, getSignal, validation, or the
// risk gate is reported through the Core's error sink and resolved as an
// idle tick, per spec.md §4.6's "errors treated as idle, no state change".
func (c *Core) Tick(ctx context.Context) signal.TickResult {
	telemetry.RecordTick(c.symbol)

	ec, err := engctx.CurrentExecution(ctx)
	if err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, decimal.Zero)
	}
	mc, err := engctx.CurrentMethod(ctx)
	if err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, decimal.Zero)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	price, err := c.fetchPrice(ctx, ec.Now)
	if err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, decimal.Zero)
	}

	if c.isStopped && c.activeSignal == nil && c.scheduledSignal == nil {
		return signal.Idle(c.symbol, price)
	}

	var result signal.TickResult
	switch {
	case c.activeSignal != nil:
		result = c.evaluateActive(ctx, ec.Now, price)
	case c.scheduledSignal != nil:
		result = c.evaluateScheduled(ctx, ec.Now, price)
	default:
		result = c.evaluateIdle(ctx, mc, ec.Now, ec.IsBacktest, price)
	}

	recordLifecycleMetrics(c.symbol, result, c.activeSignal != nil)
	return result
}

func recordLifecycleMetrics(symbol string, result signal.TickResult, stillActive bool) {
	switch result.Kind {
	case signal.KindOpened:
		telemetry.RecordSignalOpened(symbol)
	case signal.KindClosed:
		telemetry.RecordSignalClosed(symbol, string(result.CloseReason))
	case signal.KindCancelled:
		telemetry.RecordSignalCancelled(symbol, string(result.CancelReason))
	}
	telemetry.SetActiveSignalGauge(symbol, stillActive)
}

func (c *Core) evaluateIdle(ctx context.Context, mc engctx.Method, now int64, isBacktest bool, price decimal.Decimal) signal.TickResult {
	if c.isStopped {
		return signal.Idle(c.symbol, price)
	}

	intervalMs := c.cfg.Interval.Millis()
	if intervalMs > 0 && c.lastSignalAttemptTime != 0 && now-c.lastSignalAttemptTime < intervalMs {
		return signal.Idle(c.symbol, price)
	}
	c.lastSignalAttemptTime = now

	draft, err := c.callGetSignal(ctx, now)
	if err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, price)
	}
	if draft == nil {
		return signal.Idle(c.symbol, price)
	}

	immediate := immediateActivation(*draft, price)
	isScheduled := !immediate

	if err := validator.Validate(*draft, price, isScheduled, c.symbol, c.strategyName, mc.ExchangeName, c.cfg.Thresholds); err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, price)
	}

	checkArgs := riskgate.CheckArgs{
		PendingSignal:   *draft,
		Symbol:          c.symbol,
		StrategyName:    c.strategyName,
		CurrentPrice:    price,
		Timestamp:       now,
		ActivePositions: c.activePositionsCount(),
	}
	if err := c.gate.CheckSignal(checkArgs); err != nil {
		c.reportError(err)
		return signal.Idle(c.symbol, price)
	}

	priceOpen := price
	if draft.PriceOpen != nil {
		priceOpen = *draft.PriceOpen
	}

	sig := &signal.Signal{
		ID:                  c.assignID(draft.ID, isBacktest, now, priceOpen, draft.Position),
		Symbol:              c.symbol,
		StrategyName:        c.strategyName,
		ExchangeName:        mc.ExchangeName,
		Position:            draft.Position,
		PriceOpen:           priceOpen,
		PriceTakeProfit:     draft.PriceTakeProfit,
		PriceStopLoss:       draft.PriceStopLoss,
		MinuteEstimatedTime: draft.MinuteEstimatedTime,
		Note:                draft.Note,
		IsScheduled:         isScheduled,
		ScheduledAt:         now,
		PendingAt:           now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if !isScheduled {
		c.activeSignal = sig
		c.gate.AddSignal(c.strategyName, c.symbol)
		c.persistActive(ctx, sig)
		return signal.TickResult{Kind: signal.KindOpened, Symbol: c.symbol, CurrentPrice: price, Signal: sig}
	}

	c.scheduledSignal = sig
	c.persistScheduled(ctx, sig)
	return signal.TickResult{Kind: signal.KindScheduled, Symbol: c.symbol, CurrentPrice: price, Signal: sig}
}

func (c *Core) evaluateScheduled(ctx context.Context, now int64, price decimal.Decimal) signal.TickResult {
	sig := c.scheduledSignal
	timeoutMs := int64(c.cfg.ScheduleAwaitMinutes) * 60_000

	if timeoutMs > 0 && now-sig.ScheduledAt >= timeoutMs {
		c.scheduledSignal = nil
		c.deleteScheduled(ctx)
		return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: price, Signal: sig, CancelReason: signal.CancelTimeout}
	}

	// StopLoss priority strictly precedes the activation check (spec.md
	// §4.6): a price that satisfies both this tick cancels rather than
	// activates.
	if crossesStopLoss(sig, price) {
		c.scheduledSignal = nil
		c.deleteScheduled(ctx)
		return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: price, Signal: sig, CancelReason: signal.CancelPreActivationStop}
	}

	if crossesActivation(sig, price) {
		checkArgs := riskgate.CheckArgs{
			PendingSignal:   draftFromSignal(sig),
			Symbol:          c.symbol,
			StrategyName:    c.strategyName,
			CurrentPrice:    price,
			Timestamp:       now,
			ActivePositions: c.activePositionsCount(),
		}
		if err := c.gate.CheckSignal(checkArgs); err != nil {
			c.scheduledSignal = nil
			c.deleteScheduled(ctx)
			return signal.TickResult{Kind: signal.KindCancelled, Symbol: c.symbol, CurrentPrice: price, Signal: sig, CancelReason: signal.CancelRiskRejected}
		}

		// pendingAt resets to the activation instant: the signal's
		// lifetime clock starts now, not at scheduling time.
		sig.PendingAt = now
		sig.IsScheduled = false
		sig.UpdatedAt = now
		c.scheduledSignal = nil
		c.activeSignal = sig
		c.gate.AddSignal(c.strategyName, c.symbol)
		c.deleteScheduled(ctx)
		c.persistActive(ctx, sig)
		return signal.TickResult{Kind: signal.KindOpened, Symbol: c.symbol, CurrentPrice: price, Signal: sig}
	}

	return signal.TickResult{Kind: signal.KindActive, Symbol: c.symbol, CurrentPrice: price, Signal: sig}
}

func (c *Core) evaluateActive(ctx context.Context, now int64, price decimal.Decimal) signal.TickResult {
	sig := c.activeSignal
	lifetimeMs := int64(sig.MinuteEstimatedTime) * 60_000

	if lifetimeMs > 0 && now-sig.PendingAt >= lifetimeMs {
		return c.closeActive(ctx, sig, price, now, signal.CloseTimeExpired)
	}
	if crossesTakeProfit(sig, price) {
		return c.closeActive(ctx, sig, price, now, signal.CloseTakeProfit)
	}
	if crossesStopLoss(sig, price) {
		return c.closeActive(ctx, sig, price, now, signal.CloseStopLoss)
	}

	return signal.TickResult{
		Kind:              signal.KindActive,
		Symbol:            c.symbol,
		CurrentPrice:      price,
		Signal:            sig,
		ProgressTPPercent: progressPercent(sig.PriceOpen, sig.PriceTakeProfit, price),
		ProgressSLPercent: progressPercent(sig.PriceOpen, sig.PriceStopLoss, price),
	}
}

func (c *Core) closeActive(ctx context.Context, sig *signal.Signal, price decimal.Decimal, now int64, reason signal.CloseReason) signal.TickResult {
	pnl := ComputePnL(sig.Position, sig.PriceOpen, price, c.cfg.SlippagePct, c.cfg.FeePct)
	c.gate.RemoveSignal(c.strategyName, c.symbol)
	c.activeSignal = nil
	c.deleteActive(ctx)
	return signal.TickResult{
		Kind:           signal.KindClosed,
		Symbol:         c.symbol,
		CurrentPrice:   price,
		Signal:         sig,
		PriceClose:     price,
		CloseReason:    reason,
		CloseTimestamp: now,
		PnL:            pnl,
	}
}

// callGetSignal invokes the user getSignal callback guarded by
// GenerationTimeout (default 180s, spec.md §6's
// MAX_SIGNAL_GENERATION_SECONDS): a callback that blocks past the
// deadline is treated as a generation timeout rather than awaited
// indefinitely.
func (c *Core) callGetSignal(ctx context.Context, now int64) (*signal.Draft, error) {
	timeout := c.cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		draft *signal.Draft
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		draft, err := c.getSignal(timeoutCtx, c.symbol, now)
		ch <- result{draft, err}
	}()

	select {
	case res := <-ch:
		return res.draft, res.err
	case <-timeoutCtx.Done():
		return nil, generationTimeoutError(c.symbol, timeoutCtx.Err())
	}
}
