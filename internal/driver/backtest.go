// Package driver implements the three execution drivers of spec.md: a
// deterministic fast-forwarding backtest runner (§4.8), a wall-clock live
// tick loop with graceful shutdown (§4.9), and a sequential multi-strategy
// ranking walker (§4.10). Grounded on this codebase's backtest engine
// loop (internal/backtesting/engine.go) and live runner
// (internal/runner/runner.go), generalized from order-driven execution to
// StrategyCore's tick/backtest contract.
package driver

import (
	"context"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engctx"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/frame"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
)

// maxFastPathCandles bounds a single Backtest fast-path fetch; a signal
// living longer than this many 1-minute candles falls back to normal
// tick-by-tick evaluation for its remainder rather than risking an
// unbounded single fetch.
const maxFastPathCandles = 20_000

// BacktestConfig describes one strategy/symbol backtest run.
type BacktestConfig struct {
	Symbol       string
	StrategyName string
	ExchangeName string
	FrameName    string
	Start, End   int64
	Interval     signal.Interval
}

// Backtest walks cfg's frame calling core.Tick() at every aligned
// timestamp, emitting every result to bus. Whenever a tick opens or
// schedules a signal, it switches to core.Backtest's candle fast-path to
// resolve the signal without waiting for one frame step per candle, then
// skips the frame iterator past the resolution point (spec.md §4.8).
// Returns every closed signal's PnL, in resolution order, for callers
// (e.g. Walker) that need authoritative totals without depending on
// asynchronous bus delivery.
func Backtest(ctx context.Context, core *strategycore.Core, source candlesource.Source, cfg BacktestConfig, bus *eventbus.Bus) ([]signal.PnL, error) {
	fr := frame.Generate(cfg.Start, cfg.End, cfg.Interval)
	it := fr.Iterator()

	ec := engctx.Execution{Symbol: cfg.Symbol, IsBacktest: true}
	mc := engctx.Method{StrategyName: cfg.StrategyName, ExchangeName: cfg.ExchangeName, FrameName: cfg.FrameName}

	var pnls []signal.PnL

	for {
		if err := ctx.Err(); err != nil {
			return pnls, err
		}

		t, ok := it.Next()
		if !ok {
			break
		}
		ec.Now = t

		result, err := evaluateTick(ctx, core, ec, mc)
		if err != nil {
			bus.EmitError(err)
			continue
		}
		bus.Emit(result)
		if result.Kind == signal.KindClosed {
			pnls = append(pnls, result.PnL)
		}

		if result.Kind != signal.KindOpened && result.Kind != signal.KindScheduled {
			continue
		}

		horizon, err := source.GetCandles(ctx, cfg.Symbol, signal.Interval1m, t, maxFastPathCandles)
		if err != nil {
			bus.EmitError(err)
			continue
		}
		if len(horizon) == 0 {
			continue
		}

		fastResult, resolvedAt := core.Backtest(horizon)
		bus.Emit(fastResult)
		if fastResult.Kind == signal.KindClosed {
			pnls = append(pnls, fastResult.PnL)
		}
		it.SkipTo(resolvedAt + 1)
	}

	bus.EmitDone()
	return pnls, nil
}

func evaluateTick(ctx context.Context, core *strategycore.Core, ec engctx.Execution, mc engctx.Method) (signal.TickResult, error) {
	var result signal.TickResult
	err := engctx.RunExecution(ctx, ec, func(ctx context.Context) error {
		return engctx.RunMethod(ctx, mc, func(ctx context.Context) error {
			result = core.Tick(ctx)
			return nil
		})
	})
	return result, err
}
