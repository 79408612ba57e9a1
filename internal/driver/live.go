package driver

import (
	"context"
	"time"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/engctx"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/logger"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
	"golang.org/x/time/rate"
)

// LiveConfig describes one strategy/symbol live run.
type LiveConfig struct {
	Symbol                  string
	StrategyName            string
	ExchangeName            string
	FrameName               string
	TickInterval            time.Duration // default TICK_INTERVAL_MS, spec.md §6
	GracefulShutdownTimeout time.Duration
}

// Live runs core's tick loop against wall-clock time until ctx is
// cancelled (spec.md §4.9). now is injected rather than calling
// time.Now() directly so tests can drive deterministic clocks. On
// cancellation it stops generating new signals but keeps ticking any
// held active or scheduled signal to a natural close, up to
// GracefulShutdownTimeout, after which it force-stops regardless of
// in-flight state.
func Live(ctx context.Context, core *strategycore.Core, cfg LiveConfig, bus *eventbus.Bus, now func() int64) error {
	ec := engctx.Execution{Symbol: cfg.Symbol, IsBacktest: false, Now: now()}
	mc := engctx.Method{StrategyName: cfg.StrategyName, ExchangeName: cfg.ExchangeName, FrameName: cfg.FrameName}

	err := engctx.RunExecution(ctx, ec, func(ctx context.Context) error {
		tick, err := core.WaitForInit(ctx)
		if err != nil {
			return err
		}
		if tick != nil {
			bus.Emit(*tick)
		}
		return nil
	})
	if err != nil {
		bus.EmitError(err)
	}

	limiter := rate.NewLimiter(rate.Every(cfg.TickInterval), 1)

	var shutdownDeadline time.Time
	shuttingDown := false

	for {
		ec.Now = now()
		result, tickErr := evaluateTick(context.Background(), core, ec, mc)
		if tickErr != nil {
			bus.EmitError(tickErr)
		} else {
			bus.Emit(result)
		}

		if !shuttingDown && ctx.Err() != nil {
			shuttingDown = true
			core.Stop()
			shutdownDeadline = time.Now().Add(cfg.GracefulShutdownTimeout)
		}

		if shuttingDown {
			inFlight := result.Kind == signal.KindActive || result.Kind == signal.KindScheduled || result.Kind == signal.KindOpened
			if !inFlight {
				break
			}
			if time.Now().After(shutdownDeadline) {
				logger.Warn("live: graceful shutdown timeout elapsed with a signal still in flight")
				break
			}
		}

		// Wait ignores ctx cancellation deliberately: a cancelled ctx still
		// paces the graceful-shutdown ticks above at the configured interval.
		_ = limiter.Wait(context.Background())
	}

	bus.EmitDone()
	return ctx.Err()
}
