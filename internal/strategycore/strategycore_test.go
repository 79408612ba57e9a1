package strategycore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engctx"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/validator"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newMemStoreForTest(t *testing.T) *store.FileStore {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to build file store: %v", err)
	}
	return fs
}

func testConfig() Config {
	return Config{
		Interval:             signal.Interval1m,
		GenerationTimeout:    time.Second,
		ScheduleAwaitMinutes: 120,
		SlippagePct:          d(0.1),
		FeePct:               d(0.1),
		Thresholds: validator.Thresholds{
			MinTPDistancePct:         d(0.1),
			MinSLDistancePct:         d(0.1),
			MaxSLDistancePct:         d(20),
			MaxSignalLifetimeMinutes: 1440,
		},
		VWAPWindow:             3,
		CandleMinForMedian:     1,
		AnomalyThresholdFactor: d(1000),
	}
}

// priceFeed builds a Static candle source with `count` consecutive
// 1-minute candles, all priced at price, ending strictly before now.
func priceFeed(symbol string, now int64, price decimal.Decimal, count int) candlesource.Source {
	candles := make([]signal.Candle, 0, count)
	start := now - int64(count)*60_000
	for i := 0; i < count; i++ {
		ts := start + int64(i)*60_000
		candles = append(candles, signal.Candle{Timestamp: ts, Open: price, High: price, Low: price, Close: price, Volume: d(1)})
	}
	return candlesource.NewStatic(symbol, candles)
}

func runTick(t *testing.T, c *Core, symbol string, now int64, isBacktest bool) signal.TickResult {
	t.Helper()
	var result signal.TickResult
	err := engctx.RunExecution(context.Background(), engctx.Execution{Symbol: symbol, Now: now, IsBacktest: isBacktest}, func(ctx context.Context) error {
		return engctx.RunMethod(ctx, engctx.Method{StrategyName: "scalper", ExchangeName: "test-exchange", FrameName: "1m"}, func(ctx context.Context) error {
			result = c.Tick(ctx)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected context wiring error: %v", err)
	}
	return result
}

func newTestCore(symbol string, getSignal GetSignalFunc, src candlesource.Source) *Core {
	return New(symbol, "scalper", "test-exchange", getSignal, src, riskgate.NoOp{}, store.NoOp{}, testConfig(), nil)
}

func TestTick_IdleWhenNoOpportunity(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return nil, nil
	}, src)

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindIdle {
		t.Fatalf("expected idle, got %s", result.Kind)
	}
}

func TestTick_ImmediateActivationOpensSignal(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{
			Position:            signal.Long,
			PriceTakeProfit:     d(110),
			PriceStopLoss:       d(90),
			MinuteEstimatedTime: 60,
		}, nil
	}, src)

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindOpened {
		t.Fatalf("expected opened, got %s", result.Kind)
	}
	if result.Signal.PriceOpen.IsZero() {
		t.Fatal("expected priceOpen to be assigned from current price")
	}
}

func TestTick_ScheduledWhenPriceOpenNotYetReached(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	priceOpen := d(95)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{
			Position:            signal.Long,
			PriceOpen:           &priceOpen,
			PriceTakeProfit:     d(110),
			PriceStopLoss:       d(85),
			MinuteEstimatedTime: 60,
		}, nil
	}, src)

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindScheduled {
		t.Fatalf("expected scheduled, got %s", result.Kind)
	}
}

func TestTick_ScheduledActivatesOnPriceCross(t *testing.T) {
	const scheduledAt = 10_000_000
	priceOpen := d(95)
	src := priceFeed("BTCUSDT", scheduledAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceOpen: &priceOpen, PriceTakeProfit: d(110), PriceStopLoss: d(85), MinuteEstimatedTime: 60}, nil
	}, src)

	scheduled := runTick(t, core, "BTCUSDT", scheduledAt, false)
	if scheduled.Kind != signal.KindScheduled {
		t.Fatalf("expected scheduled, got %s", scheduled.Kind)
	}

	activationTime := scheduledAt + 60_000
	core.source = priceFeed("BTCUSDT", activationTime, d(94), 5)
	activated := runTick(t, core, "BTCUSDT", activationTime, false)
	if activated.Kind != signal.KindOpened {
		t.Fatalf("expected opened on activation, got %s", activated.Kind)
	}
	if activated.Signal.PendingAt != activationTime {
		t.Fatalf("expected pendingAt reset to activation time %d, got %d", activationTime, activated.Signal.PendingAt)
	}
}

func TestTick_ScheduledCancelsOnStopLossBeforeActivation(t *testing.T) {
	const scheduledAt = 10_000_000
	priceOpen := d(95)
	src := priceFeed("BTCUSDT", scheduledAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceOpen: &priceOpen, PriceTakeProfit: d(110), PriceStopLoss: d(85), MinuteEstimatedTime: 60}, nil
	}, src)

	scheduled := runTick(t, core, "BTCUSDT", scheduledAt, false)
	if scheduled.Kind != signal.KindScheduled {
		t.Fatalf("expected scheduled, got %s", scheduled.Kind)
	}

	crashTime := scheduledAt + 60_000
	core.source = priceFeed("BTCUSDT", crashTime, d(80), 5)
	cancelled := runTick(t, core, "BTCUSDT", crashTime, false)
	if cancelled.Kind != signal.KindCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Kind)
	}
	if cancelled.CancelReason != signal.CancelPreActivationStop {
		t.Fatalf("expected pre_activation_stoploss, got %s", cancelled.CancelReason)
	}
}

func TestTick_ScheduledCancelsOnTimeout(t *testing.T) {
	const scheduledAt = 10_000_000
	priceOpen := d(95)
	src := priceFeed("BTCUSDT", scheduledAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceOpen: &priceOpen, PriceTakeProfit: d(110), PriceStopLoss: d(85), MinuteEstimatedTime: 60}, nil
	}, src)

	scheduled := runTick(t, core, "BTCUSDT", scheduledAt, false)
	if scheduled.Kind != signal.KindScheduled {
		t.Fatalf("expected scheduled, got %s", scheduled.Kind)
	}

	laterTime := scheduledAt + int64(core.cfg.ScheduleAwaitMinutes)*60_000
	core.source = priceFeed("BTCUSDT", laterTime, d(100), 5)
	result := runTick(t, core, "BTCUSDT", laterTime, false)
	if result.Kind != signal.KindCancelled || result.CancelReason != signal.CancelTimeout {
		t.Fatalf("expected timeout cancellation, got %s/%s", result.Kind, result.CancelReason)
	}
}

func TestTick_ActiveClosesOnTakeProfit(t *testing.T) {
	const openedAt = 10_000_000
	src := priceFeed("BTCUSDT", openedAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(110), PriceStopLoss: d(90), MinuteEstimatedTime: 60}, nil
	}, src)

	opened := runTick(t, core, "BTCUSDT", openedAt, false)
	if opened.Kind != signal.KindOpened {
		t.Fatalf("expected opened, got %s", opened.Kind)
	}

	laterTime := openedAt + 60_000
	core.source = priceFeed("BTCUSDT", laterTime, d(111), 5)
	closed := runTick(t, core, "BTCUSDT", laterTime, false)
	if closed.Kind != signal.KindClosed || closed.CloseReason != signal.CloseTakeProfit {
		t.Fatalf("expected closed/take_profit, got %s/%s", closed.Kind, closed.CloseReason)
	}
	if !closed.PnL.PnLPercentage.IsPositive() {
		t.Fatalf("expected positive pnl on take-profit close, got %s", closed.PnL.PnLPercentage)
	}
}

func TestTick_ActiveClosesOnStopLoss(t *testing.T) {
	const openedAt = 10_000_000
	src := priceFeed("BTCUSDT", openedAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(110), PriceStopLoss: d(90), MinuteEstimatedTime: 60}, nil
	}, src)

	runTick(t, core, "BTCUSDT", openedAt, false)

	laterTime := openedAt + 60_000
	core.source = priceFeed("BTCUSDT", laterTime, d(89), 5)
	closed := runTick(t, core, "BTCUSDT", laterTime, false)
	if closed.Kind != signal.KindClosed || closed.CloseReason != signal.CloseStopLoss {
		t.Fatalf("expected closed/stop_loss, got %s/%s", closed.Kind, closed.CloseReason)
	}
	if !closed.PnL.PnLPercentage.IsNegative() {
		t.Fatalf("expected negative pnl on stop-loss close, got %s", closed.PnL.PnLPercentage)
	}
}

func TestTick_ActiveClosesOnTimeExpiry(t *testing.T) {
	const openedAt = 10_000_000
	src := priceFeed("BTCUSDT", openedAt, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(110), PriceStopLoss: d(90), MinuteEstimatedTime: 1}, nil
	}, src)

	runTick(t, core, "BTCUSDT", openedAt, false)

	laterTime := openedAt + 2*60_000
	core.source = priceFeed("BTCUSDT", laterTime, d(101), 5)
	closed := runTick(t, core, "BTCUSDT", laterTime, false)
	if closed.Kind != signal.KindClosed || closed.CloseReason != signal.CloseTimeExpired {
		t.Fatalf("expected closed/time_expired, got %s/%s", closed.Kind, closed.CloseReason)
	}
}

func TestTick_ThrottleSkipsGetSignalWithinInterval(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	calls := 0
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		calls++
		return nil, nil
	}, src)

	runTick(t, core, "BTCUSDT", now, false)
	core.source = priceFeed("BTCUSDT", now+1000, d(100), 5)
	runTick(t, core, "BTCUSDT", now+1000, false)

	if calls != 1 {
		t.Fatalf("expected getSignal to be throttled to 1 call within the interval, got %d", calls)
	}
}

func TestTick_ValidationRejectionStaysIdle(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(100.05), PriceStopLoss: d(99.95), MinuteEstimatedTime: 60}, nil
	}, src)

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindIdle {
		t.Fatalf("expected validation rejection to resolve idle, got %s", result.Kind)
	}
	if core.activeSignal != nil || core.scheduledSignal != nil {
		t.Fatal("expected no state change on validation rejection")
	}
}

func TestTick_RiskGateRejectionStaysIdle(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := New("BTCUSDT", "scalper", "test-exchange", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(110), PriceStopLoss: d(90), MinuteEstimatedTime: 60}, nil
	}, src, riskgate.FromPredicate{Fn: func(riskgate.CheckArgs) error { return errors.New("portfolio heat limit reached") }}, store.NoOp{}, testConfig(), nil)

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindIdle {
		t.Fatalf("expected risk rejection to resolve idle, got %s", result.Kind)
	}
}

func TestTick_GenerationTimeoutStaysIdle(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := newTestCore("BTCUSDT", func(ctx context.Context, symbol string, now int64) (*signal.Draft, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, src)
	core.cfg.GenerationTimeout = 10 * time.Millisecond

	result := runTick(t, core, "BTCUSDT", now, false)
	if result.Kind != signal.KindIdle {
		t.Fatalf("expected generation timeout to resolve idle, got %s", result.Kind)
	}
}

func TestWaitForInit_RestoresActiveSignalInLiveMode(t *testing.T) {
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	fileStore := newMemStoreForTest(t)
	restored := &signal.Signal{
		ID: "abc", Symbol: "BTCUSDT", StrategyName: "scalper", ExchangeName: "test-exchange",
		Position: signal.Long, PriceOpen: d(100), PriceTakeProfit: d(110), PriceStopLoss: d(90),
		MinuteEstimatedTime: 60, PendingAt: now, ScheduledAt: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := fileStore.WriteActive(context.Background(), "scalper", "BTCUSDT", restored); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	core := New("BTCUSDT", "scalper", "test-exchange", func(context.Context, string, int64) (*signal.Draft, error) {
		return nil, nil
	}, src, riskgate.NoOp{}, fileStore, testConfig(), nil)

	var tick *signal.TickResult
	err := engctx.RunExecution(context.Background(), engctx.Execution{Symbol: "BTCUSDT", Now: now, IsBacktest: false}, func(ctx context.Context) error {
		var err error
		tick, err = core.WaitForInit(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("WaitForInit failed: %v", err)
	}
	if tick == nil || tick.Kind != signal.KindActive {
		t.Fatalf("expected a restored active tick, got %v", tick)
	}
	if core.activeSignal == nil || core.activeSignal.ID != "abc" {
		t.Fatal("expected activeSignal to be restored from store")
	}
}
