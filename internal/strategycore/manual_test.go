package strategycore

import (
	"context"
	"testing"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
)

func openLongCore(t *testing.T) *Core {
	t.Helper()
	const now = 10_000_000
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := New("BTCUSDT", "scalper", "test-exchange", func(context.Context, string, int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: d(110), PriceStopLoss: d(90), MinuteEstimatedTime: 1440}, nil
	}, src, riskgate.NoOp{}, store.NoOp{}, testConfig(), nil)
	runTick(t, core, "BTCUSDT", now, false)
	return core
}

func TestTrailingStop_OnlyMovesTowardCurrentPrice(t *testing.T) {
	core := openLongCore(t)
	initialSL := core.activeSignal.PriceStopLoss

	if err := core.TrailingStop(d(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !core.activeSignal.PriceStopLoss.GreaterThan(initialSL) {
		t.Fatalf("expected SL to move up toward entry, got %s (was %s)", core.activeSignal.PriceStopLoss, initialSL)
	}

	movedSL := core.activeSignal.PriceStopLoss
	if err := core.TrailingStop(d(-5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if core.activeSignal.PriceStopLoss.LessThan(movedSL) {
		t.Fatal("expected a retreating trailing-stop proposal to be rejected, not applied")
	}
}

func TestTrailingProfit_LocksDirectionAfterFirstCall(t *testing.T) {
	core := openLongCore(t)

	if err := core.TrailingProfit(d(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := core.TrailingProfit(d(-5)); err == nil {
		t.Fatal("expected a direction reversal to be rejected once locked")
	}
}

func TestBreakeven_MovesStopLossToEntryPastThreshold(t *testing.T) {
	core := openLongCore(t)
	entry := core.activeSignal.PriceOpen

	if core.Breakeven(d(100.05)) {
		t.Fatal("expected breakeven to be a no-op below the 2x cost threshold")
	}
	if !core.Breakeven(d(101)) {
		t.Fatal("expected breakeven to trigger once the price has moved enough")
	}
	if !core.activeSignal.PriceStopLoss.Equal(entry) {
		t.Fatalf("expected stop-loss moved to entry %s, got %s", entry, core.activeSignal.PriceStopLoss)
	}
}

func TestCancelScheduled_ClearsScheduledSlot(t *testing.T) {
	const now = 10_000_000
	priceOpen := d(95)
	src := priceFeed("BTCUSDT", now, d(100), 5)
	core := New("BTCUSDT", "scalper", "test-exchange", func(context.Context, string, int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceOpen: &priceOpen, PriceTakeProfit: d(110), PriceStopLoss: d(85), MinuteEstimatedTime: 60}, nil
	}, src, riskgate.NoOp{}, store.NoOp{}, testConfig(), nil)
	scheduled := runTick(t, core, "BTCUSDT", now, false)
	if scheduled.Kind != signal.KindScheduled {
		t.Fatalf("expected scheduled, got %s", scheduled.Kind)
	}

	result := core.CancelScheduled(context.Background())
	if result == nil || result.Kind != signal.KindCancelled || result.CancelReason != signal.CancelManual {
		t.Fatalf("expected manual cancellation result, got %v", result)
	}
	if core.scheduledSignal != nil {
		t.Fatal("expected scheduled slot to be cleared")
	}
}

func TestCancelScheduled_NilWhenNothingScheduled(t *testing.T) {
	core := openLongCore(t)
	if result := core.CancelScheduled(context.Background()); result != nil {
		t.Fatalf("expected nil when nothing is scheduled, got %v", result)
	}
}
