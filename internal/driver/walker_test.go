package driver

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
)

func TestComputeStats_WinRateAndSharpe(t *testing.T) {
	pnls := []signal.PnL{
		{PnLPercentage: dd(2)},
		{PnLPercentage: dd(-1)},
		{PnLPercentage: dd(4)},
	}
	stats := computeStats("scalper", pnls)

	if stats.ClosedTrades != 3 {
		t.Fatalf("expected 3 closed trades, got %d", stats.ClosedTrades)
	}
	if !stats.TotalPnLPercent.Equal(dd(5)) {
		t.Fatalf("expected total pnl 5, got %s", stats.TotalPnLPercent)
	}
	wantWinRate := dd(2).Div(dd(3)).Mul(dd(100))
	if !stats.WinRate.Equal(wantWinRate) {
		t.Fatalf("expected win rate %s, got %s", wantWinRate, stats.WinRate)
	}
	if stats.SharpeRatio.IsZero() {
		t.Fatal("expected a non-zero sharpe ratio for a non-degenerate sample")
	}
}

func TestComputeStats_EmptyRun(t *testing.T) {
	stats := computeStats("scalper", nil)
	if stats.ClosedTrades != 0 {
		t.Fatalf("expected zero closed trades, got %d", stats.ClosedTrades)
	}
	if !stats.SharpeRatio.IsZero() || !stats.TotalPnLPercent.IsZero() {
		t.Fatal("expected zeroed stats for an empty run")
	}
}

// walkerFixture builds the shared candle source every constDraftCore below
// is evaluated against, so Walker's fast-path horizon fetch (bound to this
// one source) and each Core's own price lookups see identical data.
func walkerFixture(symbol string) candlesource.Source {
	const start = int64(200_000_000)
	warmup := []signal.Candle{
		{Timestamp: start - 60_000, Open: dd(100), High: dd(100), Low: dd(100), Close: dd(100), Volume: dd(1)},
	}
	move := []signal.Candle{
		{Timestamp: start, Open: dd(100), High: dd(100), Low: dd(100), Close: dd(100), Volume: dd(1)},
		{Timestamp: start + 60_000, Open: dd(100), High: dd(130), Low: dd(70), Close: dd(100), Volume: dd(1)},
	}
	return candlesource.NewStatic(symbol, append(warmup, move...))
}

// constDraftCore builds a Core whose getSignal always opens the same long
// signal with the given take-profit/stop-loss distance, so the fast path
// resolves to a single deterministic PnL on the first horizon candle that
// reaches it.
func constDraftCore(symbol string, source candlesource.Source, tp, sl decimal.Decimal) *strategycore.Core {
	return strategycore.New(symbol, "w", "test-exchange", func(context.Context, string, int64) (*signal.Draft, error) {
		return &signal.Draft{Position: signal.Long, PriceTakeProfit: tp, PriceStopLoss: sl, MinuteEstimatedTime: 1440}, nil
	}, source, riskgate.NoOp{}, store.NoOp{}, testCoreConfig(), nil)
}

func TestWalker_RanksDescendingByDefaultMetric(t *testing.T) {
	const symbol = "BTCUSDT"
	const start = int64(200_000_000)

	source := walkerFixture(symbol)
	strong := constDraftCore(symbol, source, dd(110), dd(90))
	weak := constDraftCore(symbol, source, dd(101), dd(99))

	bus := eventbus.New()
	results, err := Walker(context.Background(), source, WalkerConfig{
		Symbol: symbol, ExchangeName: "test-exchange", FrameName: "1m",
		Start: start, End: start + 180_000, Interval: signal.Interval1m,
		Strategies: []WalkerStrategy{
			{Name: "weak", Core: func() *strategycore.Core { return weak }},
			{Name: "strong", Core: func() *strategycore.Core { return strong }},
		},
	}, bus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(results))
	}
	if results[0].StrategyName != "strong" {
		t.Fatalf("expected the higher-PnL strategy ranked first, got %s then %s", results[0].StrategyName, results[1].StrategyName)
	}
}

func TestWalker_CustomMetricOverridesDefaultRanking(t *testing.T) {
	const symbol = "BTCUSDT"
	const start = int64(200_000_000)

	source := walkerFixture(symbol)
	strong := constDraftCore(symbol, source, dd(110), dd(90))
	weak := constDraftCore(symbol, source, dd(101), dd(99))

	bus := eventbus.New()
	results, err := Walker(context.Background(), source, WalkerConfig{
		Symbol: symbol, ExchangeName: "test-exchange", FrameName: "1m",
		Start: start, End: start + 180_000, Interval: signal.Interval1m,
		Strategies: []WalkerStrategy{
			{Name: "weak", Core: func() *strategycore.Core { return weak }},
			{Name: "strong", Core: func() *strategycore.Core { return strong }},
		},
		Metric: func(s Stats) decimal.Decimal { return s.TotalPnLPercent.Neg() },
	}, bus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].StrategyName != "weak" {
		t.Fatalf("expected the inverted metric to rank weak first, got %s", results[0].StrategyName)
	}
}
