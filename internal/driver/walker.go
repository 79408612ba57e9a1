package driver

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
	"github.com/tripolskypetr/backtest-kit-sub002/pkg/decimalutil"
)

// WalkerStrategy names one strategy and builds a fresh, isolated Core for
// it. The factory pattern (rather than a pre-built Core) keeps each
// strategy's Backtest run starting from a clean state even if the same
// process later reruns the walker.
type WalkerStrategy struct {
	Name string
	Core func() *strategycore.Core
}

// WalkerConfig describes one multi-strategy comparison run (spec.md
// §4.10).
type WalkerConfig struct {
	Strategies   []WalkerStrategy
	Symbol       string
	ExchangeName string
	FrameName    string
	Start, End   int64
	Interval     signal.Interval
	// Metric ranks Stats; results are sorted descending by Metric's
	// return value. Defaults to TotalPnLPercent if nil.
	Metric func(Stats) decimal.Decimal
}

// Stats aggregates one strategy's closed trades from a single backtest
// run (spec.md §4.10's "Sharpe/total PnL/win rate").
type Stats struct {
	StrategyName    string
	ClosedTrades    int
	TotalPnLPercent decimal.Decimal
	WinRate         decimal.Decimal
	SharpeRatio     decimal.Decimal
}

// Walker runs Driver.Backtest sequentially for each configured strategy
// over the same symbol/frame/exchange, then ranks the results by metric
// (spec.md §4.10). Every strategy's tick/fast-path results are still
// emitted to bus as they occur, same as a single Backtest run, tagged by
// the ambient log fields a caller's bus listener can attach via context.
func Walker(ctx context.Context, source candlesource.Source, cfg WalkerConfig, bus *eventbus.Bus) ([]Stats, error) {
	results := make([]Stats, 0, len(cfg.Strategies))

	for _, strat := range cfg.Strategies {
		core := strat.Core()
		pnls, err := Backtest(ctx, core, source, BacktestConfig{
			Symbol:       cfg.Symbol,
			StrategyName: strat.Name,
			ExchangeName: cfg.ExchangeName,
			FrameName:    cfg.FrameName,
			Start:        cfg.Start,
			End:          cfg.End,
			Interval:     cfg.Interval,
		}, bus)
		if err != nil {
			return results, err
		}
		results = append(results, computeStats(strat.Name, pnls))
	}

	metric := cfg.Metric
	if metric == nil {
		metric = func(s Stats) decimal.Decimal { return s.TotalPnLPercent }
	}
	sort.SliceStable(results, func(i, j int) bool {
		return metric(results[i]).GreaterThan(metric(results[j]))
	})

	return results, nil
}

func computeStats(strategyName string, pnls []signal.PnL) Stats {
	stats := Stats{StrategyName: strategyName, ClosedTrades: len(pnls)}
	if len(pnls) == 0 {
		return stats
	}

	percents := make([]decimal.Decimal, len(pnls))
	wins := 0
	total := decimal.Zero
	for i, pnl := range pnls {
		percents[i] = pnl.PnLPercentage
		total = total.Add(pnl.PnLPercentage)
		if pnl.PnLPercentage.IsPositive() {
			wins++
		}
	}

	stats.TotalPnLPercent = total
	stats.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(pnls)))).Mul(decimal.NewFromInt(100))

	stddev := decimalutil.StandardDeviation(percents)
	if !stddev.IsZero() {
		mean := total.Div(decimal.NewFromInt(int64(len(pnls))))
		stats.SharpeRatio = mean.Div(stddev)
	}
	return stats
}
