// Command backtest runs a single strategy, or a walker ranking several
// strategies, over a CSV candle file and prints the resulting trade PnL.
// Flag surface and banner/log style grounded on the data-driven backtest
// entrypoint of this codebase.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/config"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/driver"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/validator"
)

var (
	dataFile     = flag.String("data", "", "path to a CSV file with historical candles (required)")
	symbol       = flag.String("symbol", "BTC-USD", "trading symbol")
	strategyName = flag.String("strategy", "momentum-demo", "strategy name recorded on every signal")
	exchangeName = flag.String("exchange", "csv-replay", "exchange name recorded on every signal")
	frameName    = flag.String("frame", "backtest", "frame name recorded on every signal")
	takeProfit   = flag.Float64("take-profit", 2.0, "take-profit distance, percent")
	stopLoss     = flag.Float64("stop-loss", 1.0, "stop-loss distance, percent")
	walk         = flag.Bool("walk", false, "run the walker over a small take-profit/stop-loss grid instead of one backtest")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *dataFile == "" {
		return fmt.Errorf("-data is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source, err := candlesource.LoadCSV(*dataFile, *symbol)
	if err != nil {
		return fmt.Errorf("failed to load candles: %w", err)
	}
	candles := source.All()
	if len(candles) == 0 {
		return fmt.Errorf("no candles loaded from %s", *dataFile)
	}
	log.Printf("loaded %d candles for %s from %s\n", len(candles), *symbol, *dataFile)

	start := candles[0].Timestamp
	end := candles[len(candles)-1].Timestamp

	if *walk {
		return runWalker(cfg, source, start, end)
	}
	return runBacktest(cfg, source, start, end, decimal.NewFromFloat(*takeProfit), decimal.NewFromFloat(*stopLoss))
}

func runBacktest(cfg *config.Config, source candlesource.Source, start, end int64, tp, sl decimal.Decimal) error {
	core := buildCore(cfg, source, tp, sl)
	bus := eventbus.New()
	defer bus.Close()

	tradeCount := 0
	unsub := bus.Subscribe(func(result signal.TickResult) {
		if result.Kind != signal.KindClosed {
			return
		}
		tradeCount++
		log.Printf("[trade #%d] %s pnl=%s%% reason=%s\n", tradeCount, *symbol, result.PnL.PnLPercentage.StringFixed(4), result.CloseReason)
	})
	defer unsub()

	pnls, err := driver.Backtest(context.Background(), core, source, driver.BacktestConfig{
		Symbol:       *symbol,
		StrategyName: *strategyName,
		ExchangeName: *exchangeName,
		FrameName:    *frameName,
		Start:        start,
		End:          end,
		Interval:     signal.Interval1m,
	}, bus)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printSummary(*strategyName, pnls)
	return nil
}

func runWalker(cfg *config.Config, source candlesource.Source, start, end int64) error {
	grid := []struct{ tp, sl float64 }{
		{1.0, 0.5},
		{2.0, 1.0},
		{3.0, 1.5},
	}

	strategies := make([]driver.WalkerStrategy, 0, len(grid))
	for _, g := range grid {
		tp, sl := decimal.NewFromFloat(g.tp), decimal.NewFromFloat(g.sl)
		name := fmt.Sprintf("tp%.1f-sl%.1f", g.tp, g.sl)
		strategies = append(strategies, driver.WalkerStrategy{
			Name: name,
			Core: func() *strategycore.Core { return buildCore(cfg, source, tp, sl) },
		})
	}

	bus := eventbus.New()
	defer bus.Close()

	stats, err := driver.Walker(context.Background(), source, driver.WalkerConfig{
		Strategies:   strategies,
		Symbol:       *symbol,
		ExchangeName: *exchangeName,
		FrameName:    *frameName,
		Start:        start,
		End:          end,
		Interval:     signal.Interval1m,
	}, bus)
	if err != nil {
		return fmt.Errorf("walker failed: %w", err)
	}

	log.Println("rank  strategy          trades  total-pnl%  win-rate%  sharpe")
	for i, s := range stats {
		log.Printf("%-4d  %-16s  %-6d  %-10s  %-9s  %s\n",
			i+1, s.StrategyName, s.ClosedTrades,
			s.TotalPnLPercent.StringFixed(2), s.WinRate.StringFixed(2), s.SharpeRatio.StringFixed(4))
	}
	return nil
}

// buildCore wires one Core against a fixed take-profit/stop-loss
// breakout strategy: the demo getSignal used by both the single-run and
// walker paths above.
func buildCore(cfg *config.Config, source candlesource.Source, tp, sl decimal.Decimal) *strategycore.Core {
	getSignal := demoBreakoutStrategy(tp, sl)
	gate := riskgate.NewLimit(riskgate.DefaultLimitConfig())

	coreCfg := strategycore.Config{
		Interval:               signal.Interval1m,
		GenerationTimeout:      cfg.MaxSignalGenerationTime,
		ScheduleAwaitMinutes:   cfg.ScheduleAwaitMinutes,
		SlippagePct:            cfg.SlippagePct,
		FeePct:                 cfg.FeePct,
		VWAPWindow:             cfg.VWAPWindow,
		CandleMinForMedian:     cfg.CandleMinForMedian,
		AnomalyThresholdFactor: cfg.CandleAnomalyThresholdFactor,
		Thresholds: validator.Thresholds{
			MinTPDistancePct:         cfg.MinTPDistancePct,
			MinSLDistancePct:         cfg.MinSLDistancePct,
			MaxSLDistancePct:         cfg.MaxSLDistancePct,
			MaxSignalLifetimeMinutes: cfg.MaxSignalLifetimeMinutes,
		},
	}

	return strategycore.New(*symbol, *strategyName, *exchangeName, getSignal, source, gate, store.NoOp{}, coreCfg, nil)
}

// demoBreakoutStrategy is a minimal getSignal used to exercise the
// engine end to end: on roughly one call in twenty (a pseudo-random draw;
// price is not consulted) it proposes a long, purely to give the
// fast-path resolver real signals to chew on.
func demoBreakoutStrategy(tp, sl decimal.Decimal) strategycore.GetSignalFunc {
	rng := rand.New(rand.NewSource(1))
	return func(_ context.Context, symbol string, now int64) (*signal.Draft, error) {
		if rng.Intn(20) != 0 {
			return nil, nil
		}
		return &signal.Draft{
			Position:            signal.Long,
			PriceTakeProfit:     tp,
			PriceStopLoss:       sl,
			MinuteEstimatedTime: 240,
			Note:                "demo breakout",
		}, nil
	}
}

func printSummary(name string, pnls []signal.PnL) {
	if len(pnls) == 0 {
		log.Printf("%s: no closed trades\n", name)
		return
	}
	total := decimal.Zero
	wins := 0
	for _, p := range pnls {
		total = total.Add(p.PnLPercentage)
		if p.PnLPercentage.IsPositive() {
			wins++
		}
	}
	winRate := decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(pnls)))).Mul(decimal.NewFromInt(100))
	log.Printf("%s: %d trades, total pnl %s%%, win rate %s%%\n", name, len(pnls), total.StringFixed(4), winRate.StringFixed(2))
}
