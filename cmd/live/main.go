// Command live runs one strategy/symbol against a websocket candle feed
// until interrupted. Signal handling and graceful-shutdown structure
// grounded on this codebase's bot entrypoint (context cancellation on
// SIGINT/SIGTERM, a bounded wait for in-flight work to settle).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/config"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/driver"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/eventbus"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/logger"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/strategycore"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/symbolmanager"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/telemetry"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/validator"
)

var (
	wsURL         = flag.String("ws-url", "", "candle stream websocket URL (required)")
	symbol        = flag.String("symbol", "BTC-USD", "trading symbol")
	strategyName  = flag.String("strategy", "momentum-live", "strategy name recorded on every signal")
	exchangeName  = flag.String("exchange", "websocket-feed", "exchange name recorded on every signal")
	frameName     = flag.String("frame", "live", "frame name recorded on every signal")
	takeProfit    = flag.Float64("take-profit", 2.0, "take-profit distance, percent")
	stopLoss      = flag.Float64("stop-loss", 1.0, "stop-loss distance, percent")
	metricsAddr   = flag.String("metrics-addr", ":9090", "address for the /metrics, /healthz, /readyz server; empty disables it")
	maxConcurrent = flag.Int("max-concurrent-positions", 1, "symbols this process may hold a position in at once")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if *wsURL == "" {
		return fmt.Errorf("-ws-url is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&logger.Config{Level: parseLevel(cfg.LogLevel), Format: "json"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown_signal_received")
		cancel()
	}()

	metrics := telemetry.NewServer(*metricsAddr)
	if metrics != nil {
		go func() {
			if err := metrics.Start(); err != nil {
				log.WithError(err).Error("metrics_server_stopped")
			}
		}()
		defer metrics.Shutdown(context.Background())
		metrics.SetReady(true)
	}

	ws := candlesource.NewWebSocket(*wsURL, *symbol, 10_000)
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect candle stream: %w", err)
	}
	defer ws.Close()
	source := candlesource.NewWithCircuitBreaker("websocket", ws, nil)

	manager := symbolmanager.NewManager(*maxConcurrent)
	if err := manager.AddSymbol(symbolmanager.SymbolConfig{Symbol: *symbol, Enabled: true}); err != nil {
		return fmt.Errorf("failed to register symbol: %w", err)
	}
	gate := riskgate.NewLimit(manager.BuildLimitConfig())

	st, err := store.NewFileStore(cfg.StoreRoot)
	if err != nil {
		return fmt.Errorf("failed to open signal store: %w", err)
	}

	core := strategycore.New(*symbol, *strategyName, *exchangeName, demoBreakoutStrategy(
		decimal.NewFromFloat(*takeProfit), decimal.NewFromFloat(*stopLoss),
	), source, gate, st, strategycore.Config{
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
	}, func(err error) {
		log.WithError(err).Error("strategy_core_error")
	})

	bus := eventbus.New()
	defer bus.Close()
	unsub := bus.Subscribe(func(result signal.TickResult) {
		log.Info(result.String())
	})
	defer unsub()
	unsubErr := bus.SubscribeError(func(err error) {
		log.WithError(err).Warn("driver_error")
	})
	defer unsubErr()

	return driver.Live(ctx, core, driver.LiveConfig{
		Symbol:                  *symbol,
		StrategyName:            *strategyName,
		ExchangeName:            *exchangeName,
		FrameName:               *frameName,
		TickInterval:            cfg.TickInterval,
		GracefulShutdownTimeout: cfg.GracefulShutdownTimeout,
	}, bus, func() int64 { return time.Now().UnixMilli() })
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// demoBreakoutStrategy is a placeholder getSignal like cmd/backtest's demo,
// except that it proposes a draft on every other call rather than at
// random, so the live runner has something to trade out of the box; swap
// this out for real strategy code before pointing this at a funded account.
func demoBreakoutStrategy(tp, sl decimal.Decimal) strategycore.GetSignalFunc {
	armed := false
	return func(_ context.Context, _ string, _ int64) (*signal.Draft, error) {
		armed = !armed
		if !armed {
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
