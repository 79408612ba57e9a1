// Package strategycore implements the StrategyCore of spec.md §4.6: the
// per-(strategyName, symbol) state machine that owns at most one active
// signal and one scheduled signal at a time, generates new signals by
// calling user strategy code on a throttled interval, and evaluates
// completion on every tick. Grounded on this codebase's
// internal/strategy/scalping.go run/update loop structure, generalized
// from a hardcoded EMA/RSI rule set to an arbitrary user-supplied
// getSignal callback.
package strategycore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/candlesource"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engctx"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/logger"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/store"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/telemetry"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/validator"
)

const defaultGenerationTimeout = 180 * time.Second

func generationTimeoutError(symbol string, cause error) error {
	return engerrors.New(engerrors.OpGenerateSignal, symbol, engerrors.KindGenerationTimeout, cause)
}

// GetSignalFunc is user strategy code: given the symbol and the current
// simulated/wall-clock time, it returns a signal draft to open or
// schedule, or nil for "no opportunity this tick".
type GetSignalFunc func(ctx context.Context, symbol string, now int64) (*signal.Draft, error)

// Config carries the tunables of spec.md §6 that govern a single
// StrategyCore's behavior.
type Config struct {
	Interval               signal.Interval // getSignal throttle
	GenerationTimeout      time.Duration
	ScheduleAwaitMinutes   int
	SlippagePct            decimal.Decimal
	FeePct                 decimal.Decimal
	Thresholds             validator.Thresholds
	VWAPWindow             int
	CandleMinForMedian     int
	AnomalyThresholdFactor decimal.Decimal
}

// Core is one strategy's evaluation loop for one symbol. A Core must not
// be shared across symbols or strategies; instancecache.Cache exists to
// enforce that at the call site.
type Core struct {
	symbol       string
	strategyName string
	exchangeName string

	getSignal GetSignalFunc
	source    candlesource.Source
	gate      riskgate.Gate
	store     store.Store
	onError   func(error)
	cfg       Config

	liveIDGen     IDGenerator
	backtestIDGen IDGenerator

	mu                    sync.Mutex
	activeSignal          *signal.Signal
	scheduledSignal       *signal.Signal
	lastSignalAttemptTime int64
	isStopped             bool
	initialized           bool
	tpTrailSign           int
}

// New builds a Core. onError may be nil, in which case errors are logged
// through the package logger rather than surfaced to a caller-owned sink
// (e.g. an eventbus.Bus.EmitError).
func New(symbol, strategyName, exchangeName string, getSignal GetSignalFunc, source candlesource.Source, gate riskgate.Gate, st store.Store, cfg Config, onError func(error)) *Core {
	return &Core{
		symbol:        symbol,
		strategyName:  strategyName,
		exchangeName:  exchangeName,
		getSignal:     getSignal,
		source:        source,
		gate:          gate,
		store:         st,
		onError:       onError,
		cfg:           cfg,
		liveIDGen:     LiveIDGenerator{},
		backtestIDGen: DeterministicIDGenerator{},
	}
}

// WaitForInit restores in-flight state from the signal store in live mode
// (spec.md §4.6, "waitForInit"); in backtest mode it is a no-op since a
// backtest always starts from a clean slate. If an active signal was
// restored, the returned TickResult should be emitted by the caller (it
// is not emitted internally so driver code controls ordering relative to
// its own startup log lines).
func (c *Core) WaitForInit(ctx context.Context) (*signal.TickResult, error) {
	ec, err := engctx.CurrentExecution(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil, nil
	}
	c.initialized = true

	if ec.IsBacktest {
		return nil, nil
	}

	active, err := c.store.ReadActive(ctx, c.strategyName, c.symbol)
	if err != nil {
		return nil, err
	}
	scheduled, err := c.store.ReadScheduled(ctx, c.strategyName, c.symbol)
	if err != nil {
		return nil, err
	}
	c.activeSignal = active
	c.scheduledSignal = scheduled

	if active == nil {
		return nil, nil
	}
	price, err := c.fetchPrice(ctx, ec.Now)
	if err != nil {
		price = decimal.Zero
	}
	result := signal.TickResult{
		Kind:              signal.KindActive,
		Symbol:            c.symbol,
		CurrentPrice:      price,
		Signal:            active,
		ProgressTPPercent: progressPercent(active.PriceOpen, active.PriceTakeProfit, price),
		ProgressSLPercent: progressPercent(active.PriceOpen, active.PriceStopLoss, price),
	}
	return &result, nil
}

// Stop prevents any further signal generation; in-flight active/scheduled
// signals are still monitored to a natural conclusion (spec.md §9,
// "stop() is cooperative, not a kill switch").
func (c *Core) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isStopped = true
}

// IsStopped reports whether Stop has been called.
func (c *Core) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isStopped
}

func (c *Core) fetchPrice(ctx context.Context, now int64) (decimal.Decimal, error) {
	return candlesource.AveragePrice(ctx, c.source, c.symbol, now, c.cfg.VWAPWindow, c.cfg.CandleMinForMedian, c.cfg.AnomalyThresholdFactor)
}

func (c *Core) reportError(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, engerrors.ErrGenerationTimeout):
		telemetry.RecordGenerationTimeout(c.symbol)
	case errors.Is(err, engerrors.ErrPersistenceError):
		telemetry.RecordPersistenceError(c.symbol)
	}
	if c.onError != nil {
		c.onError(err)
		return
	}
	logger.Default().Strategy(c.strategyName).Symbol(c.symbol).WithError(err).Error("strategy_core_error")
}

func (c *Core) activePositionsCount() int {
	if hc, ok := c.gate.(interface{ HeldCount() int }); ok {
		return hc.HeldCount()
	}
	if c.activeSignal != nil {
		return 1
	}
	return 0
}

func (c *Core) assignID(clientID string, isBacktest bool, scheduledAt int64, priceOpen decimal.Decimal, position signal.Position) string {
	if clientID != "" {
		return clientID
	}
	if isBacktest {
		return c.backtestIDGen.NextID(c.strategyName, c.symbol, scheduledAt, priceOpen, position)
	}
	return c.liveIDGen.NextID(c.strategyName, c.symbol, scheduledAt, priceOpen, position)
}

func (c *Core) persistActive(ctx context.Context, sig *signal.Signal) {
	if err := c.store.WriteActive(ctx, c.strategyName, c.symbol, sig); err != nil {
		c.reportError(engerrors.New(engerrors.OpPersist, c.symbol, engerrors.KindPersistenceError, err))
	}
}

func (c *Core) persistScheduled(ctx context.Context, sig *signal.Signal) {
	if err := c.store.WriteScheduled(ctx, c.strategyName, c.symbol, sig); err != nil {
		c.reportError(engerrors.New(engerrors.OpPersist, c.symbol, engerrors.KindPersistenceError, err))
	}
}

func (c *Core) deleteActive(ctx context.Context) {
	if err := c.store.WriteActive(ctx, c.strategyName, c.symbol, nil); err != nil {
		c.reportError(engerrors.New(engerrors.OpPersist, c.symbol, engerrors.KindPersistenceError, err))
	}
}

func (c *Core) deleteScheduled(ctx context.Context) {
	if err := c.store.WriteScheduled(ctx, c.strategyName, c.symbol, nil); err != nil {
		c.reportError(engerrors.New(engerrors.OpPersist, c.symbol, engerrors.KindPersistenceError, err))
	}
}

// immediateActivation reports whether draft activates on the candle that
// produced it rather than waiting for price to reach priceOpen (spec.md
// §4.6: absent priceOpen, or price already past it in the signal's
// favorable-entry direction).
func immediateActivation(draft signal.Draft, currentPrice decimal.Decimal) bool {
	if draft.PriceOpen == nil {
		return true
	}
	switch draft.Position {
	case signal.Long:
		return currentPrice.LessThanOrEqual(*draft.PriceOpen)
	case signal.Short:
		return currentPrice.GreaterThanOrEqual(*draft.PriceOpen)
	default:
		return true
	}
}

func crossesActivation(sig *signal.Signal, price decimal.Decimal) bool {
	switch sig.Position {
	case signal.Long:
		return price.LessThanOrEqual(sig.PriceOpen)
	case signal.Short:
		return price.GreaterThanOrEqual(sig.PriceOpen)
	default:
		return false
	}
}

func crossesStopLoss(sig *signal.Signal, price decimal.Decimal) bool {
	switch sig.Position {
	case signal.Long:
		return price.LessThanOrEqual(sig.PriceStopLoss)
	case signal.Short:
		return price.GreaterThanOrEqual(sig.PriceStopLoss)
	default:
		return false
	}
}

func crossesTakeProfit(sig *signal.Signal, price decimal.Decimal) bool {
	switch sig.Position {
	case signal.Long:
		return price.GreaterThanOrEqual(sig.PriceTakeProfit)
	case signal.Short:
		return price.LessThanOrEqual(sig.PriceTakeProfit)
	default:
		return false
	}
}

func progressPercent(open, target, price decimal.Decimal) decimal.Decimal {
	totalDistance := target.Sub(open).Abs()
	if totalDistance.IsZero() {
		return decimal.Zero
	}
	traveled := price.Sub(open).Abs()
	return traveled.Div(totalDistance).Mul(hundred)
}

func draftFromSignal(sig *signal.Signal) signal.Draft {
	priceOpen := sig.PriceOpen
	return signal.Draft{
		ID:                  sig.ID,
		Position:            sig.Position,
		PriceOpen:           &priceOpen,
		PriceTakeProfit:     sig.PriceTakeProfit,
		PriceStopLoss:       sig.PriceStopLoss,
		MinuteEstimatedTime: sig.MinuteEstimatedTime,
		Note:                sig.Note,
	}
}
