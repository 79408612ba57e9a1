// Package signal holds the domain model shared by every other package:
// candles, signal drafts, validated signals, and the tagged-union tick
// result a strategy core produces on every evaluation.
package signal

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is the direction of a signal.
type Position string

const (
	Long  Position = "long"
	Short Position = "short"
)

// CloseReason explains why an active signal closed.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take_profit"
	CloseStopLoss    CloseReason = "stop_loss"
	CloseTimeExpired CloseReason = "time_expired"
	CloseManual      CloseReason = "manual_close"
)

// CancelReason explains why a scheduled signal never activated.
type CancelReason string

const (
	CancelTimeout             CancelReason = "timeout"
	CancelPreActivationStop   CancelReason = "pre_activation_stoploss"
	CancelRiskRejected        CancelReason = "risk_rejected"
	CancelManual              CancelReason = "manual_cancel"
)

// Interval is a signal-generation or candle granularity.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
)

// Millis returns the duration of the interval in milliseconds, or 0 for an
// interval this engine does not know how to convert (callers should treat
// 0 as "unsupported for arithmetic, only usable for display/filtering").
func (i Interval) Millis() int64 {
	const (
		minute = int64(60_000)
		hour   = 60 * minute
		day    = 24 * hour
	)
	switch i {
	case Interval1m:
		return minute
	case Interval3m:
		return 3 * minute
	case Interval5m:
		return 5 * minute
	case Interval15m:
		return 15 * minute
	case Interval30m:
		return 30 * minute
	case Interval1h:
		return hour
	case Interval2h:
		return 2 * hour
	case Interval4h:
		return 4 * hour
	case Interval6h:
		return 6 * hour
	case Interval8h:
		return 8 * hour
	case Interval12h:
		return 12 * hour
	case Interval1d:
		return day
	case Interval3d:
		return 3 * day
	default:
		return 0
	}
}

// Candle is an immutable OHLCV record spanning [Timestamp, Timestamp+intervalMs).
type Candle struct {
	Timestamp int64 // ms since epoch
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Valid reports whether the candle satisfies the structural invariants of
// spec.md §3: all OHLC positive finite, volume non-negative.
func (c Candle) Valid() bool {
	if c.Volume.IsNegative() {
		return false
	}
	for _, v := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close} {
		if !v.IsPositive() {
			return false
		}
	}
	return true
}

// Draft is what user strategy code returns from getSignal.
type Draft struct {
	ID                  string // optional, client-supplied
	Position            Position
	PriceOpen           *decimal.Decimal // nil => market signal
	PriceTakeProfit     decimal.Decimal
	PriceStopLoss       decimal.Decimal
	MinuteEstimatedTime int
	Note                string
}

// Signal is a Draft after validation and augmentation (spec.md §3).
type Signal struct {
	ID                  string
	Symbol              string
	StrategyName        string
	ExchangeName        string
	Position            Position
	PriceOpen           decimal.Decimal
	PriceTakeProfit     decimal.Decimal
	PriceStopLoss       decimal.Decimal
	MinuteEstimatedTime int
	Note                string

	ScheduledAt int64 // ms, creation time
	PendingAt   int64 // ms, equals ScheduledAt until scheduled->opened activation
	IsScheduled bool

	CreatedAt int64
	UpdatedAt int64
}

// PnL is the cost-adjusted profit/loss of a closed signal (spec.md §6).
type PnL struct {
	PriceOpenWithCosts  decimal.Decimal
	PriceCloseWithCosts decimal.Decimal
	PnLPercentage       decimal.Decimal
}

// Kind discriminates TickResult.
type Kind string

const (
	KindIdle      Kind = "idle"
	KindScheduled Kind = "scheduled"
	KindOpened    Kind = "opened"
	KindActive    Kind = "active"
	KindClosed    Kind = "closed"
	KindCancelled Kind = "cancelled"
)

// TickResult is the tagged union every StrategyCore evaluation produces
// (spec.md §3). Exactly one Kind-appropriate set of fields is meaningful;
// callers must branch on Kind, not on field presence.
type TickResult struct {
	Kind Kind

	Symbol       string
	CurrentPrice decimal.Decimal

	Signal *Signal // nil only for KindIdle

	// KindActive (monitoring an opened signal)
	ProgressTPPercent decimal.Decimal
	ProgressSLPercent decimal.Decimal

	// KindClosed
	PriceClose     decimal.Decimal
	CloseReason    CloseReason
	CloseTimestamp int64
	PnL            PnL

	// KindCancelled
	CancelReason CancelReason
}

func (t TickResult) String() string {
	switch t.Kind {
	case KindClosed:
		return fmt.Sprintf("closed(%s reason=%s pnl=%s%%)", t.Symbol, t.CloseReason, t.PnL.PnLPercentage)
	case KindCancelled:
		return fmt.Sprintf("cancelled(%s reason=%s)", t.Symbol, t.CancelReason)
	default:
		return fmt.Sprintf("%s(%s)", t.Kind, t.Symbol)
	}
}

// Idle builds an idle tick result.
func Idle(symbol string, price decimal.Decimal) TickResult {
	return TickResult{Kind: KindIdle, Symbol: symbol, CurrentPrice: price}
}
