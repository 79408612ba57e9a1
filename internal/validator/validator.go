// Package validator implements the pure validation pipeline of spec.md
// §4.5: a signal draft is rejected before it can affect any state if it
// is structurally or economically unsound. Modeled on the
// accumulate-then-report validation style this codebase already uses for
// inbound trade signals (validateInputs/validateCalculatedValues), but
// driven by the lifecycle's seven explicit ordered checks rather than an
// EMA/RSI-specific rule set.
package validator

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/pkg/decimalutil"
)

// Thresholds carries the configurable percent/duration constants consumed
// by the distance and lifetime checks (spec.md §6).
type Thresholds struct {
	MinTPDistancePct         decimal.Decimal
	MinSLDistancePct         decimal.Decimal
	MaxSLDistancePct         decimal.Decimal
	MaxSignalLifetimeMinutes int
}

// Validate runs the seven ordered checks of spec.md §4.5 against draft,
// accumulating every violation before returning a single aggregated
// engerrors.KindInvalidSignal error. A nil return means the draft is
// admissible.
func Validate(draft signal.Draft, currentPrice decimal.Decimal, isScheduled bool, symbol, strategyName, exchangeName string, th Thresholds) error {
	var violations []string

	// 1. Structural
	if symbol == "" {
		violations = append(violations, "symbol must not be empty")
	}
	if strategyName == "" {
		violations = append(violations, "strategyName must not be empty")
	}
	if exchangeName == "" {
		violations = append(violations, "exchangeName must not be empty")
	}
	if draft.Position != signal.Long && draft.Position != signal.Short {
		violations = append(violations, fmt.Sprintf("position must be %q or %q, got %q", signal.Long, signal.Short, draft.Position))
	}

	// 2. Numeric (shopspring/decimal values are always finite by
	// construction; only the sign needs checking here)
	numericOK := currentPrice.IsPositive() &&
		draft.PriceTakeProfit.IsPositive() &&
		draft.PriceStopLoss.IsPositive()
	if !currentPrice.IsPositive() {
		violations = append(violations, "currentPrice must be positive")
	}
	if !draft.PriceTakeProfit.IsPositive() {
		violations = append(violations, "priceTakeProfit must be positive")
	}
	if !draft.PriceStopLoss.IsPositive() {
		violations = append(violations, "priceStopLoss must be positive")
	}
	priceOpen := currentPrice
	if draft.PriceOpen != nil {
		priceOpen = *draft.PriceOpen
		if !draft.PriceOpen.IsPositive() {
			violations = append(violations, "priceOpen must be positive")
			numericOK = false
		}
	}

	// Remaining checks need numeric sanity to be meaningful.
	if numericOK {
		// 3. Position ordering
		switch draft.Position {
		case signal.Long:
			if !(draft.PriceStopLoss.LessThan(priceOpen) && priceOpen.LessThan(draft.PriceTakeProfit)) {
				violations = append(violations, "LONG requires priceStopLoss < priceOpen < priceTakeProfit")
			}
		case signal.Short:
			if !(draft.PriceTakeProfit.LessThan(priceOpen) && priceOpen.LessThan(draft.PriceStopLoss)) {
				violations = append(violations, "SHORT requires priceTakeProfit < priceOpen < priceStopLoss")
			}
		}

		// 4/5. Immediate vs scheduled closure prevention
		if isScheduled {
			if !betweenExclusive(draft.Position, priceOpen, draft.PriceStopLoss, draft.PriceTakeProfit) {
				violations = append(violations, "scheduled signal's priceOpen must lie strictly between priceStopLoss and priceTakeProfit")
			}
		} else {
			if !betweenExclusive(draft.Position, currentPrice, draft.PriceStopLoss, draft.PriceTakeProfit) {
				violations = append(violations, "immediate signal would close on its own opening candle")
			}
		}

		// 6. Distance thresholds
		tpDistance := decimalutil.DistancePercent(priceOpen, draft.PriceTakeProfit)
		slDistance := decimalutil.DistancePercent(priceOpen, draft.PriceStopLoss)
		if tpDistance.LessThan(th.MinTPDistancePct) {
			violations = append(violations, fmt.Sprintf("take-profit distance %.4f%% below minimum %.4f%%", f64(tpDistance), f64(th.MinTPDistancePct)))
		}
		if slDistance.LessThan(th.MinSLDistancePct) {
			violations = append(violations, fmt.Sprintf("stop-loss distance %.4f%% below minimum %.4f%%", f64(slDistance), f64(th.MinSLDistancePct)))
		}
		if slDistance.GreaterThan(th.MaxSLDistancePct) {
			violations = append(violations, fmt.Sprintf("stop-loss distance %.4f%% exceeds maximum %.4f%%", f64(slDistance), f64(th.MaxSLDistancePct)))
		}
	}

	// 7. Lifetime
	if draft.MinuteEstimatedTime <= 0 {
		violations = append(violations, "minuteEstimatedTime must be a positive integer")
	} else if draft.MinuteEstimatedTime > th.MaxSignalLifetimeMinutes {
		violations = append(violations, fmt.Sprintf("minuteEstimatedTime %d exceeds MAX_SIGNAL_LIFETIME_MINUTES %d", draft.MinuteEstimatedTime, th.MaxSignalLifetimeMinutes))
	}

	if len(violations) == 0 {
		return nil
	}
	return engerrors.New(engerrors.OpValidate, symbol, engerrors.KindInvalidSignal,
		fmt.Errorf("%s", strings.Join(violations, "; ")))
}

// betweenExclusive reports whether price lies strictly between stopLoss
// and takeProfit in the direction implied by position.
func betweenExclusive(position signal.Position, price, stopLoss, takeProfit decimal.Decimal) bool {
	switch position {
	case signal.Long:
		return stopLoss.LessThan(price) && price.LessThan(takeProfit)
	case signal.Short:
		return takeProfit.LessThan(price) && price.LessThan(stopLoss)
	default:
		return false
	}
}

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
