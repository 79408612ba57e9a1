package candlesource

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"github.com/tripolskypetr/backtest-kit-sub002/pkg/decimalutil"
)

// DefaultAnomalyThresholdFactor is the configurable divisor of spec.md
// §4.2: a candle is dropped when its min(OHLC) falls below
// median(OHLC)/factor.
const DefaultAnomalyThresholdFactor = 1000

// AnomalyFilter wraps a Source and drops candles whose OHLC values are
// wildly inconsistent with the rest of the batch, a defense against bad
// exchange ticks (spec.md §4.2).
type AnomalyFilter struct {
	next            Source
	thresholdFactor decimal.Decimal
}

// NewAnomalyFilter wraps next with the anomaly guard. thresholdFactor
// defaults to DefaultAnomalyThresholdFactor when zero.
func NewAnomalyFilter(next Source, thresholdFactor decimal.Decimal) *AnomalyFilter {
	if thresholdFactor.IsZero() {
		thresholdFactor = decimal.NewFromInt(DefaultAnomalyThresholdFactor)
	}
	return &AnomalyFilter{next: next, thresholdFactor: thresholdFactor}
}

func (f *AnomalyFilter) GetCandles(ctx context.Context, symbol string, interval signal.Interval, since int64, limit int) ([]signal.Candle, error) {
	candles, err := f.next.GetCandles(ctx, symbol, interval, since, limit)
	if err != nil {
		return nil, err
	}
	return FilterAnomalies(candles, f.thresholdFactor), nil
}

// FilterAnomalies drops any candle whose min(OHLC) is below
// median(all OHLC values)/thresholdFactor.
func FilterAnomalies(candles []signal.Candle, thresholdFactor decimal.Decimal) []signal.Candle {
	if len(candles) == 0 {
		return candles
	}

	values := make([]decimal.Decimal, 0, len(candles)*4)
	for _, c := range candles {
		values = append(values, c.Open, c.High, c.Low, c.Close)
	}
	median := decimalutil.Median(values)
	if median.IsZero() || thresholdFactor.IsZero() {
		return candles
	}
	floor := median.Div(thresholdFactor)

	filtered := make([]signal.Candle, 0, len(candles))
	for _, c := range candles {
		minOHLC := decimalutil.MinDecimal(decimalutil.MinDecimal(c.Open, c.High), decimalutil.MinDecimal(c.Low, c.Close))
		if minOHLC.LessThan(floor) {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}
