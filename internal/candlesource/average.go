package candlesource

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// AveragePrice implements spec.md §3/§4.2's getAveragePrice operation: the
// VWAP over the last window completed 1-minute candles strictly earlier
// than now, after anomaly filtering. Fails with KindInsufficientData if
// fewer than minCandles remain once filtered.
func AveragePrice(ctx context.Context, src Source, symbol string, now int64, window, minCandles int, thresholdFactor decimal.Decimal) (decimal.Decimal, error) {
	bufferCandles := window * 4
	since := now - int64(bufferCandles)*signal.Interval1m.Millis()
	if since < 0 {
		since = 0
	}
	raw, err := src.GetCandles(ctx, symbol, signal.Interval1m, since, bufferCandles)
	if err != nil {
		return decimal.Zero, engerrors.New(engerrors.OpCandleFetch, symbol, engerrors.KindInsufficientData, err)
	}

	eligible := make([]signal.Candle, 0, len(raw))
	for _, c := range raw {
		if c.Timestamp < now {
			eligible = append(eligible, c)
		}
	}
	filtered := FilterAnomalies(eligible, thresholdFactor)

	if len(filtered) < minCandles {
		return decimal.Zero, engerrors.New(engerrors.OpCandleFetch, symbol, engerrors.KindInsufficientData,
			fmt.Errorf("only %d candles available after anomaly filtering, need at least %d", len(filtered), minCandles))
	}

	if len(filtered) > window {
		filtered = filtered[len(filtered)-window:]
	}
	return signal.VWAP(filtered), nil
}
