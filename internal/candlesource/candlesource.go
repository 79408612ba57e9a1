// Package candlesource implements the CandleSource external collaborator
// of spec.md §4.2: a capability for fetching OHLCV history bounded by the
// current execution horizon, plus the anomaly-filter decorator and
// average-price (VWAP) computation layered on top of it.
package candlesource

import (
	"context"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// Source fetches at most limit candles with timestamp >= since, ordered
// ascending. Callers always pass since <= the current ExecutionContext's
// now and must discard any candle whose timestamp >= now before use.
type Source interface {
	GetCandles(ctx context.Context, symbol string, interval signal.Interval, since int64, limit int) ([]signal.Candle, error)
}
