package candlesource

import (
	"context"
	"sort"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// Static is an in-memory Source over a fixed candle set, used by driver and
// strategy-core tests (and suitable for small embedded deployments that
// preload a fixed dataset instead of streaming from an exchange).
type Static struct {
	symbol  string
	candles []signal.Candle
}

// NewStatic builds a Static source. candles need not be pre-sorted.
func NewStatic(symbol string, candles []signal.Candle) *Static {
	sorted := make([]signal.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	return &Static{symbol: symbol, candles: sorted}
}

func (s *Static) GetCandles(_ context.Context, symbol string, _ signal.Interval, since int64, limit int) ([]signal.Candle, error) {
	if symbol != s.symbol {
		return []signal.Candle{}, nil
	}
	start := sort.Search(len(s.candles), func(i int) bool { return s.candles[i].Timestamp >= since })
	end := len(s.candles)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return []signal.Candle{}, nil
	}
	out := make([]signal.Candle, end-start)
	copy(out, s.candles[start:end])
	return out, nil
}
