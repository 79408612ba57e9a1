package candlesource

import (
	"context"
	"errors"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/circuitbreaker"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// WithCircuitBreaker wraps next so that repeated GetCandles failures (a
// flaky or down exchange feed) trip the breaker and fail fast instead of
// retrying into a stalled driver loop.
type WithCircuitBreaker struct {
	next Source
	cb   *circuitbreaker.CircuitBreaker
}

// NewWithCircuitBreaker wraps next with cb. Pass nil to use
// circuitbreaker.DefaultConfig().
func NewWithCircuitBreaker(name string, next Source, cfg *circuitbreaker.Config) *WithCircuitBreaker {
	return &WithCircuitBreaker{next: next, cb: circuitbreaker.New(name, cfg)}
}

func (w *WithCircuitBreaker) GetCandles(ctx context.Context, symbol string, interval signal.Interval, since int64, limit int) ([]signal.Candle, error) {
	var candles []signal.Candle
	err := w.cb.Execute(ctx, func() error {
		var innerErr error
		candles, innerErr = w.next.GetCandles(ctx, symbol, interval, since, limit)
		return innerErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, engerrors.New(engerrors.OpCandleFetch, symbol, engerrors.KindInsufficientData, err)
		}
		return nil, err
	}
	return candles, nil
}
