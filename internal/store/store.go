// Package store implements the SignalStore of spec.md §4.3: crash-safe
// persistence for active and scheduled signals, keyed by
// (strategyName, symbol), in two independent namespaces.
package store

import (
	"context"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// Store is the SignalStore contract. Implementations must guarantee that a
// WriteActive/WriteScheduled call that returns nil survives a subsequent
// process crash (spec.md §4.3's durability contract); writing a nil Signal
// deletes the record.
type Store interface {
	ReadActive(ctx context.Context, strategyName, symbol string) (*signal.Signal, error)
	WriteActive(ctx context.Context, strategyName, symbol string, sig *signal.Signal) error
	ReadScheduled(ctx context.Context, strategyName, symbol string) (*signal.Signal, error)
	WriteScheduled(ctx context.Context, strategyName, symbol string, sig *signal.Signal) error
}
