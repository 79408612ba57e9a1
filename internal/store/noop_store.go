package store

import (
	"context"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// NoOp discards every write and always reads back nil. Backtest mode may
// skip the store entirely per spec.md §4.3 ("this is a decision of the
// driver, not the store"); NoOp lets Driver.Backtest wire the same
// StrategyCore code path without a real persistence backend.
type NoOp struct{}

func (NoOp) ReadActive(context.Context, string, string) (*signal.Signal, error)    { return nil, nil }
func (NoOp) WriteActive(context.Context, string, string, *signal.Signal) error     { return nil }
func (NoOp) ReadScheduled(context.Context, string, string) (*signal.Signal, error) { return nil, nil }
func (NoOp) WriteScheduled(context.Context, string, string, *signal.Signal) error  { return nil }
