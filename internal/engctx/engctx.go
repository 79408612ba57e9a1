// Package engctx implements the task-local context propagation of
// spec.md §4.1: ExecutionContext binds {symbol, now, isBacktest} and
// MethodContext binds {strategyName, exchangeName, frameName} for the
// duration of a single StrategyCore evaluation, including across any
// suspension point or auxiliary goroutine the evaluation spawns. Go's
// idiomatic realization of the source's task-local storage is a
// context.Context value carried explicitly by the caller (spec.md §9).
package engctx

import (
	"context"
	"fmt"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
)

// Execution holds the current logical tick's symbol, simulated time, and
// backtest/live mode.
type Execution struct {
	Symbol     string
	Now        int64 // ms since epoch, simulated in backtest, wall clock in live
	IsBacktest bool
}

// Method holds the schema identity of the current execution.
type Method struct {
	StrategyName string
	ExchangeName string
	FrameName    string
}

type executionKey struct{}
type methodKey struct{}

// RunExecution establishes ec as the current Execution context for the
// duration of fn.
func RunExecution(ctx context.Context, ec Execution, fn func(context.Context) error) error {
	return fn(context.WithValue(ctx, executionKey{}, ec))
}

// RunMethod establishes mc as the current Method context for the duration
// of fn.
func RunMethod(ctx context.Context, mc Method, fn func(context.Context) error) error {
	return fn(context.WithValue(ctx, methodKey{}, mc))
}

// CurrentExecution returns the established Execution context, or
// engerrors.ErrMissingContext if none is bound on ctx.
func CurrentExecution(ctx context.Context) (Execution, error) {
	ec, ok := ctx.Value(executionKey{}).(Execution)
	if !ok {
		return Execution{}, engerrors.New(engerrors.OpContext, "", engerrors.KindMissingContext,
			fmt.Errorf("no ExecutionContext bound on this context"))
	}
	return ec, nil
}

// CurrentMethod returns the established Method context, or
// engerrors.ErrMissingContext if none is bound on ctx.
func CurrentMethod(ctx context.Context) (Method, error) {
	mc, ok := ctx.Value(methodKey{}).(Method)
	if !ok {
		return Method{}, engerrors.New(engerrors.OpContext, "", engerrors.KindMissingContext,
			fmt.Errorf("no MethodContext bound on this context"))
	}
	return mc, nil
}

// MustExecution panics if no Execution context is bound; reserved for
// internal invariant checks where a missing context is a programmer error
// that has already been validated one layer up.
func MustExecution(ctx context.Context) Execution {
	ec, err := CurrentExecution(ctx)
	if err != nil {
		panic(err)
	}
	return ec
}
