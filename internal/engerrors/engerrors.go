// Package engerrors implements the error taxonomy of spec.md §7 as a
// single typed, wrapped error shape rather than ad-hoc errors.New calls
// scattered through the engine.
package engerrors

import (
	"errors"
	"fmt"
)

// Operation identifies which engine operation produced an error.
type Operation string

const (
	OpValidate       Operation = "validate"
	OpRiskCheck      Operation = "risk_check"
	OpGenerateSignal Operation = "generate_signal"
	OpPersist        Operation = "persist"
	OpCandleFetch    Operation = "candle_fetch"
	OpContext        Operation = "context"
)

// Kind is the taxonomy entry from spec.md §7.
type Kind string

const (
	KindInvalidSignal     Kind = "invalid_signal"
	KindRiskRejected      Kind = "risk_rejected"
	KindGenerationTimeout Kind = "generation_timeout"
	KindMissingContext    Kind = "missing_context"
	KindInsufficientData  Kind = "insufficient_data"
	KindCandleAnomaly     Kind = "candle_anomaly"
	KindPersistenceError  Kind = "persistence_error"
	KindStopRequested     Kind = "stop_requested"
)

// Sentinel base errors, comparable with errors.Is regardless of the
// wrapping Op/Target context attached by New.
var (
	ErrInvalidSignal     = errors.New("invalid signal")
	ErrRiskRejected      = errors.New("risk rejected")
	ErrGenerationTimeout = errors.New("signal generation timed out")
	ErrMissingContext    = errors.New("missing execution context")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrCandleAnomaly     = errors.New("candle anomaly filtered")
	ErrPersistenceError  = errors.New("persistence error")
	ErrStopRequested     = errors.New("stop requested")
)

func baseFor(kind Kind) error {
	switch kind {
	case KindInvalidSignal:
		return ErrInvalidSignal
	case KindRiskRejected:
		return ErrRiskRejected
	case KindGenerationTimeout:
		return ErrGenerationTimeout
	case KindMissingContext:
		return ErrMissingContext
	case KindInsufficientData:
		return ErrInsufficientData
	case KindCandleAnomaly:
		return ErrCandleAnomaly
	case KindPersistenceError:
		return ErrPersistenceError
	case KindStopRequested:
		return ErrStopRequested
	default:
		return errors.New(string(kind))
	}
}

// EngineError carries the operation, target (symbol/strategy identifier),
// and taxonomy kind behind a failure.
type EngineError struct {
	Op     Operation
	Target string
	Kind   Kind
	Err    error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("%s[%s] %s: %v", e.Op, e.Kind, e.Target, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, engerrors.ErrInvalidSignal) succeed for any
// EngineError of that kind, independent of the wrapped cause.
func (e *EngineError) Is(target error) bool {
	return errors.Is(baseFor(e.Kind), target)
}

// New constructs an EngineError, reusing err verbatim (without re-wrapping)
// if it is already a tagged EngineError.
func New(op Operation, target string, kind Kind, err error) error {
	if err == nil {
		err = baseFor(kind)
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Op: op, Target: target, Kind: kind, Err: err}
}

// KindOf returns the taxonomy kind of err, if it (or something it wraps) is
// an EngineError, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}
