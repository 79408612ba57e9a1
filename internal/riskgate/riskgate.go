// Package riskgate implements the portfolio-level admission controller of
// spec.md §4.4: a signal is checked before it is created or activated, and
// the gate's own bookkeeping of currently-held positions is updated via
// AddSignal/RemoveSignal hooks. Grounded on this codebase's risk manager
// (position-count limits, per-trade predicates) generalized from
// order-level admission to signal-level admission, and on its
// per-symbol configuration (symbolmanager) generalized into optional
// per-symbol overrides.
package riskgate

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/engerrors"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// CheckArgs carries everything a gate needs to admit or reject a signal.
type CheckArgs struct {
	PendingSignal   signal.Draft
	Symbol          string
	StrategyName    string
	CurrentPrice    decimal.Decimal
	Timestamp       int64
	ActivePositions int // count of currently-active signals across the gate's scope
}

// Gate is the RiskGate contract of spec.md §4.4.
type Gate interface {
	CheckSignal(args CheckArgs) error
	AddSignal(strategyName, symbol string)
	RemoveSignal(strategyName, symbol string)
}

// NoOp always allows and tracks nothing.
type NoOp struct{}

func (NoOp) CheckSignal(CheckArgs) error { return nil }
func (NoOp) AddSignal(string, string)    {}
func (NoOp) RemoveSignal(string, string) {}

// Composite accepts iff every child gate accepts; on accept (via
// AddSignal) every child's AddSignal fires, and likewise for RemoveSignal
// (spec.md §9).
type Composite struct {
	children []Gate
}

// NewComposite builds a Composite over the given child gates.
func NewComposite(children ...Gate) *Composite {
	return &Composite{children: children}
}

func (c *Composite) CheckSignal(args CheckArgs) error {
	for _, child := range c.children {
		if err := child.CheckSignal(args); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composite) AddSignal(strategyName, symbol string) {
	for _, child := range c.children {
		child.AddSignal(strategyName, symbol)
	}
}

func (c *Composite) RemoveSignal(strategyName, symbol string) {
	for _, child := range c.children {
		child.RemoveSignal(strategyName, symbol)
	}
}

// HeldCount sums HeldCount() across children that expose it, for callers
// that need a single admission-scope position count (spec.md §9,
// "RiskGate state is process-memory only").
func (c *Composite) HeldCount() int {
	total := 0
	for _, child := range c.children {
		if hc, ok := child.(interface{ HeldCount() int }); ok {
			total += hc.HeldCount()
		}
	}
	return total
}

// SymbolLimits overrides the default MaxConcurrentPositions for a specific
// symbol (generalized from this codebase's symbolmanager per-symbol risk
// limits).
type SymbolLimits struct {
	MaxConcurrentPositions int
}

// LimitConfig configures a Limit gate.
type LimitConfig struct {
	MaxConcurrentPositions int
	PerSymbol              map[string]SymbolLimits
}

// DefaultLimitConfig mirrors this codebase's DefaultConfig()-style
// constructor convention.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		MaxConcurrentPositions: 3,
		PerSymbol:              map[string]SymbolLimits{},
	}
}

// Limit is a max-concurrent-positions admission gate. CheckSignal compares
// the caller-supplied ActivePositions count against the limit and does not
// consult its own AddSignal/RemoveSignal bookkeeping, so a process restart
// that repopulates active positions from SignalStore is immediately
// consistent (spec.md §3, "Lifecycle ownership").
type Limit struct {
	cfg LimitConfig
	mu  sync.Mutex
	// held tracks (strategyName, symbol) -> held, for informational
	// Stats/inspection only; admission decisions use args.ActivePositions.
	held map[string]struct{}
}

// NewLimit constructs a Limit gate.
func NewLimit(cfg LimitConfig) *Limit {
	if cfg.PerSymbol == nil {
		cfg.PerSymbol = map[string]SymbolLimits{}
	}
	return &Limit{cfg: cfg, held: make(map[string]struct{})}
}

func (l *Limit) maxFor(symbol string) int {
	if override, ok := l.cfg.PerSymbol[symbol]; ok && override.MaxConcurrentPositions > 0 {
		return override.MaxConcurrentPositions
	}
	return l.cfg.MaxConcurrentPositions
}

func (l *Limit) CheckSignal(args CheckArgs) error {
	max := l.maxFor(args.Symbol)
	if max > 0 && args.ActivePositions >= max {
		return engerrors.New(engerrors.OpRiskCheck, args.Symbol, engerrors.KindRiskRejected,
			fmt.Errorf("maximum concurrent positions (%d) reached for %s", max, args.Symbol))
	}
	return nil
}

func (l *Limit) AddSignal(strategyName, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key(strategyName, symbol)] = struct{}{}
}

func (l *Limit) RemoveSignal(strategyName, symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key(strategyName, symbol))
}

// HeldCount returns how many (strategy, symbol) pairs this gate currently
// believes are holding a position, for metrics/inspection.
func (l *Limit) HeldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func key(strategyName, symbol string) string {
	return strategyName + ":" + symbol
}

// Predicate is a custom admission rule; any error rejects the signal with
// that error's message (spec.md §4.4, "any predicate throwing rejects").
type Predicate func(args CheckArgs) error

// FromPredicate adapts a bare predicate function into a Gate with no-op
// Add/RemoveSignal (used when composing ad-hoc rules into a Composite
// alongside the stateful Limit gate).
type FromPredicate struct {
	Fn Predicate
}

func (p FromPredicate) CheckSignal(args CheckArgs) error {
	if err := p.Fn(args); err != nil {
		return engerrors.New(engerrors.OpRiskCheck, args.Symbol, engerrors.KindRiskRejected, err)
	}
	return nil
}

func (FromPredicate) AddSignal(string, string)    {}
func (FromPredicate) RemoveSignal(string, string) {}
