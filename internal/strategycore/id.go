package strategycore

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
	"golang.org/x/crypto/blake2b"
)

// IDGenerator assigns an opaque unique id to a signal the engine creates
// (spec.md §3, "id: engine-assigned if user omitted").
type IDGenerator interface {
	NextID(strategyName, symbol string, scheduledAt int64, priceOpen decimal.Decimal, position signal.Position) string
}

// LiveIDGenerator produces random v4 UUIDs, used outside backtest mode
// where determinism has no value and collision-freedom across restarts
// matters more.
type LiveIDGenerator struct{}

func (LiveIDGenerator) NextID(string, string, int64, decimal.Decimal, signal.Position) string {
	return uuid.NewString()
}

// DeterministicIDGenerator derives a signal id from a blake2b-256 hash of
// its defining fields, so the same backtest run over the same candle data
// always assigns the same ids (spec.md §8, Determinism testable property).
type DeterministicIDGenerator struct{}

func (DeterministicIDGenerator) NextID(strategyName, symbol string, scheduledAt int64, priceOpen decimal.Decimal, position signal.Position) string {
	input := fmt.Sprintf("%s|%s|%d|%s|%s", strategyName, symbol, scheduledAt, priceOpen.String(), position)
	sum := blake2b.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
