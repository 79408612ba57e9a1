// Package symbolmanager implements a registry of the symbols a process
// actively drives (one StrategyCore per (strategyName, symbol) pair,
// spec.md §4.11), and derives the per-symbol RiskGate configuration from
// that registry rather than requiring callers to keep both in sync by
// hand.
package symbolmanager

import (
	"fmt"
	"sync"

	"github.com/tripolskypetr/backtest-kit-sub002/internal/riskgate"
)

// SymbolConfig holds per-symbol trading configuration: its exchange
// priority order for CandleSource failover and the concurrent-position
// ceiling RiskGate should enforce for it.
type SymbolConfig struct {
	Symbol                 string
	ExchangePriority       []string
	MaxConcurrentPositions int // 0 => fall back to the manager's default
	Enabled                bool
}

// Manager tracks configured symbols and their enabled/disabled state.
// Grounded on this codebase's symbol registry (register/enable/disable,
// an active-symbols slice kept in sync with a map), generalized to also
// project a riskgate.LimitConfig from the same registry.
type Manager struct {
	mu                   sync.RWMutex
	symbols              map[string]*SymbolConfig
	activeSymbols        []string
	defaultMaxConcurrent int
}

// NewManager creates an empty Manager. defaultMaxConcurrent seeds
// riskgate.LimitConfig.MaxConcurrentPositions for symbols that don't
// override it.
func NewManager(defaultMaxConcurrent int) *Manager {
	return &Manager{
		symbols:              make(map[string]*SymbolConfig),
		activeSymbols:        make([]string, 0),
		defaultMaxConcurrent: defaultMaxConcurrent,
	}
}

// AddSymbol registers a new symbol with its configuration.
func (m *Manager) AddSymbol(cfg SymbolConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.symbols[cfg.Symbol]; exists {
		return fmt.Errorf("symbol %s already exists", cfg.Symbol)
	}

	copied := cfg
	m.symbols[cfg.Symbol] = &copied
	if cfg.Enabled {
		m.activeSymbols = append(m.activeSymbols, cfg.Symbol)
	}
	return nil
}

// RemoveSymbol deregisters a symbol entirely.
func (m *Manager) RemoveSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.symbols[symbol]; !exists {
		return fmt.Errorf("symbol %s not found", symbol)
	}
	delete(m.symbols, symbol)
	m.removeActiveLocked(symbol)
	return nil
}

// EnableSymbol marks symbol as active for trading.
func (m *Manager) EnableSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, exists := m.symbols[symbol]
	if !exists {
		return fmt.Errorf("symbol %s not found", symbol)
	}
	if cfg.Enabled {
		return nil
	}
	cfg.Enabled = true
	m.activeSymbols = append(m.activeSymbols, symbol)
	return nil
}

// DisableSymbol marks symbol as inactive, leaving its configuration in
// place for a later EnableSymbol call.
func (m *Manager) DisableSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, exists := m.symbols[symbol]
	if !exists {
		return fmt.Errorf("symbol %s not found", symbol)
	}
	if !cfg.Enabled {
		return nil
	}
	cfg.Enabled = false
	m.removeActiveLocked(symbol)
	return nil
}

func (m *Manager) removeActiveLocked(symbol string) {
	for i, active := range m.activeSymbols {
		if active == symbol {
			m.activeSymbols = append(m.activeSymbols[:i], m.activeSymbols[i+1:]...)
			return
		}
	}
}

// ActiveSymbols returns a copy of currently enabled symbols.
func (m *Manager) ActiveSymbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]string, len(m.activeSymbols))
	copy(active, m.activeSymbols)
	return active
}

// SymbolConfig returns a copy of symbol's configuration.
func (m *Manager) SymbolConfig(symbol string) (SymbolConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, exists := m.symbols[symbol]
	if !exists {
		return SymbolConfig{}, fmt.Errorf("symbol %s not found", symbol)
	}
	return *cfg, nil
}

// IsActive reports whether symbol is currently enabled.
func (m *Manager) IsActive(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, active := range m.activeSymbols {
		if active == symbol {
			return true
		}
	}
	return false
}

// BuildLimitConfig projects the registry into a riskgate.LimitConfig: every
// enabled symbol with a MaxConcurrentPositions override becomes a
// riskgate.SymbolLimits entry, so RiskGate construction never drifts out of
// sync with the symbol registry it's meant to police.
func (m *Manager) BuildLimitConfig() riskgate.LimitConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := riskgate.LimitConfig{
		MaxConcurrentPositions: m.defaultMaxConcurrent,
		PerSymbol:              make(map[string]riskgate.SymbolLimits),
	}
	for _, symbol := range m.activeSymbols {
		sc := m.symbols[symbol]
		if sc.MaxConcurrentPositions > 0 {
			cfg.PerSymbol[symbol] = riskgate.SymbolLimits{MaxConcurrentPositions: sc.MaxConcurrentPositions}
		}
	}
	return cfg
}
