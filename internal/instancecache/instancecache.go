// Package instancecache implements the InstanceCache of spec.md §4.11:
// memoization of per-(strategyName, symbol) StrategyCore instances so two
// different symbols running the same strategy never share mutable state.
package instancecache

import "sync"

// Cache memoizes values of type T keyed by (strategyName, symbol). T is
// typically a *strategycore.Core, kept as `any` here so this package has no
// import-cycle dependency on strategycore.
type Cache struct {
	mu    sync.Mutex
	items map[string]any
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{items: make(map[string]any)}
}

func key(strategyName, symbol string) string {
	return strategyName + ":" + symbol
}

// GetOrCreate returns the cached instance for (strategyName, symbol),
// calling create to build and store one on first access.
func (c *Cache) GetOrCreate(strategyName, symbol string, create func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(strategyName, symbol)
	if existing, ok := c.items[k]; ok {
		return existing
	}
	created := create()
	c.items[k] = created
	return created
}

// Invalidate drops the cached instance for (strategyName, symbol), if any.
func (c *Cache) Invalidate(strategyName, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key(strategyName, symbol))
}

// InvalidateAll drops every cached instance.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]any)
}

// Len returns the number of memoized instances.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
