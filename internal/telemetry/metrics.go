// Package telemetry exposes a hand-built /metrics (Prometheus text
// exposition format), /healthz, /readyz HTTP surface over the signal
// lifecycle counters SPEC_FULL.md §E.3 names.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	metricsMu               sync.RWMutex
	ticksTotal              = make(map[string]uint64)            // symbol -> count
	signalsOpenedTotal      = make(map[string]uint64)            // symbol -> count
	signalsClosedTotal      = make(map[string]map[string]uint64) // symbol -> reason -> count
	signalsCancelledTotal   = make(map[string]map[string]uint64) // symbol -> reason -> count
	persistenceErrorsTotal  = make(map[string]uint64)            // symbol -> count
	generationTimeoutsTotal = make(map[string]uint64)            // symbol -> count
	activeSignalGauge       = make(map[string]float64)           // symbol -> 0/1
	callbackPanics          uint64
)

// RecordTick increments the per-symbol tick counter (spec.md §4.6 — every
// Tick call, regardless of outcome).
func RecordTick(symbol string) {
	symbol = orUnknown(symbol)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	ticksTotal[symbol]++
}

// RecordSignalOpened increments the per-symbol opened-signal counter.
func RecordSignalOpened(symbol string) {
	symbol = orUnknown(symbol)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	signalsOpenedTotal[symbol]++
}

// RecordSignalClosed increments the per-symbol, per-reason closed-signal
// counter (reason is a signal.CloseReason value stringified by the caller).
func RecordSignalClosed(symbol, reason string) {
	symbol = orUnknown(symbol)
	reason = orUnknown(reason)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if _, ok := signalsClosedTotal[symbol]; !ok {
		signalsClosedTotal[symbol] = make(map[string]uint64)
	}
	signalsClosedTotal[symbol][reason]++
}

// RecordSignalCancelled increments the per-symbol, per-reason
// cancelled-signal counter (reason is a signal.CancelReason value).
func RecordSignalCancelled(symbol, reason string) {
	symbol = orUnknown(symbol)
	reason = orUnknown(reason)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if _, ok := signalsCancelledTotal[symbol]; !ok {
		signalsCancelledTotal[symbol] = make(map[string]uint64)
	}
	signalsCancelledTotal[symbol][reason]++
}

// RecordPersistenceError increments the per-symbol SignalStore write/read
// failure counter.
func RecordPersistenceError(symbol string) {
	symbol = orUnknown(symbol)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	persistenceErrorsTotal[symbol]++
}

// RecordGenerationTimeout increments the per-symbol getSignal-timeout
// counter (spec.md §6's MAX_SIGNAL_GENERATION_SECONDS).
func RecordGenerationTimeout(symbol string) {
	symbol = orUnknown(symbol)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	generationTimeoutsTotal[symbol]++
}

// SetActiveSignalGauge sets the 0/1 gauge tracking whether symbol currently
// holds an active signal.
func SetActiveSignalGauge(symbol string, active bool) {
	symbol = orUnknown(symbol)
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if active {
		activeSignalGauge[symbol] = 1
	} else {
		activeSignalGauge[symbol] = 0
	}
}

// RecordCallbackPanic records a recovered panic in an eventbus listener or
// strategy callback.
func RecordCallbackPanic() {
	atomic.AddUint64(&callbackPanics, 1)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Server exposes metrics and health endpoints.
type Server struct {
	srv        *http.Server
	readyState atomic.Bool
}

// NewServer creates a new telemetry server. Returns nil if addr is empty,
// so callers can unconditionally call Start/Shutdown on the result.
func NewServer(addr string) *Server {
	if addr == "" {
		return nil
	}

	server := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", server.metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if server.readyState.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	server.srv = &http.Server{Addr: addr, Handler: mux}
	return server
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) metricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	builder := &strings.Builder{}

	metricsMu.RLock()
	defer metricsMu.RUnlock()

	builder.WriteString("# HELP backtest_kit_ticks_total Total StrategyCore.Tick invocations by symbol\n")
	builder.WriteString("# TYPE backtest_kit_ticks_total counter\n")
	for _, symbol := range sortedKeys(ticksTotal) {
		fmt.Fprintf(builder, "backtest_kit_ticks_total{symbol=\"%s\"} %d\n", symbol, ticksTotal[symbol])
	}

	builder.WriteString("# HELP backtest_kit_signals_opened_total Total signals opened by symbol\n")
	builder.WriteString("# TYPE backtest_kit_signals_opened_total counter\n")
	for _, symbol := range sortedKeys(signalsOpenedTotal) {
		fmt.Fprintf(builder, "backtest_kit_signals_opened_total{symbol=\"%s\"} %d\n", symbol, signalsOpenedTotal[symbol])
	}

	builder.WriteString("# HELP backtest_kit_signals_closed_total Total signals closed by symbol and reason\n")
	builder.WriteString("# TYPE backtest_kit_signals_closed_total counter\n")
	for _, symbol := range sortedKeys(signalsClosedTotal) {
		for _, reason := range sortedKeys(signalsClosedTotal[symbol]) {
			fmt.Fprintf(builder, "backtest_kit_signals_closed_total{symbol=\"%s\",reason=\"%s\"} %d\n", symbol, reason, signalsClosedTotal[symbol][reason])
		}
	}

	builder.WriteString("# HELP backtest_kit_signals_cancelled_total Total signals cancelled by symbol and reason\n")
	builder.WriteString("# TYPE backtest_kit_signals_cancelled_total counter\n")
	for _, symbol := range sortedKeys(signalsCancelledTotal) {
		for _, reason := range sortedKeys(signalsCancelledTotal[symbol]) {
			fmt.Fprintf(builder, "backtest_kit_signals_cancelled_total{symbol=\"%s\",reason=\"%s\"} %d\n", symbol, reason, signalsCancelledTotal[symbol][reason])
		}
	}

	builder.WriteString("# HELP backtest_kit_persistence_errors_total Total SignalStore read/write failures by symbol\n")
	builder.WriteString("# TYPE backtest_kit_persistence_errors_total counter\n")
	for _, symbol := range sortedKeys(persistenceErrorsTotal) {
		fmt.Fprintf(builder, "backtest_kit_persistence_errors_total{symbol=\"%s\"} %d\n", symbol, persistenceErrorsTotal[symbol])
	}

	builder.WriteString("# HELP backtest_kit_generation_timeouts_total Total getSignal generation timeouts by symbol\n")
	builder.WriteString("# TYPE backtest_kit_generation_timeouts_total counter\n")
	for _, symbol := range sortedKeys(generationTimeoutsTotal) {
		fmt.Fprintf(builder, "backtest_kit_generation_timeouts_total{symbol=\"%s\"} %d\n", symbol, generationTimeoutsTotal[symbol])
	}

	builder.WriteString("# HELP backtest_kit_active_signal Whether a symbol currently holds an active signal\n")
	builder.WriteString("# TYPE backtest_kit_active_signal gauge\n")
	for _, symbol := range sortedKeys(activeSignalGauge) {
		fmt.Fprintf(builder, "backtest_kit_active_signal{symbol=\"%s\"} %f\n", symbol, activeSignalGauge[symbol])
	}

	builder.WriteString("# HELP backtest_kit_callback_panics_total Number of recovered panics from eventbus listeners\n")
	builder.WriteString("# TYPE backtest_kit_callback_panics_total counter\n")
	fmt.Fprintf(builder, "backtest_kit_callback_panics_total %d\n", atomic.LoadUint64(&callbackPanics))

	_, _ = w.Write([]byte(builder.String()))
}

// Start begins serving metrics and health endpoints in a separate goroutine.
func (s *Server) Start() error {
	if s == nil || s.srv == nil {
		return nil
	}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// SetReady updates the readiness state exposed on /readyz.
func (s *Server) SetReady(ready bool) {
	if s == nil {
		return
	}
	s.readyState.Store(ready)
}
