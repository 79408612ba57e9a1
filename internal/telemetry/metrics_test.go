package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsHandler_RendersRecordedLifecycleCounters(t *testing.T) {
	RecordTick("BTCUSDT")
	RecordSignalOpened("BTCUSDT")
	RecordSignalClosed("BTCUSDT", "take_profit")
	RecordSignalCancelled("BTCUSDT", "timeout")
	RecordPersistenceError("BTCUSDT")
	RecordGenerationTimeout("BTCUSDT")
	SetActiveSignalGauge("BTCUSDT", true)

	server := &Server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	server.metricsHandler(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`backtest_kit_ticks_total{symbol="BTCUSDT"}`,
		`backtest_kit_signals_opened_total{symbol="BTCUSDT"}`,
		`backtest_kit_signals_closed_total{symbol="BTCUSDT",reason="take_profit"}`,
		`backtest_kit_signals_cancelled_total{symbol="BTCUSDT",reason="timeout"}`,
		`backtest_kit_persistence_errors_total{symbol="BTCUSDT"}`,
		`backtest_kit_generation_timeouts_total{symbol="BTCUSDT"}`,
		`backtest_kit_active_signal{symbol="BTCUSDT"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics body to contain %q, got:\n%s", want, body)
		}
	}
}

func TestNewServer_NilOnEmptyAddr(t *testing.T) {
	if s := NewServer(""); s != nil {
		t.Fatal("expected nil server for empty addr")
	}
}

func TestServer_ReadyzReflectsSetReady(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/readyz", nil)
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 503 {
		t.Fatalf("expected 503 before SetReady(true), got %d", rec.Code)
	}

	s.SetReady(true)
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200 after SetReady(true), got %d", rec.Code)
	}
}
