package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

func defaultThresholds() Thresholds {
	return Thresholds{
		MinTPDistancePct:         decimal.NewFromFloat(0.5),
		MinSLDistancePct:         decimal.NewFromFloat(0.5),
		MaxSLDistancePct:         decimal.NewFromFloat(20),
		MaxSignalLifetimeMinutes: 1440,
	}
}

func TestValidate_AcceptsImmediateLongWithinBounds(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(101000),
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 60,
	}
	err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err != nil {
		t.Fatalf("expected valid signal, got error: %v", err)
	}
}

func TestValidate_RejectsWrongOrderingForLong(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(99000), // below stop loss: invalid
		PriceStopLoss:       decimal.NewFromInt(101000),
		MinuteEstimatedTime: 60,
	}
	err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err == nil {
		t.Fatal("expected validation error for inverted LONG TP/SL ordering")
	}
}

func TestValidate_RejectsImmediateClosureOnOpen(t *testing.T) {
	// currentPrice already past takeProfit: would close on the opening candle
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(100500),
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 60,
	}
	err := Validate(draft, decimal.NewFromInt(101000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err == nil {
		t.Fatal("expected rejection when currentPrice already beyond takeProfit")
	}
}

func TestValidate_RejectsTooTightTPDistance(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(100100), // 0.1% away, below 0.5% minimum
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 60,
	}
	err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err == nil {
		t.Fatal("expected rejection for take-profit distance below minimum")
	}
}

func TestValidate_RejectsExcessiveSLDistance(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(110000),
		PriceStopLoss:       decimal.NewFromInt(70000), // 30% away, above 20% maximum
		MinuteEstimatedTime: 60,
	}
	err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err == nil {
		t.Fatal("expected rejection for stop-loss distance above maximum")
	}
}

func TestValidate_RejectsExcessiveLifetime(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(101000),
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 2000,
	}
	err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err == nil {
		t.Fatal("expected rejection for minuteEstimatedTime above MAX_SIGNAL_LIFETIME_MINUTES")
	}
}

func TestValidate_ScheduledChecksPriceOpenNotCurrentPrice(t *testing.T) {
	priceOpen := decimal.NewFromInt(99500)
	draft := signal.Draft{
		Position:            signal.Long,
		PriceOpen:           &priceOpen,
		PriceTakeProfit:     decimal.NewFromInt(100500),
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 60,
	}
	// currentPrice is irrelevant to the scheduled-closure check; priceOpen must be between SL/TP.
	err := Validate(draft, decimal.NewFromInt(100000), true, "BTCUSDT", "strat", "exch", defaultThresholds())
	if err != nil {
		t.Fatalf("expected valid scheduled signal, got error: %v", err)
	}
}

func TestValidate_Monotonicity(t *testing.T) {
	draft := signal.Draft{
		Position:            signal.Long,
		PriceTakeProfit:     decimal.NewFromInt(100600), // 0.6% distance
		PriceStopLoss:       decimal.NewFromInt(99000),
		MinuteEstimatedTime: 60,
	}
	loose := defaultThresholds()
	if err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", loose); err != nil {
		t.Fatalf("expected pass at loose thresholds, got %v", err)
	}

	tight := loose
	tight.MinTPDistancePct = decimal.NewFromFloat(1) // tighten past the 0.6% the draft offers
	if err := Validate(draft, decimal.NewFromInt(100000), false, "BTCUSDT", "strat", "exch", tight); err == nil {
		t.Fatal("expected failure once thresholds tighten past what previously passed")
	}
}
