package candlesource

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

func normalCandle(ts int64, price float64) signal.Candle {
	p := decimal.NewFromFloat(price)
	return signal.Candle{
		Timestamp: ts,
		Open:      p,
		High:      p.Mul(decimal.NewFromFloat(1.001)),
		Low:       p.Mul(decimal.NewFromFloat(0.999)),
		Close:     p,
		Volume:    decimal.NewFromInt(100),
	}
}

func TestFilterAnomalies_DropsOutlier(t *testing.T) {
	candles := []signal.Candle{
		normalCandle(1, 50000),
		normalCandle(2, 50010),
		normalCandle(3, 50020),
		normalCandle(4, 50030),
		normalCandle(5, 1), // wildly below median/1000
	}
	filtered := FilterAnomalies(candles, decimal.NewFromInt(DefaultAnomalyThresholdFactor))
	if len(filtered) != 4 {
		t.Fatalf("expected outlier dropped, got %d candles", len(filtered))
	}
	for _, c := range filtered {
		if c.Timestamp == 5 {
			t.Fatal("outlier candle should have been removed")
		}
	}
}

func TestFilterAnomalies_KeepsConsistentBatch(t *testing.T) {
	candles := []signal.Candle{
		normalCandle(1, 50000),
		normalCandle(2, 50100),
		normalCandle(3, 49900),
	}
	filtered := FilterAnomalies(candles, decimal.NewFromInt(DefaultAnomalyThresholdFactor))
	if len(filtered) != 3 {
		t.Fatalf("expected all candles kept, got %d", len(filtered))
	}
}

func TestFilterAnomalies_EmptyInput(t *testing.T) {
	if got := FilterAnomalies(nil, decimal.NewFromInt(DefaultAnomalyThresholdFactor)); len(got) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(got))
	}
}
