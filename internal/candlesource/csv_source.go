package candlesource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// CSV is a file-backed Source used by the backtest driver to replay
// historical candles. Expected format: timestamp,open,high,low,close,volume
// with an optional header row; timestamp accepts Unix seconds, Unix
// milliseconds, or RFC3339.
type CSV struct {
	candles []signal.Candle
	symbol  string
}

// LoadCSV reads filename into a CSV source for symbol.
func LoadCSV(filename, symbol string) (*CSV, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if _, err := strconv.ParseFloat(header[1], 64); err == nil {
		// first row was already data; rewind and re-read from the top
		if _, err := file.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("failed to seek file: %w", err)
		}
		reader = csv.NewReader(file)
	}

	candles := make([]signal.Candle, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) < 6 {
			continue
		}
		candle, err := parseCSVRecord(record)
		if err != nil {
			continue
		}
		candles = append(candles, candle)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})

	return &CSV{candles: candles, symbol: symbol}, nil
}

func parseCSVRecord(record []string) (signal.Candle, error) {
	timestamp, err := parseTimestamp(record[0])
	if err != nil {
		return signal.Candle{}, err
	}

	open, err := decimal.NewFromString(record[1])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid open price: %w", err)
	}
	high, err := decimal.NewFromString(record[2])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid high price: %w", err)
	}
	low, err := decimal.NewFromString(record[3])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid low price: %w", err)
	}
	close, err := decimal.NewFromString(record[4])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid close price: %w", err)
	}
	volume, err := decimal.NewFromString(record[5])
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid volume: %w", err)
	}

	return signal.Candle{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}, nil
}

// parseTimestamp parses a timestamp column into ms-since-epoch.
func parseTimestamp(s string) (int64, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 10_000_000_000 {
			return ts, nil // already milliseconds
		}
		return ts * 1000, nil // seconds -> ms
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UnixMilli(), nil
		}
	}

	return 0, fmt.Errorf("unable to parse timestamp: %s", s)
}

// GetCandles implements Source by slicing the in-memory, already-sorted
// candle set. interval is ignored: a CSV source holds a single fixed
// granularity chosen at load time.
func (c *CSV) GetCandles(_ context.Context, symbol string, _ signal.Interval, since int64, limit int) ([]signal.Candle, error) {
	if symbol != c.symbol {
		return nil, fmt.Errorf("candlesource: CSV source holds %s, not %s", c.symbol, symbol)
	}

	start := sort.Search(len(c.candles), func(i int) bool { return c.candles[i].Timestamp >= since })
	end := len(c.candles)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return []signal.Candle{}, nil
	}

	out := make([]signal.Candle, end-start)
	copy(out, c.candles[start:end])
	return out, nil
}

// All returns every candle held by the source, in ascending order, for use
// by the backtest driver's fast-path batching.
func (c *CSV) All() []signal.Candle {
	out := make([]signal.Candle, len(c.candles))
	copy(out, c.candles)
	return out
}
