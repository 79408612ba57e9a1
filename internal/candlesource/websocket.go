package candlesource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/logger"
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

func candleFromMessage(msg candleMessage) (signal.Candle, error) {
	open, err := decimal.NewFromString(msg.Open)
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := decimal.NewFromString(msg.High)
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := decimal.NewFromString(msg.Low)
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := decimal.NewFromString(msg.Close)
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := decimal.NewFromString(msg.Volume)
	if err != nil {
		return signal.Candle{}, fmt.Errorf("invalid volume: %w", err)
	}
	return signal.Candle{
		Timestamp: msg.Timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

// candleMessage is the wire shape read off the stream: one OHLCV update
// per message.
type candleMessage struct {
	Timestamp int64  `json:"timestamp"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// WebSocket is a live streaming Source: it maintains an in-memory,
// ascending-by-timestamp ring buffer fed by a background reader goroutine,
// reconnecting with exponential backoff on read failure. Grounded on
// internal/exchanges/coinbase/websocket.go's handleMessages reconnect
// loop, generalized from exchange ticker/orderbook/trade callbacks to a
// single OHLCV candle stream feeding CandleSource.GetCandles.
type WebSocket struct {
	url       string
	symbol    string
	maxBuffer int

	mu      sync.RWMutex
	conn    *websocket.Conn
	candles []signal.Candle
	done    chan struct{}
}

// NewWebSocket builds a WebSocket source for symbol. Call Connect before
// any GetCandles call expects data; maxBuffer bounds how many trailing
// candles are retained (older candles are dropped as new ones arrive).
func NewWebSocket(url, symbol string, maxBuffer int) *WebSocket {
	if maxBuffer <= 0 {
		maxBuffer = 10_000
	}
	return &WebSocket{url: url, symbol: symbol, maxBuffer: maxBuffer}
}

// Connect dials the stream and starts the background reader. Safe to call
// again after Close to reconnect from scratch.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	done := make(chan struct{})
	w.done = done
	w.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("candlesource: failed to dial %s: %w", w.url, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.readLoop(done)
	return nil
}

// Close stops the background reader and closes the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil {
		select {
		case <-w.done:
		default:
			close(w.done)
		}
		w.done = nil
	}
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *WebSocket) readLoop(done <-chan struct{}) {
	backoff := time.Second
	const maxBackoff = time.Minute
	const maxRetries = 10
	retries := 0

	for {
		select {
		case <-done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			retries++
			if retries >= maxRetries {
				logger.Default().Symbol(w.symbol).WithError(err).Error("candle_stream_exhausted_retries")
				return
			}
			logger.Default().Symbol(w.symbol).WithError(err).Warn("candle_stream_reconnecting")

			if !w.reconnectAfter(done, backoff) {
				return
			}
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}

		backoff = time.Second
		retries = 0
		w.ingest(message)
	}
}

// reconnectAfter waits out backoff (or returns false if done fires first),
// then redials the stream in place.
func (w *WebSocket) reconnectAfter(done <-chan struct{}, backoff time.Duration) bool {
	select {
	case <-done:
		return false
	case <-time.After(backoff):
	}

	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return true // keep retrying with the same backoff schedule
	}
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.conn = conn
	w.mu.Unlock()
	return true
}

func (w *WebSocket) ingest(raw []byte) {
	var msg candleMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		logger.Default().Symbol(w.symbol).WithError(err).Warn("candle_stream_malformed_message")
		return
	}
	candle, err := candleFromMessage(msg)
	if err != nil {
		logger.Default().Symbol(w.symbol).WithError(err).Warn("candle_stream_invalid_candle")
		return
	}
	if !candle.Valid() {
		logger.Default().Symbol(w.symbol).Warn("candle_stream_rejected_invalid_ohlc")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.candles = append(w.candles, candle)
	if len(w.candles) > w.maxBuffer {
		w.candles = w.candles[len(w.candles)-w.maxBuffer:]
	}
}

// GetCandles implements Source over the in-memory buffer fed by the
// background reader.
func (w *WebSocket) GetCandles(_ context.Context, symbol string, _ signal.Interval, since int64, limit int) ([]signal.Candle, error) {
	if symbol != w.symbol {
		return nil, fmt.Errorf("candlesource: websocket source holds %s, not %s", w.symbol, symbol)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	start := sort.Search(len(w.candles), func(i int) bool { return w.candles[i].Timestamp >= since })
	end := len(w.candles)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	if start >= end {
		return []signal.Candle{}, nil
	}
	out := make([]signal.Candle, end-start)
	copy(out, w.candles[start:end])
	return out, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
