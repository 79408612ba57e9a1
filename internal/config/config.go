// Package config loads the engine's runtime-tunable constants (spec.md
// §6) from environment variables, the same typed-getter-plus-validate
// idiom this codebase always uses for configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates every tunable named in spec.md §6.
type Config struct {
	StoreRoot string
	LogLevel  string

	MinTPDistancePct         decimal.Decimal
	MinSLDistancePct         decimal.Decimal
	MaxSLDistancePct         decimal.Decimal
	MaxSignalLifetimeMinutes int
	ScheduleAwaitMinutes     int
	SlippagePct              decimal.Decimal
	FeePct                   decimal.Decimal
	MaxSignalGenerationTime  time.Duration
	TickInterval             time.Duration

	CandleAnomalyThresholdFactor decimal.Decimal
	CandleMinForMedian           int
	VWAPWindow                   int

	GracefulShutdownTimeout time.Duration

	// PartialMilestonesPct are the percent-of-TP/SL milestone thresholds
	// (10, 20, 30). Load sets them directly with no environment variable to
	// override them, and strategycore does not read this field.
	PartialMilestonesPct []decimal.Decimal
}

// Load loads .env (if present) then environment variables, and validates
// the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		StoreRoot: getEnv("ENGINE_STORE_ROOT", "./data"),
		LogLevel:  getEnv("ENGINE_LOG_LEVEL", "info"),

		MinTPDistancePct:         getEnvDecimal("MIN_TP_DISTANCE_PCT", decimal.NewFromFloat(0.5)),
		MinSLDistancePct:         getEnvDecimal("MIN_SL_DISTANCE_PCT", decimal.NewFromFloat(0.5)),
		MaxSLDistancePct:         getEnvDecimal("MAX_SL_DISTANCE_PCT", decimal.NewFromFloat(20)),
		MaxSignalLifetimeMinutes: getEnvInt("MAX_SIGNAL_LIFETIME_MINUTES", 1440),
		ScheduleAwaitMinutes:     getEnvInt("SCHEDULE_AWAIT_MINUTES", 120),
		SlippagePct:              getEnvDecimal("SLIPPAGE_PCT", decimal.NewFromFloat(0.1)),
		FeePct:                   getEnvDecimal("FEE_PCT", decimal.NewFromFloat(0.1)),
		MaxSignalGenerationTime:  getEnvDuration("MAX_SIGNAL_GENERATION_SECONDS", 180*time.Second),
		TickInterval:             getEnvDuration("TICK_INTERVAL_MS", 60*time.Second+time.Millisecond),

		CandleAnomalyThresholdFactor: getEnvDecimal("GET_CANDLES_ANOMALY_THRESHOLD_FACTOR", decimal.NewFromInt(1000)),
		CandleMinForMedian:           getEnvInt("GET_CANDLES_MIN_CANDLES_FOR_MEDIAN", 5),
		VWAPWindow:                   getEnvInt("VWAP_WINDOW", 5),

		GracefulShutdownTimeout: getEnvDuration("GRACEFUL_SHUTDOWN_TIMEOUT_SECONDS", 5*time.Minute),

		PartialMilestonesPct: []decimal.Decimal{
			decimal.NewFromInt(10),
			decimal.NewFromInt(20),
			decimal.NewFromInt(30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	if c.MinTPDistancePct.IsNegative() {
		problems = append(problems, "MIN_TP_DISTANCE_PCT must be >= 0")
	}
	if c.MinSLDistancePct.IsNegative() {
		problems = append(problems, "MIN_SL_DISTANCE_PCT must be >= 0")
	}
	if c.MaxSLDistancePct.LessThanOrEqual(c.MinSLDistancePct) {
		problems = append(problems, "MAX_SL_DISTANCE_PCT must exceed MIN_SL_DISTANCE_PCT")
	}
	if c.MaxSignalLifetimeMinutes <= 0 {
		problems = append(problems, "MAX_SIGNAL_LIFETIME_MINUTES must be > 0")
	}
	if c.ScheduleAwaitMinutes <= 0 {
		problems = append(problems, "SCHEDULE_AWAIT_MINUTES must be > 0")
	}
	if c.CandleMinForMedian <= 0 {
		problems = append(problems, "GET_CANDLES_MIN_CANDLES_FOR_MEDIAN must be > 0")
	}
	if c.VWAPWindow <= 0 {
		problems = append(problems, "VWAP_WINDOW must be > 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if parsed, err := decimal.NewFromString(v); err == nil {
		return parsed
	}
	return defaultValue
}

// getEnvDuration reads an integer-seconds (or, for keys ending in _MS, an
// integer-milliseconds) environment variable into a time.Duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	if strings.HasSuffix(key, "_MS") {
		return time.Duration(n) * time.Millisecond
	}
	return time.Duration(n) * time.Second
}
