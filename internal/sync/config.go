package sync

import (
	"os"
	"strconv"
	"time"
)

// Config tunes the sync engine.
type Config struct {
	// BatchSize is the number of queued mutations submitted per request.
	BatchSize int
	// SettleDelay is how long the scheduler waits after an online
	// transition before draining, letting flappy radios settle.
	SettleDelay time.Duration
}

// DefaultConfig returns the default engine configuration, with environment
// overrides applied: SYNC_BATCH_SIZE and SYNC_SETTLE_DELAY_SECONDS.
func DefaultConfig() Config {
	cfg := Config{
		BatchSize:   50,
		SettleDelay: 2 * time.Second,
	}

	if v := os.Getenv("SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("SYNC_SETTLE_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SettleDelay = time.Duration(n) * time.Second
		}
	}

	return cfg
}
