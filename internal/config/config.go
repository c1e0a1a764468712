// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DecayExponent is the alpha applied to the time-to-resolution factor
	// of interval weights. Non-positive or non-finite values fall back to
	// the scoring default downstream.
	DecayExponent float64 `koanf:"decay_exponent"`

	// BatchSize bounds one page of attestations during a backfill run.
	BatchSize int `koanf:"batch_size"`

	// WorkerCount sets the number of upsert workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory upsert job queue.
	QueueSize int `koanf:"queue_size"`

	// CacheTTLMS is the leaderboard query cache lifetime in milliseconds.
	CacheTTLMS int `koanf:"cache_ttl_ms"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// ReindexRatePerSec and ReindexBurst rate-limit the reindex and
	// backfill HTTP triggers.
	ReindexRatePerSec float64 `koanf:"reindex_rate_per_sec"`
	ReindexBurst      int     `koanf:"reindex_burst"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9090",
		DecayExponent:       2,
		BatchSize:           1000,
		WorkerCount:         runtime.NumCPU() * 4,
		QueueSize:           10_000,
		CacheTTLMS:          60_000,
		MaxLeaderboardLimit: 100,
		ReindexRatePerSec:   1,
		ReindexBurst:        2,
	}
}
