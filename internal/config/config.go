// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Classification queue modes.
const (
	QueueMemory   = "memory"
	QueueRedis    = "redis"
	QueueDisabled = "disabled"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the report/user/inbox backend: memory or mongo.
	Store    string `koanf:"store"`
	MongoURI string `koanf:"mongo_uri"`
	MongoDB  string `koanf:"mongo_db"`

	// ClassifyQueue selects the classification work queue: memory, redis or disabled.
	ClassifyQueue string `koanf:"classify_queue"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisQueueKey string `koanf:"redis_queue_key"`

	// WorkerCount sets the number of side-effect workers.
	WorkerCount int `koanf:"worker_count"`

	// TaskQueueSize bounds the detached side-effect backlog.
	TaskQueueSize int `koanf:"task_queue_size"`

	// TaskTimeoutMS bounds any single side-effect task.
	TaskTimeoutMS int `koanf:"task_timeout_ms"`

	// DedupeSize sets the size of the side-effect replay cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Ledger signing and contract settings. An empty private key selects degraded mode.
	LedgerNodeURL         string `koanf:"ledger_node_url"`
	LedgerPrivateKey      string `koanf:"ledger_private_key"`
	LedgerContractAddress string `koanf:"ledger_contract_address"`
	LedgerTimeoutMS       int    `koanf:"ledger_timeout_ms"`

	// Push provider. Empty project id disables push.
	FCMProjectID       string `koanf:"fcm_project_id"`
	FCMCredentialsFile string `koanf:"fcm_credentials_file"`

	// DeleteMinDwellMinutes is the minimum age of an acknowledgement before deletion.
	DeleteMinDwellMinutes int `koanf:"delete_min_dwell_minutes"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// MonthlyResetIntervalMS is how often serve checks for a new scoring period.
	MonthlyResetIntervalMS int `koanf:"monthly_reset_interval_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		Store:                  StoreMemory,
		MongoURI:               "mongodb://localhost:27017",
		MongoDB:                "civicflow",
		ClassifyQueue:          QueueMemory,
		RedisAddr:              "localhost:6379",
		RedisQueueKey:          "ml_classification_queue",
		WorkerCount:            runtime.NumCPU() * 4,
		TaskQueueSize:          10_000,
		TaskTimeoutMS:          15_000,
		DedupeSize:             100_000,
		LedgerNodeURL:          "https://fullnode.devnet.aptoslabs.com/v1",
		LedgerTimeoutMS:        10_000,
		DeleteMinDwellMinutes:  24 * 60,
		MaxLeaderboardLimit:    100,
		MonthlyResetIntervalMS: 60 * 60 * 1000,
	}
}
