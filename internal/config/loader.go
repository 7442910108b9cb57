package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CIVIC_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CIVIC_CONFIG is set
//  3. env (prefix CIVIC_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// CIVIC_TASK_QUEUE_SIZE -> task_queue_size. Underscores are kept to match
	// the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail at wiring time.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreMongo:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.ClassifyQueue != QueueMemory && c.ClassifyQueue != QueueRedis && c.ClassifyQueue != QueueDisabled:
		return fmt.Errorf("%w: unknown classify_queue %q", ErrInvalidConfig, c.ClassifyQueue)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.TaskQueueSize <= 0:
		return fmt.Errorf("%w: task_queue_size must be positive", ErrInvalidConfig)
	case c.LedgerTimeoutMS <= 0:
		return fmt.Errorf("%w: ledger_timeout_ms must be positive", ErrInvalidConfig)
	case c.DeleteMinDwellMinutes < 0:
		return fmt.Errorf("%w: delete_min_dwell_minutes must not be negative", ErrInvalidConfig)
	}
	return nil
}
