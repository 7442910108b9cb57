package config_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/okian/civicflow/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.ClassifyQueue, convey.ShouldEqual, config.QueueMemory)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
				convey.So(cfg.LedgerTimeoutMS, convey.ShouldEqual, 10_000)
				convey.So(cfg.DeleteMinDwellMinutes, convey.ShouldEqual, 1440)
				convey.So(cfg.RedisQueueKey, convey.ShouldEqual, "ml_classification_queue")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CIVIC_ADDR", ":8080")
			_ = os.Setenv("CIVIC_TASK_QUEUE_SIZE", "500")
			_ = os.Setenv("CIVIC_WORKER_COUNT", "3")
			_ = os.Setenv("CIVIC_CLASSIFY_QUEUE", "redis")
			_ = os.Setenv("CIVIC_LEDGER_TIMEOUT_MS", "2500")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TaskQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.ClassifyQueue, convey.ShouldEqual, config.QueueRedis)
				convey.So(cfg.LedgerTimeoutMS, convey.ShouldEqual, 2500)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
store: mongo
mongo_db: civic_test
delete_min_dwell_minutes: 0
fcm_project_id: civic-app
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CIVIC_CONFIG", tmpFile)
			_ = os.Setenv("CIVIC_ADDR", ":7070")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Store, convey.ShouldEqual, config.StoreMongo)
				convey.So(cfg.MongoDB, convey.ShouldEqual, "civic_test")
				convey.So(cfg.DeleteMinDwellMinutes, convey.ShouldEqual, 0)
				convey.So(cfg.FCMProjectID, convey.ShouldEqual, "civic-app")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("CIVIC_CONFIG", "/nonexistent/civic.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When an unknown store is requested", func() {
			_ = os.Setenv("CIVIC_STORE", "postgres")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
		})
	})
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "civic-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"CIVIC_CONFIG", "CIVIC_ADDR", "CIVIC_TASK_QUEUE_SIZE", "CIVIC_WORKER_COUNT",
		"CIVIC_CLASSIFY_QUEUE", "CIVIC_LEDGER_TIMEOUT_MS", "CIVIC_STORE",
	} {
		_ = os.Unsetenv(name)
	}
}
