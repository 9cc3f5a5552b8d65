package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ghostrelay/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":3001")
			convey.So(cfg.ShardCount, convey.ShouldEqual, 16)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.OracleCarbonIntensity, convey.ShouldEqual, 250)
			convey.So(cfg.OracleCleanThreshold, convey.ShouldEqual, 300)
			convey.So(cfg.IntegrationInterval, convey.ShouldEqual, 10)
			convey.So(cfg.AutoMint, convey.ShouldBeTrue)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the derived values should be converted", func() {
			convey.So(cfg.BackendTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.LockTimeout(), convey.ShouldEqual, 10*time.Second)
			minLatency, maxLatency := cfg.LedgerLatency()
			convey.So(minLatency, convey.ShouldEqual, 0)
			convey.So(maxLatency, convey.ShouldEqual, 0)

			reward, err := cfg.RewardWei()
			convey.So(err, convey.ShouldBeNil)
			convey.So(reward.String(), convey.ShouldEqual, "1000000000000000")

			deposit, err := cfg.InitialDepositWei()
			convey.So(err, convey.ShouldBeNil)
			convey.So(deposit.String(), convey.ShouldEqual, "100000000000000000")
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = " " }},
		{"zero shards", func(c *config.Config) { c.ShardCount = 0 }},
		{"zero dedupe size", func(c *config.Config) { c.DedupeSize = 0 }},
		{"zero backend timeout", func(c *config.Config) { c.BackendTimeoutMS = 0 }},
		{"negative lock timeout", func(c *config.Config) { c.LockTimeoutMS = -1 }},
		{"zero queue", func(c *config.Config) { c.EventQueueSize = 0 }},
		{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
		{"inverted latency", func(c *config.Config) { c.LedgerLatencyMinMS, c.LedgerLatencyMaxMS = 50, 10 }},
		{"zero integration interval", func(c *config.Config) { c.IntegrationInterval = 0 }},
		{"unparseable reward", func(c *config.Config) { c.RewardEther = "lots" }},
		{"zero deposit", func(c *config.Config) { c.InitialDepositEther = "0" }},
	}

	convey.Convey("Given invalid configurations", t, func() {
		for _, tc := range cases {
			cfg := config.New(context.Background())
			tc.mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		}
	})
}
