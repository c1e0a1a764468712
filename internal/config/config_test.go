package config_test

import (
	"runtime"
	"testing"

	"github.com/okian/foresight/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.DecayExponent, convey.ShouldEqual, 2)
			convey.So(cfg.BatchSize, convey.ShouldEqual, 1000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.CacheTTLMS, convey.ShouldEqual, 60_000)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
		})
	})
}
