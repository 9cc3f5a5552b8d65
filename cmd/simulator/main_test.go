package main

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/simulator"
)

func TestParseFlags(t *testing.T) {
	convey.Convey("Given simulator flags", t, func() {
		_ = os.Unsetenv("RELAY_URL")
		convey.Reset(func() { _ = os.Unsetenv("RELAY_URL") })

		convey.Convey("When only an address is given", func() {
			cfg, level, err := parseFlags([]string{"-address", "0xabc"})

			convey.Convey("Then the defaults should apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(level, convey.ShouldEqual, "info")
				convey.So(cfg.RelayURL, convey.ShouldEqual, simulator.DefaultRelayURL)
				convey.So(cfg.DeviceID, convey.ShouldEqual, "device-1")
				convey.So(cfg.Protocol, convey.ShouldEqual, model.ProtocolV2)
				convey.So(cfg.Scenario, convey.ShouldEqual, -1)
				convey.So(cfg.Interval, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When positional device and address are given", func() {
			cfg, _, err := parseFlags([]string{"-protocol", "1", "-count", "3", "dc-7", "0xdef"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.DeviceID, convey.ShouldEqual, "dc-7")
			convey.So(cfg.DeviceAddress, convey.ShouldEqual, "0xdef")
			convey.So(cfg.Protocol, convey.ShouldEqual, model.ProtocolV1)
			convey.So(cfg.Count, convey.ShouldEqual, 3)
		})

		convey.Convey("When RELAY_URL is set", func() {
			_ = os.Setenv("RELAY_URL", "http://relay:3001")
			cfg, _, err := parseFlags([]string{"-address", "0xabc"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.RelayURL, convey.ShouldEqual, "http://relay:3001")
		})

		convey.Convey("When the address is missing", func() {
			_, _, err := parseFlags(nil)
			convey.So(errors.Is(err, simulator.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the protocol is unknown", func() {
			_, _, err := parseFlags([]string{"-address", "0xabc", "-protocol", "3"})
			convey.So(errors.Is(err, simulator.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
