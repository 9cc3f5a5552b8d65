package model_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	model "github.com/okian/ghostrelay/internal/domain/model"
)

func TestParseGridState(t *testing.T) {
	convey.Convey("Given oracle status strings", t, func() {
		convey.Convey("When the status is known", func() {
			clean, ok := model.ParseGridState("CLEAN")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(clean, convey.ShouldEqual, model.GridClean)

			dirty, ok := model.ParseGridState(" dirty ")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(dirty, convey.ShouldEqual, model.GridDirty)
		})

		convey.Convey("When the status is unknown", func() {
			_, ok := model.ParseGridState("MIXED")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestDeltaFor(t *testing.T) {
	convey.Convey("Given a grid state", t, func() {
		convey.So(model.DeltaFor(model.GridClean), convey.ShouldEqual, model.DeltaGood)
		convey.So(model.DeltaFor(model.GridDirty), convey.ShouldEqual, model.DeltaBad)
		convey.So(model.DeltaGood.String(), convey.ShouldEqual, "good")
		convey.So(model.DeltaBad.String(), convey.ShouldEqual, "bad")
		convey.So(model.Delta(0).String(), convey.ShouldEqual, "unknown")
	})
}

func TestProtocolVersion(t *testing.T) {
	convey.Convey("Given protocol versions", t, func() {
		convey.So(model.ProtocolV1.Valid(), convey.ShouldBeTrue)
		convey.So(model.ProtocolV2.Valid(), convey.ShouldBeTrue)
		convey.So(model.ProtocolVersion(3).Valid(), convey.ShouldBeFalse)
		convey.So(model.ProtocolVersion(0).Valid(), convey.ShouldBeFalse)
	})
}
