package types_test

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	types "github.com/okian/ghostrelay/internal/domain/types"
)

func TestReadingRequest(t *testing.T) {
	Convey("Given a device submission body", t, func() {
		body := `{"deviceId":"DC-1","deviceAddress":"0xabc","timestamp":"2024-01-01T00:00:00.000Z","powerUsage":70000000,"signature":"00ff","publicKey":"pem"}`

		Convey("When decoding it", func() {
			var req types.ReadingRequest
			err := json.Unmarshal([]byte(body), &req)

			Convey("Then every field should be populated", func() {
				So(err, ShouldBeNil)
				So(req.ProtocolVersion, ShouldEqual, 0)
				So(req.DeviceAddress, ShouldEqual, "0xabc")
				So(req.PowerUsage, ShouldNotBeNil)
				So(*req.PowerUsage, ShouldEqual, 70000000)
				So(req.Hash, ShouldEqual, "")
			})
		})

		Convey("When powerUsage is missing", func() {
			var req types.ReadingRequest
			err := json.Unmarshal([]byte(`{"deviceAddress":"0xabc"}`), &req)

			Convey("Then the pointer distinguishes it from zero", func() {
				So(err, ShouldBeNil)
				So(req.PowerUsage, ShouldBeNil)
			})
		})
	})
}

func TestResponseShapes(t *testing.T) {
	Convey("Given response values", t, func() {
		Convey("When a reading response has no warnings", func() {
			raw, err := json.Marshal(types.ReadingResponse{Success: true})

			Convey("Then the warnings key should be omitted", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "warnings")
				So(string(raw), ShouldContainSubstring, `"integrationTriggered":false`)
			})
		})

		Convey("When a ghost response has no cached view", func() {
			raw, err := json.Marshal(types.GhostResponse{TokenID: 7})

			Convey("Then the cached key should be omitted", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldNotContainSubstring, "cached")
				So(string(raw), ShouldContainSubstring, `"tokenId":7`)
			})
		})

		Convey("When an error response is encoded", func() {
			raw, err := json.Marshal(types.ErrorResponse{Error: "Invalid signature", Code: "invalid_signature"})

			Convey("Then it should expose error and code", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"error":"Invalid signature","code":"invalid_signature"}`)
			})
		})
	})
}
