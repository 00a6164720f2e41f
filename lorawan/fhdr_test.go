package lorawan

import (
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFCtrl(t *testing.T) {
	Convey("Given a set of FCtrl tests", t, func() {
		tests := []struct {
			Name          string
			ADR           bool
			ADRACKReq     bool
			ACK           bool
			FPending      bool
			FOptsLen      uint8
			ExpectedByte  byte
			ExpectedError bool
		}{
			{Name: "all flags clear", ExpectedByte: 0x00},
			{Name: "ADR set", ADR: true, ExpectedByte: 0x80},
			{Name: "ADRACKReq set", ADRACKReq: true, ExpectedByte: 0x40},
			{Name: "ACK set", ACK: true, ExpectedByte: 0x20},
			{Name: "FPending set", FPending: true, ExpectedByte: 0x10},
			{Name: "FOptsLen=5", FOptsLen: 5, ExpectedByte: 0x05},
			{Name: "all flags and FOptsLen=3", ADR: true, ADRACKReq: true, ACK: true, FPending: true, FOptsLen: 3, ExpectedByte: 0xF3},
			{Name: "FOptsLen=16 is invalid", FOptsLen: 16, ExpectedError: true},
		}

		for i, test := range tests {
			Convey(fmt.Sprintf("Testing: %s [%d]", test.Name, i), func() {
				fc, err := NewFCtrl(test.ADR, test.ADRACKReq, test.ACK, test.FPending, test.FOptsLen)
				if test.ExpectedError {
					So(err, ShouldNotBeNil)
					return
				}
				So(err, ShouldBeNil)
				So(byte(fc), ShouldEqual, test.ExpectedByte)
				So(fc.ADR(), ShouldEqual, test.ADR)
				So(fc.ADRACKReq(), ShouldEqual, test.ADRACKReq)
				So(fc.ACK(), ShouldEqual, test.ACK)
				So(fc.FPending(), ShouldEqual, test.FPending)
				So(fc.FOptsLen(), ShouldEqual, test.FOptsLen)
			})
		}
	})
}

func TestFHDR(t *testing.T) {
	Convey("Given an empty FHDR", t, func() {
		var h FHDR

		Convey("Then MarshalBinary returns 7 zero bytes", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0, 0, 0, 0, 0, 0, 0})
		})
	})

	Convey("Given a FHDR with DevAddr, FCtrl and FCnt set", t, func() {
		h := FHDR{
			DevAddr: DevAddr{0x01, 0x02, 0x03, 0x04},
			FCnt:    5,
		}
		fc, err := NewFCtrl(true, false, true, true, 0)
		So(err, ShouldBeNil)
		h.FCtrl = fc

		Convey("Then MarshalBinary encodes the DevAddr in little-endian wire order", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)
			So(b[0:4], ShouldResemble, []byte{0x04, 0x03, 0x02, 0x01})
		})

		Convey("Then it round-trips through Marshal/Unmarshal", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)

			var actual FHDR
			So(actual.UnmarshalBinary(b), ShouldBeNil)
			So(actual, ShouldResemble, h)
		})
	})

	Convey("Given a FHDR with FCtrl.FOptsLen not matching len(FOpts)", t, func() {
		fc, err := NewFCtrl(false, false, false, false, 2)
		So(err, ShouldBeNil)
		h := FHDR{FCtrl: fc, FOpts: []byte{0x01}}

		Convey("Then MarshalBinary returns an error", func() {
			_, err := h.MarshalBinary()
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given FOptsLen=15 (the maximum)", t, func() {
		fc, err := NewFCtrl(false, false, false, false, 15)
		So(err, ShouldBeNil)
		h := FHDR{FCtrl: fc, FOpts: make([]byte, 15)}
		for i := range h.FOpts {
			h.FOpts[i] = byte(i)
		}

		Convey("Then the header is exactly 22 bytes", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldHaveLength, 22)
			So(h.Len(), ShouldEqual, 22)
		})

		Convey("Then UnmarshalBinary consumes all 15 FOpts bytes", func() {
			b, err := h.MarshalBinary()
			So(err, ShouldBeNil)

			var actual FHDR
			So(actual.UnmarshalBinary(b), ShouldBeNil)
			So(actual.FOpts, ShouldResemble, h.FOpts)
		})
	})

	Convey("Given a buffer shorter than 7 bytes", t, func() {
		var h FHDR

		Convey("Then UnmarshalBinary returns a malformed packet error", func() {
			err := h.UnmarshalBinary([]byte{0x01, 0x02, 0x03})
			So(err, ShouldNotBeNil)
			So(errorIsMalformed(err), ShouldBeTrue)
		})
	})

	Convey("Given a buffer that declares more FOpts than remain", t, func() {
		var h FHDR
		b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x00, 0x00}

		Convey("Then UnmarshalBinary returns a malformed packet error", func() {
			err := h.UnmarshalBinary(b)
			So(err, ShouldNotBeNil)
			So(errorIsMalformed(err), ShouldBeTrue)
		})
	})
}
