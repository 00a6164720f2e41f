package lorawan

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMHDR(t *testing.T) {
	Convey("Given an empty MHDR", t, func() {
		var mhdr MHDR

		Convey("Then MarshalBinary returns 0x00", func() {
			b, err := mhdr.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x00})
		})
	})

	Convey("Given NewMHDR(UnconfirmedDataUp, LoRaWANR1)", t, func() {
		mhdr := NewMHDR(UnconfirmedDataUp, LoRaWANR1)

		Convey("Then MType = UnconfirmedDataUp", func() {
			So(mhdr.MType, ShouldEqual, UnconfirmedDataUp)
		})

		Convey("Then it marshals to 0x40", func() {
			b, err := mhdr.MarshalBinary()
			So(err, ShouldBeNil)
			So(b, ShouldResemble, []byte{0x40})
		})

		Convey("Then it round-trips through Marshal/Unmarshal", func() {
			b, err := mhdr.MarshalBinary()
			So(err, ShouldBeNil)

			var actual MHDR
			So(actual.UnmarshalBinary(b), ShouldBeNil)
			So(actual, ShouldResemble, mhdr)
		})
	})

	Convey("Given a set of MType/Direction pairs", t, func() {
		tests := []struct {
			MType     MType
			Direction Direction
		}{
			{JoinRequest, Up},
			{JoinAccept, Down},
			{UnconfirmedDataUp, Up},
			{UnconfirmedDataDown, Down},
			{ConfirmedDataUp, Up},
			{ConfirmedDataDown, Down},
		}

		for _, test := range tests {
			Convey(test.MType.String(), func() {
				So(test.MType.Direction(), ShouldEqual, test.Direction)
			})
		}
	})

	Convey("Given a byte with a non-zero RFU bit", t, func() {
		var mhdr MHDR

		Convey("Then UnmarshalBinary returns a malformed packet error", func() {
			err := mhdr.UnmarshalBinary([]byte{0x04})
			So(err, ShouldNotBeNil)
			So(errorIsMalformed(err), ShouldBeTrue)
		})
	})

	Convey("Given a byte with an unsupported Major", t, func() {
		var mhdr MHDR

		Convey("Then UnmarshalBinary returns a malformed packet error", func() {
			err := mhdr.UnmarshalBinary([]byte{0x01})
			So(err, ShouldNotBeNil)
			So(errorIsMalformed(err), ShouldBeTrue)
		})
	})

	Convey("Given an MType beyond Proprietary", t, func() {
		mhdr := MHDR{MType: 8, Major: LoRaWANR1}

		Convey("Then MarshalBinary returns an error", func() {
			_, err := mhdr.MarshalBinary()
			So(err, ShouldNotBeNil)
		})
	})
}
