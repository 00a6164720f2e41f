package lorawan

import (
	"encoding/binary"
	"fmt"
)

// FCtrl represents the frame control octet. Only FOptsLen (bits 3:0) is
// interpreted beyond the accessors below; ADR/ADRACKReq/ACK/FPending are
// carried through untouched, since adaptive data rate negotiation is out
// of scope for an end device this simple.
type FCtrl byte

// NewFCtrl returns a FCtrl for the given flags and FOpts length. fOptsLen
// must fit in 4 bits.
func NewFCtrl(adr, adrAckReq, ack, fPending bool, fOptsLen uint8) (FCtrl, error) {
	if fOptsLen > 15 {
		return 0, fmt.Errorf("lorawan: the max. FOptsLen is 15, got %d", fOptsLen)
	}

	var fc FCtrl
	if adr {
		fc |= 1 << 7
	}
	if adrAckReq {
		fc |= 1 << 6
	}
	if ack {
		fc |= 1 << 5
	}
	if fPending {
		fc |= 1 << 4
	}
	return fc | FCtrl(fOptsLen), nil
}

// ADR returns if the adaptive data rate control bit is set.
func (c FCtrl) ADR() bool {
	return c&(1<<7) > 0
}

// ADRACKReq returns if the acknowledgment request bit is set.
func (c FCtrl) ADRACKReq() bool {
	return c&(1<<6) > 0
}

// ACK returns if the acknowledgment bit is set.
func (c FCtrl) ACK() bool {
	return c&(1<<5) > 0
}

// FPending returns if the gataway has more data pending to be sent.
// This is only used in downlink communication.
func (c FCtrl) FPending() bool {
	return c&(1<<4) > 0
}

// FOptsLen returns how many FOpts bytes the FHDR has.
func (c FCtrl) FOptsLen() uint8 {
	return uint8(c) & 0x0F
}

// FHDR is the frame header: DevAddr(4) | FCtrl(1) | FCnt(2) | FOpts(0..15).
// FCnt on the wire only ever carries the low 16 bits of the session's
// 32 bit frame counter.
type FHDR struct {
	DevAddr DevAddr
	FCtrl   FCtrl
	FCnt    uint16
	FOpts   []byte
}

// Len returns the total encoded length of the header.
func (h FHDR) Len() int {
	return 7 + len(h.FOpts)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h FHDR) MarshalBinary() ([]byte, error) {
	if int(h.FCtrl.FOptsLen()) != len(h.FOpts) {
		return nil, fmt.Errorf("lorawan: FCtrl.FOptsLen (%d) does not match len(FOpts) (%d)", h.FCtrl.FOptsLen(), len(h.FOpts))
	}
	if len(h.FOpts) > 15 {
		return nil, fmt.Errorf("lorawan: FOpts may carry at most 15 bytes, got %d", len(h.FOpts))
	}

	out := make([]byte, 0, 7+len(h.FOpts))

	devAddr, err := h.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, devAddr...)
	out = append(out, byte(h.FCtrl))

	fcnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(fcnt, h.FCnt)
	out = append(out, fcnt...)
	out = append(out, h.FOpts...)

	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *FHDR) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return fmt.Errorf("%w: FHDR requires at least 7 bytes, got %d", ErrMalformedPacket, len(data))
	}

	if err := h.DevAddr.UnmarshalBinary(data[0:4]); err != nil {
		return err
	}
	h.FCtrl = FCtrl(data[4])
	h.FCnt = binary.LittleEndian.Uint16(data[5:7])

	fOptsLen := int(h.FCtrl.FOptsLen())
	if len(data) < 7+fOptsLen {
		return fmt.Errorf("%w: FHDR declares %d FOpts bytes but only %d bytes remain", ErrMalformedPacket, fOptsLen, len(data)-7)
	}

	h.FOpts = nil
	if fOptsLen > 0 {
		h.FOpts = make([]byte, fOptsLen)
		copy(h.FOpts, data[7:7+fOptsLen])
	}
	return nil
}
