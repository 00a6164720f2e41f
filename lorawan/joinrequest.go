package lorawan

import "fmt"

// JoinRequestPayload is the join-request MACPayload: AppEUI(8) |
// DevEUI(8) | DevNonce(2), exactly 18 bytes on the wire.
type JoinRequestPayload struct {
	AppEUI   EUI64
	DevEUI   EUI64
	DevNonce DevNonce
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p JoinRequestPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 18)

	b, err := p.AppEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevNonce.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *JoinRequestPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 18 {
		return fmt.Errorf("%w: JoinRequestPayload is exactly 18 bytes, got %d", ErrMalformedPacket, len(data))
	}
	if err := p.AppEUI.UnmarshalBinary(data[0:8]); err != nil {
		return err
	}
	if err := p.DevEUI.UnmarshalBinary(data[8:16]); err != nil {
		return err
	}
	return p.DevNonce.UnmarshalBinary(data[16:18])
}
