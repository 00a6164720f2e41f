package lorawan

import "fmt"

// DLSettings carries the RX1DROffset (bits 6:4) and RX2DataRate
// (bits 3:0) fields of a join-accept's DLSettings octet. Bit 7 is RFU in
// LoRaWAN 1.0 and is ignored.
type DLSettings struct {
	RX1DROffset uint8
	RX2DataRate uint8
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s DLSettings) MarshalBinary() ([]byte, error) {
	if s.RX1DROffset > 7 {
		return nil, fmt.Errorf("lorawan: RX1DROffset must fit in 3 bits, got %d", s.RX1DROffset)
	}
	if s.RX2DataRate > 15 {
		return nil, fmt.Errorf("lorawan: RX2DataRate must fit in 4 bits, got %d", s.RX2DataRate)
	}
	return []byte{s.RX1DROffset<<4 | s.RX2DataRate}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *DLSettings) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return fmt.Errorf("lorawan: DLSettings is exactly 1 byte, got %d", len(data))
	}
	s.RX1DROffset = (data[0] >> 4) & 0x07
	s.RX2DataRate = data[0] & 0x0F
	return nil
}

// JoinAcceptPayload is the (plaintext) join-accept MACPayload:
// AppNonce(3) | NetID(3) | DevAddr(4) | DLSettings(1) | RxDelay(1) |
// CFList(0|16). CFList is carried as opaque bytes.
type JoinAcceptPayload struct {
	AppNonce   AppNonce
	NetID      NetID
	DevAddr    DevAddr
	DLSettings DLSettings
	RxDelay    uint8
	CFList     []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p JoinAcceptPayload) MarshalBinary() ([]byte, error) {
	if len(p.CFList) != 0 && len(p.CFList) != 16 {
		return nil, fmt.Errorf("lorawan: CFList is either 0 or 16 bytes, got %d", len(p.CFList))
	}

	out := make([]byte, 0, 12+len(p.CFList))
	out = append(out, p.AppNonce[:]...)
	out = append(out, p.NetID[:]...)

	devAddr, err := p.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, devAddr...)

	dlSettings, err := p.DLSettings.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, dlSettings...)
	out = append(out, p.RxDelay)
	out = append(out, p.CFList...)

	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. data must be the
// already-decrypted join-accept body (12 or 28 bytes).
func (p *JoinAcceptPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 12 && len(data) != 28 {
		return fmt.Errorf("%w: JoinAcceptPayload plaintext is 12 or 28 bytes, got %d", ErrMalformedPacket, len(data))
	}

	copy(p.AppNonce[:], data[0:3])
	copy(p.NetID[:], data[3:6])
	if err := p.DevAddr.UnmarshalBinary(data[6:10]); err != nil {
		return err
	}
	if err := p.DLSettings.UnmarshalBinary(data[10:11]); err != nil {
		return err
	}
	p.RxDelay = data[11]

	if len(data) == 28 {
		p.CFList = make([]byte, 16)
		copy(p.CFList, data[12:28])
	} else {
		p.CFList = nil
	}
	return nil
}

// DeriveNwkSKey derives the network session key from this join-accept's
// AppNonce/NetID, the device's AppKey and the DevNonce it sent in the
// join-request.
func (p JoinAcceptPayload) DeriveNwkSKey(appKey AES128Key, devNonce DevNonce) (AES128Key, error) {
	return p.deriveSessionKey(0x01, appKey, devNonce)
}

// DeriveAppSKey derives the application session key from this
// join-accept's AppNonce/NetID, the device's AppKey and the DevNonce it
// sent in the join-request.
func (p JoinAcceptPayload) DeriveAppSKey(appKey AES128Key, devNonce DevNonce) (AES128Key, error) {
	return p.deriveSessionKey(0x02, appKey, devNonce)
}

func (p JoinAcceptPayload) deriveSessionKey(typeByte byte, appKey AES128Key, devNonce DevNonce) (AES128Key, error) {
	var key AES128Key

	in := make([]byte, 0, 16)
	in = append(in, typeByte)
	in = append(in, p.AppNonce[:]...)
	in = append(in, p.NetID[:]...)

	nonce, err := devNonce.MarshalBinary()
	if err != nil {
		return key, err
	}
	in = append(in, nonce...)
	in = append(in, make([]byte, 16-len(in))...)

	out, err := aesECBEncrypt(appKey, in)
	if err != nil {
		return key, err
	}
	copy(key[:], out)
	return key, nil
}
