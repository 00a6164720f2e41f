package lorawan

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// PHYPayload is the outer frame every message is wrapped in:
// MHDR(1) | MACPayload(..) | MIC(4).
type PHYPayload struct {
	MHDR       MHDR
	MACPayload Payload
	MIC        MIC
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p PHYPayload) MarshalBinary() ([]byte, error) {
	if p.MACPayload == nil {
		return nil, fmt.Errorf("lorawan: MACPayload must not be nil")
	}

	mhdr, err := p.MHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}

	macPayload, err := p.MACPayload.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(mhdr)+len(macPayload)+4)
	out = append(out, mhdr...)
	out = append(out, macPayload...)
	out = append(out, p.MIC[:]...)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The MACPayload is
// populated with the concrete type matching MHDR.MType; for JoinAccept it
// is a DataPayload, since the payload is still encrypted at this point.
func (p *PHYPayload) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("%w: a PHYPayload requires at least 12 bytes, got %d", ErrMalformedPacket, len(data))
	}

	if err := p.MHDR.UnmarshalBinary(data[0:1]); err != nil {
		return err
	}

	switch p.MHDR.MType {
	case JoinRequest:
		p.MACPayload = &JoinRequestPayload{}
	case JoinAccept:
		p.MACPayload = &DataPayload{}
	default:
		p.MACPayload = &MACPayload{}
	}

	if err := p.MACPayload.UnmarshalBinary(data[1 : len(data)-4]); err != nil {
		return err
	}

	copy(p.MIC[:], data[len(data)-4:])
	return nil
}

// MarshalText encodes the PHYPayload as base64, the wire format used by
// most LoRaWAN network server HTTP/MQTT integrations.
func (p PHYPayload) MarshalText() ([]byte, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(b)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PHYPayload) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	return p.UnmarshalBinary(b)
}

func (p PHYPayload) isUplink() bool {
	switch p.MHDR.MType {
	case JoinRequest, UnconfirmedDataUp, ConfirmedDataUp:
		return true
	default:
		return false
	}
}

// SetUplinkJoinMIC calculates and sets the MIC for a join-request.
func (p *PHYPayload) SetUplinkJoinMIC(appKey AES128Key) error {
	mic, err := p.calculateJoinMIC(appKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateUplinkJoinMIC reports whether the join-request's MIC matches.
func (p PHYPayload) ValidateUplinkJoinMIC(appKey AES128Key) (bool, error) {
	mic, err := p.calculateJoinMIC(appKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

func (p PHYPayload) calculateJoinMIC(appKey AES128Key) (MIC, error) {
	var mic MIC

	if p.MACPayload == nil {
		return mic, fmt.Errorf("lorawan: MACPayload must not be nil")
	}

	mhdr, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}

	payload, err := p.MACPayload.MarshalBinary()
	if err != nil {
		return mic, err
	}

	msg := append(mhdr, payload...)
	return computeMIC(appKey, msg)
}

// SetDownlinkJoinMIC calculates and sets the MIC for a join-accept.
// MACPayload must already hold the plaintext *JoinAcceptPayload.
func (p *PHYPayload) SetDownlinkJoinMIC(appKey AES128Key) error {
	mic, err := p.calculateJoinMIC(appKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateDownlinkJoinMIC reports whether the join-accept's MIC matches.
// MACPayload must already hold the decrypted *JoinAcceptPayload.
func (p PHYPayload) ValidateDownlinkJoinMIC(appKey AES128Key) (bool, error) {
	return p.ValidateUplinkJoinMIC(appKey)
}

// SetUplinkDataMIC calculates and sets the MIC for an uplink data frame.
// fCnt must be the full 32 bit frame counter (the FHDR only carries the
// low 16 bits on the wire).
func (p *PHYPayload) SetUplinkDataMIC(nwkSKey AES128Key, fCnt uint32) error {
	mic, err := p.calculateDataMIC(nwkSKey, true, fCnt)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateUplinkDataMIC reports whether an uplink data frame's MIC
// matches, given the full 32 bit frame counter.
func (p PHYPayload) ValidateUplinkDataMIC(nwkSKey AES128Key, fCnt uint32) (bool, error) {
	mic, err := p.calculateDataMIC(nwkSKey, true, fCnt)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// SetDownlinkDataMIC calculates and sets the MIC for a downlink data
// frame, given the full 32 bit frame counter.
func (p *PHYPayload) SetDownlinkDataMIC(nwkSKey AES128Key, fCnt uint32) error {
	mic, err := p.calculateDataMIC(nwkSKey, false, fCnt)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateDownlinkDataMIC reports whether a downlink data frame's MIC
// matches, given the full 32 bit frame counter.
func (p PHYPayload) ValidateDownlinkDataMIC(nwkSKey AES128Key, fCnt uint32) (bool, error) {
	mic, err := p.calculateDataMIC(nwkSKey, false, fCnt)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

func (p PHYPayload) calculateDataMIC(nwkSKey AES128Key, uplink bool, fCnt uint32) (MIC, error) {
	var mic MIC

	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return mic, fmt.Errorf("lorawan: MACPayload must be of type *MACPayload")
	}

	mhdr, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}

	payload, err := macPL.MarshalBinary()
	if err != nil {
		return mic, err
	}
	msg := append(mhdr, payload...)

	b0 := make([]byte, 16)
	b0[0] = 0x49
	if !uplink {
		b0[5] = 0x01
	}

	devAddr, err := macPL.FHDR.DevAddr.MarshalBinary()
	if err != nil {
		return mic, err
	}
	copy(b0[6:10], devAddr)
	binary.LittleEndian.PutUint32(b0[10:14], fCnt)
	b0[15] = byte(len(msg))

	return computeMIC(nwkSKey, append(b0, msg...))
}

// EncryptFRMPayload XORs a data frame's FRMPayload with the AES keystream
// described in the data-frame encryption scheme. It is its own inverse: calling it again on the
// output with the same arguments decrypts it.
func EncryptFRMPayload(key AES128Key, uplink bool, devAddr DevAddr, fCnt uint32, data []byte) ([]byte, error) {
	pLen := len(data)
	padded := pLen
	if padded%16 != 0 {
		padded += 16 - padded%16
	}

	buf := make([]byte, padded)
	copy(buf, data)

	devAddrB, err := devAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	a := make([]byte, 16)
	a[0] = 0x01
	if !uplink {
		a[5] = 0x01
	}
	copy(a[6:10], devAddrB)
	binary.LittleEndian.PutUint32(a[10:14], fCnt)

	for i := 0; i < padded/16; i++ {
		a[15] = byte(i + 1)
		s, err := aesECBEncrypt(key, a)
		if err != nil {
			return nil, err
		}
		for j := 0; j < 16; j++ {
			buf[i*16+j] ^= s[j]
		}
	}

	return buf[0:pLen], nil
}

// EncryptFRMPayload encrypts (or decrypts) this frame's FRMPayload in
// place under the given key: AppSKey for application data, NwkSKey when
// FPort is 0. Choosing the key is left to the caller.
func (p *PHYPayload) EncryptFRMPayload(appSKey AES128Key) error {
	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return fmt.Errorf("lorawan: MACPayload must be of type *MACPayload")
	}
	if len(macPL.FRMPayload) == 0 {
		return nil
	}

	out, err := EncryptFRMPayload(appSKey, p.isUplink(), macPL.FHDR.DevAddr, uint32(macPL.FHDR.FCnt), macPL.FRMPayload)
	if err != nil {
		return err
	}
	macPL.FRMPayload = out
	return nil
}

// DecryptFRMPayload is an alias for EncryptFRMPayload: the scheme is
// symmetric.
func (p *PHYPayload) DecryptFRMPayload(appSKey AES128Key) error {
	return p.EncryptFRMPayload(appSKey)
}

// EncryptJoinAcceptPayload encrypts a plaintext *JoinAcceptPayload (with
// the MIC already set via SetDownlinkJoinMIC) into the wire form the
// network transmits: AES-decrypt under AppKey of (plaintext || MIC).
func (p *PHYPayload) EncryptJoinAcceptPayload(appKey AES128Key) error {
	plain, ok := p.MACPayload.(*JoinAcceptPayload)
	if !ok {
		return fmt.Errorf("lorawan: MACPayload must be of type *JoinAcceptPayload")
	}

	pt, err := plain.MarshalBinary()
	if err != nil {
		return err
	}
	pt = append(pt, p.MIC[:]...)

	ct, err := aesECBDecrypt(appKey, pt)
	if err != nil {
		return err
	}

	p.MACPayload = &DataPayload{Bytes: ct[:len(ct)-4]}
	copy(p.MIC[:], ct[len(ct)-4:])
	return nil
}

// DecryptJoinAcceptPayload recovers the join-accept plaintext from its
// wire encoding: the network encrypted it by running AES-decrypt under
// AppKey, so the device recovers it with AES-encrypt.
func (p *PHYPayload) DecryptJoinAcceptPayload(appKey AES128Key) error {
	dp, ok := p.MACPayload.(*DataPayload)
	if !ok {
		return fmt.Errorf("lorawan: MACPayload must be of type *DataPayload")
	}

	ct := append(append([]byte{}, dp.Bytes...), p.MIC[:]...)

	pt, err := aesECBEncrypt(appKey, ct)
	if err != nil {
		return err
	}

	jap := &JoinAcceptPayload{}
	if err := jap.UnmarshalBinary(pt[:len(pt)-4]); err != nil {
		return err
	}

	p.MACPayload = jap
	copy(p.MIC[:], pt[len(pt)-4:])
	return nil
}
