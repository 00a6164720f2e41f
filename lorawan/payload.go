package lorawan

import "encoding"

// Payload is the interface implemented by every MACPayload variant
// (JoinRequestPayload, JoinAcceptPayload, MACPayload).
type Payload interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DataPayload is an opaque byte payload, used for a join-accept's
// encrypted body before it has been decrypted.
type DataPayload struct {
	Bytes []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (p DataPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(p.Bytes))
	copy(out, p.Bytes)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *DataPayload) UnmarshalBinary(data []byte) error {
	p.Bytes = make([]byte, len(data))
	copy(p.Bytes, data)
	return nil
}
